package ports

import (
	"context"
	"time"

	"github.com/aretw0/stride/pkg/domain"
)

// SessionStateStore persists the cross-reload mirror of a pipeline session.
// It is the one resource shared across reloads and replicas; writers may race
// and implementations are not required to be transactional.
type SessionStateStore interface {
	// CanTriggerGeneration evaluates the persisted blocking rules for sessionID:
	// an existing prescription, or a trigger younger than cooldown that has not
	// completed. An unknown session is allowed.
	CanTriggerGeneration(ctx context.Context, sessionID string, cooldown time.Duration) (domain.GenerationCheck, error)

	// MarkTriggered records that a generation was started.
	MarkTriggered(ctx context.Context, sessionID, userID string) error

	// MarkCompleted records that the generated plan was captured.
	MarkCompleted(ctx context.Context, sessionID string) error

	// UpdateStage records stage bookkeeping and refreshes LastActivityAt.
	UpdateStage(ctx context.Context, sessionID, userID string, stage domain.StageID) error

	// Load retrieves the record for sessionID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.SessionStateRecord, error)

	// Reset removes the record for sessionID.
	Reset(ctx context.Context, sessionID string) error

	// CleanupStale removes records whose last activity is older than olderThan
	// and returns how many were removed.
	CleanupStale(ctx context.Context, olderThan time.Duration) (int, error)

	// List returns the ids of all known sessions.
	List(ctx context.Context) ([]string, error)
}

// ArchiveStore keeps records that outlive the live session.
type ArchiveStore interface {
	// SaveAbandoned persists a force-exit snapshot.
	SaveAbandoned(ctx context.Context, rec *domain.AbandonedSession) error

	// SaveAnalysis persists a completed analysis.
	SaveAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error

	// ListArchived returns the ids of archived sessions.
	ListArchived(ctx context.Context) ([]string, error)
}

// DraftStore keeps at most one saved draft per user.
type DraftStore interface {
	SaveDraft(ctx context.Context, draft *domain.Draft) error

	// LoadDraft returns domain.ErrDraftNotFound when no draft exists.
	// Expiry is the caller's concern.
	LoadDraft(ctx context.Context, userID string) (*domain.Draft, error)

	DeleteDraft(ctx context.Context, userID string) error
}

// UnlockFunc releases a lock taken with DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes the operations on one user's pipeline across
// replicas that share a store. The lock expires after ttl if its holder dies.
type DistributedLocker interface {
	// Lock blocks until key is held or ctx ends.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
