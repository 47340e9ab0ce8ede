package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/stride/pkg/domain"
)

// Store implements ports.SessionStateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.SessionStateRecord
	mu   sync.RWMutex
	now  func() time.Time
}

// Option configures the in-memory stores.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStore creates a new in-memory session-state store.
func NewStore(opts ...Option) *Store {
	o := applyOptions(opts)
	return &Store{
		data: make(map[string]*domain.SessionStateRecord),
		now:  o.now,
	}
}

// upsert returns the record for sessionID, creating it if needed.
// Caller must hold s.mu.
func (s *Store) upsert(sessionID, userID string, now time.Time) *domain.SessionStateRecord {
	rec, ok := s.data[sessionID]
	if !ok {
		rec = &domain.SessionStateRecord{
			SessionID:    sessionID,
			CurrentStage: domain.StagePrepare,
			CreatedAt:    now,
		}
		s.data[sessionID] = rec
	}
	if userID != "" {
		rec.UserID = userID
	}
	rec.UpdatedAt = now
	rec.LastActivityAt = now
	return rec
}

// CanTriggerGeneration applies domain.EvaluateRecord to the stored record.
func (s *Store) CanTriggerGeneration(ctx context.Context, sessionID string, cooldown time.Duration) (domain.GenerationCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.EvaluateRecord(s.data[sessionID], s.now(), cooldown), nil
}

// MarkTriggered records the trigger time.
func (s *Store) MarkTriggered(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := s.upsert(sessionID, userID, now)
	rec.GenerationTriggered = true
	rec.GenerationTriggeredAt = &now
	rec.GenerationCompletedAt = nil
	return nil
}

// MarkCompleted records the completion time and the existence of a plan.
func (s *Store) MarkCompleted(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := s.upsert(sessionID, "", now)
	rec.GenerationCompletedAt = &now
	rec.PrescriptionExists = true
	return nil
}

// UpdateStage records the current stage.
func (s *Store) UpdateStage(ctx context.Context, sessionID, userID string, stage domain.StageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.upsert(sessionID, userID, s.now())
	rec.CurrentStage = stage
	return nil
}

// Load retrieves a copy of the record.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionStateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	// Copy on read so callers can't mutate the store by pointer
	ret := *rec
	return &ret, nil
}

// Reset removes the record.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// CleanupStale removes records idle for longer than olderThan.
func (s *Store) CleanupStale(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for id, rec := range s.data {
		if rec.LastActivityAt.Before(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// List returns known sessions in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
