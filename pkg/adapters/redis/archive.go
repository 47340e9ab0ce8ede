package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/stride/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Archive implements ports.ArchiveStore and ports.DraftStore using Redis.
// Drafts carry a key TTL matching their expiry.
type Archive struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewArchive creates an archive sharing client. WithTTL bounds archived records.
func NewArchive(client *backend.Client, opts ...Option) *Archive {
	// Reuse the Store options so both adapters are configured the same way.
	cfg := NewFromClient(client, opts...)
	return &Archive{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
		now:    cfg.now,
	}
}

func (a *Archive) abandonedKey(id string) string { return a.prefix + "archive:abandoned:" + id }
func (a *Archive) analysisKey(id string) string  { return a.prefix + "archive:analysis:" + id }
func (a *Archive) indexKey() string              { return a.prefix + "archive:index" }
func (a *Archive) draftKey(userID string) string { return a.prefix + "draft:" + userID }

func (a *Archive) save(ctx context.Context, key, id string, v any, at time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := a.client.Pipeline()
	pipe.Set(ctx, key, data, a.ttl)
	pipe.ZAdd(ctx, a.indexKey(), backend.Z{
		Score:  float64(at.Unix()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (a *Archive) SaveAbandoned(ctx context.Context, rec *domain.AbandonedSession) error {
	return a.save(ctx, a.abandonedKey(rec.SessionID), rec.SessionID, rec, rec.CreatedAt)
}

func (a *Archive) SaveAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	return a.save(ctx, a.analysisKey(rec.SessionID), rec.SessionID, rec, rec.CreatedAt)
}

// LoadAnalysis returns the persisted analysis for sessionID.
func (a *Archive) LoadAnalysis(ctx context.Context, sessionID string) (*domain.AnalysisRecord, error) {
	val, err := a.client.Get(ctx, a.analysisKey(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var rec domain.AnalysisRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &rec, nil
}

func (a *Archive) ListArchived(ctx context.Context) ([]string, error) {
	ids, err := a.client.ZRange(ctx, a.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return ids, nil
}

// SaveDraft stores the draft with a TTL matching its expiry.
func (a *Archive) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	ttl := draft.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		// Already expired: make sure no stale draft survives.
		return a.DeleteDraft(ctx, draft.UserID)
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := a.client.Set(ctx, a.draftKey(draft.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (a *Archive) LoadDraft(ctx context.Context, userID string) (*domain.Draft, error) {
	val, err := a.client.Get(ctx, a.draftKey(userID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	var draft domain.Draft
	if err := json.Unmarshal([]byte(val), &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &draft, nil
}

func (a *Archive) DeleteDraft(ctx context.Context, userID string) error {
	return a.client.Del(ctx, a.draftKey(userID)).Err()
}
