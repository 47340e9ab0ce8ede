package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/stride/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "stride:"

// Hash fields of a session-state record.
const (
	fieldUserID       = "user_id"
	fieldTriggered    = "generation_triggered"
	fieldTriggeredAt  = "generation_triggered_at"
	fieldCompletedAt  = "generation_completed_at"
	fieldPlanExists   = "prescription_exists"
	fieldStage        = "current_stage"
	fieldLastActivity = "last_activity_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// Store implements ports.SessionStateStore using Redis.
// Each record is a hash; an index ZSET scored by last activity drives
// listing and stale cleanup.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the expiration for session records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    0, // No expiration by default
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client so the archive and locker can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "state:" + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "state:index"
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// touch queues the common upsert commands for a record on pipe.
func (s *Store) touch(ctx context.Context, pipe backend.Pipeliner, sessionID, userID string, now time.Time) {
	key := s.key(sessionID)
	pipe.HSetNX(ctx, key, fieldCreatedAt, millis(now))
	pipe.HSetNX(ctx, key, fieldStage, string(domain.StagePrepare))
	fields := map[string]any{
		fieldUpdatedAt:    millis(now),
		fieldLastActivity: millis(now),
	}
	if userID != "" {
		fields[fieldUserID] = userID
	}
	pipe.HSet(ctx, key, fields)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(now.UnixMilli()),
		Member: sessionID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// CanTriggerGeneration loads the record and evaluates the blocking rules.
func (s *Store) CanTriggerGeneration(ctx context.Context, sessionID string, cooldown time.Duration) (domain.GenerationCheck, error) {
	rec, err := s.Load(ctx, sessionID)
	if err == domain.ErrSessionNotFound {
		return domain.GenerationCheck{Allowed: true}, nil
	}
	if err != nil {
		return domain.GenerationCheck{}, err
	}
	return domain.EvaluateRecord(rec, s.now(), cooldown), nil
}

// MarkTriggered records the trigger time and clears any previous completion.
func (s *Store) MarkTriggered(ctx context.Context, sessionID, userID string) error {
	now := s.now()
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		s.touch(ctx, pipe, sessionID, userID, now)
		pipe.HSet(ctx, s.key(sessionID), fieldTriggered, "1", fieldTriggeredAt, millis(now))
		pipe.HDel(ctx, s.key(sessionID), fieldCompletedAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark generation triggered: %w", err)
	}
	return nil
}

// MarkCompleted records the completion time and the existence of a plan.
func (s *Store) MarkCompleted(ctx context.Context, sessionID string) error {
	now := s.now()
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		s.touch(ctx, pipe, sessionID, "", now)
		pipe.HSet(ctx, s.key(sessionID), fieldCompletedAt, millis(now), fieldPlanExists, "1")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark generation completed: %w", err)
	}
	return nil
}

// UpdateStage records the current stage.
func (s *Store) UpdateStage(ctx context.Context, sessionID, userID string, stage domain.StageID) error {
	now := s.now()
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		s.touch(ctx, pipe, sessionID, userID, now)
		pipe.HSet(ctx, s.key(sessionID), fieldStage, string(stage))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return nil
}

// Load retrieves the record from Redis.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionStateRecord, error) {
	vals, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return decodeRecord(sessionID, vals)
}

func decodeRecord(sessionID string, vals map[string]string) (*domain.SessionStateRecord, error) {
	rec := &domain.SessionStateRecord{
		SessionID:           sessionID,
		UserID:              vals[fieldUserID],
		GenerationTriggered: vals[fieldTriggered] == "1",
		PrescriptionExists:  vals[fieldPlanExists] == "1",
		CurrentStage:        domain.StageID(vals[fieldStage]),
	}

	parse := func(field string) (*time.Time, error) {
		raw, ok := vals[field]
		if !ok || raw == "" {
			return nil, nil
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt field %s for session %s: %w", field, sessionID, err)
		}
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}

	var err error
	if rec.GenerationTriggeredAt, err = parse(fieldTriggeredAt); err != nil {
		return nil, err
	}
	if rec.GenerationCompletedAt, err = parse(fieldCompletedAt); err != nil {
		return nil, err
	}
	for field, dst := range map[string]*time.Time{
		fieldLastActivity: &rec.LastActivityAt,
		fieldCreatedAt:    &rec.CreatedAt,
		fieldUpdatedAt:    &rec.UpdatedAt,
	} {
		t, err := parse(field)
		if err != nil {
			return nil, err
		}
		if t != nil {
			*dst = *t
		}
	}
	return rec, nil
}

// Reset removes the record and its index entry.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)

	_, err := pipe.Exec(ctx)
	return err
}

// CleanupStale removes records whose last activity is older than olderThan.
func (s *Store) CleanupStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "(" + millis(cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan stale sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to remove stale sessions: %w", err)
	}
	return len(ids), nil
}

// List returns known sessions ordered by last activity.
// Index entries whose record already expired via TTL are pruned lazily.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s.ttl > 0 {
		horizon := s.now().Add(-s.ttl)
		err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+millis(horizon)).Err()
		if err != nil {
			return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
		}
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
