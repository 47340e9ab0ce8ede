package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stride/pkg/adapters/redis"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunSessionStateStoreContract(t, store)
}

func TestRedisArchive_Contract(t *testing.T) {
	_, client := newClient(t)

	archive := redis.NewArchive(client)
	ports.RunDraftStoreContract(t, archive)
	ports.RunArchiveStoreContract(t, archive)
}

func TestRedisStore_RecordLayout(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.MarkTriggered(ctx, "s1", "u1"))

	assert.True(t, mr.Exists("test:state:s1"))
	assert.Equal(t, "1", mr.HGet("test:state:s1", "generation_triggered"))
	assert.Equal(t, "u1", mr.HGet("test:state:s1", "user_id"))
	assert.Equal(t, "prepare", mr.HGet("test:state:s1", "current_stage"))

	members, err := mr.ZMembers("test:state:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)
}

func TestRedisStore_CooldownFollowsClock(t *testing.T) {
	_, client := newClient(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := redis.NewFromClient(client, redis.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.MarkTriggered(ctx, "s1", "u1"))

	check, err := store.CanTriggerGeneration(ctx, "s1", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, domain.ReasonCooldown, check.Reason)

	now = now.Add(5 * time.Second)
	check, err = store.CanTriggerGeneration(ctx, "s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	// Create store with 1s TTL
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.UpdateStage(ctx, "session-ttl", "u1", domain.StageActivate))

	_, err := store.Load(ctx, "session-ttl")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "session-ttl")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisStore_UnreachableReturnsError(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := store.CanTriggerGeneration(ctx, "s1", 5*time.Second)
	assert.Error(t, err)
}

func TestRedisArchive_DraftExpires(t *testing.T) {
	mr, client := newClient(t)
	archive := redis.NewArchive(client)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, archive.SaveDraft(ctx, &domain.Draft{
		ID:        "d1",
		UserID:    "u1",
		Inputs:    &domain.PreparerData{AvailableTime: 30, LocationID: "home"},
		SavedAt:   now,
		ExpiresAt: now.Add(48 * time.Hour),
	}))

	_, err := archive.LoadDraft(ctx, "u1")
	require.NoError(t, err)

	mr.FastForward(49 * time.Hour)

	_, err = archive.LoadDraft(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestRedisArchive_AnalysisRoundTrip(t *testing.T) {
	_, client := newClient(t)
	archive := redis.NewArchive(client)
	ctx := context.Background()

	rec := &domain.AnalysisRecord{
		SessionID: "s1",
		UserID:    "u1",
		Result:    &domain.AnalysisResult{CoachRationale: "steady"},
		Metadata:  domain.AnalysisMetadata{Cached: true, LatencyMs: 1200},
		Fallbacks: []string{"Missing achievements"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, archive.SaveAnalysis(ctx, rec))

	loaded, err := archive.LoadAnalysis(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "steady", loaded.Result.CoachRationale)
	assert.True(t, loaded.Metadata.Cached)
	assert.Equal(t, []string{"Missing achievements"}, loaded.Fallbacks)

	_, err = archive.LoadAnalysis(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
