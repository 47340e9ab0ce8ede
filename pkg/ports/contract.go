package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStateStoreContract runs a suite of tests to verify that a
// SessionStateStore implementation adheres to the defined interface contract.
func RunSessionStateStoreContract(t *testing.T, store SessionStateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Unknown Session Can Trigger", func(t *testing.T) {
		check, err := store.CanTriggerGeneration(ctx, "unknown-"+sessionID, 5*time.Second)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
	})

	t.Run("Triggered Blocks Within Cooldown", func(t *testing.T) {
		id := sessionID + "-trigger"
		defer func() { _ = store.Reset(ctx, id) }()

		require.NoError(t, store.MarkTriggered(ctx, id, "user-1"))

		check, err := store.CanTriggerGeneration(ctx, id, time.Minute)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, domain.ReasonCooldown, check.Reason)

		// A zero cooldown has always elapsed.
		check, err = store.CanTriggerGeneration(ctx, id, 0)
		require.NoError(t, err)
		assert.True(t, check.Allowed)

		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.True(t, rec.GenerationTriggered)
		assert.NotNil(t, rec.GenerationTriggeredAt)
		assert.Equal(t, "user-1", rec.UserID)
	})

	t.Run("Completed Blocks As Existing Prescription", func(t *testing.T) {
		id := sessionID + "-complete"
		defer func() { _ = store.Reset(ctx, id) }()

		require.NoError(t, store.MarkTriggered(ctx, id, "user-1"))
		require.NoError(t, store.MarkCompleted(ctx, id))

		check, err := store.CanTriggerGeneration(ctx, id, 0)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, domain.ReasonPlanExists, check.Reason)

		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.True(t, rec.PrescriptionExists)
		assert.NotNil(t, rec.GenerationCompletedAt)
	})

	t.Run("Update Stage", func(t *testing.T) {
		id := sessionID + "-stage"
		defer func() { _ = store.Reset(ctx, id) }()

		require.NoError(t, store.UpdateStage(ctx, id, "user-2", domain.StageActivate))
		require.NoError(t, store.UpdateStage(ctx, id, "user-2", domain.StagePerform))

		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StagePerform, rec.CurrentStage)
		assert.False(t, rec.LastActivityAt.IsZero())
		assert.False(t, rec.GenerationTriggered)
	})

	t.Run("Reset", func(t *testing.T) {
		id := sessionID + "-reset"
		require.NoError(t, store.MarkTriggered(ctx, id, "user-1"))

		require.NoError(t, store.Reset(ctx, id))

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		check, err := store.CanTriggerGeneration(ctx, id, time.Minute)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
	})

	t.Run("List And Cleanup", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.UpdateStage(ctx, id1, "user-1", domain.StagePrepare))
		require.NoError(t, store.UpdateStage(ctx, id2, "user-1", domain.StagePrepare))

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)

		// Fresh records survive a one-hour horizon.
		removed, err := store.CleanupStale(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)

		// A negative age moves the horizon into the future and sweeps everything.
		removed, err = store.CleanupStale(ctx, -time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 2)

		_, err = store.Load(ctx, id1)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

// RunDraftStoreContract verifies a DraftStore implementation.
func RunDraftStoreContract(t *testing.T, store DraftStore) {
	ctx := context.Background()
	userID := "contract-user-" + time.Now().Format("20060102150405")

	t.Run("Load Missing", func(t *testing.T) {
		_, err := store.LoadDraft(ctx, userID)
		assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	})

	t.Run("Save Load Delete", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		draft := &domain.Draft{
			ID:        "draft-1",
			UserID:    userID,
			Inputs:    &domain.PreparerData{AvailableTime: 45, LocationID: "gym-1", EnergyLevel: 7},
			SavedAt:   now,
			ExpiresAt: now.Add(48 * time.Hour),
		}
		require.NoError(t, store.SaveDraft(ctx, draft))

		loaded, err := store.LoadDraft(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "draft-1", loaded.ID)
		require.NotNil(t, loaded.Inputs)
		assert.Equal(t, 45, loaded.Inputs.AvailableTime)
		assert.True(t, loaded.ExpiresAt.Equal(draft.ExpiresAt))

		require.NoError(t, store.DeleteDraft(ctx, userID))
		_, err = store.LoadDraft(ctx, userID)
		assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	})

	t.Run("Delete Missing Is Not An Error", func(t *testing.T) {
		assert.NoError(t, store.DeleteDraft(ctx, "nobody-"+userID))
	})
}

// RunArchiveStoreContract verifies an ArchiveStore implementation.
func RunArchiveStoreContract(t *testing.T, store ArchiveStore) {
	ctx := context.Background()
	sessionID := "contract-archive-" + time.Now().Format("20060102150405")

	require.NoError(t, store.SaveAbandoned(ctx, &domain.AbandonedSession{
		SessionID:    sessionID + "-abandoned",
		UserID:       "user-1",
		Status:       "abandoned",
		Prescription: &domain.Prescription{Type: "strength"},
		AbandonedAt:  domain.StagePerform,
		CreatedAt:    time.Now(),
	}))
	require.NoError(t, store.SaveAnalysis(ctx, &domain.AnalysisRecord{
		SessionID: sessionID + "-analysis",
		UserID:    "user-1",
		Result:    &domain.AnalysisResult{CoachRationale: "ok"},
		CreatedAt: time.Now(),
	}))

	ids, err := store.ListArchived(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, sessionID+"-abandoned")
	assert.Contains(t, ids, sessionID+"-analysis")
}
