package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStages_CoverFullRangeInOrder(t *testing.T) {
	stages := domain.Stages()
	require.Len(t, stages, 5)

	assert.Equal(t, 0, stages[0].ProgressStart)
	assert.Equal(t, 100, stages[len(stages)-1].ProgressEnd)
	for i := 1; i < len(stages); i++ {
		assert.Equal(t, stages[i-1].ProgressEnd+1, stages[i].ProgressStart, "gap or overlap before %s", stages[i].ID)
		assert.LessOrEqual(t, stages[i].ProgressStart, stages[i].ProgressEnd)
	}
}

func TestStages_ReturnsCopy(t *testing.T) {
	stages := domain.Stages()
	stages[0].ProgressStart = 99

	assert.Equal(t, 0, domain.FirstStage().ProgressStart)
}

func TestNextAndPreviousStage(t *testing.T) {
	next, ok := domain.NextStage(domain.StagePrepare)
	require.True(t, ok)
	assert.Equal(t, domain.StageActivate, next.ID)

	_, ok = domain.NextStage(domain.StageAdvance)
	assert.False(t, ok)

	prev, ok := domain.PreviousStage(domain.StagePerform)
	require.True(t, ok)
	assert.Equal(t, domain.StageActivate, prev.ID)

	_, ok = domain.PreviousStage(domain.StagePrepare)
	assert.False(t, ok)

	_, err := domain.LookupStage("cooldown")
	assert.ErrorIs(t, err, domain.ErrUnknownStage)
}

func TestEvaluateRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Second
	recent := now.Add(-2 * time.Second)
	old := now.Add(-10 * time.Second)

	t.Run("Nil record allows", func(t *testing.T) {
		assert.True(t, domain.EvaluateRecord(nil, now, cooldown).Allowed)
	})

	t.Run("Existing prescription blocks", func(t *testing.T) {
		check := domain.EvaluateRecord(&domain.SessionStateRecord{PrescriptionExists: true}, now, cooldown)
		assert.False(t, check.Allowed)
		assert.Equal(t, domain.ReasonPlanExists, check.Reason)
	})

	t.Run("Recent trigger blocks", func(t *testing.T) {
		rec := &domain.SessionStateRecord{GenerationTriggered: true, GenerationTriggeredAt: &recent}
		check := domain.EvaluateRecord(rec, now, cooldown)
		assert.False(t, check.Allowed)
		assert.Equal(t, domain.ReasonCooldown, check.Reason)
	})

	t.Run("Expired trigger allows", func(t *testing.T) {
		rec := &domain.SessionStateRecord{GenerationTriggered: true, GenerationTriggeredAt: &old}
		assert.True(t, domain.EvaluateRecord(rec, now, cooldown).Allowed)
	})

	t.Run("Completed trigger allows", func(t *testing.T) {
		rec := &domain.SessionStateRecord{GenerationTriggered: true, GenerationTriggeredAt: &recent, GenerationCompletedAt: &now}
		assert.True(t, domain.EvaluateRecord(rec, now, cooldown).Allowed)
	})
}

func TestLoad_UnmarshalNumberOrArray(t *testing.T) {
	var ex domain.ExerciseFeedback
	require.NoError(t, json.Unmarshal([]byte(`{"exerciseId":"a","loadUsed":60}`), &ex))
	assert.Equal(t, domain.Load{60}, ex.LoadUsed)

	require.NoError(t, json.Unmarshal([]byte(`{"exerciseId":"a","loadUsed":[50,60,70]}`), &ex))
	assert.Equal(t, domain.Load{50, 60, 70}, ex.LoadUsed)
	assert.InDelta(t, 60, ex.LoadUsed.Mean(), 0.001)

	assert.Zero(t, domain.Load(nil).Mean())
}

func TestSnapshot_IsDeep(t *testing.T) {
	s := domain.NewSession("s1", "u1", time.Now())
	s.Plan = &domain.Prescription{Type: "strength", Exercises: []domain.Exercise{{ID: "e1", Load: domain.Load{40}}}}

	snap := s.Snapshot()
	snap.Plan.Exercises[0].Load[0] = 100

	assert.Equal(t, 40.0, s.Plan.Exercises[0].Load[0])
}
