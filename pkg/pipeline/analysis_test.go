package pipeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/stride/pkg/adapters/memory"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedback() domain.SessionFeedback {
	return domain.SessionFeedback{
		OverallRPE: 7,
		Exercises:  []domain.ExerciseFeedback{{ExerciseID: "squat", Completed: true, RPE: 7, Technique: 8}},
	}
}

func TestMachine_AnalyzeStoresResult(t *testing.T) {
	f := newFixture(t, pipeline.WithAnalyzer(&fakeAnalyzer{}))
	ctx := context.Background()
	m := f.machine

	_, err := m.Analyze(ctx)
	assert.ErrorIs(t, err, domain.ErrNoPlan)

	require.NoError(t, m.SetPlan(ctx, samplePlan()))
	_, err = m.Analyze(ctx)
	assert.ErrorIs(t, err, domain.ErrNoFeedback)

	require.NoError(t, m.SubmitFeedback(ctx, feedback()))
	result, err := m.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok for "+m.SessionID(), result.CoachRationale)
	assert.Equal(t, result, m.Session().Analysis)

	// New feedback invalidates the previous analysis.
	require.NoError(t, m.SubmitFeedback(ctx, feedback()))
	assert.Nil(t, m.Session().Analysis)
}

func TestMachine_AnalyzeWithoutAnalyzer(t *testing.T) {
	m := pipeline.New("u1")
	_, err := m.Analyze(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoAnalyzer)
}

func TestMachine_ForceExitDetachesInFlightAnalysis(t *testing.T) {
	an := &fakeAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, pipeline.WithAnalyzer(an))
	ctx := context.Background()
	m := f.machine

	require.NoError(t, m.SetPlan(ctx, samplePlan()))
	require.NoError(t, m.SubmitFeedback(ctx, feedback()))

	done := make(chan error, 1)
	go func() {
		_, err := m.Analyze(ctx)
		done <- err
	}()

	<-an.started
	m.ForceExit(ctx, false)
	close(an.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrSessionDetached)
	case <-time.After(time.Second):
		t.Fatal("analyze did not return")
	}
	s := m.Session()
	assert.Nil(t, s.Analysis)
	assert.Equal(t, domain.StagePrepare, s.CurrentStage)
}

func TestMachine_ForceExitSavesSnapshot(t *testing.T) {
	var exits []*domain.ExitEvent
	f := newFixture(t, pipeline.WithLifecycleHooks(domain.LifecycleHooks{
		OnExit: func(_ context.Context, ev *domain.ExitEvent) { exits = append(exits, ev) },
	}))
	ctx := context.Background()
	m := f.machine

	require.NoError(t, m.SetInputs(ctx, validInputs()))
	require.NoError(t, m.SetPlan(ctx, samplePlan()))
	require.NoError(t, m.JumpTo(ctx, domain.StagePerform))
	m.SetProgress(55)
	require.NoError(t, m.SubmitFeedback(ctx, feedback()))
	sid := m.SessionID()

	m.ForceExit(ctx, true)
	m.Wait()

	snap, ok := f.archive.Abandoned(sid)
	require.True(t, ok)
	assert.Equal(t, "abandoned", snap.Status)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "strength", snap.Type)
	assert.Equal(t, domain.DefaultDurationMinutes, snap.DurationTarget)
	assert.Equal(t, []string{"barbell", "rack"}, snap.Equipment)
	assert.Equal(t, "City Gym", snap.Venue)
	assert.Equal(t, domain.StagePerform, snap.AbandonedAt)
	require.NotNil(t, snap.Feedback)
	assert.Equal(t, 7.0, snap.Feedback.OverallRPE)

	s := m.Session()
	assert.NotEqual(t, sid, s.SessionID)
	assert.Equal(t, domain.StagePrepare, s.CurrentStage)
	assert.Equal(t, 0, s.Progress)
	assert.Nil(t, s.Plan)
	assert.Nil(t, s.Inputs)
	assert.False(t, s.Abandoned)

	require.Len(t, exits, 1)
	assert.True(t, exits[0].Saved)
	assert.Equal(t, domain.StagePerform, exits[0].Stage)
}

func TestMachine_ForceExitWithoutSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.machine

	require.NoError(t, m.SetPlan(ctx, samplePlan()))
	sid := m.SessionID()
	m.ForceExit(ctx, false)
	m.Wait()

	_, ok := f.archive.Abandoned(sid)
	assert.False(t, ok)

	// Without a plan there is nothing worth saving.
	sid = m.SessionID()
	m.ForceExit(ctx, true)
	m.Wait()
	_, ok = f.archive.Abandoned(sid)
	assert.False(t, ok)
}

type failingArchive struct {
	*memory.Archive
	saves atomic.Int32
}

func (a *failingArchive) SaveAbandoned(context.Context, *domain.AbandonedSession) error {
	a.saves.Add(1)
	return errors.New("archive unavailable")
}

func TestMachine_ForceExitCompletesWhenArchiveFails(t *testing.T) {
	archive := &failingArchive{Archive: memory.NewArchive()}
	f := newFixture(t, pipeline.WithArchive(archive))
	ctx := context.Background()
	m := f.machine

	require.NoError(t, m.SetInputs(ctx, validInputs()))
	require.NoError(t, m.SetPlan(ctx, samplePlan()))
	require.NoError(t, m.JumpTo(ctx, domain.StagePerform))
	sid := m.SessionID()

	m.ForceExit(ctx, true)
	m.Wait()

	assert.Equal(t, int32(1), archive.saves.Load())
	s := m.Session()
	assert.NotEqual(t, sid, s.SessionID)
	assert.Equal(t, domain.StagePrepare, s.CurrentStage)
	assert.Equal(t, 0, s.Progress)
	assert.Nil(t, s.Plan)
	assert.False(t, s.Abandoned)
}
