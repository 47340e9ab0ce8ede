package stride_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/stride"
	"github.com/aretw0/stride/internal/config"
	"github.com/aretw0/stride/pkg/adapters/file"
	"github.com/aretw0/stride/pkg/adapters/memory"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var generations atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		generations.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"type":           "strength",
				"durationTarget": 40,
				"exercises":      []any{map[string]any{"id": "squat", "name": "Back Squat", "sets": 3, "reps": 5, "load": 100}},
			},
		})
	})
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"data":     map[string]any{"coachRationale": "Well done"},
			"metadata": map[string]any{"latencyMs": 12},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &generations
}

func TestEngine_FullSession(t *testing.T) {
	srv, generations := remoteServer(t)
	cfg := config.Default()
	cfg.Remote.GenerationURL = srv.URL + "/generate"
	cfg.Remote.AnalysisURL = srv.URL + "/analyze"
	cfg.Remote.BackoffBase = time.Millisecond

	var stages []domain.StageID
	archive := memory.NewArchive()
	eng, err := stride.New(
		stride.WithConfig(cfg),
		stride.WithArchive(archive),
		stride.WithLifecycleHooks(domain.LifecycleHooks{
			OnStageEnter: func(_ context.Context, ev *domain.StageEvent) { stages = append(stages, ev.To) },
		}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	var sessionID string
	err = eng.Sessions().WithPipeline(ctx, "u1", func(ctx context.Context, p *pipeline.Machine) error {
		sessionID = p.SessionID()
		require.NoError(t, p.SetInputs(ctx, domain.PreparerData{AvailableTime: 45, LocationID: "gym", EnergyLevel: 6}))
		p.Advance(ctx)

		plan, err := p.GeneratePlan(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Load{100}, plan.Exercises[0].Load)

		p.Advance(ctx)
		p.Advance(ctx)
		require.NoError(t, p.SubmitFeedback(ctx, domain.SessionFeedback{
			OverallRPE: 7,
			Exercises:  []domain.ExerciseFeedback{{ExerciseID: "squat", Completed: true, RPE: 7, Technique: 8}},
		}))
		result, err := p.Analyze(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Well done", result.CoachRationale)
		assert.NotNil(t, result.SessionAnalysis.OverallPerformance)

		p.Advance(ctx)
		return p.Complete(ctx)
	})
	require.NoError(t, err)
	eng.Sessions().Drop("u1")
	require.NoError(t, eng.Close())

	assert.EqualValues(t, 1, generations.Load())
	assert.Equal(t, []domain.StageID{domain.StageActivate, domain.StagePerform, domain.StageAnalyze, domain.StageAdvance}, stages)

	rec, ok := archive.Analysis(sessionID)
	require.True(t, ok)
	assert.EqualValues(t, 12, rec.Metadata.LatencyMs)

	state, err := eng.StateStore().Load(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, state.PrescriptionExists)
	assert.Equal(t, domain.StageAdvance, state.CurrentStage)
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "redis"
	_, err := stride.New(stride.WithConfig(cfg))
	assert.Error(t, err)
}

func TestEngine_FileDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "file"
	cfg.Store.Dir = t.TempDir()

	eng, err := stride.New(stride.WithConfig(cfg))
	require.NoError(t, err)

	ctx := context.Background()
	p := eng.Sessions().Open("u1")
	p.Advance(ctx)
	require.NoError(t, eng.Close())

	rec, err := eng.StateStore().Load(ctx, p.SessionID())
	require.NoError(t, err)
	assert.Equal(t, domain.StageActivate, rec.CurrentStage)
}

func TestEngine_NoRemoteConfigured(t *testing.T) {
	eng, err := stride.New()
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.NewPipeline("u1").GeneratePlan(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoGenerator)
}

func TestEngine_EncryptedDrafts(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store.Driver = "file"
	cfg.Store.Dir = t.TempDir()
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString(key)

	eng, err := stride.New(stride.WithConfig(cfg))
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	p := eng.NewPipeline("u1")
	require.NoError(t, p.SetInputs(ctx, domain.PreparerData{
		AvailableTime: 30, LocationID: "home", EnergyLevel: 4, HasPain: true, PainDetails: "left knee",
	}))
	draft, err := p.SaveDraft(ctx, "knee day")
	require.NoError(t, err)

	onDisk, err := file.NewArchive(cfg.Store.Dir).LoadDraft(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, onDisk.Sealed)
	assert.Nil(t, onDisk.Inputs)
	assert.Equal(t, "knee day", onDisk.CustomName)

	resumed := eng.NewPipeline("u1")
	_, err = resumed.LoadDraft(ctx)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, resumed.SessionID())
	require.NotNil(t, resumed.Session().Inputs)
	assert.Equal(t, "left knee", resumed.Session().Inputs.PainDetails)

	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = stride.New(stride.WithConfig(cfg))
	assert.Error(t, err)
}
