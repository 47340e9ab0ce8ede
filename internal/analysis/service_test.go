package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/stride/internal/analysis"
	"github.com/aretw0/stride/internal/remote"
	"github.com/aretw0/stride/pkg/adapters/memory"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzerServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func request() ports.AnalysisRequest {
	return ports.AnalysisRequest{
		SessionID:    "s1",
		UserID:       "u1",
		Prescription: samplePlan(),
		Feedback:     sampleFeedback(),
		Context:      &domain.PreparerData{AvailableTime: 45, LocationID: "gym", EnergyLevel: 7},
	}
}

func TestService_EnrichesAndArchives(t *testing.T) {
	srv, received := analyzerServer(t, http.StatusOK, `{
		"success": true,
		"data": {"coachRationale": "Nice session"},
		"metadata": {"cached": true, "tokensUsed": 1200, "latencyMs": 850, "modelUsed": "coach-v2"}
	}`)
	archive := memory.NewArchive()
	svc := analysis.NewService(remote.New(), srv.URL, analysis.WithArchive(archive))

	out, err := svc.AnalyzeSession(context.Background(), request())
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "Nice session", out.Result.CoachRationale)
	assert.NotNil(t, out.Result.SessionAnalysis.OverallPerformance)
	assert.True(t, out.Metadata.Cached)
	assert.Equal(t, 1200, out.Metadata.TokensUsed)
	assert.EqualValues(t, 850, out.Metadata.LatencyMs)
	assert.NotContains(t, out.Warnings, "Missing coachRationale")
	assert.Contains(t, out.Warnings, "Missing sessionAnalysis")

	// The payload carries the documented field names.
	assert.Equal(t, "u1", (*received)["userId"])
	assert.Contains(t, *received, "sessionPrescription")
	assert.Contains(t, *received, "sessionFeedback")
	assert.Contains(t, *received, "preparerContext")

	rec, ok := archive.Analysis("s1")
	require.True(t, ok)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, out.Warnings, rec.Fallbacks)
}

func TestService_EnvelopeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "client error", status: http.StatusBadRequest, body: `invalid payload`, want: "400"},
		{name: "reported failure", status: http.StatusOK, body: `{"success": false, "error": "model overloaded"}`, want: "model overloaded"},
		{name: "missing data", status: http.StatusOK, body: `{"success": true}`, want: "missing analysis data"},
		{name: "malformed body", status: http.StatusOK, body: `{not json`, want: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := analyzerServer(t, tt.status, tt.body)
			svc := analysis.NewService(remote.New(), srv.URL)

			_, err := svc.Analyze(context.Background(), request())
			require.Error(t, err)

			var ue *analysis.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, analysis.IsUpstream(err))
		})
	}
}

type captureCaller struct {
	opts remote.CallOptions
	err  error
}

func (c *captureCaller) Call(_ context.Context, _ string, _ any, opts remote.CallOptions) (*remote.Response, error) {
	c.opts = opts
	if c.err != nil {
		return nil, c.err
	}
	return &remote.Response{StatusCode: http.StatusOK, Body: []byte(`{"success":true,"data":{}}`)}, nil
}

func TestService_FunctionalSessionIsExtendedWorkload(t *testing.T) {
	caller := &captureCaller{}
	svc := analysis.NewService(caller, "http://analyzer", analysis.WithCallOptions(remote.CallOptions{MaxRetries: 3, Timeout: time.Minute}))

	req := request()
	_, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, caller.opts.ExtendedWorkload)
	assert.Equal(t, 3, caller.opts.MaxRetries)

	req.Feedback.FunctionalMetrics = &domain.FunctionalMetrics{WODFormat: "amrap", RoundsCompleted: 5}
	_, err = svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, caller.opts.ExtendedWorkload)
}

func TestService_TimeoutPropagates(t *testing.T) {
	caller := &captureCaller{err: &remote.TimeoutError{Endpoint: "http://analyzer", Timeout: time.Second, Attempt: 1}}
	svc := analysis.NewService(caller, "http://analyzer")

	_, err := svc.Analyze(context.Background(), request())
	assert.ErrorIs(t, err, remote.ErrTimeout)
	assert.False(t, analysis.IsUpstream(err))
	assert.False(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestRemoteGenerator_Generate(t *testing.T) {
	srv, received := analyzerServer(t, http.StatusOK, `{
		"success": true,
		"data": {"type": "strength", "durationTarget": 45, "focus": ["legs"],
		         "exercises": [{"id": "squat", "name": "Back Squat", "sets": 3, "reps": 5, "load": [100, 105, 110], "rest": 120}]}
	}`)
	gen := analysis.NewRemoteGenerator(remote.New(), srv.URL)

	plan, err := gen.Generate(context.Background(), ports.GenerationRequest{
		SessionID: "s1",
		UserID:    "u1",
		Inputs:    &domain.PreparerData{AvailableTime: 45, LocationID: "gym", EnergyLevel: 7},
	})
	require.NoError(t, err)

	assert.Equal(t, "s1", plan.SessionID)
	assert.NotNil(t, plan.GeneratedAt)
	require.Len(t, plan.Exercises, 1)
	assert.Equal(t, domain.Load{100, 105, 110}, plan.Exercises[0].Load)
	assert.Contains(t, *received, "preparerContext")
}

func TestRemoteGenerator_MissingData(t *testing.T) {
	srv, _ := analyzerServer(t, http.StatusOK, `{"success": true, "data": null}`)
	gen := analysis.NewRemoteGenerator(remote.New(), srv.URL)

	_, err := gen.Generate(context.Background(), ports.GenerationRequest{SessionID: "s1"})
	assert.True(t, analysis.IsUpstream(err))
}
