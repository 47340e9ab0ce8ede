package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/stride/internal/analysis"
	"github.com/aretw0/stride/internal/remote"
	"github.com/aretw0/stride/pkg/adapters/memory"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/aretw0/stride/pkg/ports"
	"github.com/aretw0/stride/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	calls atomic.Int32
}

func (g *stubGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (*domain.Prescription, error) {
	g.calls.Add(1)
	return &domain.Prescription{
		Type:      "strength",
		Exercises: []domain.Exercise{{ID: "squat", Name: "Back Squat", Sets: 3, Reps: 5}},
	}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, req ports.AnalysisRequest) (*domain.AnalysisResult, error) {
	return &domain.AnalysisResult{CoachRationale: "solid work"}, nil
}

type testEnv struct {
	handler  http.Handler
	sessions *session.Manager
	gen      *stubGenerator
	archive  *memory.Archive
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newTestEnvWithAnalyzer(t, stubAnalyzer{}, opts...)
}

func newTestEnvWithAnalyzer(t *testing.T, analyzer ports.Analyzer, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{gen: &stubGenerator{}, archive: memory.NewArchive()}
	store := memory.NewStore()
	env.sessions = session.NewManager(func(userID string) *pipeline.Machine {
		return pipeline.New(userID,
			pipeline.WithGenerator(env.gen),
			pipeline.WithAnalyzer(analyzer),
			pipeline.WithStateStore(store),
			pipeline.WithArchive(env.archive),
			pipeline.WithDrafts(env.archive),
		)
	})
	t.Cleanup(env.sessions.Wait)
	env.handler = NewHandler(env.sessions, opts...)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func validInputs() domain.PreparerData {
	return domain.PreparerData{AvailableTime: 45, LocationID: "gym", LocationName: "City Gym", EnergyLevel: 6}
}

func TestGetHealthAndInfo(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.do(t, "GET", "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	info := decodeBody[map[string]string](t, w)
	assert.Equal(t, "stride-http", info["app"])
	assert.NotEmpty(t, info["version"])

	w = env.do(t, "GET", "/stages", nil)
	stages := decodeBody[[]domain.Stage](t, w)
	require.Len(t, stages, 5)
	assert.Equal(t, domain.StagePrepare, stages[0].ID)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "OPTIONS", "/users/u1/advance", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPipelineFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/users/u1/inputs", domain.PreparerData{AvailableTime: 5})
	require.Equal(t, http.StatusBadRequest, w.Code)
	bad := decodeBody[errorBody](t, w)
	assert.Equal(t, kindValidation, bad.Kind)
	assert.Contains(t, bad.Fields, "availableTime")
	assert.Contains(t, bad.Fields, "locationId")

	w = env.do(t, "PUT", "/users/u1/inputs", validInputs())
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/users/u1/plan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan := decodeBody[domain.Prescription](t, w)
	assert.Equal(t, "strength", plan.Type)

	// A second request returns the captured plan.
	w = env.do(t, "POST", "/users/u1/plan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), env.gen.calls.Load())

	w = env.do(t, "PATCH", "/users/u1/plan/exercises/squat/load", map[string]any{"load": 80})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, "PATCH", "/users/u1/plan/exercises/lunge/load", map[string]any{"load": 80})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", "/users/u1/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeBody[domain.PipelineSession](t, w)
	assert.Equal(t, domain.StageActivate, view.CurrentStage)
	assert.Equal(t, 21, view.Progress)

	w = env.do(t, "POST", "/users/u1/analyze", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "analysis needs feedback")

	w = env.do(t, "POST", "/users/u1/feedback", domain.SessionFeedback{
		OverallRPE: 7,
		Exercises:  []domain.ExerciseFeedback{{Completed: true}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/users/u1/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeBody[domain.AnalysisResult](t, w)
	assert.Equal(t, "solid work", result.CoachRationale)

	w = env.do(t, "GET", "/users/u1/next-action", nil)
	require.Equal(t, http.StatusOK, w.Code)
	next := decodeBody[domain.NextAction](t, w)
	assert.Equal(t, domain.NextActionSession, next.Type)

	w = env.do(t, "POST", "/users/u1/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "not at the final stage")

	w = env.do(t, "POST", "/users/u1/jump", map[string]string{"stage": "advance"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", "/users/u1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, live := env.sessions.Get("u1")
	assert.False(t, live, "completed pipelines are dropped")
}

func TestJumpToUnknownStage(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/users/u1/jump", map[string]string{"stage": "warmup"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetGraph(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/users/ana/jump", map[string]string{"stage": "analyze"})

	w := env.do(t, http.MethodGet, "/users/ana/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "class perform visited;")
	assert.Contains(t, w.Body.String(), "class analyze current;")
}

func TestInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("PUT", "/users/u1/inputs", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForceExitSavesAbandoned(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/users/u1/inputs", validInputs()).Code)
	w := env.do(t, "POST", "/users/u1/plan", nil)
	plan := decodeBody[domain.Prescription](t, w)

	w = env.do(t, "POST", "/users/u1/exit?save=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exited":true,"saved":true}`, w.Body.String())

	env.sessions.Wait()
	abandoned, ok := env.archive.Abandoned(plan.SessionID)
	require.True(t, ok)
	assert.Equal(t, "City Gym", abandoned.Venue)

	w = env.do(t, "POST", "/users/u1/exit?save=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// blockingAnalyzer holds Analyze until release is closed.
type blockingAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (a *blockingAnalyzer) Analyze(ctx context.Context, req ports.AnalysisRequest) (*domain.AnalysisResult, error) {
	close(a.started)
	<-a.release
	return &domain.AnalysisResult{CoachRationale: "late"}, nil
}

func TestForceExitDuringAnalysis(t *testing.T) {
	analyzer := &blockingAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnvWithAnalyzer(t, analyzer)
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/users/u1/inputs", validInputs()).Code)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/users/u1/plan", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/users/u1/feedback", domain.SessionFeedback{OverallRPE: 7}).Code)

	analyzed := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users/u1/analyze", nil))
		analyzed <- w
	}()
	<-analyzer.started

	exited := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users/u1/exit", nil))
		exited <- w
	}()

	select {
	case w := <-exited:
		assert.Equal(t, http.StatusOK, w.Code)
	case <-time.After(2 * time.Second):
		close(analyzer.release)
		t.Fatal("exit blocked behind the in-flight analysis")
	}

	close(analyzer.release)
	w := <-analyzed
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "conflict")
}

func TestDraftEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/users/u1/draft", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "drafts need inputs")

	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/users/u1/inputs", validInputs()).Code)
	w = env.do(t, "POST", "/users/u1/draft", map[string]string{"customName": "Monday"})
	require.Equal(t, http.StatusOK, w.Code)
	draft := decodeBody[domain.Draft](t, w)

	w = env.do(t, "GET", "/users/u1/draft", nil)
	assert.JSONEq(t, `{"exists":true}`, w.Body.String())

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/users/u1/new", nil).Code)
	w = env.do(t, "POST", "/users/u1/draft/load", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/users/u1/session", nil)
	view := decodeBody[domain.PipelineSession](t, w)
	assert.Equal(t, draft.ID, view.SessionID)

	require.Equal(t, http.StatusOK, env.do(t, "DELETE", "/users/u1/draft", nil).Code)
	w = env.do(t, "POST", "/users/u1/draft/load", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/users/bob/session", nil)
	env.do(t, "GET", "/users/alice/session", nil)

	w := env.do(t, "GET", "/users", nil)
	assert.Equal(t, []string{"alice", "bob"}, decodeBody[[]string](t, w))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "stride_test_total"})
	reg.MustRegister(c)
	c.Inc()

	env := newTestEnv(t, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	w := env.do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stride_test_total 1")

	w = newTestEnv(t).do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&remote.TimeoutError{Endpoint: "/generate", Timeout: time.Second}, http.StatusGatewayTimeout},
		{fmt.Errorf("wrap: %w", &domain.ValidationError{Fields: []string{"x"}}), http.StatusBadRequest},
		{domain.ErrGenerationBlocked, http.StatusConflict},
		{domain.ErrSessionDetached, http.StatusConflict},
		{domain.ErrDraftNotFound, http.StatusNotFound},
		{&analysis.UpstreamError{StatusCode: 400, Message: "bad"}, http.StatusBadGateway},
		{&remote.StatusError{Endpoint: "/analyze", StatusCode: 503}, http.StatusBadGateway},
		{pipeline.ErrNoGenerator, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := statusOf(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestSubscribeEvents_RequiresUser(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/events", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeEvents_Session(t *testing.T) {
	sm := NewStreamManager(nil)
	env := newTestEnv(t, WithStreams(sm))
	srv := env.handler

	// 1. Subscribe
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest("GET", "/events?user=u1&watch=advance", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeHTTP(wSub, reqSub)
	}()

	require.Eventually(t, func() bool {
		return sm.Subscribers("u1") == 1
	}, time.Second, 10*time.Millisecond)

	// 2. Trigger mutations; only advance is watched.
	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/users/u1/inputs", validInputs()).Code)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/users/u1/advance", nil).Code)
	time.Sleep(50 * time.Millisecond)

	// 3. Stop subscription to flush
	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, `"op":"advance"`)
	assert.Contains(t, output, `"stage":"activate"`)
	assert.NotContains(t, output, `"op":"inputs"`)
}
