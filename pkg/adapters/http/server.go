package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/stride"
	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/internal/presentation/graph"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Sessions is the registry the handlers operate on.
// *session.Manager is the production implementation.
type Sessions interface {
	WithPipeline(ctx context.Context, userID string, fn func(context.Context, *pipeline.Machine) error) error
	Drop(userID string)
	List() []string
}

// Server holds the handler dependencies.
type Server struct {
	Sessions Sessions
	Streams  *StreamManager

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithStreams shares a stream manager, for example with lifecycle hooks
// that broadcast stage events.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler creates the HTTP handler for the pipeline API.
func NewHandler(sessions Sessions, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/stages", s.GetStages)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.ListUsers)
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/session", s.GetSession)
			r.Get("/graph", s.GetGraph)
			r.Post("/new", s.StartNewSession)
			r.Post("/advance", s.Advance)
			r.Post("/retreat", s.Retreat)
			r.Post("/jump", s.JumpTo)
			r.Post("/progress", s.SetProgress)
			r.Put("/inputs", s.SetInputs)
			r.Post("/plan", s.GeneratePlan)
			r.Put("/plan", s.SetPlan)
			r.Post("/plan/regenerate", s.RegeneratePlan)
			r.Patch("/plan/exercises/{exerciseID}/load", s.UpdateExerciseLoad)
			r.Post("/feedback", s.SubmitFeedback)
			r.Post("/analyze", s.Analyze)
			r.Get("/next-action", s.NextAction)
			r.Post("/exit", s.ForceExit)
			r.Post("/complete", s.Complete)
			r.Get("/draft", s.HasDraft)
			r.Post("/draft", s.SaveDraft)
			r.Post("/draft/load", s.LoadDraft)
			r.Delete("/draft", s.DeleteDraft)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionView is the wire form of a session snapshot.
type sessionView struct {
	*domain.PipelineSession
	Stage domain.Stage `json:"stage"`
}

func viewOf(p *pipeline.Machine) sessionView {
	return sessionView{PipelineSession: p.Session(), Stage: p.Stage()}
}

// run executes fn on the user's pipeline and writes its result as JSON.
// A nil result writes the session snapshot. Every successful call is
// broadcast to the user's event subscribers.
func (s *Server) run(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *pipeline.Machine) (any, error)) {
	userID := chi.URLParam(r, "userID")
	var (
		out  any
		view sessionView
	)
	err := s.Sessions.WithPipeline(r.Context(), userID, func(ctx context.Context, p *pipeline.Machine) error {
		var err error
		out, err = fn(ctx, p)
		if err != nil {
			return err
		}
		view = viewOf(p)
		return nil
	})
	s.finish(w, op, userID, out, view, err)
}

// runRemote is run for operations that wait on a remote service. The user's
// lock is held only to resolve the pipeline, so an exit issued meanwhile
// detaches the session instead of queueing behind the call.
func (s *Server) runRemote(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *pipeline.Machine) (any, error)) {
	userID := chi.URLParam(r, "userID")
	var p *pipeline.Machine
	err := s.Sessions.WithPipeline(r.Context(), userID, func(_ context.Context, m *pipeline.Machine) error {
		p = m
		return nil
	})
	if err != nil {
		s.finish(w, op, userID, nil, sessionView{}, err)
		return
	}
	out, err := fn(r.Context(), p)
	var view sessionView
	if err == nil {
		view = viewOf(p)
	}
	s.finish(w, op, userID, out, view, err)
}

func (s *Server) finish(w http.ResponseWriter, op, userID string, out any, view sessionView, err error) {
	if err != nil {
		s.logger.Warn("request failed", "op", op, "user_id", userID, "error", err)
		writeError(w, err)
		return
	}

	s.broadcast(userID, op, view)
	if out == nil {
		out = view
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) broadcast(userID, op string, view sessionView) {
	msg, err := json.Marshal(map[string]any{
		"op":        op,
		"sessionId": view.SessionID,
		"stage":     view.CurrentStage,
		"progress":  view.Progress,
	})
	if err != nil {
		return
	}
	s.Streams.Broadcast(userID, string(msg))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "stride-http",
		"version": stride.Version,
	})
}

// GetStages handles the GET /stages request.
func (s *Server) GetStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.Stages())
}

// GetGraph handles the GET /users/{userID}/graph request. It renders the
// stage diagram as Mermaid with the session position highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var overlay graph.Overlay
	err := s.Sessions.WithPipeline(r.Context(), userID, func(_ context.Context, p *pipeline.Machine) error {
		snap := p.Session()
		overlay = graph.Overlay{CurrentStage: snap.CurrentStage, HasPlan: snap.Plan != nil}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(domain.Stages(), &overlay)))
}

// ListUsers handles the GET /users request.
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions.List())
}

// GetSession handles the GET /users/{userID}/session request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "session", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, nil
	})
}

// StartNewSession handles the POST /users/{userID}/new request.
func (s *Server) StartNewSession(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "new", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.StartNewSession(ctx)
		return nil, nil
	})
}

// Advance handles the POST /users/{userID}/advance request.
func (s *Server) Advance(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "advance", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.Advance(ctx)
		return nil, nil
	})
}

// Retreat handles the POST /users/{userID}/retreat request.
func (s *Server) Retreat(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "retreat", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.Retreat(ctx)
		return nil, nil
	})
}

// JumpTo handles the POST /users/{userID}/jump request.
func (s *Server) JumpTo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stage domain.StageID `json:"stage"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.run(w, r, "jump", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.JumpTo(ctx, body.Stage)
	})
}

// SetProgress handles the POST /users/{userID}/progress request.
func (s *Server) SetProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Progress int `json:"progress"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.run(w, r, "progress", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.SetProgress(body.Progress)
		return nil, nil
	})
}

// SetInputs handles the PUT /users/{userID}/inputs request.
func (s *Server) SetInputs(w http.ResponseWriter, r *http.Request) {
	var body domain.PreparerData
	if !decode(w, r, &body) {
		return
	}
	s.run(w, r, "inputs", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.SetInputs(ctx, body)
	})
}

// GeneratePlan handles the POST /users/{userID}/plan request.
func (s *Server) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	s.runRemote(w, r, "generate", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.GeneratePlan(ctx)
	})
}

// RegeneratePlan handles the POST /users/{userID}/plan/regenerate request.
func (s *Server) RegeneratePlan(w http.ResponseWriter, r *http.Request) {
	s.runRemote(w, r, "regenerate", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.RegeneratePlan(ctx)
	})
}

// SetPlan handles the PUT /users/{userID}/plan request.
func (s *Server) SetPlan(w http.ResponseWriter, r *http.Request) {
	var body domain.Prescription
	if !decode(w, r, &body) {
		return
	}
	s.run(w, r, "plan", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.SetPlan(ctx, &body)
	})
}

// UpdateExerciseLoad handles the PATCH /users/{userID}/plan/exercises/{exerciseID}/load request.
func (s *Server) UpdateExerciseLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Load domain.Load `json:"load"`
	}
	if !decode(w, r, &body) {
		return
	}
	exerciseID := chi.URLParam(r, "exerciseID")
	s.run(w, r, "load", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.UpdateExerciseLoad(ctx, exerciseID, body.Load)
	})
}

// SubmitFeedback handles the POST /users/{userID}/feedback request.
func (s *Server) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body domain.SessionFeedback
	if !decode(w, r, &body) {
		return
	}
	s.run(w, r, "feedback", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.SubmitFeedback(ctx, body)
	})
}

// Analyze handles the POST /users/{userID}/analyze request.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	s.runRemote(w, r, "analyze", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.Analyze(ctx)
	})
}

// NextAction handles the GET /users/{userID}/next-action request.
func (s *Server) NextAction(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "next-action", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.RecommendNextAction(ctx), nil
	})
}

// ForceExit handles the POST /users/{userID}/exit request.
// The query parameter save=true is accepted as an alternative to the body.
func (s *Server) ForceExit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SaveForAnalysisLater bool `json:"saveForAnalysisLater"`
	}
	if v := r.URL.Query().Get("save"); v != "" {
		save, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, &domain.ValidationError{Fields: []string{"save"}})
			return
		}
		body.SaveForAnalysisLater = save
	} else if r.ContentLength > 0 && !decode(w, r, &body) {
		return
	}
	userID := chi.URLParam(r, "userID")
	s.run(w, r, "exit", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.ForceExit(ctx, body.SaveForAnalysisLater)
		s.Sessions.Drop(userID)
		return map[string]any{"exited": true, "saved": body.SaveForAnalysisLater}, nil
	})
}

// Complete handles the POST /users/{userID}/complete request.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.run(w, r, "complete", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		if err := p.Complete(ctx); err != nil {
			return nil, err
		}
		s.Sessions.Drop(userID)
		return map[string]any{"completed": true}, nil
	})
}

// HasDraft handles the GET /users/{userID}/draft request.
func (s *Server) HasDraft(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "has-draft", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		ok, err := p.HasDraft(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"exists": ok}, nil
	})
}

// SaveDraft handles the POST /users/{userID}/draft request.
func (s *Server) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomName string `json:"customName"`
	}
	if r.ContentLength > 0 && !decode(w, r, &body) {
		return
	}
	s.run(w, r, "save-draft", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.SaveDraft(ctx, body.CustomName)
	})
}

// LoadDraft handles the POST /users/{userID}/draft/load request.
func (s *Server) LoadDraft(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "load-draft", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.LoadDraft(ctx)
	})
}

// DeleteDraft handles the DELETE /users/{userID}/draft request.
func (s *Server) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "delete-draft", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		if err := p.DeleteDraft(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	})
}

// -- Helpers --

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err), Kind: kindValidation})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
