package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stride"
	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolResponse is the structured result of every pipeline tool.
type ToolResponse struct {
	Session *domain.PipelineSession `json:"session" jsonschema_description:"Snapshot of the pipeline session after the call"`
	Stage   domain.Stage            `json:"stage" jsonschema_description:"Catalog entry of the current stage"`
	Result  any                     `json:"result,omitempty" jsonschema_description:"Operation specific payload (plan, analysis, next action)"`
}

// Sessions is the registry the tools operate on.
type Sessions interface {
	WithPipeline(ctx context.Context, userID string, fn func(context.Context, *pipeline.Machine) error) error
	Drop(userID string)
}

// Server exposes the pipeline as an MCP server.
type Server struct {
	sessions  Sessions
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		sessions:  sessions,
		logger:    logger,
		mcpServer: server.NewMCPServer("stride-mcp", stride.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserArgs identifies the pipeline a tool acts on.
type UserArgs struct {
	UserID string `json:"user_id"`
}

// JumpArgs are the arguments of jump_to_stage.
type JumpArgs struct {
	UserID string `json:"user_id"`
	Stage  string `json:"stage"`
}

// PayloadArgs carry a JSON document for set_inputs and submit_feedback.
type PayloadArgs struct {
	UserID  string `json:"user_id"`
	Payload string `json:"payload"`
}

// ExitArgs are the arguments of exit_session.
type ExitArgs struct {
	UserID string `json:"user_id"`
	Save   bool   `json:"save"`
}

func userTool(name, description string, extra ...mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the pipeline")),
	}
	opts = append(opts, extra...)
	opts = append(opts, mcp.WithOutputSchema[ToolResponse]())
	return mcp.NewTool(name, opts...)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(userTool("get_state", "Return the current pipeline session."),
		mcp.NewStructuredToolHandler(s.handleState))
	s.mcpServer.AddTool(userTool("start_session", "Discard the current session and start a new one at the prepare stage."),
		mcp.NewStructuredToolHandler(s.handleStart))
	s.mcpServer.AddTool(userTool("advance", "Move to the next stage."),
		mcp.NewStructuredToolHandler(s.handleAdvance))
	s.mcpServer.AddTool(userTool("retreat", "Move to the previous stage. Returning to prepare discards the plan."),
		mcp.NewStructuredToolHandler(s.handleRetreat))
	s.mcpServer.AddTool(userTool("jump_to_stage", "Jump directly to a stage.",
		mcp.WithString("stage", mcp.Required(), mcp.Description("Stage id: prepare, activate, perform, analyze or advance")),
	), mcp.NewStructuredToolHandler(s.handleJump))
	s.mcpServer.AddTool(userTool("set_inputs", "Store the preparation inputs.",
		mcp.WithString("payload", mcp.Required(), mcp.Description("JSON object with the preparation inputs")),
	), mcp.NewStructuredToolHandler(s.handleInputs))
	s.mcpServer.AddTool(userTool("generate_plan", "Generate the session prescription, at most once per session."),
		mcp.NewStructuredToolHandler(s.handleGenerate))
	s.mcpServer.AddTool(userTool("submit_feedback", "Store the execution feedback.",
		mcp.WithString("payload", mcp.Required(), mcp.Description("JSON object with the session feedback")),
	), mcp.NewStructuredToolHandler(s.handleFeedback))
	s.mcpServer.AddTool(userTool("analyze", "Analyze the executed session."),
		mcp.NewStructuredToolHandler(s.handleAnalyze))
	s.mcpServer.AddTool(userTool("next_action", "Recommend what the user should do next."),
		mcp.NewStructuredToolHandler(s.handleNextAction))
	s.mcpServer.AddTool(userTool("exit_session", "Abandon the session, optionally archiving it for later analysis.",
		mcp.WithBoolean("save", mcp.Description("Archive the session for later analysis")),
	), mcp.NewStructuredToolHandler(s.handleExit))
}

// call runs fn on the user's pipeline and builds the response from the
// resulting snapshot.
func (s *Server) call(ctx context.Context, userID, op string, fn func(context.Context, *pipeline.Machine) (any, error)) (ToolResponse, error) {
	if userID == "" {
		return ToolResponse{}, fmt.Errorf("%s: user_id is required", op)
	}
	var resp ToolResponse
	err := s.sessions.WithPipeline(ctx, userID, func(ctx context.Context, p *pipeline.Machine) error {
		out, err := fn(ctx, p)
		if err != nil {
			return err
		}
		resp = ToolResponse{Session: p.Session(), Stage: p.Stage(), Result: out}
		return nil
	})
	if err != nil {
		s.logger.Warn("MCP tool failed", "tool", op, "user_id", userID, "error", err)
		return ToolResponse{}, fmt.Errorf("%s failed: %w", op, err)
	}
	return resp, nil
}

// callRemote is call for tools that wait on a remote service. The user's
// lock covers only the pipeline lookup, so exit_session can detach the
// session while the call is in flight.
func (s *Server) callRemote(ctx context.Context, userID, op string, fn func(context.Context, *pipeline.Machine) (any, error)) (ToolResponse, error) {
	if userID == "" {
		return ToolResponse{}, fmt.Errorf("%s: user_id is required", op)
	}
	var p *pipeline.Machine
	err := s.sessions.WithPipeline(ctx, userID, func(_ context.Context, m *pipeline.Machine) error {
		p = m
		return nil
	})
	if err == nil {
		var out any
		if out, err = fn(ctx, p); err == nil {
			return ToolResponse{Session: p.Session(), Stage: p.Stage(), Result: out}, nil
		}
	}
	s.logger.Warn("MCP tool failed", "tool", op, "user_id", userID, "error", err)
	return ToolResponse{}, fmt.Errorf("%s failed: %w", op, err)
}

func (s *Server) handleState(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "get_state", func(context.Context, *pipeline.Machine) (any, error) {
		return nil, nil
	})
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "start_session", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.StartNewSession(ctx)
		return nil, nil
	})
}

func (s *Server) handleAdvance(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "advance", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.Advance(ctx)
		return nil, nil
	})
}

func (s *Server) handleRetreat(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "retreat", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.Retreat(ctx)
		return nil, nil
	})
}

func (s *Server) handleJump(ctx context.Context, _ mcp.CallToolRequest, args JumpArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "jump_to_stage", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.JumpTo(ctx, domain.StageID(args.Stage))
	})
}

func (s *Server) handleInputs(ctx context.Context, _ mcp.CallToolRequest, args PayloadArgs) (ToolResponse, error) {
	var in domain.PreparerData
	if err := json.Unmarshal([]byte(args.Payload), &in); err != nil {
		return ToolResponse{}, fmt.Errorf("set_inputs: invalid payload: %w", err)
	}
	return s.call(ctx, args.UserID, "set_inputs", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.SetInputs(ctx, in)
	})
}

func (s *Server) handleGenerate(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.callRemote(ctx, args.UserID, "generate_plan", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.GeneratePlan(ctx)
	})
}

func (s *Server) handleFeedback(ctx context.Context, _ mcp.CallToolRequest, args PayloadArgs) (ToolResponse, error) {
	var fb domain.SessionFeedback
	if err := json.Unmarshal([]byte(args.Payload), &fb); err != nil {
		return ToolResponse{}, fmt.Errorf("submit_feedback: invalid payload: %w", err)
	}
	return s.call(ctx, args.UserID, "submit_feedback", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return nil, p.SubmitFeedback(ctx, fb)
	})
}

func (s *Server) handleAnalyze(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.callRemote(ctx, args.UserID, "analyze", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.Analyze(ctx)
	})
}

func (s *Server) handleNextAction(ctx context.Context, _ mcp.CallToolRequest, args UserArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "next_action", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		return p.RecommendNextAction(ctx), nil
	})
}

func (s *Server) handleExit(ctx context.Context, _ mcp.CallToolRequest, args ExitArgs) (ToolResponse, error) {
	return s.call(ctx, args.UserID, "exit_session", func(ctx context.Context, p *pipeline.Machine) (any, error) {
		p.ForceExit(ctx, args.Save)
		s.sessions.Drop(args.UserID)
		return map[string]bool{"saved": args.Save}, nil
	})
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("stride://stages", "Pipeline stage catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(domain.Stages())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "stride://stages",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
