package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
)

// RemoteGenerator requests plans from the remote generation endpoint through
// the same retry policy as the analyzer.
type RemoteGenerator struct {
	caller   Caller
	endpoint string
	opts     options
	logger   *slog.Logger
}

// NewRemoteGenerator creates a generator posting to endpoint.
func NewRemoteGenerator(caller Caller, endpoint string, opts ...Option) *RemoteGenerator {
	o := applyOptions(opts)
	return &RemoteGenerator{
		caller:   caller,
		endpoint: endpoint,
		opts:     o,
		logger:   logging.WithCategory(o.logger, logging.CategoryGeneration),
	}
}

// Generate implements ports.PlanGenerator.
func (g *RemoteGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (*domain.Prescription, error) {
	g.logger.Info("requesting plan", "session_id", req.SessionID, "user_id", req.UserID)

	resp, err := g.caller.Call(ctx, g.endpoint, req, g.opts.callOptions)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	if !resp.OK() {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: truncateBody(resp.Body)}
	}

	var env envelope[*domain.Prescription]
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "generation failed"
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}
	if env.Data == nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "missing prescription data"}
	}

	plan := env.Data
	if plan.SessionID == "" {
		plan.SessionID = req.SessionID
	}
	if plan.GeneratedAt == nil {
		now := g.opts.now()
		plan.GeneratedAt = &now
	}
	g.logger.Info("plan generated",
		"session_id", req.SessionID,
		"exercises", len(plan.Exercises),
		"cached", env.Metadata.Cached,
	)
	return plan, nil
}

var _ ports.PlanGenerator = (*RemoteGenerator)(nil)
