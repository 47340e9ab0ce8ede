package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/internal/remote"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
)

// Caller performs a remote call under the retry policy.
// *remote.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, endpoint string, payload any, opts remote.CallOptions) (*remote.Response, error)
}

// UpstreamError reports a response the remote service produced but that
// cannot be used: a non-2xx status, success=false or a missing data field.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("upstream failed: %d %s", e.StatusCode, e.Message)
	}
	return "upstream failed: " + e.Message
}

// envelope is the response shape of the remote services.
type envelope[T any] struct {
	Success  bool                    `json:"success"`
	Data     T                       `json:"data"`
	Error    string                  `json:"error,omitempty"`
	Metadata domain.AnalysisMetadata `json:"metadata"`
}

// Outcome is a completed analysis with its side channels.
type Outcome struct {
	Result   *domain.AnalysisResult
	Metadata domain.AnalysisMetadata
	Warnings []string
}

// Service runs the remote analysis and makes its result structurally complete.
type Service struct {
	caller   Caller
	endpoint string
	enricher *Enricher
	archive  ports.ArchiveStore
	opts     options
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewService creates a Service posting to endpoint.
func NewService(caller Caller, endpoint string, opts ...Option) *Service {
	o := applyOptions(opts)
	return &Service{
		caller:   caller,
		endpoint: endpoint,
		enricher: NewEnricher(opts...),
		archive:  o.archive,
		opts:     o,
		logger:   logging.WithCategory(o.logger, logging.CategoryAnalysis),
	}
}

// Analyze implements ports.Analyzer.
func (s *Service) Analyze(ctx context.Context, req ports.AnalysisRequest) (*domain.AnalysisResult, error) {
	out, err := s.AnalyzeSession(ctx, req)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// AnalyzeSession posts the session to the remote analyzer, enriches the
// returned payload and archives the result in the background.
// Functional sessions run as extended workloads.
func (s *Service) AnalyzeSession(ctx context.Context, req ports.AnalysisRequest) (*Outcome, error) {
	start := s.opts.now()
	callOpts := s.opts.callOptions
	callOpts.ExtendedWorkload = req.Feedback != nil && req.Feedback.FunctionalMetrics != nil

	s.logger.Info("starting session analysis",
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"extended", callOpts.ExtendedWorkload,
	)

	resp, err := s.caller.Call(ctx, s.endpoint, req, callOpts)
	if err != nil {
		s.logger.Error("analysis call failed", "session_id", req.SessionID, "error", err)
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	if !resp.OK() {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: truncateBody(resp.Body)}
	}

	var env envelope[map[string]any]
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "analysis failed"
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}
	if env.Data == nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "missing analysis data"}
	}

	result, warnings := s.enricher.EnrichContext(ctx, env.Data, req.Prescription, req.Feedback)
	meta := env.Metadata
	if meta.LatencyMs == 0 {
		meta.LatencyMs = s.opts.now().Sub(start).Milliseconds()
	}

	s.logger.Info("analysis completed",
		"session_id", req.SessionID,
		"score", result.SessionAnalysis.OverallPerformance.Score,
		"rating", result.SessionAnalysis.OverallPerformance.Rating,
		"cached", meta.Cached,
		"fallbacks_count", len(warnings),
	)

	s.persist(ctx, &domain.AnalysisRecord{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Result:    result,
		Metadata:  meta,
		Fallbacks: warnings,
		CreatedAt: s.opts.now(),
	})

	return &Outcome{Result: result, Metadata: meta, Warnings: warnings}, nil
}

// Wait blocks until background archive writes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) persist(ctx context.Context, rec *domain.AnalysisRecord) {
	if s.archive == nil || rec.SessionID == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.writeTimeout)
		defer cancel()
		if err := s.archive.SaveAnalysis(wctx, rec); err != nil {
			s.logger.Warn("failed to save analysis", "session_id", rec.SessionID, "error", err)
		}
	}()
}

// IsUpstream reports whether err is an *UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}

var _ ports.Analyzer = (*Service)(nil)
