package ports

import (
	"context"

	"github.com/aretw0/stride/pkg/domain"
)

// GenerationRequest carries the stage-1 context to the plan generator.
type GenerationRequest struct {
	SessionID string               `json:"sessionId"`
	UserID    string               `json:"userId"`
	Inputs    *domain.PreparerData `json:"preparerContext"`
}

// PlanGenerator performs the expensive remote plan generation.
type PlanGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*domain.Prescription, error)
}

// AnalysisRequest carries the session data to the remote analysis service.
type AnalysisRequest struct {
	SessionID    string                  `json:"-"`
	UserID       string                  `json:"userId"`
	Prescription *domain.Prescription    `json:"sessionPrescription"`
	Feedback     *domain.SessionFeedback `json:"sessionFeedback"`
	Context      *domain.PreparerData    `json:"preparerContext"`
}

// Analyzer returns a structurally complete analysis for a finished session.
// Only transport faults and timeouts are returned as errors.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*domain.AnalysisResult, error)
}

// RecoveryProvider exposes wearable recovery metrics.
// A nil result with a nil error means no data is available.
type RecoveryProvider interface {
	Recovery(ctx context.Context, userID string) (*domain.RecoveryMetrics, error)
}
