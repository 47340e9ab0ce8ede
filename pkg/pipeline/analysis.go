package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
)

// ErrNoAnalyzer is returned by Analyze when no analyzer is configured.
var ErrNoAnalyzer = errors.New("pipeline: no analyzer configured")

// SubmitFeedback stores the stage-3 output. A previous analysis is dropped.
func (m *Machine) SubmitFeedback(ctx context.Context, fb domain.SessionFeedback) error {
	stored := fb.Clone()
	var bad textFields
	bad.clean("notes", &stored.Notes)
	for i := range stored.Exercises {
		bad.clean(fmt.Sprintf("exercises[%d].notes", i), &stored.Exercises[i].Notes)
	}
	if err := bad.err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Feedback = stored
	m.session.Analysis = nil
	m.touch()
	return nil
}

// Analyze sends the session to the analyzer and stores the result.
//
// The lock is released during the remote call. If the session is abandoned
// or replaced before the call returns, the result is discarded and
// domain.ErrSessionDetached is returned.
func (m *Machine) Analyze(ctx context.Context) (*domain.AnalysisResult, error) {
	m.mu.Lock()
	switch {
	case m.analyzer == nil:
		m.mu.Unlock()
		return nil, ErrNoAnalyzer
	case m.session.Plan == nil:
		m.mu.Unlock()
		return nil, domain.ErrNoPlan
	case m.session.Feedback == nil:
		m.mu.Unlock()
		return nil, domain.ErrNoFeedback
	}
	snap := m.session.Snapshot()
	epoch := m.epoch
	m.mu.Unlock()

	result, err := m.analyzer.Analyze(ctx, ports.AnalysisRequest{
		SessionID:    snap.SessionID,
		UserID:       snap.UserID,
		Prescription: snap.Plan,
		Feedback:     snap.Feedback,
		Context:      snap.Inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze session %s: %w", snap.SessionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.session.SessionID != snap.SessionID {
		m.logger.Info("discarding analysis for detached session", "session_id", snap.SessionID)
		return nil, domain.ErrSessionDetached
	}
	m.session.Analysis = result
	m.touch()
	return result, nil
}
