package pipeline

import (
	"context"
	"fmt"

	"github.com/aretw0/stride/pkg/domain"
)

// Advance moves to the next stage. It is a no-op at the last stage.
func (m *Machine) Advance(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := domain.NextStage(m.session.CurrentStage)
	if !ok {
		return
	}
	m.enter(ctx, next)
}

// Retreat moves to the previous stage. It is a no-op at the first stage.
// Going back to prepare discards the generated plan and everything derived
// from it and starts a fresh session id; going back from perform to activate
// keeps the plan.
func (m *Machine) Retreat(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := domain.PreviousStage(m.session.CurrentStage)
	if !ok {
		return
	}
	if prev.ID == domain.StagePrepare {
		m.resetGeneration()
	}
	m.enter(ctx, prev)
}

// JumpTo moves directly to stage. Jumping to prepare performs the retreat
// reset and also clears the inputs; other targets keep all data.
func (m *Machine) JumpTo(ctx context.Context, stage domain.StageID) error {
	target, err := domain.LookupStage(stage)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if target.ID == domain.StagePrepare {
		m.resetGeneration()
		m.session.Inputs = nil
	}
	m.enter(ctx, target)
	return nil
}

// SetProgress updates the progress within the current stage. Values outside
// the stage range are clamped to it.
func (m *Machine) SetProgress(progress int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, _ := domain.LookupStage(m.session.CurrentStage)
	progress = max(st.ProgressStart, min(progress, st.ProgressEnd))
	m.session.Progress = progress
	m.touch()
	return progress
}

// StartNewSession discards every field and returns to prepare under a new id.
func (m *Machine) StartNewSession(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replace(ctx)
	m.logger.Info("new session started", "session_id", m.session.SessionID)
}

// ForceExit abandons the session. With saveForAnalysisLater and a plan in
// hand, a snapshot is archived in the background. Local state is cleared
// either way and any in-flight analysis is detached.
func (m *Machine) ForceExit(ctx context.Context, saveForAnalysisLater bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	s.Abandoned = true
	saved := false
	if saveForAnalysisLater && s.Plan != nil && m.archive != nil {
		snap := m.abandonedSnapshot()
		m.detach(ctx, "save abandoned", snap.SessionID, func(ctx context.Context) error {
			return m.archive.SaveAbandoned(ctx, snap)
		})
		saved = true
	}

	if m.hooks.OnExit != nil {
		m.hooks.OnExit(ctx, &domain.ExitEvent{
			EventBase: m.base(domain.EventSessionExit),
			Stage:     s.CurrentStage,
			Saved:     saved,
		})
	}
	m.logger.Info("session abandoned",
		"session_id", s.SessionID,
		"stage", s.CurrentStage,
		"saved", saved,
	)

	m.replace(ctx)
}

// Complete finishes the session from the advance stage and discards it.
func (m *Machine) Complete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.CurrentStage != domain.LastStage().ID {
		return fmt.Errorf("complete from %s: %w", m.session.CurrentStage, domain.ErrNotAtFinalStage)
	}
	if m.hooks.OnExit != nil {
		m.hooks.OnExit(ctx, &domain.ExitEvent{
			EventBase: m.base(domain.EventSessionExit),
			Stage:     m.session.CurrentStage,
			Complete:  true,
		})
	}
	m.logger.Info("session completed", "session_id", m.session.SessionID)

	m.replace(ctx)
	return nil
}

// abandonedSnapshot builds the archive record for the current session.
// Caller must hold m.mu.
func (m *Machine) abandonedSnapshot() *domain.AbandonedSession {
	s := m.session.Snapshot()
	snap := &domain.AbandonedSession{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		Status:         "abandoned",
		Type:           s.Plan.Type,
		Prescription:   s.Plan,
		Context:        s.Inputs,
		DurationTarget: s.Plan.DurationTarget,
		AbandonedAt:    s.CurrentStage,
		Feedback:       s.Feedback,
		CreatedAt:      m.now(),
	}
	if snap.DurationTarget <= 0 {
		snap.DurationTarget = domain.DefaultDurationMinutes
	}
	if s.Inputs != nil {
		snap.Equipment = s.Inputs.AvailableEquipment
		snap.Venue = s.Inputs.LocationName
	}
	return snap
}

// resetGeneration drops the plan and everything derived from it and moves
// to a fresh session id. Caller must hold m.mu.
func (m *Machine) resetGeneration() {
	old := m.session.SessionID
	m.coord.Reset(old)

	m.epoch++
	m.session.SessionID = m.newID()
	m.session.Plan = nil
	m.session.History = nil
	m.session.Feedback = nil
	m.session.Analysis = nil
	m.logger.Debug("generation reset", "old_session_id", old, "session_id", m.session.SessionID)
}

// replace swaps in a blank session at prepare, progress 0.
// Caller must hold m.mu.
func (m *Machine) replace(ctx context.Context) {
	m.coord.Reset(m.session.SessionID)
	m.epoch++
	m.session = domain.NewSession(m.newID(), m.session.UserID, m.now())
	m.persistStage(ctx)
}
