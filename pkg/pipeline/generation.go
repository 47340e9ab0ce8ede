package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/ports"
	"github.com/go-playground/validator/v10"
)

// ErrNoGenerator is returned by GeneratePlan when no generator is configured.
var ErrNoGenerator = errors.New("pipeline: no plan generator configured")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateInputs checks the stage-1 constraints and reports the offending
// fields by their JSON names.
func ValidateInputs(in domain.PreparerData) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate inputs: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &domain.ValidationError{Fields: fields}
}

// SetInputs validates and stores the stage-1 inputs.
func (m *Machine) SetInputs(ctx context.Context, in domain.PreparerData) error {
	if err := ValidateInputs(in); err != nil {
		return err
	}
	var bad textFields
	bad.clean("locationName", &in.LocationName)
	bad.clean("painDetails", &in.PainDetails)
	if err := bad.err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	in.AvailableEquipment = append([]string(nil), in.AvailableEquipment...)
	in.ShouldAvoid = append([]string(nil), in.ShouldAvoid...)
	m.session.Inputs = &in
	m.touch()
	return nil
}

// GeneratePlan returns the session plan, generating it when absent.
// A refusal by the coordinator yields domain.ErrGenerationBlocked.
// Concurrent calls for the same session share one generation.
func (m *Machine) GeneratePlan(ctx context.Context) (*domain.Prescription, error) {
	m.mu.Lock()
	if m.session.Plan != nil {
		plan := m.session.Plan.Clone()
		m.mu.Unlock()
		return plan, nil
	}
	if m.generator == nil {
		m.mu.Unlock()
		return nil, ErrNoGenerator
	}
	snap := m.session.Snapshot()
	epoch := m.epoch
	m.mu.Unlock()

	v, err, shared := m.coord.Do(snap.SessionID, func() (any, error) {
		return m.generate(ctx, snap, epoch)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("generation shared", "session_id", snap.SessionID)
	}
	return v.(*domain.Prescription).Clone(), nil
}

func (m *Machine) generate(ctx context.Context, snap *domain.PipelineSession, epoch uint64) (*domain.Prescription, error) {
	check := m.coord.Check(ctx, snap)
	if !check.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationBlocked, check.Reason)
	}
	m.coord.MarkTriggered(ctx, snap.SessionID, snap.UserID)

	m.logger.Info("generating plan", "session_id", snap.SessionID)
	plan, err := m.generator.Generate(ctx, ports.GenerationRequest{
		SessionID: snap.SessionID,
		UserID:    snap.UserID,
		Inputs:    snap.Inputs,
	})
	if err != nil {
		// The persisted trigger still covers the cooldown; only the local
		// lock is released so that a retry is decided by the store.
		m.coord.Reset(snap.SessionID)
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	if plan == nil {
		m.coord.Reset(snap.SessionID)
		return nil, fmt.Errorf("generate plan: %w", domain.ErrNoPlan)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.session.SessionID != snap.SessionID {
		m.logger.Warn("discarding plan for replaced session", "session_id", snap.SessionID)
		return nil, domain.ErrSessionDetached
	}
	m.capture(ctx, plan)
	return m.session.Plan.Clone(), nil
}

// RegeneratePlan discards the current plan, clears both halves of the
// generation lock and generates again.
func (m *Machine) RegeneratePlan(ctx context.Context) (*domain.Prescription, error) {
	m.mu.Lock()
	sid := m.session.SessionID
	m.session.Plan = nil
	m.touch()
	m.mu.Unlock()

	m.coord.Reset(sid)
	if m.state != nil {
		// A pending mark-completed from the previous capture would
		// re-flag the prescription after the reset.
		m.Wait()
		wctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
		err := m.state.Reset(wctx, sid)
		cancel()
		if err != nil {
			m.logger.Warn("reset session state failed", "session_id", sid, "error", err)
		}
	}
	return m.GeneratePlan(ctx)
}

// SetPlan captures a plan produced elsewhere and marks the generation
// completed.
func (m *Machine) SetPlan(ctx context.Context, plan *domain.Prescription) error {
	if plan == nil {
		return domain.ErrNoPlan
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.capture(ctx, plan)
	return nil
}

// capture stores plan, records it in the history and completes the
// generation. Caller must hold m.mu.
func (m *Machine) capture(ctx context.Context, plan *domain.Prescription) {
	s := m.session
	s.Plan = plan.Clone()
	if s.Plan.SessionID == "" {
		s.Plan.SessionID = s.SessionID
	}
	s.History = append(s.History, domain.GenerationHistoryItem{
		SessionID:    s.SessionID,
		Prescription: plan.Clone(),
		GeneratedAt:  m.now(),
		CacheKey:     plan.CacheKey,
	})
	m.touch()
	m.coord.MarkCompleted(ctx, s.SessionID)

	m.logger.Info("plan captured",
		"session_id", s.SessionID,
		"exercises", len(s.Plan.Exercises),
		"history", len(s.History),
	)
}

// UpdateExerciseLoad replaces the prescribed load of one exercise.
func (m *Machine) UpdateExerciseLoad(ctx context.Context, exerciseID string, load domain.Load) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Plan == nil {
		return domain.ErrNoPlan
	}
	ex := m.session.Plan.FindExercise(exerciseID)
	if ex == nil {
		return fmt.Errorf("%q: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	ex.Load = append(domain.Load(nil), load...)
	m.touch()
	return nil
}
