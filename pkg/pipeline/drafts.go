package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/stride/pkg/domain"
)

// ErrNoDraftStore is returned by draft operations when no store is configured.
var ErrNoDraftStore = errors.New("pipeline: no draft store configured")

// SaveDraft stores the current inputs, and the plan when one exists, for
// later resumption. The draft expires after the draft TTL.
func (m *Machine) SaveDraft(ctx context.Context, customName string) (*domain.Draft, error) {
	if m.drafts == nil {
		return nil, ErrNoDraftStore
	}
	var bad textFields
	bad.clean("customName", &customName)
	if err := bad.err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.session.Inputs == nil {
		m.mu.Unlock()
		return nil, domain.ErrNoInputs
	}
	snap := m.session.Snapshot()
	now := m.now()
	m.mu.Unlock()

	draft := &domain.Draft{
		ID:           m.newID(),
		UserID:       snap.UserID,
		Inputs:       snap.Inputs,
		Prescription: snap.Plan,
		CustomName:   customName,
		SavedAt:      now,
		ExpiresAt:    now.Add(m.draftTTL),
	}
	if err := m.drafts.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	m.logger.Info("draft saved", "draft_id", draft.ID, "user_id", draft.UserID, "expires_at", draft.ExpiresAt)
	return draft, nil
}

// LoadDraft restores the user's draft into the session, which takes the
// draft id. An expired draft is deleted and reported as domain.ErrDraftNotFound.
func (m *Machine) LoadDraft(ctx context.Context) (*domain.Draft, error) {
	draft, err := m.liveDraft(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.coord.Reset(m.session.SessionID)
	m.epoch++
	s := m.session
	s.SessionID = draft.ID
	s.Inputs = nil
	if draft.Inputs != nil {
		in := *draft.Inputs
		s.Inputs = &in
	}
	s.Plan = draft.Prescription.Clone()
	s.Feedback = nil
	s.Analysis = nil
	s.History = nil
	m.touch()
	m.logger.Info("draft loaded", "draft_id", draft.ID)
	return draft, nil
}

// DeleteDraft removes the user's draft.
func (m *Machine) DeleteDraft(ctx context.Context) error {
	if m.drafts == nil {
		return ErrNoDraftStore
	}
	if err := m.drafts.DeleteDraft(ctx, m.UserID()); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// HasDraft reports whether a loadable draft exists.
func (m *Machine) HasDraft(ctx context.Context) (bool, error) {
	_, err := m.liveDraft(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrDraftNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (m *Machine) liveDraft(ctx context.Context) (*domain.Draft, error) {
	if m.drafts == nil {
		return nil, ErrNoDraftStore
	}
	uid := m.UserID()
	draft, err := m.drafts.LoadDraft(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if draft.Expired(m.now()) {
		if err := m.drafts.DeleteDraft(ctx, uid); err != nil {
			m.logger.Warn("delete expired draft failed", "user_id", uid, "error", err)
		}
		return nil, domain.ErrDraftNotFound
	}
	return draft, nil
}
