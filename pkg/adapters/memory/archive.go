package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/stride/pkg/domain"
)

// Archive implements ports.ArchiveStore and ports.DraftStore in memory.
type Archive struct {
	mu        sync.RWMutex
	abandoned map[string]*domain.AbandonedSession
	analyses  map[string]*domain.AnalysisRecord
	drafts    map[string]*domain.Draft
}

// NewArchive creates an empty in-memory archive.
func NewArchive() *Archive {
	return &Archive{
		abandoned: make(map[string]*domain.AbandonedSession),
		analyses:  make(map[string]*domain.AnalysisRecord),
		drafts:    make(map[string]*domain.Draft),
	}
}

func (a *Archive) SaveAbandoned(ctx context.Context, rec *domain.AbandonedSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *rec
	cp.Prescription = rec.Prescription.Clone()
	cp.Feedback = rec.Feedback.Clone()
	a.abandoned[rec.SessionID] = &cp
	return nil
}

func (a *Archive) SaveAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *rec
	a.analyses[rec.SessionID] = &cp
	return nil
}

// Abandoned returns the stored snapshot for sessionID, if any.
func (a *Archive) Abandoned(sessionID string) (*domain.AbandonedSession, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.abandoned[sessionID]
	return rec, ok
}

// Analysis returns the stored analysis for sessionID, if any.
func (a *Archive) Analysis(sessionID string) (*domain.AnalysisRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.analyses[sessionID]
	return rec, ok
}

func (a *Archive) ListArchived(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{}, len(a.abandoned)+len(a.analyses))
	for id := range a.abandoned {
		seen[id] = struct{}{}
	}
	for id := range a.analyses {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *Archive) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *draft
	a.drafts[draft.UserID] = &cp
	return nil
}

func (a *Archive) LoadDraft(ctx context.Context, userID string) (*domain.Draft, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.drafts[userID]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	cp := *d
	return &cp, nil
}

func (a *Archive) DeleteDraft(ctx context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.drafts, userID)
	return nil
}
