package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/aretw0/stride/pkg/domain"
)

// Archive implements ports.ArchiveStore and ports.DraftStore on the filesystem.
//
// Layout under BasePath:
//
//	abandoned/<sessionID>.json
//	analyses/<sessionID>.json
//	drafts/<userID>.json
type Archive struct {
	BasePath string
}

// NewArchive creates an archive rooted at basePath (default ".stride").
func NewArchive(basePath string) *Archive {
	if basePath == "" {
		basePath = ".stride"
	}
	return &Archive{BasePath: basePath}
}

func (a *Archive) sub(name string) string {
	return filepath.Join(a.BasePath, name)
}

func (a *Archive) SaveAbandoned(ctx context.Context, rec *domain.AbandonedSession) error {
	return writeJSON(a.sub("abandoned"), rec.SessionID, rec)
}

func (a *Archive) SaveAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	return writeJSON(a.sub("analyses"), rec.SessionID, rec)
}

// LoadAnalysis reads a persisted analysis.
func (a *Archive) LoadAnalysis(ctx context.Context, sessionID string) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	if err := readJSON(a.sub("analyses"), sessionID, &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (a *Archive) ListArchived(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, dir := range []string{"abandoned", "analyses"} {
		ids, err := listJSON(a.sub(dir))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Archive) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	return writeJSON(a.sub("drafts"), draft.UserID, draft)
}

func (a *Archive) LoadDraft(ctx context.Context, userID string) (*domain.Draft, error) {
	var d domain.Draft
	if err := readJSON(a.sub("drafts"), userID, &d); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrDraftNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (a *Archive) DeleteDraft(ctx context.Context, userID string) error {
	return removeJSON(a.sub("drafts"), userID)
}
