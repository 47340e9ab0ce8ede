package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/stride/pkg/domain"
)

// Store implements ports.SessionStateStore using the local filesystem.
// It stores one JSON file per session under BasePath/state.
// Read-modify-write cycles are serialized within the process only.
type Store struct {
	BasePath string

	mu  sync.Mutex
	now func() time.Time
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".stride".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = ".stride"
	}
	return &Store{BasePath: basePath, now: time.Now}
}

func (s *Store) dir() string {
	return filepath.Join(s.BasePath, "state")
}

func (s *Store) load(sessionID string) (*domain.SessionStateRecord, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	var rec domain.SessionStateRecord
	if err := readJSON(s.dir(), sessionID, &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// mutate loads (or creates) the record, applies fn and writes it back.
func (s *Store) mutate(sessionID, userID string, fn func(rec *domain.SessionStateRecord, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec, err := s.load(sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		rec = &domain.SessionStateRecord{SessionID: sessionID, CurrentStage: domain.StagePrepare, CreatedAt: now}
	} else if err != nil {
		return err
	}
	if userID != "" {
		rec.UserID = userID
	}
	rec.UpdatedAt = now
	rec.LastActivityAt = now
	fn(rec, now)
	return writeJSON(s.dir(), sessionID, rec)
}

func (s *Store) CanTriggerGeneration(ctx context.Context, sessionID string, cooldown time.Duration) (domain.GenerationCheck, error) {
	rec, err := s.Load(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.GenerationCheck{Allowed: true}, nil
	}
	if err != nil {
		return domain.GenerationCheck{}, err
	}
	return domain.EvaluateRecord(rec, s.now(), cooldown), nil
}

func (s *Store) MarkTriggered(ctx context.Context, sessionID, userID string) error {
	return s.mutate(sessionID, userID, func(rec *domain.SessionStateRecord, now time.Time) {
		rec.GenerationTriggered = true
		rec.GenerationTriggeredAt = &now
		rec.GenerationCompletedAt = nil
	})
}

func (s *Store) MarkCompleted(ctx context.Context, sessionID string) error {
	return s.mutate(sessionID, "", func(rec *domain.SessionStateRecord, now time.Time) {
		rec.GenerationCompletedAt = &now
		rec.PrescriptionExists = true
	})
}

func (s *Store) UpdateStage(ctx context.Context, sessionID, userID string, stage domain.StageID) error {
	return s.mutate(sessionID, userID, func(rec *domain.SessionStateRecord, _ time.Time) {
		rec.CurrentStage = stage
	})
}

// Load retrieves the record from its JSON file.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionStateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(sessionID)
}

// Reset removes the session file.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeJSON(s.dir(), sessionID)
}

func (s *Store) CleanupStale(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := listJSON(s.dir())
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, id := range ids {
		rec, err := s.load(id)
		if err != nil {
			continue // unreadable files are left for inspection
		}
		if rec.LastActivityAt.Before(cutoff) {
			if err := removeJSON(s.dir(), id); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// List returns all session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return listJSON(s.dir())
}
