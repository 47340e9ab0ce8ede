package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/stride/pkg/domain"
)

// DefaultPIIPatterns match the free-text fields where users describe
// injuries and how they feel.
var DefaultPIIPatterns = []string{"(?i)^painDetails$", "(?i)^notes$"}

type piiMiddleware struct {
	Archive
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the JSON fields matching
// the patterns in archived sessions and analyses. Drafts are left intact
// because they are restored into a live session.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next Archive) Archive {
		return &piiMiddleware{Archive: next, patterns: patterns}
	}
}

func (m *piiMiddleware) SaveAbandoned(ctx context.Context, rec *domain.AbandonedSession) error {
	var masked domain.AbandonedSession
	if err := m.mask(rec, &masked); err != nil {
		return err
	}
	return m.Archive.SaveAbandoned(ctx, &masked)
}

func (m *piiMiddleware) SaveAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	var masked domain.AnalysisRecord
	if err := m.mask(rec, &masked); err != nil {
		return err
	}
	return m.Archive.SaveAnalysis(ctx, &masked)
}

// mask round-trips src through a generic map so the caller's record is
// never modified.
func (m *piiMiddleware) mask(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	maskValue(generic, m.patterns)
	if data, err = json.Marshal(generic); err != nil {
		return fmt.Errorf("failed to marshal masked record: %w", err)
	}
	return json.Unmarshal(data, dst)
}

// Helpers

func maskValue(v any, patterns []*regexp.Regexp) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if _, isString := child.(string); isString && matchAny(k, patterns) {
				t[k] = "***"
				continue
			}
			maskValue(child, patterns)
		}
	case []any:
		for _, child := range t {
			maskValue(child, patterns)
		}
	}
}

func matchAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
