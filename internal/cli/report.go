package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/stride/internal/analysis"
	"github.com/aretw0/stride/internal/presentation/tui"
	"github.com/aretw0/stride/pkg/domain"
)

// ReportInput names the files of an offline report.
type ReportInput struct {
	AnalysisPath     string
	PrescriptionPath string // Optional
	FeedbackPath     string // Optional
}

// BuildReport enriches a raw analysis payload and formats it as markdown.
// The payload may be the bare analysis or the service envelope with a
// data field.
func BuildReport(in ReportInput, now time.Time) (string, error) {
	var raw map[string]any
	if err := readJSONFile(in.AnalysisPath, &raw); err != nil {
		return "", err
	}
	if data, ok := raw["data"].(map[string]any); ok {
		raw = data
	}

	var (
		plan *domain.Prescription
		fb   *domain.SessionFeedback
	)
	if in.PrescriptionPath != "" {
		plan = &domain.Prescription{}
		if err := readJSONFile(in.PrescriptionPath, plan); err != nil {
			return "", err
		}
	}
	if in.FeedbackPath != "" {
		fb = &domain.SessionFeedback{}
		if err := readJSONFile(in.FeedbackPath, fb); err != nil {
			return "", err
		}
	}

	result, missing := analysis.NewEnricher().Enrich(raw, plan, fb)
	rec := &domain.AnalysisRecord{
		Result:    result,
		Fallbacks: missing,
		CreatedAt: now,
	}
	if plan != nil {
		rec.SessionID = plan.SessionID
	}
	return tui.AnalysisReport(rec), nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
