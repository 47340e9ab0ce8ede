package domain

import "fmt"

// StageID identifies one of the five fixed pipeline stages.
type StageID string

const (
	StagePrepare  StageID = "prepare"
	StageActivate StageID = "activate"
	StagePerform  StageID = "perform"
	StageAnalyze  StageID = "analyze"
	StageAdvance  StageID = "advance"
)

// Stage is an immutable catalog entry.
type Stage struct {
	ID            StageID `json:"id"`
	ProgressStart int     `json:"progressStart"`
	ProgressEnd   int     `json:"progressEnd"`
	Title         string  `json:"title"`
	Subtitle      string  `json:"subtitle"`
	Icon          string  `json:"icon"`
	Color         string  `json:"color"`
}

// Contains reports whether progress lies within the stage range (inclusive).
func (s Stage) Contains(progress int) bool {
	return progress >= s.ProgressStart && progress <= s.ProgressEnd
}

var catalog = [...]Stage{
	{ID: StagePrepare, ProgressStart: 0, ProgressEnd: 20, Title: "Prepare", Subtitle: "Context and constraints", Icon: "clipboard", Color: "#18E3FF"},
	{ID: StageActivate, ProgressStart: 21, ProgressEnd: 40, Title: "Activate", Subtitle: "Review the prescription", Icon: "zap", Color: "#FF6B35"},
	{ID: StagePerform, ProgressStart: 41, ProgressEnd: 70, Title: "Perform", Subtitle: "Execute the session", Icon: "dumbbell", Color: "#22C55E"},
	{ID: StageAnalyze, ProgressStart: 71, ProgressEnd: 90, Title: "Analyze", Subtitle: "Feedback and analysis", Icon: "chart", Color: "#A855F7"},
	{ID: StageAdvance, ProgressStart: 91, ProgressEnd: 100, Title: "Advance", Subtitle: "Next steps", Icon: "trending-up", Color: "#F59E0B"},
}

// Stages returns a copy of the ordered stage catalog.
func Stages() []Stage {
	out := make([]Stage, len(catalog))
	copy(out, catalog[:])
	return out
}

// FirstStage returns the entry stage of the pipeline.
func FirstStage() Stage { return catalog[0] }

// LastStage returns the terminal stage of the pipeline.
func LastStage() Stage { return catalog[len(catalog)-1] }

// StageIndex returns the catalog position of id, or -1.
func StageIndex(id StageID) int {
	for i, s := range catalog {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// LookupStage returns the catalog entry for id.
func LookupStage(id StageID) (Stage, error) {
	i := StageIndex(id)
	if i < 0 {
		return Stage{}, fmt.Errorf("%w: %q", ErrUnknownStage, id)
	}
	return catalog[i], nil
}

// NextStage returns the stage after id. ok is false at the last stage.
func NextStage(id StageID) (Stage, bool) {
	i := StageIndex(id)
	if i < 0 || i+1 >= len(catalog) {
		return Stage{}, false
	}
	return catalog[i+1], true
}

// PreviousStage returns the stage before id. ok is false at the first stage.
func PreviousStage(id StageID) (Stage, bool) {
	i := StageIndex(id)
	if i <= 0 {
		return Stage{}, false
	}
	return catalog[i-1], true
}
