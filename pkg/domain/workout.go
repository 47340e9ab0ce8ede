package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Session duration bounds in minutes.
const (
	DefaultDurationMinutes = 45
	ShortDurationMinutes   = 25
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 120
)

// PreparerData holds the stage-1 inputs consumed by plan generation.
type PreparerData struct {
	AvailableTime        int      `json:"availableTime" validate:"required,min=15,max=120"`
	WantsShortVersion    bool     `json:"wantsShortVersion"`
	LocationID           string   `json:"locationId" validate:"required"`
	LocationName         string   `json:"locationName"`
	LocationType         string   `json:"locationType,omitempty" validate:"omitempty,oneof=home gym outdoor"`
	AvailableEquipment   []string `json:"availableEquipment"`
	EnergyLevel          int      `json:"energyLevel" validate:"min=1,max=10"`
	HasFatigue           bool     `json:"hasFatigue"`
	HasPain              bool     `json:"hasPain"`
	PainDetails          string   `json:"painDetails,omitempty" validate:"required_if=HasPain true"`
	DaysSinceLastSession *int     `json:"daysSinceLastSession,omitempty" validate:"omitempty,min=0"`
	LastSessionType      string   `json:"lastSessionType,omitempty"`
	ShouldAvoid          []string `json:"shouldAvoid,omitempty"`
	RecoveryScore        *int     `json:"recoveryScore,omitempty" validate:"omitempty,min=0,max=100"`
}

// Load is a prescribed or reported load. Upstream payloads send either a
// single number or one value per set.
type Load []float64

// UnmarshalJSON accepts a number, an array of numbers or null.
func (l *Load) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var many []float64
		if err := json.Unmarshal(data, &many); err != nil {
			return fmt.Errorf("load: %w", err)
		}
		*l = many
		return nil
	}
	var one float64
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	*l = Load{one}
	return nil
}

// MarshalJSON writes a single value as a number.
func (l Load) MarshalJSON() ([]byte, error) {
	switch len(l) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(l[0])
	}
	return json.Marshal([]float64(l))
}

// Mean returns the average load, or 0 when empty.
func (l Load) Mean() float64 {
	if len(l) == 0 {
		return 0
	}
	var sum float64
	for _, v := range l {
		sum += v
	}
	return sum / float64(len(l))
}

// Exercise is one prescribed movement.
type Exercise struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Variant         string   `json:"variant,omitempty"`
	Sets            int      `json:"sets"`
	Reps            int      `json:"reps"`
	Load            Load     `json:"load,omitempty"`
	Tempo           string   `json:"tempo,omitempty"`
	Rest            int      `json:"rest"`
	RPETarget       float64  `json:"rpeTarget,omitempty"`
	MovementPattern string   `json:"movementPattern,omitempty"`
	MuscleGroups    []string `json:"muscleGroups,omitempty"`
	Equipment       string   `json:"equipment,omitempty"`
	Substitutions   []string `json:"substitutions,omitempty"`
	CoachNotes      string   `json:"coachNotes,omitempty"`
}

// Prescription is the generated plan for one session.
type Prescription struct {
	SessionID      string     `json:"sessionId,omitempty"`
	SessionName    string     `json:"sessionName,omitempty"`
	Type           string     `json:"type"`
	Discipline     string     `json:"discipline,omitempty"`
	DurationTarget int        `json:"durationTarget"`
	Focus          []string   `json:"focus"`
	Exercises      []Exercise `json:"exercises"`
	ExpectedRPE    float64    `json:"expectedRpe,omitempty"`
	CoachRationale string     `json:"coachRationale,omitempty"`
	GeneratedAt    *time.Time `json:"generatedAt,omitempty"`
	CacheKey       string     `json:"cacheKey,omitempty"`

	// RecommendedZones lists the heart-rate zones ("Zone 2") the session targets.
	RecommendedZones []string `json:"recommendedZones,omitempty"`
}

// FindExercise returns the exercise with id, or nil.
func (p *Prescription) FindExercise(id string) *Exercise {
	if p == nil {
		return nil
	}
	for i := range p.Exercises {
		if p.Exercises[i].ID == id {
			return &p.Exercises[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the prescription.
func (p *Prescription) Clone() *Prescription {
	if p == nil {
		return nil
	}
	out := *p
	out.Focus = append([]string(nil), p.Focus...)
	out.RecommendedZones = append([]string(nil), p.RecommendedZones...)
	out.Exercises = make([]Exercise, len(p.Exercises))
	for i, ex := range p.Exercises {
		ex.Load = append(Load(nil), ex.Load...)
		ex.MuscleGroups = append([]string(nil), ex.MuscleGroups...)
		ex.Substitutions = append([]string(nil), ex.Substitutions...)
		out.Exercises[i] = ex
	}
	if p.GeneratedAt != nil {
		t := *p.GeneratedAt
		out.GeneratedAt = &t
	}
	return &out
}

// ExerciseFeedback is the user's report for one exercise.
type ExerciseFeedback struct {
	ExerciseID     string  `json:"exerciseId"`
	Completed      bool    `json:"completed"`
	SetsCompleted  int     `json:"setsCompleted"`
	RepsActual     []int   `json:"repsActual"`
	LoadUsed       Load    `json:"loadUsed,omitempty"`
	RPE            float64 `json:"rpe,omitempty"`
	Technique      float64 `json:"technique,omitempty"`
	HadPain        bool    `json:"hadPain"`
	WasSubstituted bool    `json:"wasSubstituted"`
	Notes          string  `json:"notes,omitempty"`
}

// FunctionalMetrics describes a functional (WOD) session. Their presence
// marks the analysis as an extended workload.
type FunctionalMetrics struct {
	WODFormat       string `json:"wodFormat"`
	RoundsCompleted int    `json:"roundsCompleted"`
	TotalReps       int    `json:"totalReps,omitempty"`
	TimeCapReached  bool   `json:"timeCapReached"`
	WODName         string `json:"wodName,omitempty"`
}

// ZoneTimes holds seconds spent per heart-rate zone.
type ZoneTimes struct {
	Zone1 float64 `json:"zone1"`
	Zone2 float64 `json:"zone2"`
	Zone3 float64 `json:"zone3"`
	Zone4 float64 `json:"zone4"`
	Zone5 float64 `json:"zone5"`
}

// Total returns the time across all zones.
func (z ZoneTimes) Total() float64 {
	return z.Zone1 + z.Zone2 + z.Zone3 + z.Zone4 + z.Zone5
}

// Get returns the time for zone n (1..5).
func (z ZoneTimes) Get(n int) float64 {
	switch n {
	case 1:
		return z.Zone1
	case 2:
		return z.Zone2
	case 3:
		return z.Zone3
	case 4:
		return z.Zone4
	case 5:
		return z.Zone5
	}
	return 0
}

// WearableMetrics are heart-rate aggregates recorded during the session.
type WearableMetrics struct {
	AvgHeartRate    float64   `json:"avgHeartRate"`
	MaxHeartRate    float64   `json:"maxHeartRate"`
	MinHeartRate    float64   `json:"minHeartRate"`
	TimeInZones     ZoneTimes `json:"timeInZones"`
	CaloriesBurned  float64   `json:"caloriesBurned"`
	EffortScore     float64   `json:"effortScore"`
	DataQuality     string    `json:"dataQuality"`
	DeviceName      string    `json:"deviceName,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// SessionFeedback is the stage-3 output.
type SessionFeedback struct {
	Exercises         []ExerciseFeedback `json:"exercises"`
	DurationActual    float64            `json:"durationActual"`
	OverallRPE        float64            `json:"overallRpe"`
	EffortPerceived   float64            `json:"effortPerceived"`
	Enjoyment         float64            `json:"enjoyment"`
	Notes             string             `json:"notes,omitempty"`
	FunctionalMetrics *FunctionalMetrics `json:"functionalMetrics,omitempty"`
	WearableMetrics   *WearableMetrics   `json:"wearableMetrics,omitempty"`
	HRTrackingEnabled bool               `json:"hrTrackingEnabled"`
}

// CompletedCount returns the number of completed exercises.
func (f *SessionFeedback) CompletedCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, ex := range f.Exercises {
		if ex.Completed {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the feedback.
func (f *SessionFeedback) Clone() *SessionFeedback {
	if f == nil {
		return nil
	}
	out := *f
	out.Exercises = make([]ExerciseFeedback, len(f.Exercises))
	for i, ex := range f.Exercises {
		ex.RepsActual = append([]int(nil), ex.RepsActual...)
		ex.LoadUsed = append(Load(nil), ex.LoadUsed...)
		out.Exercises[i] = ex
	}
	if f.FunctionalMetrics != nil {
		fm := *f.FunctionalMetrics
		out.FunctionalMetrics = &fm
	}
	if f.WearableMetrics != nil {
		wm := *f.WearableMetrics
		out.WearableMetrics = &wm
	}
	return &out
}

// RecoveryMetrics are provided by the wearable collaborator when available.
type RecoveryMetrics struct {
	RestingHeartRate float64   `json:"restingHeartRate"`
	HRV              float64   `json:"hrv"`
	SleepHours       float64   `json:"sleepHours"`
	RecoveryScore    int       `json:"recoveryScore"`
	MeasuredAt       time.Time `json:"measuredAt"`
}

// NextActionType enumerates stage-5 recommendations.
type NextActionType string

const (
	NextActionSession  NextActionType = "next-session"
	NextActionTest     NextActionType = "test-benchmark"
	NextActionRestWeek NextActionType = "rest-week"
	NextActionRecover  NextActionType = "active-recovery"
)

// NextAction is the recommendation shown in the advance stage.
type NextAction struct {
	Type          NextActionType `json:"type"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	ScheduledDate *time.Time     `json:"scheduledDate,omitempty"`
}
