package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownStage is returned when a stage id is not part of the catalog.
var ErrUnknownStage = errors.New("unknown stage")

// ErrNotAtFinalStage is returned by Complete outside the advance stage.
var ErrNotAtFinalStage = errors.New("pipeline is not at the final stage")

// ErrGenerationBlocked is returned when the coordinator refuses a new generation.
var ErrGenerationBlocked = errors.New("generation blocked")

// ErrNoPlan is returned by operations that need a generated plan.
var ErrNoPlan = errors.New("no generated plan")

// ErrNoFeedback is returned when analysis is requested before feedback is submitted.
var ErrNoFeedback = errors.New("no execution feedback")

// ErrExerciseNotFound is returned when an exercise id is not part of the plan.
var ErrExerciseNotFound = errors.New("exercise not found")

// ErrDraftNotFound is returned when no live draft exists for a user.
var ErrDraftNotFound = errors.New("draft not found")

// ErrSessionDetached is returned when a result arrives for a session that was
// abandoned or replaced while the call was in flight.
var ErrSessionDetached = errors.New("session detached")

// ValidationError lists the invalid fields of a user-provided payload.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", strings.Join(e.Fields, ", "))
}

// ErrNoInputs is returned by operations that need the stage-1 inputs.
var ErrNoInputs = errors.New("no preparer inputs")
