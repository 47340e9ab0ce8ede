package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStageEnter      EventType = "stage_enter"
	EventStageLeave      EventType = "stage_leave"
	EventGenerationCheck EventType = "generation_check"
	EventRemoteAttempt   EventType = "remote_attempt"
	EventFallback        EventType = "analysis_fallback"
	EventSessionExit     EventType = "session_exit"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

// StageEvent represents entry into or exit from a stage.
type StageEvent struct {
	EventBase
	From     StageID `json:"from"`
	To       StageID `json:"to"`
	Progress int     `json:"progress"`
}

// GenerationEvent reports the outcome of a coordinator check.
type GenerationEvent struct {
	EventBase
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// RemoteAttemptEvent reports one attempt of the resilient client.
type RemoteAttemptEvent struct {
	EventBase
	Endpoint string        `json:"endpoint"`
	Attempt  int           `json:"attempt"`
	Status   int           `json:"status,omitempty"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// FallbackEvent lists the analysis sections that were synthesized locally.
type FallbackEvent struct {
	EventBase
	Sections []string `json:"sections"`
}

// ExitEvent reports a forced exit or completion.
type ExitEvent struct {
	EventBase
	Stage    StageID `json:"stage"`
	Saved    bool    `json:"saved"`
	Complete bool    `json:"complete"`
}

// LifecycleHooks defines callbacks for pipeline observability.
// Nil hooks are skipped.
type LifecycleHooks struct {
	OnStageEnter      func(context.Context, *StageEvent)
	OnStageLeave      func(context.Context, *StageEvent)
	OnGenerationCheck func(context.Context, *GenerationEvent)
	OnRemoteAttempt   func(context.Context, *RemoteAttemptEvent)
	OnFallback        func(context.Context, *FallbackEvent)
	OnExit            func(context.Context, *ExitEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStageEnter:      chain(h.OnStageEnter, other.OnStageEnter),
		OnStageLeave:      chain(h.OnStageLeave, other.OnStageLeave),
		OnGenerationCheck: chain(h.OnGenerationCheck, other.OnGenerationCheck),
		OnRemoteAttempt:   chain(h.OnRemoteAttempt, other.OnRemoteAttempt),
		OnFallback:        chain(h.OnFallback, other.OnFallback),
		OnExit:            chain(h.OnExit, other.OnExit),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
