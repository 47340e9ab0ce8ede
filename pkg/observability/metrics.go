package observability

import (
	"context"
	"strings"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	StageTransitions *prometheus.CounterVec
	GenerationChecks *prometheus.CounterVec
	RemoteAttempts   *prometheus.CounterVec
	RemoteDuration   *prometheus.HistogramVec
	Fallbacks        *prometheus.CounterVec
	Exits            *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_stage_transitions_total",
				Help: "Total number of stage transitions",
			},
			[]string{"from", "to"},
		),
		GenerationChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_generation_checks_total",
				Help: "Generation checks by outcome",
			},
			[]string{"result"},
		),
		RemoteAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_remote_attempts_total",
				Help: "Remote call attempts by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RemoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stride_remote_call_duration_seconds",
				Help:    "Duration of remote call attempts",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 90, 120},
			},
			[]string{"endpoint"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_analysis_fallbacks_total",
				Help: "Analysis sections synthesized locally",
			},
			[]string{"section"},
		),
		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_session_exits_total",
				Help: "Sessions that left the pipeline, by kind",
			},
			[]string{"kind", "stage"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.StageTransitions,
			m.GenerationChecks,
			m.RemoteAttempts,
			m.RemoteDuration,
			m.Fallbacks,
			m.Exits,
		)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			m.StageTransitions.WithLabelValues(string(e.From), string(e.To)).Inc()
		},
		OnGenerationCheck: func(_ context.Context, e *domain.GenerationEvent) {
			m.GenerationChecks.WithLabelValues(checkResult(e)).Inc()
		},
		OnRemoteAttempt: func(_ context.Context, e *domain.RemoteAttemptEvent) {
			m.RemoteAttempts.WithLabelValues(e.Endpoint, e.Outcome).Inc()
			m.RemoteDuration.WithLabelValues(e.Endpoint).Observe(e.Duration.Seconds())
		},
		OnFallback: func(_ context.Context, e *domain.FallbackEvent) {
			for _, s := range e.Sections {
				m.Fallbacks.WithLabelValues(strings.TrimPrefix(s, "Missing ")).Inc()
			}
		},
		OnExit: func(_ context.Context, e *domain.ExitEvent) {
			kind := "abandoned"
			switch {
			case e.Complete:
				kind = "completed"
			case e.Saved:
				kind = "abandoned_saved"
			}
			m.Exits.WithLabelValues(kind, string(e.Stage)).Inc()
		},
	}
}

// checkResult maps a check to a low-cardinality label.
func checkResult(e *domain.GenerationEvent) string {
	switch e.Reason {
	case domain.ReasonAllowed:
		return "allowed"
	case domain.ReasonPlanExists:
		return "plan_exists"
	case domain.ReasonNoSession:
		return "no_session"
	case domain.ReasonLocalCooldown:
		return "local_cooldown"
	case domain.ReasonCooldown:
		return "cooldown"
	case domain.ReasonStoreUnavailable:
		return "fail_open"
	default:
		return "other"
	}
}
