package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/stride/pkg/domain"
)

// Thresholds used by NextActionFor.
const (
	lowRecoveryScore      = 40
	moderateRecoveryScore = 60
	exhaustingRPE         = 9
	benchmarkScore        = 85
	defaultRestHours      = 48
)

// RecommendNextAction suggests what the user should do after this session.
// Recovery metrics are optional; a provider failure is treated as no data.
func (m *Machine) RecommendNextAction(ctx context.Context) domain.NextAction {
	snap := m.Session()

	var recovery *domain.RecoveryMetrics
	if m.recovery != nil {
		r, err := m.recovery.Recovery(ctx, snap.UserID)
		if err != nil {
			m.logger.Debug("recovery metrics unavailable", "user_id", snap.UserID, "error", err)
		} else {
			recovery = r
		}
	}
	return NextActionFor(snap.Analysis, snap.Feedback, recovery, m.now())
}

// NextActionFor derives the advance-stage recommendation. Every input may be nil.
func NextActionFor(a *domain.AnalysisResult, fb *domain.SessionFeedback, recovery *domain.RecoveryMetrics, now time.Time) domain.NextAction {
	at := func(h float64) *time.Time {
		t := now.Add(time.Duration(h * float64(time.Hour)))
		return &t
	}

	if recovery != nil && recovery.RecoveryScore > 0 && recovery.RecoveryScore < lowRecoveryScore {
		return domain.NextAction{
			Type:          domain.NextActionRestWeek,
			Title:         "Take a lighter week",
			Description:   fmt.Sprintf("Your recovery score is %d. Reduce volume for the next few days.", recovery.RecoveryScore),
			ScheduledDate: at(7 * 24),
		}
	}

	rpe := 0.0
	allDone := false
	if fb != nil {
		rpe = fb.OverallRPE
		allDone = len(fb.Exercises) > 0 && fb.CompletedCount() == len(fb.Exercises)
	}
	if rpe >= exhaustingRPE || (recovery != nil && recovery.RecoveryScore > 0 && recovery.RecoveryScore < moderateRecoveryScore) {
		return domain.NextAction{
			Type:          domain.NextActionRecover,
			Title:         "Active recovery",
			Description:   "Light mobility or an easy walk before the next hard session.",
			ScheduledDate: at(24),
		}
	}

	var score float64
	hours := float64(defaultRestHours)
	if a != nil {
		if a.SessionAnalysis != nil && a.SessionAnalysis.OverallPerformance != nil {
			score = a.SessionAnalysis.OverallPerformance.Score
		}
		if a.WearableAnalysis != nil && a.WearableAnalysis.RecoveryImpact.SuggestedNextSessionDelay > 0 {
			hours = a.WearableAnalysis.RecoveryImpact.SuggestedNextSessionDelay
		}
	}
	if score >= benchmarkScore && allDone {
		return domain.NextAction{
			Type:          domain.NextActionTest,
			Title:         "Benchmark test",
			Description:   fmt.Sprintf("Performance score %.0f with every exercise completed. Time to measure your progress.", score),
			ScheduledDate: at(72),
		}
	}
	return domain.NextAction{
		Type:          domain.NextActionSession,
		Title:         "Next session",
		Description:   fmt.Sprintf("Schedule your next session in about %.0f hours.", hours),
		ScheduledDate: at(hours),
	}
}
