package analysis

import (
	"fmt"
	"math"

	"github.com/aretw0/stride/pkg/domain"
)

// Neutral values substituted when feedback carries no usable number.
const (
	NeutralRPE       = 7.0
	NeutralTechnique = 8.0

	completionThreshold = 0.9
	volumeTargetKg      = 1000.0
	unknownExercise     = "Unknown exercise"
	defaultRationale    = "Analysis based on your performance and how the session felt."
)

// facts are the inputs every fallback is computed from. All values are
// finite, whatever the feedback looks like.
type facts struct {
	prescription   *domain.Prescription
	feedback       *domain.SessionFeedback
	completionRate float64
	avgRPE         float64
	exerciseCount  int
}

func newFacts(p *domain.Prescription, f *domain.SessionFeedback) facts {
	if p == nil {
		p = &domain.Prescription{}
	}
	if f == nil {
		f = &domain.SessionFeedback{}
	}
	fc := facts{
		prescription:  p,
		feedback:      f,
		avgRPE:        positiveOr(f.OverallRPE, NeutralRPE),
		exerciseCount: len(f.Exercises),
	}
	if fc.exerciseCount > 0 {
		fc.completionRate = float64(f.CompletedCount()) / float64(fc.exerciseCount)
	}
	return fc
}

func (fc facts) completionPercent() float64 {
	return math.Round(fc.completionRate * 100)
}

func (fc facts) exerciseName(id string) string {
	if ex := fc.prescription.FindExercise(id); ex != nil && ex.Name != "" {
		return ex.Name
	}
	return unknownExercise
}

func ratingFor(score float64) string {
	switch {
	case score >= 90:
		return domain.RatingExcellent
	case score >= 75:
		return domain.RatingGood
	case score >= 60:
		return domain.RatingAverage
	}
	return domain.RatingNeedsImprovement
}

func fallbackOverall(fc facts) *domain.OverallPerformance {
	score := fc.completionPercent()
	return &domain.OverallPerformance{
		Score:   score,
		Rating:  ratingFor(score),
		Summary: fmt.Sprintf("Session completed at %.0f%%. Average RPE %s/10.", score, formatNumber(fc.avgRPE)),
	}
}

// exerciseVolume is load×reps for one exercise. A per-set load list matching
// the reps list is summed set by set; anything else uses the mean load.
func exerciseVolume(ex domain.ExerciseFeedback) float64 {
	if len(ex.LoadUsed) > 1 && len(ex.LoadUsed) == len(ex.RepsActual) {
		var v float64
		for i, reps := range ex.RepsActual {
			v += ex.LoadUsed[i] * float64(reps)
		}
		return finite(v, 0)
	}
	var reps int
	for _, r := range ex.RepsActual {
		reps += r
	}
	return finite(ex.LoadUsed.Mean()*float64(reps), 0)
}

func fallbackVolume(fc facts) *domain.VolumeAnalysis {
	var total float64
	for _, ex := range fc.feedback.Exercises {
		total += exerciseVolume(ex)
	}
	var efficiency float64
	if n := len(fc.prescription.Exercises); n > 0 {
		efficiency = math.Round(total/float64(n)*100) / 100
	}
	compared := "within target"
	if total > volumeTargetKg {
		compared = "above target"
	}
	return &domain.VolumeAnalysis{
		TotalVolume:      total,
		VolumeEfficiency: efficiency,
		ComparedToTarget: compared,
	}
}

func fallbackIntensity(fc facts) *domain.IntensityAnalysis {
	zone := "moderate (6-7)"
	if fc.avgRPE >= 8 {
		zone = "intense (8-10)"
	}
	return &domain.IntensityAnalysis{
		AvgRPE:          fc.avgRPE,
		RPEDistribution: map[string]float64{"6-7": 40, "8-9": 50, "10": 10},
		IntensityZones:  zone,
	}
}

func fallbackTechnique(fc facts) *domain.TechniqueAnalysis {
	avg := NeutralTechnique
	var issues []string
	if fc.exerciseCount > 0 {
		var sum float64
		for _, ex := range fc.feedback.Exercises {
			score := positiveOr(ex.Technique, NeutralTechnique)
			sum += score
			if score < 7 {
				issues = append(issues, fc.exerciseName(ex.ExerciseID))
			}
		}
		avg = math.Round(sum/float64(fc.exerciseCount)*10) / 10
	}

	recs := []string{"Excellent technique, keep it up!"}
	if len(issues) > 0 {
		recs = []string{"Focus on form rather than load", "Film yourself to review your technique"}
	}
	return &domain.TechniqueAnalysis{
		AvgTechniqueScore:   avg,
		ExercisesWithIssues: nonNil(issues),
		Recommendations:     recs,
	}
}

func fallbackBreakdown(fc facts) []domain.ExerciseBreakdown {
	out := make([]domain.ExerciseBreakdown, 0, fc.exerciseCount)
	for _, ex := range fc.feedback.Exercises {
		perf := domain.ExercisePerformance{
			Completed:      ex.Completed,
			VolumeScore:    70,
			RPEScore:       70,
			TechniqueScore: 80,
		}
		if ex.Completed {
			perf.VolumeScore = 90
		}
		if rpe := finite(ex.RPE, 0); rpe > 0 {
			perf.RPEScore = math.Min(100, rpe*10)
		}
		if tech := finite(ex.Technique, 0); tech > 0 {
			perf.TechniqueScore = tech * 10
		}

		status := "Exercise partially completed"
		next := "Keep the current load"
		if ex.Completed {
			status = "Exercise completed successfully"
			next = "Increase the load slightly"
		}
		rpeNote := "RPE not reported"
		if ex.RPE > 0 {
			rpeNote = fmt.Sprintf("RPE %s/10", formatNumber(ex.RPE))
		}

		out = append(out, domain.ExerciseBreakdown{
			ExerciseID:                 ex.ExerciseID,
			ExerciseName:               fc.exerciseName(ex.ExerciseID),
			Performance:                perf,
			Insights:                   []string{status, rpeNote},
			NextSessionRecommendations: []string{next},
		})
	}
	return out
}

func fallbackInsights(fc facts) *domain.PersonalizedInsights {
	strength := "Good perseverance"
	improve := "Build muscular endurance"
	if fc.completionRate >= completionThreshold {
		strength = "Excellent completion rate"
		improve = "Keep the routine going"
	}
	return &domain.PersonalizedInsights{
		Strengths:      []string{strength, "Well-managed effort"},
		AreasToImprove: []string{improve},
		KeyTakeaways: []string{
			fmt.Sprintf("Session completed at %.0f%%", fc.completionPercent()),
			fmt.Sprintf("Average RPE %s/10", formatNumber(fc.avgRPE)),
		},
		MotivationalMessage: "Great work! Keep this momentum to reach your goals.",
	}
}

func fallbackProgression(fc facts) *domain.ProgressionRecommendations {
	volume := "Keep the current volume"
	intensity := "Keep the current intensity"
	if fc.avgRPE < NeutralRPE {
		volume = "Increase volume by 5-10%"
		intensity = "Increase load by 2.5-5kg"
	}
	return &domain.ProgressionRecommendations{
		NextSession: domain.NextSessionAdvice{
			VolumeAdjustment:    volume,
			IntensityAdjustment: intensity,
			FocusPoints:         []string{"Maintain technique", "Manage recovery"},
		},
		LongTerm: domain.LongTermAdvice{
			GoalAlignment:     "Steady progress towards your goals",
			MilestoneProgress: "On track",
			StrategicAdvice:   "Stay consistent with your training to maximize results",
		},
	}
}

func fallbackAchievements(fc facts) []domain.Achievement {
	return []domain.Achievement{
		{
			Type:        "completion",
			Title:       "Session Completed",
			Description: fmt.Sprintf("%.0f%% of exercises finished", fc.completionPercent()),
			Earned:      fc.completionRate >= completionThreshold,
		},
		{
			Type:        "consistency",
			Title:       "Consistency",
			Description: "One more session towards your goals",
			Earned:      true,
		},
	}
}

func finite(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func positiveOr(v, def float64) float64 {
	v = finite(v, 0)
	if v <= 0 {
		return def
	}
	return v
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", math.Round(v*10)/10)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
