package analysis

import (
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/stride/pkg/domain"
)

// estimatedMaxHR assumes a 30-year-old athlete (220 - 30).
const estimatedMaxHR = 190.0

// Effort-accuracy ratings.
const (
	EffortExcellent = "excellent"
	EffortGood      = "good"
	EffortModerate  = "moderate"
	EffortPoor      = "poor"
)

// Intensity levels of the recovery impact.
const (
	IntensityLight    = "light"
	IntensityModerate = "moderate"
	IntensityHard     = "hard"
	IntensityVeryHard = "very-hard"
)

// defaultZones are used when the prescription does not name its target zones.
var defaultZones = map[string][]string{
	"endurance":  {"Zone 2", "Zone 3"},
	"functional": {"Zone 3", "Zone 4"},
	"hiit":       {"Zone 4", "Zone 5"},
}

// AnalyzeWearable derives effort accuracy, zone compliance and recovery impact
// from heart-rate aggregates. rpe is the session RPE; non-positive values use
// the neutral RPE.
func AnalyzeWearable(m *domain.WearableMetrics, p *domain.Prescription, rpe float64) *domain.WearableAnalysis {
	if m == nil {
		return nil
	}
	rpe = positiveOr(rpe, NeutralRPE)

	effort := effortAccuracy(m, rpe)
	compliance := zoneCompliance(m, targetZones(p))
	recovery := recoveryImpact(m)

	return &domain.WearableAnalysis{
		EffortAccuracy:  effort,
		ZoneCompliance:  compliance,
		RecoveryImpact:  recovery,
		Insights:        wearableInsights(m, effort, compliance),
		Recommendations: wearableRecommendations(m, effort, compliance, recovery),
	}
}

// expectedHRBand maps RPE to a fraction band of the max heart rate.
func expectedHRBand(rpe float64) (lo, hi float64) {
	switch {
	case rpe <= 3:
		return estimatedMaxHR * 0.5, estimatedMaxHR * 0.6
	case rpe <= 6:
		return estimatedMaxHR * 0.6, estimatedMaxHR * 0.75
	case rpe <= 8:
		return estimatedMaxHR * 0.75, estimatedMaxHR * 0.85
	}
	return estimatedMaxHR * 0.85, estimatedMaxHR
}

func effortAccuracy(m *domain.WearableMetrics, rpe float64) domain.EffortAccuracy {
	avg := finite(m.AvgHeartRate, 0)
	lo, hi := expectedHRBand(rpe)
	inBand := avg >= lo && avg <= hi

	mid := (lo + hi) / 2
	correlation := math.Max(0, 1-math.Abs(avg-mid)/(estimatedMaxHR*0.2))
	score := math.Round(correlation * 100)

	out := domain.EffortAccuracy{Score: score, RPEVsHRCorrelation: correlation}
	switch {
	case score >= 85:
		out.Rating = EffortExcellent
		out.Analysis = "Your perceived effort matches your heart-rate data closely. Excellent body awareness."
	case score >= 70:
		out.Rating = EffortGood
		out.Analysis = "Good correlation between how the session felt and your heart-rate data."
	case score >= 50:
		out.Rating = EffortModerate
		if inBand {
			out.Analysis = "Moderate correlation. You may slightly under- or over-estimate your effort."
		} else {
			out.Analysis = "Your perceived effort does not fully match your heart-rate data."
		}
	default:
		out.Rating = EffortPoor
		if avg < lo {
			out.Analysis = "You may have over-estimated your effort. Your heart rate was lower than expected."
		} else {
			out.Analysis = "You may have under-estimated your effort. Your heart rate was higher than expected."
		}
	}
	return out
}

func targetZones(p *domain.Prescription) []string {
	if p == nil {
		return nil
	}
	if len(p.RecommendedZones) > 0 {
		return p.RecommendedZones
	}
	return defaultZones[strings.ToLower(p.Type)]
}

// zoneNumber parses "Zone 2", "zone2" or "2".
func zoneNumber(zone string) int {
	s := strings.TrimPrefix(strings.ToLower(strings.ReplaceAll(zone, " ", "")), "zone")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func zoneCompliance(m *domain.WearableMetrics, zones []string) *domain.ZoneCompliance {
	if len(zones) == 0 {
		return nil
	}
	total := m.TimeInZones.Total()
	var inTarget float64
	for _, z := range zones {
		inTarget += m.TimeInZones.Get(zoneNumber(z))
	}
	var compliance float64
	if total > 0 {
		compliance = finite(inTarget/total*100, 0)
	}

	var rec string
	switch {
	case compliance >= 80:
		rec = "Excellent adherence to the target zones. Keep it up to maximize your progress."
	case compliance >= 60:
		rec = "Good adherence to the target zones. Try to stay closer to the prescribed intensities."
	case compliance >= 40:
		rec = "Target zones partially respected. Use a live heart-rate monitor to adjust."
	default:
		rec = "Target zones not respected enough. Review your paces and intensities with your coach."
	}
	return &domain.ZoneCompliance{
		OverallCompliance:  compliance,
		TargetZones:        append([]string(nil), zones...),
		ActualDistribution: m.TimeInZones,
		Recommendation:     rec,
	}
}

func recoveryImpact(m *domain.WearableMetrics) domain.RecoveryImpact {
	effort := finite(m.EffortScore, 0)
	out := domain.RecoveryImpact{Warnings: []string{}}
	switch {
	case effort >= 85:
		out.IntensityLevel, out.EstimatedRecoveryHours = IntensityVeryHard, 48
	case effort >= 70:
		out.IntensityLevel, out.EstimatedRecoveryHours = IntensityHard, 36
	case effort >= 50:
		out.IntensityLevel, out.EstimatedRecoveryHours = IntensityModerate, 24
	default:
		out.IntensityLevel, out.EstimatedRecoveryHours = IntensityLight, 12
	}

	minutes := finite(m.DurationSeconds, 0) / 60
	switch {
	case minutes > 90:
		out.EstimatedRecoveryHours += 12
	case minutes > 60:
		out.EstimatedRecoveryHours += 6
	}
	out.SuggestedNextSessionDelay = out.EstimatedRecoveryHours

	if m.MaxHeartRate > estimatedMaxHR {
		out.Warnings = append(out.Warnings, "Very high maximum heart rate reached. Make sure to recover fully.")
	}
	if effort >= 90 && minutes > 60 {
		out.Warnings = append(out.Warnings, "Very hard and long session. Watch for signs of overtraining.")
	}
	return out
}

func wearableInsights(m *domain.WearableMetrics, effort domain.EffortAccuracy, compliance *domain.ZoneCompliance) []string {
	var out []string
	switch avg := m.AvgHeartRate; {
	case avg < 120:
		out = append(out, "Low to moderate intensity, ideal for active recovery.")
	case avg < 150:
		out = append(out, "Sustained moderate intensity, great for aerobic endurance.")
	case avg < 170:
		out = append(out, "High intensity, excellent threshold work.")
	default:
		out = append(out, "Very high intensity, optimal VO2max work.")
	}

	if effort.Rating == EffortExcellent || effort.Rating == EffortGood {
		out = append(out, "Your perception of effort is reliable; use it to regulate future sessions.")
	}

	if total := m.TimeInZones.Total(); total > 0 && (m.TimeInZones.Zone4+m.TimeInZones.Zone5)/total > 0.4 {
		out = append(out, "Over 40% of the time spent in zones 4-5. Great for progress, watch your recovery.")
	}

	if compliance != nil && compliance.OverallCompliance >= 80 {
		out = append(out, "Excellent target-zone adherence; you are getting the most out of the session.")
	}
	return out
}

func wearableRecommendations(m *domain.WearableMetrics, effort domain.EffortAccuracy, compliance *domain.ZoneCompliance, recovery domain.RecoveryImpact) []string {
	out := []string{}
	switch recovery.IntensityLevel {
	case IntensityVeryHard:
		out = append(out,
			"Allow at least 48h before your next hard session.",
			"Favor active recovery (walking, light stretching) in the next 24h.")
	case IntensityHard:
		out = append(out, "Wait 36h before another high-intensity session.")
	}

	if effort.Rating == EffortPoor || effort.Rating == EffortModerate {
		out = append(out, "Practice listening to your body by comparing your RPE with heart-rate data.")
	}

	if compliance != nil && compliance.OverallCompliance < 60 {
		out = append(out,
			"Use heart-rate zone alerts on your watch to respect intensities.",
			"Ask your coach to adjust your training paces.")
	}

	if m.CaloriesBurned > 800 {
		out = append(out, "Refuel within 2h after the session.")
	}
	return out
}
