package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Section names, in the order they are validated.
const (
	SectionSessionAnalysis  = "sessionAnalysis"
	SectionOverall          = "overallPerformance"
	SectionVolume           = "volumeAnalysis"
	SectionIntensity        = "intensityAnalysis"
	SectionTechnique        = "techniqueAnalysis"
	SectionBreakdown        = "exerciseBreakdown"
	SectionInsights         = "personalizedInsights"
	SectionProgression      = "progressionRecommendations"
	SectionAchievements     = "achievements"
	SectionCoachRationale   = "coachRationale"
	SectionWearableAnalysis = "wearableAnalysis"
)

const warningPrefix = "Missing "

// Enricher turns a partial upstream payload into a structurally complete
// AnalysisResult.
type Enricher struct {
	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

// NewEnricher creates an Enricher.
func NewEnricher(opts ...Option) *Enricher {
	o := applyOptions(opts)
	return &Enricher{
		logger: logging.WithCategory(o.logger, logging.CategoryAnalysis),
		hooks:  o.hooks,
	}
}

// Enrich decodes every section present in raw and replaces each missing or
// undecodable one with a fallback computed from p and f. It never fails.
// The returned warnings name the replaced sections in validation order.
func (e *Enricher) Enrich(raw map[string]any, p *domain.Prescription, f *domain.SessionFeedback) (*domain.AnalysisResult, []string) {
	return e.EnrichContext(context.Background(), raw, p, f)
}

// EnrichContext is Enrich with a context forwarded to the fallback hook.
func (e *Enricher) EnrichContext(ctx context.Context, raw map[string]any, p *domain.Prescription, f *domain.SessionFeedback) (*domain.AnalysisResult, []string) {
	fc := newFacts(p, f)
	var missing []string
	miss := func(section string) { missing = append(missing, section) }

	result := &domain.AnalysisResult{SessionAnalysis: &domain.SessionAnalysis{}}

	sa, ok := raw[SectionSessionAnalysis].(map[string]any)
	if !ok {
		miss(SectionSessionAnalysis)
	}
	sess := result.SessionAnalysis

	if !decodeSection(sa, SectionOverall, &sess.OverallPerformance) {
		miss(SectionOverall)
		sess.OverallPerformance = fallbackOverall(fc)
	}
	if !decodeSection(sa, SectionVolume, &sess.VolumeAnalysis) {
		miss(SectionVolume)
		sess.VolumeAnalysis = fallbackVolume(fc)
	}
	if !decodeSection(sa, SectionIntensity, &sess.IntensityAnalysis) {
		miss(SectionIntensity)
		sess.IntensityAnalysis = fallbackIntensity(fc)
	}
	if !decodeSection(sa, SectionTechnique, &sess.TechniqueAnalysis) {
		miss(SectionTechnique)
		sess.TechniqueAnalysis = fallbackTechnique(fc)
	}
	if !decodeSection(raw, SectionBreakdown, &result.ExerciseBreakdown) || len(result.ExerciseBreakdown) == 0 {
		miss(SectionBreakdown)
		result.ExerciseBreakdown = fallbackBreakdown(fc)
	}
	if !decodeSection(raw, SectionInsights, &result.PersonalizedInsights) {
		miss(SectionInsights)
		result.PersonalizedInsights = fallbackInsights(fc)
	}
	if !decodeSection(raw, SectionProgression, &result.ProgressionRecommendations) {
		miss(SectionProgression)
		result.ProgressionRecommendations = fallbackProgression(fc)
	}
	if !decodeSection(raw, SectionAchievements, &result.Achievements) || len(result.Achievements) == 0 {
		miss(SectionAchievements)
		result.Achievements = fallbackAchievements(fc)
	}
	if rationale, _ := raw[SectionCoachRationale].(string); strings.TrimSpace(rationale) != "" {
		result.CoachRationale = rationale
	} else {
		miss(SectionCoachRationale)
		result.CoachRationale = defaultRationale
	}

	// Wearable analysis is optional: decoded when sent, computed when the
	// feedback carries heart-rate data, absent otherwise.
	if !decodeSection(raw, SectionWearableAnalysis, &result.WearableAnalysis) {
		result.WearableAnalysis = nil
		if fc.feedback.WearableMetrics != nil {
			result.WearableAnalysis = AnalyzeWearable(fc.feedback.WearableMetrics, fc.prescription, fc.avgRPE)
		}
	}

	sanitize(result)

	warnings := make([]string, len(missing))
	for i, s := range missing {
		warnings[i] = warningPrefix + s
	}
	if len(missing) > 0 {
		e.logger.Warn("applied fallbacks for missing fields",
			"warnings", warnings,
			"fallbacks_count", len(warnings),
		)
		if e.hooks.OnFallback != nil {
			e.hooks.OnFallback(ctx, &domain.FallbackEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventFallback},
				Sections:  missing,
			})
		}
	} else {
		e.logger.Debug("analysis complete without fallbacks")
	}
	return result, warnings
}

// decodeSection decodes src[key] into out. It reports false when the key is
// absent, null or not decodable.
func decodeSection(src map[string]any, key string, out any) bool {
	v, ok := src[key]
	if !ok || v == nil {
		return false
	}
	if m, isMap := v.(map[string]any); isMap && len(m) == 0 {
		return false
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return false
	}
	return dec.Decode(v) == nil
}

// sanitize replaces non-finite numbers with neutral values and fills the
// fields a partial section may have left empty.
func sanitize(r *domain.AnalysisResult) {
	sess := r.SessionAnalysis
	op := sess.OverallPerformance
	op.Score = finite(op.Score, 0)
	if op.Rating == "" {
		op.Rating = ratingFor(op.Score)
	}

	v := sess.VolumeAnalysis
	v.TotalVolume = finite(v.TotalVolume, 0)
	v.VolumeEfficiency = finite(v.VolumeEfficiency, 0)

	in := sess.IntensityAnalysis
	in.AvgRPE = positiveOr(in.AvgRPE, NeutralRPE)
	if in.RPEDistribution == nil {
		in.RPEDistribution = map[string]float64{}
	}
	for k, val := range in.RPEDistribution {
		in.RPEDistribution[k] = finite(val, 0)
	}

	t := sess.TechniqueAnalysis
	t.AvgTechniqueScore = positiveOr(t.AvgTechniqueScore, NeutralTechnique)
	t.ExercisesWithIssues = nonNil(t.ExercisesWithIssues)
	t.Recommendations = nonNil(t.Recommendations)

	for i := range r.ExerciseBreakdown {
		p := &r.ExerciseBreakdown[i].Performance
		p.VolumeScore = finite(p.VolumeScore, 0)
		p.RPEScore = finite(p.RPEScore, 0)
		p.TechniqueScore = finite(p.TechniqueScore, 0)
		r.ExerciseBreakdown[i].Insights = nonNil(r.ExerciseBreakdown[i].Insights)
		r.ExerciseBreakdown[i].NextSessionRecommendations = nonNil(r.ExerciseBreakdown[i].NextSessionRecommendations)
	}

	pi := r.PersonalizedInsights
	pi.Strengths = nonNil(pi.Strengths)
	pi.AreasToImprove = nonNil(pi.AreasToImprove)
	pi.KeyTakeaways = nonNil(pi.KeyTakeaways)
	r.ProgressionRecommendations.NextSession.FocusPoints = nonNil(r.ProgressionRecommendations.NextSession.FocusPoints)

	if w := r.WearableAnalysis; w != nil {
		w.EffortAccuracy.Score = finite(w.EffortAccuracy.Score, 0)
		w.EffortAccuracy.RPEVsHRCorrelation = finite(w.EffortAccuracy.RPEVsHRCorrelation, 0)
		w.RecoveryImpact.EstimatedRecoveryHours = finite(w.RecoveryImpact.EstimatedRecoveryHours, 0)
		w.RecoveryImpact.SuggestedNextSessionDelay = finite(w.RecoveryImpact.SuggestedNextSessionDelay, 0)
		if w.ZoneCompliance != nil {
			w.ZoneCompliance.OverallCompliance = finite(w.ZoneCompliance.OverallCompliance, 0)
		}
		w.Insights = nonNil(w.Insights)
		w.Recommendations = nonNil(w.Recommendations)
		w.RecoveryImpact.Warnings = nonNil(w.RecoveryImpact.Warnings)
	}
}
