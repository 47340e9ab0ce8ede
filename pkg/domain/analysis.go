package domain

import "time"

// Performance ratings.
const (
	RatingExcellent        = "excellent"
	RatingGood             = "good"
	RatingAverage          = "average"
	RatingNeedsImprovement = "needs-improvement"
)

// OverallPerformance summarizes the session.
type OverallPerformance struct {
	Score   float64 `json:"score"`
	Rating  string  `json:"rating"`
	Summary string  `json:"summary"`
}

// VolumeAnalysis reports the load lifted.
type VolumeAnalysis struct {
	TotalVolume      float64 `json:"totalVolume"`
	VolumeEfficiency float64 `json:"volumeEfficiency"`
	ComparedToTarget string  `json:"comparedToTarget"`
}

// IntensityAnalysis reports perceived exertion.
type IntensityAnalysis struct {
	AvgRPE          float64            `json:"avgRPE"`
	RPEDistribution map[string]float64 `json:"rpeDistribution"`
	IntensityZones  string             `json:"intensityZones"`
}

// TechniqueAnalysis reports execution quality.
type TechniqueAnalysis struct {
	AvgTechniqueScore   float64  `json:"avgTechniqueScore"`
	ExercisesWithIssues []string `json:"exercisesWithIssues"`
	Recommendations     []string `json:"recommendations"`
}

// SessionAnalysis groups the four session-level sections.
type SessionAnalysis struct {
	OverallPerformance *OverallPerformance `json:"overallPerformance"`
	VolumeAnalysis     *VolumeAnalysis     `json:"volumeAnalysis"`
	IntensityAnalysis  *IntensityAnalysis  `json:"intensityAnalysis"`
	TechniqueAnalysis  *TechniqueAnalysis  `json:"techniqueAnalysis"`
}

// ExercisePerformance scores one exercise on a 0-100 scale.
type ExercisePerformance struct {
	Completed      bool    `json:"completed"`
	VolumeScore    float64 `json:"volumeScore"`
	RPEScore       float64 `json:"rpeScore"`
	TechniqueScore float64 `json:"techniqueScore"`
}

// ExerciseBreakdown is the per-item analysis.
type ExerciseBreakdown struct {
	ExerciseID                 string              `json:"exerciseId"`
	ExerciseName               string              `json:"exerciseName"`
	Performance                ExercisePerformance `json:"performance"`
	Insights                   []string            `json:"insights"`
	NextSessionRecommendations []string            `json:"nextSessionRecommendations"`
}

// PersonalizedInsights are the user-facing takeaways.
type PersonalizedInsights struct {
	Strengths           []string `json:"strengths"`
	AreasToImprove      []string `json:"areasToImprove"`
	KeyTakeaways        []string `json:"keyTakeaways"`
	MotivationalMessage string   `json:"motivationalMessage"`
}

// NextSessionAdvice adjusts the following session.
type NextSessionAdvice struct {
	VolumeAdjustment    string   `json:"volumeAdjustment"`
	IntensityAdjustment string   `json:"intensityAdjustment"`
	FocusPoints         []string `json:"focusPoints"`
}

// LongTermAdvice relates the session to long-term goals.
type LongTermAdvice struct {
	GoalAlignment     string `json:"goalAlignment"`
	MilestoneProgress string `json:"milestoneProgress"`
	StrategicAdvice   string `json:"strategicAdvice"`
}

// ProgressionRecommendations are the forward-looking recommendations.
type ProgressionRecommendations struct {
	NextSession NextSessionAdvice `json:"nextSession"`
	LongTerm    LongTermAdvice    `json:"longTerm"`
}

// Achievement is a badge derived from the session.
type Achievement struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Earned      bool   `json:"earned"`
}

// EffortAccuracy compares perceived effort with heart-rate data.
type EffortAccuracy struct {
	Score              float64 `json:"score"`
	Rating             string  `json:"rating"`
	Analysis           string  `json:"analysis"`
	RPEVsHRCorrelation float64 `json:"rpeVsHrCorrelation"`
}

// ZoneCompliance measures time spent in the target zones.
type ZoneCompliance struct {
	OverallCompliance  float64   `json:"overallCompliance"`
	TargetZones        []string  `json:"targetZones"`
	ActualDistribution ZoneTimes `json:"actualDistribution"`
	Recommendation     string    `json:"recommendation"`
}

// RecoveryImpact estimates the recovery cost of the session.
type RecoveryImpact struct {
	EstimatedRecoveryHours    float64  `json:"estimatedRecoveryHours"`
	IntensityLevel            string   `json:"intensityLevel"`
	SuggestedNextSessionDelay float64  `json:"suggestedNextSessionDelay"`
	Warnings                  []string `json:"warnings"`
}

// WearableAnalysis is present only when heart-rate data was recorded.
type WearableAnalysis struct {
	EffortAccuracy  EffortAccuracy  `json:"effortAccuracy"`
	ZoneCompliance  *ZoneCompliance `json:"zoneCompliance,omitempty"`
	RecoveryImpact  RecoveryImpact  `json:"recoveryImpact"`
	Insights        []string        `json:"insights"`
	Recommendations []string        `json:"recommendations"`
}

// AnalysisResult is the structurally complete output of stage 4.
type AnalysisResult struct {
	SessionAnalysis            *SessionAnalysis            `json:"sessionAnalysis"`
	ExerciseBreakdown          []ExerciseBreakdown         `json:"exerciseBreakdown"`
	PersonalizedInsights       *PersonalizedInsights       `json:"personalizedInsights"`
	ProgressionRecommendations *ProgressionRecommendations `json:"progressionRecommendations"`
	Achievements               []Achievement               `json:"achievements"`
	CoachRationale             string                      `json:"coachRationale"`
	WearableAnalysis           *WearableAnalysis           `json:"wearableAnalysis,omitempty"`
}

// AnalysisMetadata is reported by the remote analysis service.
type AnalysisMetadata struct {
	AgentType  string  `json:"agentType,omitempty"`
	ModelUsed  string  `json:"modelUsed,omitempty"`
	TokensUsed int     `json:"tokensUsed,omitempty"`
	CostUSD    float64 `json:"costUsd,omitempty"`
	LatencyMs  int64   `json:"latencyMs"`
	Cached     bool    `json:"cached"`
}

// AnalysisRecord is the persisted form of a completed analysis.
type AnalysisRecord struct {
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId"`
	Result    *AnalysisResult  `json:"result"`
	Metadata  AnalysisMetadata `json:"metadata"`
	Fallbacks []string         `json:"fallbacks,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
