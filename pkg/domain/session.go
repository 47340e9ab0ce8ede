package domain

import "time"

// GenerationHistoryItem records one captured plan for a session.
type GenerationHistoryItem struct {
	SessionID    string        `json:"sessionId"`
	Prescription *Prescription `json:"prescription"`
	GeneratedAt  time.Time     `json:"generatedAt"`
	CacheKey     string        `json:"cacheKey,omitempty"`
}

// PipelineSession is the mutable unit of work owned by a pipeline.
// Plan is never written to the persisted session-state record.
type PipelineSession struct {
	SessionID      string                  `json:"sessionId"`
	UserID         string                  `json:"userId"`
	CurrentStage   StageID                 `json:"currentStage"`
	Progress       int                     `json:"progress"`
	Inputs         *PreparerData           `json:"inputs,omitempty"`
	Plan           *Prescription           `json:"plan,omitempty"`
	Feedback       *SessionFeedback        `json:"feedback,omitempty"`
	Analysis       *AnalysisResult         `json:"analysis,omitempty"`
	History        []GenerationHistoryItem `json:"history,omitempty"`
	StartedAt      time.Time               `json:"startedAt"`
	LastActivityAt time.Time               `json:"lastActivityAt"`
	Abandoned      bool                    `json:"abandoned,omitempty"`
}

// NewSession creates a blank session at the first stage.
func NewSession(sessionID, userID string, now time.Time) *PipelineSession {
	first := FirstStage()
	return &PipelineSession{
		SessionID:      sessionID,
		UserID:         userID,
		CurrentStage:   first.ID,
		Progress:       first.ProgressStart,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Snapshot returns a deep copy safe to hand to readers.
// The analysis result is shared; it is never mutated after capture.
func (s *PipelineSession) Snapshot() *PipelineSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.Inputs != nil {
		in := *s.Inputs
		in.AvailableEquipment = append([]string(nil), s.Inputs.AvailableEquipment...)
		in.ShouldAvoid = append([]string(nil), s.Inputs.ShouldAvoid...)
		out.Inputs = &in
	}
	out.Plan = s.Plan.Clone()
	out.Feedback = s.Feedback.Clone()
	if s.History != nil {
		out.History = make([]GenerationHistoryItem, len(s.History))
		for i, h := range s.History {
			h.Prescription = h.Prescription.Clone()
			out.History[i] = h
		}
	}
	return &out
}

// GenerationLock is the in-process half of the generation coordination record.
type GenerationLock struct {
	HasTriggered bool      `json:"hasTriggered"`
	TriggeredAt  time.Time `json:"triggeredAt"`
	SessionID    string    `json:"sessionId"`
}

// Active reports whether the lock blocks sessionID at now.
func (l GenerationLock) Active(sessionID string, now time.Time, cooldown time.Duration) bool {
	return l.HasTriggered && l.SessionID == sessionID && now.Sub(l.TriggeredAt) < cooldown
}

// SessionStateRecord is the persisted, cross-reload mirror of a session.
type SessionStateRecord struct {
	SessionID             string     `json:"sessionId"`
	UserID                string     `json:"userId"`
	GenerationTriggered   bool       `json:"generationTriggered"`
	GenerationTriggeredAt *time.Time `json:"generationTriggeredAt,omitempty"`
	GenerationCompletedAt *time.Time `json:"generationCompletedAt,omitempty"`
	PrescriptionExists    bool       `json:"prescriptionExists"`
	CurrentStage          StageID    `json:"currentStage"`
	LastActivityAt        time.Time  `json:"lastActivityAt"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Reasons reported by generation checks.
const (
	ReasonAllowed          = ""
	ReasonPlanExists       = "Prescription already exists"
	ReasonNoSession        = "No session"
	ReasonLocalCooldown    = "Local cooldown active"
	ReasonCooldown         = "Cooldown period active"
	ReasonStoreUnavailable = "Store unavailable (fail open)"
)

// GenerationCheck is the outcome of a can-trigger evaluation.
type GenerationCheck struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateRecord applies the persisted blocking rules to rec.
// A nil record allows the trigger.
func EvaluateRecord(rec *SessionStateRecord, now time.Time, cooldown time.Duration) GenerationCheck {
	if rec == nil {
		return GenerationCheck{Allowed: true}
	}
	if rec.PrescriptionExists {
		return GenerationCheck{Reason: ReasonPlanExists}
	}
	if rec.GenerationTriggered && rec.GenerationCompletedAt == nil && rec.GenerationTriggeredAt != nil {
		if now.Sub(*rec.GenerationTriggeredAt) < cooldown {
			return GenerationCheck{Reason: ReasonCooldown}
		}
	}
	return GenerationCheck{Allowed: true}
}

// Draft is a saved stage-1 context with an expiry.
type Draft struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	Inputs       *PreparerData `json:"preparerContext"`
	Prescription *Prescription `json:"prescription,omitempty"`
	CustomName   string        `json:"customName,omitempty"`
	SavedAt      time.Time     `json:"savedAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`

	// Sealed holds the encrypted inputs and prescription when the draft
	// store encrypts at rest. Inputs and Prescription are nil then.
	Sealed string `json:"sealed,omitempty"`
}

// Expired reports whether the draft is no longer usable at now.
func (d *Draft) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// AbandonedSession is the snapshot persisted when a user force-exits with
// "save for later".
type AbandonedSession struct {
	SessionID      string           `json:"sessionId"`
	UserID         string           `json:"userId"`
	Status         string           `json:"status"`
	Type           string           `json:"type"`
	Prescription   *Prescription    `json:"prescription"`
	Context        *PreparerData    `json:"context,omitempty"`
	DurationTarget int              `json:"durationTarget"`
	Equipment      []string         `json:"equipment,omitempty"`
	Venue          string           `json:"venue,omitempty"`
	AbandonedAt    StageID          `json:"abandonedAtStage"`
	Feedback       *SessionFeedback `json:"feedback,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}
