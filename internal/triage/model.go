package triage

import "time"

// Level is the clinical severity tier of a triage outcome.
// Ordering: RED > YELLOW > GREEN.
type Level string

const (
	// LevelRed means emergency - immediate care required.
	LevelRed Level = "RED"

	// LevelYellow means timely care - evaluation within ~24 hours.
	LevelYellow Level = "YELLOW"

	// LevelGreen means home care with watch-outs.
	LevelGreen Level = "GREEN"
)

// Valid reports whether l is one of the three known tiers.
func (l Level) Valid() bool {
	return l == LevelRed || l == LevelYellow || l == LevelGreen
}

// Rank maps tiers to comparable severity, higher is more severe.
func (l Level) Rank() int {
	switch l {
	case LevelRed:
		return 3
	case LevelYellow:
		return 2
	case LevelGreen:
		return 1
	default:
		return 0
	}
}

// Uncertainty is the AI-reported confidence in its own assessment.
type Uncertainty string

const (
	UncertaintyLow    Uncertainty = "LOW"
	UncertaintyMedium Uncertainty = "MEDIUM"
	UncertaintyHigh   Uncertainty = "HIGH"
)

// Valid reports whether u is one of the known uncertainty levels.
func (u Uncertainty) Valid() bool {
	return u == UncertaintyLow || u == UncertaintyMedium || u == UncertaintyHigh
}

// Sex is the reported patient sex.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
	SexOther  Sex = "O"
)

// Valid reports whether s is one of the known values.
func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale || s == SexOther
}

// EncounterStatus tracks where an encounter is in its lifecycle.
type EncounterStatus string

const (
	// EncounterCreated means registered, triage not started.
	EncounterCreated EncounterStatus = "created"

	// EncounterInProgress means triage is running.
	EncounterInProgress EncounterStatus = "in_progress"

	// EncounterCompleted means a triage result exists.
	EncounterCompleted EncounterStatus = "completed"
)

// Vitals holds optional measurements reported with an encounter.
type Vitals struct {
	Temperature     float64 `json:"temperature,omitempty"`
	Pulse           int     `json:"pulse,omitempty"`
	BloodPressure   string  `json:"blood_pressure,omitempty"`
	RespiratoryRate int     `json:"respiratory_rate,omitempty"`
}

// Encounter is one patient interaction session: demographics, free-text
// symptoms, optional vitals, and the channel it arrived on. Immutable once
// triage begins except for status transitions performed through the Store.
type Encounter struct {
	ID        string          `json:"id"`
	Age       int             `json:"age"`
	Sex       Sex             `json:"sex"`
	Location  string          `json:"location,omitempty"`
	Symptoms  string          `json:"symptoms"`
	Vitals    *Vitals         `json:"vitals,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Status    EncounterStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Followup is one answered follow-up question. Order is significant for
// prompt construction but not for the decision logic.
type Followup struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// Assessment is the canonical, provider-independent triage assessment.
// Every field is required; adapters must fully normalize before returning one.
type Assessment struct {
	RiskTier             Level       `json:"risk_tier"`
	DangerSigns          []string    `json:"danger_signs"`
	Uncertainty          Uncertainty `json:"uncertainty"`
	RecommendedNextSteps []string    `json:"recommended_next_steps"`
	WatchOuts            []string    `json:"watch_outs"`
	ReferralRecommended  bool        `json:"referral_recommended"`
	Disclaimer           string      `json:"disclaimer"`
	Reasoning            string      `json:"reasoning,omitempty"`
}

// Validate checks the invariants the rest of the pipeline relies on.
// A violation is a provider error, not a partial result.
func (a *Assessment) Validate() error {
	if !a.RiskTier.Valid() {
		return &ValidationError{Field: "risk_tier", Reason: "must be RED, YELLOW, or GREEN"}
	}
	if !a.Uncertainty.Valid() {
		return &ValidationError{Field: "uncertainty", Reason: "must be LOW, MEDIUM, or HIGH"}
	}
	if len(a.RecommendedNextSteps) == 0 {
		return &ValidationError{Field: "recommended_next_steps", Reason: "must be a non-empty list"}
	}
	if a.Disclaimer == "" {
		return &ValidationError{Field: "disclaimer", Reason: "must be non-empty"}
	}
	return nil
}

// Result is the finalized, persisted outcome of one triage invocation.
// Created exactly once per invocation and never mutated; a re-triage
// produces a new Result.
type Result struct {
	ID          string `json:"id"`
	EncounterID string `json:"encounter_id"`

	Assessment

	// Provider names the backend that produced the assessment, or "rules"
	// for the fallback and override paths.
	Provider string `json:"provider"`

	// AILatencyMs is the wall-clock duration of the AI attempt. Zero when
	// the danger-sign override bypassed the AI call.
	AILatencyMs int64 `json:"ai_latency_ms"`

	// UsedFallback records that the rule engine stood in for the AI.
	UsedFallback bool `json:"used_fallback"`

	// DangerOverride records that a hard-coded danger sign forced RED.
	DangerOverride bool `json:"danger_override"`

	CreatedAt time.Time `json:"created_at"`
}
