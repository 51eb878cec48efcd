package triage

import "strings"

// DefaultDisclaimer is attached to any result whose provider output lacked one.
const DefaultDisclaimer = "This is an automated triage recommendation, not a medical diagnosis. " +
	"Please have the outcome confirmed by a qualified healthcare professional before acting on it."

// redPhrases map to an immediate RED classification in the fallback path.
var redPhrases = []string{
	"cannot breathe",
	"can't breathe",
	"not breathing",
	"chest pain",
	"unconscious",
	"unresponsive",
	"seizure",
	"convulsion",
	"heavy bleeding",
	"severe bleeding",
	"collapsed",
	"blue lips",
	"stroke",
}

// yellowKeywords map to YELLOW when no red phrase matched.
var yellowKeywords = []string{
	"fever",
	"vomiting",
	"vomit",
	"pain",
	"diarrhea",
	"diarrhoea",
	"headache",
	"dizzy",
	"dizziness",
	"rash",
	"swelling",
	"dehydrated",
	"weak",
	"cough",
}

// RuleEngine is the deterministic keyword fallback used whenever the AI path
// is unavailable or returns invalid output. Every assessment it produces has
// all fields populated so downstream code never needs a nil check.
type RuleEngine struct{}

// NewRuleEngine creates the fallback engine.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

// Assess classifies free-text symptoms by keyword.
func (r *RuleEngine) Assess(symptoms string) *Assessment {
	text := strings.ToLower(symptoms)

	for _, phrase := range redPhrases {
		if strings.Contains(text, phrase) {
			a := redAssessment()
			a.Reasoning = "High-risk phrase matched: " + phrase
			return a
		}
	}

	var matched []string
	for _, kw := range yellowKeywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) > 0 {
		a := yellowAssessment()
		a.Reasoning = "Moderate-risk keywords matched: " + strings.Join(matched, ", ")
		return a
	}

	a := greenAssessment()
	a.Reasoning = "No high- or moderate-risk keywords matched"
	return a
}

// FollowupQuestions generates 3 to 5 clarifying questions for the reported
// symptoms, specific ones first, padded with generic intake questions.
func (r *RuleEngine) FollowupQuestions(symptoms string) []string {
	text := strings.ToLower(symptoms)

	var qs []string
	if strings.Contains(text, "fever") || strings.Contains(text, "hot") {
		qs = append(qs, "How long have you had the fever, and have you measured your temperature?")
	}
	if strings.Contains(text, "pain") || strings.Contains(text, "ache") {
		qs = append(qs, "Where exactly is the pain, and how severe is it on a scale of 1 to 10?")
	}
	if strings.Contains(text, "breath") || strings.Contains(text, "cough") {
		qs = append(qs, "Are you able to speak full sentences without pausing for breath?")
	}
	if strings.Contains(text, "vomit") || strings.Contains(text, "diarr") {
		qs = append(qs, "How many times have you vomited or passed loose stool in the last 24 hours?")
	}
	if strings.Contains(text, "bleed") || strings.Contains(text, "blood") {
		qs = append(qs, "Where is the bleeding coming from, and has it slowed or stopped?")
	}

	generic := []string{
		"When did the symptoms start?",
		"Have the symptoms been getting better or worse since they started?",
		"Do you have any long-term medical conditions or take regular medication?",
	}
	for _, q := range generic {
		if len(qs) >= 5 {
			break
		}
		qs = append(qs, q)
	}
	if len(qs) > 5 {
		qs = qs[:5]
	}
	return qs
}

func redAssessment() *Assessment {
	return &Assessment{
		RiskTier:    LevelRed,
		DangerSigns: []string{},
		Uncertainty: UncertaintyLow,
		RecommendedNextSteps: []string{
			"Call emergency services or go to the nearest hospital emergency department immediately",
			"Do not leave the patient alone while waiting for help",
			"Bring a list of current medications and known conditions if possible",
		},
		WatchOuts: []string{
			"Loss of consciousness",
			"Worsening breathing",
		},
		ReferralRecommended: true,
		Disclaimer:          DefaultDisclaimer,
	}
}

func yellowAssessment() *Assessment {
	return &Assessment{
		RiskTier:    LevelYellow,
		DangerSigns: []string{},
		Uncertainty: UncertaintyMedium,
		RecommendedNextSteps: []string{
			"See a healthcare provider for evaluation within the next 24 hours",
			"Rest, drink fluids, and avoid strenuous activity until seen",
			"Return immediately if symptoms suddenly worsen",
		},
		WatchOuts: []string{
			"High or rising fever",
			"Symptoms spreading or intensifying",
			"Inability to keep fluids down",
		},
		ReferralRecommended: true,
		Disclaimer:          DefaultDisclaimer,
	}
}

func greenAssessment() *Assessment {
	return &Assessment{
		RiskTier:    LevelGreen,
		DangerSigns: []string{},
		Uncertainty: UncertaintyMedium,
		RecommendedNextSteps: []string{
			"Home care: rest, fluids, and over-the-counter symptom relief as appropriate",
			"Monitor symptoms over the next 48 hours",
			"Seek care if new or worsening symptoms appear",
		},
		WatchOuts: []string{
			"Fever above 39C",
			"Difficulty breathing",
			"Symptoms lasting more than 3 days",
		},
		ReferralRecommended: false,
		Disclaimer:          DefaultDisclaimer,
	}
}
