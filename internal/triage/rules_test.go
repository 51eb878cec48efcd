package triage

import (
	"strings"
	"testing"
)

func containsAny(items []string, substrs ...string) bool {
	for _, item := range items {
		lower := strings.ToLower(item)
		for _, sub := range substrs {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

func TestRuleEngine_Assess_Red(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine()
	for _, symptoms := range []string{
		"sudden chest pain while resting",
		"my father cannot breathe",
		"found her unconscious on the floor",
	} {
		a := r.Assess(symptoms)
		if a.RiskTier != LevelRed {
			t.Errorf("Assess(%q) tier = %q, want RED", symptoms, a.RiskTier)
		}
		if !a.ReferralRecommended {
			t.Errorf("Assess(%q) referral = false, want true", symptoms)
		}
		if !containsAny(a.RecommendedNextSteps, "emergency", "immediately", "hospital") {
			t.Errorf("Assess(%q) steps lack emergency language: %v", symptoms, a.RecommendedNextSteps)
		}
		if err := a.Validate(); err != nil {
			t.Errorf("Assess(%q) invalid: %v", symptoms, err)
		}
	}
}

func TestRuleEngine_Assess_Yellow(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine()
	for _, symptoms := range []string{
		"fever for two days",
		"vomiting since last night",
		"throbbing headache and dizziness",
	} {
		a := r.Assess(symptoms)
		if a.RiskTier != LevelYellow {
			t.Errorf("Assess(%q) tier = %q, want YELLOW", symptoms, a.RiskTier)
		}
		if !a.ReferralRecommended {
			t.Errorf("Assess(%q) referral = false, want true", symptoms)
		}
		if !containsAny(a.RecommendedNextSteps, "24 hours") {
			t.Errorf("Assess(%q) steps lack 24-hour language: %v", symptoms, a.RecommendedNextSteps)
		}
	}
}

func TestRuleEngine_Assess_Green(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine()
	a := r.Assess("runny nose and sneezing")

	if a.RiskTier != LevelGreen {
		t.Errorf("tier = %q, want GREEN", a.RiskTier)
	}
	if a.ReferralRecommended {
		t.Error("referral = true, want false")
	}
	if !containsAny(a.RecommendedNextSteps, "home", "rest") {
		t.Errorf("steps lack home-care language: %v", a.RecommendedNextSteps)
	}
	if len(a.WatchOuts) == 0 {
		t.Error("GREEN assessment must carry watch-outs")
	}
}

func TestRuleEngine_Assess_AllFieldsPopulated(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine()
	for _, symptoms := range []string{"chest pain", "fever", "sniffles", ""} {
		a := r.Assess(symptoms)
		if err := a.Validate(); err != nil {
			t.Errorf("Assess(%q) invalid: %v", symptoms, err)
		}
		if len(a.Disclaimer) <= 10 {
			t.Errorf("Assess(%q) disclaimer too short: %q", symptoms, a.Disclaimer)
		}
		if a.DangerSigns == nil || a.WatchOuts == nil {
			t.Errorf("Assess(%q) has nil slices", symptoms)
		}
	}
}

func TestRuleEngine_FollowupQuestions_Bounds(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine()
	for _, symptoms := range []string{
		"",
		"fever",
		"fever and pain while breathing with vomiting and blood in stool",
	} {
		qs := r.FollowupQuestions(symptoms)
		if len(qs) < 3 || len(qs) > 5 {
			t.Errorf("FollowupQuestions(%q) returned %d questions, want 3..5", symptoms, len(qs))
		}
	}
}

func TestRuleEngine_FollowupQuestions_SymptomSpecific(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine()
	qs := r.FollowupQuestions("high fever since Monday")

	if !containsAny(qs, "fever") {
		t.Errorf("expected a fever-specific question, got %v", qs)
	}
}
