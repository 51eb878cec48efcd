package triage

import (
	"regexp"
	"strings"
)

// Sign identifies one of the fixed critical-symptom signatures. Any match
// forces a RED tier regardless of every other input.
type Sign string

const (
	SignUnconscious         Sign = "unconscious"
	SignSeizure             Sign = "seizure"
	SignBreathingDifficulty Sign = "breathing_difficulty"
	SignHeavyBleeding       Sign = "heavy_bleeding"
	SignSevereChestPain     Sign = "severe_chest_pain"
	SignSevereAbdominalPain Sign = "severe_abdominal_pain"
	SignPregnancyDanger     Sign = "pregnancy_danger"
)

// signPatterns is the fixed detection table. Slice order determines the
// order of reported signs, so keep it stable.
var signPatterns = []struct {
	sign Sign
	re   *regexp.Regexp
}{
	{SignUnconscious, regexp.MustCompile(`(?i)unconscious|unresponsive|passed out|won'?t wake|not waking`)},
	{SignSeizure, regexp.MustCompile(`(?i)seizure|convulsion|\bfitting\b|having fits\b`)},
	{SignBreathingDifficulty, regexp.MustCompile(`(?i)can(no|')?t breathe|unable to breathe|difficulty breathing|trouble breathing|struggling to breathe|shortness of breath|gasping|stopped breathing|not breathing`)},
	{SignHeavyBleeding, regexp.MustCompile(`(?i)heavy bleeding|bleeding (heavily|a lot)|severe bleeding|won'?t stop bleeding|blood loss`)},
	{SignSevereChestPain, regexp.MustCompile(`(?i)severe chest pain|crushing (pain|pressure|tightness) in (the |my )?chest|chest pain (spreading|radiating)`)},
	{SignSevereAbdominalPain, regexp.MustCompile(`(?i)severe (abdominal|stomach|belly|tummy) pain|rigid (abdomen|belly)`)},
	{SignPregnancyDanger, regexp.MustCompile(`(?i)pregnan(t|cy)[^.]*(bleed|severe pain|seizure|convulsion|severe headache|blurred vision)|(bleed|severe pain)[^.]*pregnan(t|cy)`)},
}

// DetectDangerSigns matches text against the fixed signature table and
// returns every matching sign in table order. Pure: no side effects, empty
// input yields an empty result.
func DetectDangerSigns(text string) []Sign {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var signs []Sign
	for _, p := range signPatterns {
		if p.re.MatchString(text) {
			signs = append(signs, p.sign)
		}
	}
	return signs
}

// HasDangerSign reports whether text matches at least one signature.
func HasDangerSign(text string) bool {
	return len(DetectDangerSigns(text)) > 0
}

func signStrings(signs []Sign) []string {
	out := make([]string, len(signs))
	for i, s := range signs {
		out[i] = string(s)
	}
	return out
}
