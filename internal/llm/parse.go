package llm

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/okapihealth/okapi/internal/triage"
)

// ParseAssessment turns raw model output into a validated Assessment.
// Models wrap JSON in code fences or prose more often than not, and switch
// between camelCase and snake_case keys depending on the backend, so the
// extraction is deliberately tolerant. The validation is not: any missing or
// mistyped field is a *triage.ValidationError.
func ParseAssessment(raw string) (*triage.Assessment, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, &triage.ValidationError{Field: "response", Reason: "no JSON object found"}
	}
	if !gjson.Valid(body) {
		return nil, &triage.ValidationError{Field: "response", Reason: "malformed JSON"}
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return nil, &triage.ValidationError{Field: "response", Reason: "top level must be an object"}
	}

	a := &triage.Assessment{}

	tier := pick(doc, "risk_tier", "riskTier")
	if !tier.Exists() {
		return nil, &triage.ValidationError{Field: "risk_tier", Reason: "missing"}
	}
	a.RiskTier = triage.Level(strings.ToUpper(strings.TrimSpace(tier.String())))

	uncertainty := pick(doc, "uncertainty")
	if !uncertainty.Exists() {
		return nil, &triage.ValidationError{Field: "uncertainty", Reason: "missing"}
	}
	a.Uncertainty = triage.Uncertainty(strings.ToUpper(strings.TrimSpace(uncertainty.String())))

	var err error
	if a.DangerSigns, err = stringList(doc, "danger_signs", "dangerSigns"); err != nil {
		return nil, err
	}
	if a.RecommendedNextSteps, err = stringList(doc, "recommended_next_steps", "recommendedNextSteps"); err != nil {
		return nil, err
	}
	if a.WatchOuts, err = stringList(doc, "watch_outs", "watchOuts"); err != nil {
		return nil, err
	}

	referral := pick(doc, "referral_recommended", "referralRecommended")
	if !referral.Exists() {
		return nil, &triage.ValidationError{Field: "referral_recommended", Reason: "missing"}
	}
	if !referral.IsBool() {
		return nil, &triage.ValidationError{Field: "referral_recommended", Reason: "must be a boolean"}
	}
	a.ReferralRecommended = referral.Bool()

	a.Disclaimer = strings.TrimSpace(pick(doc, "disclaimer").String())
	a.Reasoning = strings.TrimSpace(pick(doc, "reasoning").String())

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the outermost JSON object.
func extractJSON(raw string) string {
	s := raw
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// pick returns the first existing key among the given spellings.
func pick(doc gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := doc.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func stringList(doc gjson.Result, keys ...string) ([]string, error) {
	r := pick(doc, keys...)
	if !r.Exists() {
		// A model that drops a list entirely is not the same as one that
		// returns an empty list. The former signals an off-script response,
		// so treat it as a provider error and let the fallback take over.
		return nil, &triage.ValidationError{Field: keys[0], Reason: "missing"}
	}
	if !r.IsArray() {
		return nil, &triage.ValidationError{Field: keys[0], Reason: "must be an array of strings"}
	}
	out := []string{}
	for _, el := range r.Array() {
		if el.Type != gjson.String {
			return nil, &triage.ValidationError{Field: keys[0], Reason: "must contain only strings"}
		}
		s := strings.TrimSpace(el.String())
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
