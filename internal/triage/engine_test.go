package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockProvider returns a preconfigured assessment or error.
type mockProvider struct {
	mu         sync.Mutex
	assessment *Assessment
	err        error
	calls      int
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) GenerateAssessment(_ context.Context, _ *AssessmentRequest) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.assessment
	return &cp, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func validGreen() *Assessment {
	return &Assessment{
		RiskTier:             LevelGreen,
		DangerSigns:          []string{},
		Uncertainty:          UncertaintyLow,
		RecommendedNextSteps: []string{"Home care: rest and fluids"},
		WatchOuts:            []string{"High fever"},
		ReferralRecommended:  false,
		Disclaimer:           "Automated triage suggestion; please confirm with a clinician.",
	}
}

func testEncounter(symptoms string) *Encounter {
	return &Encounter{
		ID:       "enc-1",
		Age:      34,
		Sex:      SexFemale,
		Symptoms: symptoms,
		Status:   EncounterCreated,
	}
}

func newTestEngine(p Provider, hooks EngineHooks) *Engine {
	return NewEngine(p, NewRuleEngine(), zerolog.Nop(), hooks, time.Second)
}

func TestRun_DangerOverrideBeatsAI(t *testing.T) {
	t.Parallel()

	// AI would say GREEN with LOW uncertainty; the override must win and the
	// AI must not even be called.
	p := &mockProvider{assessment: validGreen()}
	e := newTestEngine(p, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("Patient is unconscious"), nil, "")

	if res.RiskTier != LevelRed {
		t.Errorf("tier = %q, want RED", res.RiskTier)
	}
	if !res.DangerOverride {
		t.Error("DangerOverride = false, want true")
	}
	if res.UsedFallback {
		t.Error("UsedFallback = true, want false on override path")
	}
	if res.AILatencyMs != 0 {
		t.Errorf("AILatencyMs = %d, want 0 when override bypasses the AI", res.AILatencyMs)
	}
	if p.callCount() != 0 {
		t.Errorf("provider called %d times, want 0", p.callCount())
	}
	if len(res.DangerSigns) == 0 {
		t.Error("expected detected danger signs on the result")
	}
	if len(res.Disclaimer) <= 10 {
		t.Errorf("disclaimer too short: %q", res.Disclaimer)
	}
}

func TestRun_DangerSignInFollowupResponse(t *testing.T) {
	t.Parallel()

	e := newTestEngine(&mockProvider{assessment: validGreen()}, EngineHooks{})

	followups := []Followup{
		{Question: "Any other symptoms?", Response: "she had a seizure this morning"},
	}
	res := e.Run(context.Background(), testEncounter("feeling tired"), followups, "")

	if res.RiskTier != LevelRed {
		t.Errorf("tier = %q, want RED from follow-up text", res.RiskTier)
	}
}

func TestRun_MultipleDangerSigns(t *testing.T) {
	t.Parallel()

	var seen []Sign
	hooks := EngineHooks{OnDangerSign: func(s Sign) { seen = append(seen, s) }}
	e := newTestEngine(nil, hooks)

	res := e.Run(context.Background(), testEncounter("unconscious after heavy bleeding"), nil, "")

	if res.RiskTier != LevelRed {
		t.Errorf("tier = %q, want RED", res.RiskTier)
	}
	if len(res.DangerSigns) != 2 {
		t.Errorf("DangerSigns = %v, want 2 entries", res.DangerSigns)
	}
	if len(seen) != 2 {
		t.Errorf("OnDangerSign fired %d times, want 2", len(seen))
	}
}

func TestRun_AISuccess(t *testing.T) {
	t.Parallel()

	p := &mockProvider{assessment: validGreen()}
	e := newTestEngine(p, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if res.RiskTier != LevelGreen {
		t.Errorf("tier = %q, want GREEN", res.RiskTier)
	}
	if res.UsedFallback {
		t.Error("UsedFallback = true, want false")
	}
	if res.Provider != "mock" {
		t.Errorf("Provider = %q, want mock", res.Provider)
	}
	if p.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", p.callCount())
	}
}

func TestRun_FallbackOnProviderError(t *testing.T) {
	t.Parallel()

	var errKind string
	hooks := EngineHooks{OnProviderError: func(kind string) { errKind = kind }}
	p := &mockProvider{err: errors.New("connection refused")}
	e := newTestEngine(p, hooks)

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if !res.UsedFallback {
		t.Error("UsedFallback = false, want true")
	}
	if !res.RiskTier.Valid() {
		t.Errorf("tier = %q, want a valid tier from the rule engine", res.RiskTier)
	}
	if len(res.Disclaimer) <= 10 {
		t.Errorf("disclaimer too short after fallback: %q", res.Disclaimer)
	}
	if errKind != ErrKindTransport {
		t.Errorf("error kind = %q, want %q", errKind, ErrKindTransport)
	}
}

func TestRun_FallbackOnTimeout(t *testing.T) {
	t.Parallel()

	var errKind string
	hooks := EngineHooks{OnProviderError: func(kind string) { errKind = kind }}
	p := &mockProvider{err: ErrProviderTimeout}
	e := newTestEngine(p, hooks)

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if !res.UsedFallback {
		t.Error("UsedFallback = false, want true")
	}
	if errKind != ErrKindTimeout {
		t.Errorf("error kind = %q, want %q", errKind, ErrKindTimeout)
	}
}

func TestRun_FallbackOnInvalidAssessment(t *testing.T) {
	t.Parallel()

	var errKind string
	hooks := EngineHooks{OnProviderError: func(kind string) { errKind = kind }}

	// Provider returns an assessment with a bad tier; the engine must treat
	// it as a provider error, not pass it through.
	bad := validGreen()
	bad.RiskTier = Level("PURPLE")
	p := &mockProvider{assessment: bad}
	e := newTestEngine(p, hooks)

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if !res.UsedFallback {
		t.Error("UsedFallback = false, want true")
	}
	if !res.RiskTier.Valid() {
		t.Errorf("tier = %q leaked from invalid provider output", res.RiskTier)
	}
	if errKind != ErrKindValidation {
		t.Errorf("error kind = %q, want %q", errKind, ErrKindValidation)
	}
}

func TestRun_UncertaintyEscalation(t *testing.T) {
	t.Parallel()

	escalated := false
	hooks := EngineHooks{OnEscalation: func() { escalated = true }}

	a := validGreen()
	a.Uncertainty = UncertaintyHigh
	e := newTestEngine(&mockProvider{assessment: a}, hooks)

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if res.RiskTier != LevelYellow {
		t.Errorf("tier = %q, want YELLOW after escalation", res.RiskTier)
	}
	if !escalated {
		t.Error("OnEscalation not fired")
	}
}

func TestRun_NoEscalationWhenConfident(t *testing.T) {
	t.Parallel()

	e := newTestEngine(&mockProvider{assessment: validGreen()}, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if res.RiskTier != LevelGreen {
		t.Errorf("tier = %q, want GREEN unchanged", res.RiskTier)
	}
}

func TestRun_NoDowngradeForHighUncertaintyYellow(t *testing.T) {
	t.Parallel()

	a := validGreen()
	a.RiskTier = LevelYellow
	a.ReferralRecommended = true
	a.Uncertainty = UncertaintyHigh
	e := newTestEngine(&mockProvider{assessment: a}, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if res.RiskTier != LevelYellow {
		t.Errorf("tier = %q, want YELLOW (escalation is monotonic)", res.RiskTier)
	}
}

func TestRun_DisclaimerSubstitution(t *testing.T) {
	t.Parallel()

	a := validGreen()
	a.Disclaimer = "   "
	e := newTestEngine(&mockProvider{assessment: a}, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if res.Disclaimer != DefaultDisclaimer {
		t.Errorf("disclaimer = %q, want the default substituted", res.Disclaimer)
	}
}

func TestRun_InconsistencyReportedNotCorrected(t *testing.T) {
	t.Parallel()

	flagged := false
	hooks := EngineHooks{OnInconsistency: func() { flagged = true }}

	a := validGreen()
	a.RiskTier = LevelYellow
	a.ReferralRecommended = false
	e := newTestEngine(&mockProvider{assessment: a}, hooks)

	res := e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if !flagged {
		t.Error("OnInconsistency not fired")
	}
	if res.ReferralRecommended {
		t.Error("referral was auto-corrected; provider judgment must be preserved")
	}
}

func TestRun_NilProviderUsesRules(t *testing.T) {
	t.Parallel()

	e := newTestEngine(nil, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("fever for two days"), nil, "")

	if !res.UsedFallback {
		t.Error("UsedFallback = false, want true with no provider")
	}
	if res.RiskTier != LevelYellow {
		t.Errorf("tier = %q, want YELLOW from rules", res.RiskTier)
	}
}

func TestRun_OverrideBeatsEscalationPolicy(t *testing.T) {
	t.Parallel()

	// Even a GREEN/HIGH provider opinion is irrelevant once a danger sign is
	// present: the result is RED, not YELLOW.
	a := validGreen()
	a.Uncertainty = UncertaintyHigh
	e := newTestEngine(&mockProvider{assessment: a}, EngineHooks{})

	res := e.Run(context.Background(), testEncounter("severe chest pain"), nil, "")

	if res.RiskTier != LevelRed {
		t.Errorf("tier = %q, want RED", res.RiskTier)
	}
}

func TestRun_CompleteHookObservesPath(t *testing.T) {
	t.Parallel()

	var gotTier Level
	var gotPath string
	hooks := EngineHooks{OnComplete: func(tier Level, path string, _ int64) {
		gotTier = tier
		gotPath = path
	}}
	e := newTestEngine(&mockProvider{err: errors.New("down")}, hooks)

	e.Run(context.Background(), testEncounter("mild headache"), nil, "")

	if gotPath != PathFallback {
		t.Errorf("path = %q, want %q", gotPath, PathFallback)
	}
	if !gotTier.Valid() {
		t.Errorf("tier = %q, want valid", gotTier)
	}
}
