package triage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAITimeout bounds one AI assessment attempt.
const DefaultAITimeout = 30 * time.Second

// Decision paths, used for logging and metrics labels.
const (
	PathAI       = "ai"
	PathFallback = "fallback"
	PathOverride = "override"
)

// Provider error kinds, used as metrics labels.
const (
	ErrKindTimeout    = "timeout"
	ErrKindValidation = "validation"
	ErrKindTransport  = "transport"
)

// EngineHooks are optional callbacks for instrumentation. Nil fields are skipped.
type EngineHooks struct {
	OnComplete      func(tier Level, path string, latencyMs int64)
	OnProviderError func(kind string)
	OnDangerSign    func(sign Sign)
	OnEscalation    func()
	OnInconsistency func()
}

// Engine is the triage decision pipeline: danger-sign override, bounded AI
// attempt, rule-engine fallback, uncertainty escalation, disclaimer guarantee.
type Engine struct {
	provider  Provider
	rules     *RuleEngine
	logger    zerolog.Logger
	hooks     EngineHooks
	aiTimeout time.Duration
}

// NewEngine creates a triage engine. provider may be nil, in which case every
// run takes the fallback path.
func NewEngine(provider Provider, rules *RuleEngine, logger zerolog.Logger, hooks EngineHooks, aiTimeout time.Duration) *Engine {
	if rules == nil {
		rules = NewRuleEngine()
	}
	if aiTimeout <= 0 {
		aiTimeout = DefaultAITimeout
	}
	return &Engine{
		provider:  provider,
		rules:     rules,
		logger:    logger,
		hooks:     hooks,
		aiTimeout: aiTimeout,
	}
}

// Run executes the full decision pipeline for one encounter and returns a
// finalized Result (without ID - the service assigns identity and persists).
func (e *Engine) Run(ctx context.Context, enc *Encounter, followups []Followup, protocols string) *Result {
	L := e.logger.With().Str("encounter_id", enc.ID).Logger()

	text := evaluationText(enc.Symptoms, followups)

	// Danger-sign override is absolute: it wins over every other policy and
	// bypasses the AI call entirely.
	if signs := DetectDangerSigns(text); len(signs) > 0 {
		for _, s := range signs {
			if e.hooks.OnDangerSign != nil {
				e.hooks.OnDangerSign(s)
			}
		}
		a := redAssessment()
		a.DangerSigns = signStrings(signs)
		a.Reasoning = "Danger sign detected; automatic emergency classification"

		L.Warn().Strs("danger_signs", a.DangerSigns).Msg("danger sign override, forcing RED")
		return e.finalize(L, enc, a, "rules", PathOverride, 0)
	}

	assessment, latencyMs, path, providerName := e.aiAttempt(ctx, L, enc, followups, protocols)

	// Uncertainty escalation: a low-confidence GREEN is always worth a look.
	// Monotonic - severity is never downgraded.
	if assessment.RiskTier == LevelGreen && assessment.Uncertainty == UncertaintyHigh {
		assessment.RiskTier = LevelYellow
		if e.hooks.OnEscalation != nil {
			e.hooks.OnEscalation()
		}
		L.Info().Msg("uncertainty escalation: GREEN with HIGH uncertainty upgraded to YELLOW")
	}

	return e.finalize(L, enc, assessment, providerName, path, latencyMs)
}

// aiAttempt runs the provider with a bounded timeout and falls back to the
// rule engine on any failure (timeout, transport, validation).
func (e *Engine) aiAttempt(ctx context.Context, L zerolog.Logger, enc *Encounter, followups []Followup, protocols string) (*Assessment, int64, string, string) {
	if e.provider == nil {
		L.Info().Msg("no AI provider configured, using rule engine")
		return e.rules.Assess(enc.Symptoms), 0, PathFallback, "rules"
	}

	actx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()

	start := time.Now()
	assessment, err := e.provider.GenerateAssessment(actx, &AssessmentRequest{
		Encounter: enc,
		Followups: followups,
		Protocols: protocols,
	})
	latencyMs := time.Since(start).Milliseconds()

	if err == nil {
		if verr := assessment.Validate(); verr != nil {
			err = verr
		}
	}
	if err != nil {
		kind := classifyProviderError(err)
		if e.hooks.OnProviderError != nil {
			e.hooks.OnProviderError(kind)
		}
		L.Warn().Err(err).
			Str("provider", e.provider.Name()).
			Str("error_kind", kind).
			Int64("latency_ms", latencyMs).
			Msg("AI assessment failed, falling back to rule engine")
		return e.rules.Assess(enc.Symptoms), latencyMs, PathFallback, "rules"
	}

	return assessment, latencyMs, PathAI, e.provider.Name()
}

// finalize applies the disclaimer guarantee, reports internal
// inconsistencies, and assembles the immutable Result.
func (e *Engine) finalize(L zerolog.Logger, enc *Encounter, a *Assessment, providerName, path string, latencyMs int64) *Result {
	if strings.TrimSpace(a.Disclaimer) == "" {
		a.Disclaimer = DefaultDisclaimer
	}
	if a.DangerSigns == nil {
		a.DangerSigns = []string{}
	}
	if a.WatchOuts == nil {
		a.WatchOuts = []string{}
	}

	// A YELLOW or RED tier without a referral is contradictory, but provider
	// judgment is not silently rewritten beyond the stated override and
	// escalation rules. Report it and move on.
	if a.RiskTier != LevelGreen && !a.ReferralRecommended {
		if e.hooks.OnInconsistency != nil {
			e.hooks.OnInconsistency()
		}
		L.Warn().
			Str("risk_tier", string(a.RiskTier)).
			Msg("inconsistent assessment: non-GREEN tier without referral recommendation")
	}

	res := &Result{
		EncounterID:    enc.ID,
		Assessment:     *a,
		Provider:       providerName,
		AILatencyMs:    latencyMs,
		UsedFallback:   path == PathFallback,
		DangerOverride: path == PathOverride,
		CreatedAt:      time.Now(),
	}

	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(res.RiskTier, path, latencyMs)
	}
	L.Info().
		Str("risk_tier", string(res.RiskTier)).
		Str("path", path).
		Int64("ai_latency_ms", latencyMs).
		Bool("referral", res.ReferralRecommended).
		Msg("triage finalized")
	return res
}

func classifyProviderError(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.As(err, &verr):
		return ErrKindValidation
	default:
		return ErrKindTransport
	}
}

// evaluationText joins symptoms with every follow-up response for danger-sign
// detection.
func evaluationText(symptoms string, followups []Followup) string {
	parts := []string{symptoms}
	for _, f := range followups {
		if f.Response != "" {
			parts = append(parts, f.Response)
		}
	}
	return strings.Join(parts, "\n")
}
