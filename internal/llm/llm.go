// Package llm bridges raw model backends to the triage provider contract.
//
// Each backend implements the small Invoker interface (send one prompt, get
// raw text back). The shared Assessor layers the triage-specific work on
// top: prompt construction from the cached template, the input token budget,
// the per-call timeout, and parsing the model output into an Assessment.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okapihealth/okapi/internal/triage"
)

const (
	// DefaultMaxInputTokens bounds the prompt size. Tokens are estimated
	// at charsPerToken characters each.
	DefaultMaxInputTokens = 2000

	// DefaultMaxOutputTokens bounds the model response.
	DefaultMaxOutputTokens = 500

	// DefaultTemperature keeps assessments close to deterministic.
	DefaultTemperature = 0.2

	charsPerToken = 4

	// TruncationMarker is appended whenever the prompt is cut to fit the
	// input budget, so the model and any audit log can see the cut.
	TruncationMarker = "\n[TRUNCATED]"
)

// InvokeOptions are the per-request model parameters.
type InvokeOptions struct {
	Temperature     float64
	MaxOutputTokens int
}

// Invoker is one raw model backend. Implementations must build their HTTP
// request with the supplied context so a timed-out call is cancelled on the
// wire, not abandoned.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error)
}

// AssessorConfig tunes the Assessor. Zero values select the defaults.
// Temperature is a pointer so an explicit 0 (fully deterministic sampling)
// is distinguishable from unset.
type AssessorConfig struct {
	Timeout         time.Duration
	MaxInputTokens  int
	MaxOutputTokens int
	Temperature     *float64
}

// Assessor implements triage.Provider over any Invoker.
type Assessor struct {
	invoker         Invoker
	timeout         time.Duration
	maxInputTokens  int
	maxOutputTokens int
	temperature     float64
	logger          zerolog.Logger
}

// NewAssessor wraps an Invoker as a triage.Provider.
func NewAssessor(invoker Invoker, cfg AssessorConfig, logger zerolog.Logger) *Assessor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = triage.DefaultAITimeout
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = DefaultMaxInputTokens
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	return &Assessor{
		invoker:         invoker,
		timeout:         cfg.Timeout,
		maxInputTokens:  cfg.MaxInputTokens,
		maxOutputTokens: cfg.MaxOutputTokens,
		temperature:     temperature,
		logger:          logger.With().Str("component", "llm").Str("backend", invoker.Name()).Logger(),
	}
}

// Name reports the underlying backend.
func (a *Assessor) Name() string {
	return a.invoker.Name()
}

// GenerateAssessment builds the prompt, invokes the model within the
// configured timeout, and parses the response. A deadline hit maps to
// triage.ErrProviderTimeout; malformed output maps to *triage.ValidationError.
func (a *Assessor) GenerateAssessment(ctx context.Context, req *triage.AssessmentRequest) (*triage.Assessment, error) {
	prompt := a.buildPrompt(ctx, req)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.invoker.Invoke(ctx, prompt, InvokeOptions{
		Temperature:     a.temperature,
		MaxOutputTokens: a.maxOutputTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", a.invoker.Name(), a.timeout, triage.ErrProviderTimeout)
		}
		return nil, fmt.Errorf("invoke %s: %w", a.invoker.Name(), err)
	}

	a.logger.Debug().
		Dur("invoke_duration", time.Since(start)).
		Int("prompt_chars", len(prompt)).
		Int("response_chars", len(raw)).
		Msg("model invoked")

	assessment, err := ParseAssessment(raw)
	if err != nil {
		return nil, err
	}
	return assessment, nil
}

func (a *Assessor) buildPrompt(ctx context.Context, req *triage.AssessmentRequest) string {
	enc := req.Encounter

	r := strings.NewReplacer(
		"{{age}}", strconv.Itoa(enc.Age),
		"{{sex}}", string(enc.Sex),
		"{{symptoms}}", enc.Symptoms,
		"{{followup}}", formatFollowups(req.Followups),
		"{{vitals}}", formatVitals(enc.Vitals),
		"{{protocols}}", valueOr(req.Protocols, "none provided"),
	)
	prompt := r.Replace(Template(ctx))

	return a.truncate(prompt)
}

// truncate enforces the input token budget. Prompts under the budget pass
// through untouched; over-budget prompts are cut and end with the marker.
func (a *Assessor) truncate(prompt string) string {
	maxChars := a.maxInputTokens * charsPerToken
	if len(prompt) <= maxChars {
		return prompt
	}
	cut := maxChars - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	a.logger.Warn().
		Int("prompt_chars", len(prompt)).
		Int("max_chars", maxChars).
		Msg("prompt over input budget, truncating")
	return prompt[:cut] + TruncationMarker
}

func formatFollowups(followups []triage.Followup) string {
	if len(followups) == 0 {
		return "none"
	}
	var b strings.Builder
	for i, f := range followups {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s", f.Question, f.Response)
	}
	return b.String()
}

func formatVitals(v *triage.Vitals) string {
	if v == nil {
		return "not recorded"
	}
	var parts []string
	if v.Temperature != 0 {
		parts = append(parts, fmt.Sprintf("temperature %.1f C", v.Temperature))
	}
	if v.Pulse != 0 {
		parts = append(parts, fmt.Sprintf("pulse %d bpm", v.Pulse))
	}
	if v.BloodPressure != "" {
		parts = append(parts, "blood pressure "+v.BloodPressure)
	}
	if v.RespiratoryRate != 0 {
		parts = append(parts, fmt.Sprintf("respiratory rate %d/min", v.RespiratoryRate))
	}
	if len(parts) == 0 {
		return "not recorded"
	}
	return strings.Join(parts, ", ")
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
