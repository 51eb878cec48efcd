package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/okapihealth/okapi/internal/triage"
)

const validResponse = `{
	"risk_tier": "YELLOW",
	"danger_signs": [],
	"uncertainty": "MEDIUM",
	"recommended_next_steps": ["Visit a health facility within 24 hours."],
	"watch_outs": ["Difficulty breathing"],
	"referral_recommended": true,
	"disclaimer": "This is not a diagnosis. A clinician must confirm.",
	"reasoning": "Persistent fever."
}`

// fakeInvoker records the prompt it was handed and replies with canned output.
type fakeInvoker struct {
	response string
	err      error
	delay    time.Duration

	prompt string
	opts   InvokeOptions
}

func (f *fakeInvoker) Name() string { return "fake" }

func (f *fakeInvoker) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	f.prompt = prompt
	f.opts = opts
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testRequest(symptoms string) *triage.AssessmentRequest {
	return &triage.AssessmentRequest{
		Encounter: &triage.Encounter{
			ID:       "enc-1",
			Age:      29,
			Sex:      triage.SexFemale,
			Symptoms: symptoms,
			Vitals:   &triage.Vitals{Temperature: 38.2, Pulse: 92},
		},
		Followups: []triage.Followup{
			{Question: "How long?", Response: "two days"},
		},
		Protocols: "standard malaria protocol",
	}
}

func TestGenerateAssessment(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	inv := &fakeInvoker{response: validResponse}
	a := NewAssessor(inv, AssessorConfig{}, zerolog.Nop())

	got, err := a.GenerateAssessment(context.Background(), testRequest("fever and headache"))
	if err != nil {
		t.Fatalf("GenerateAssessment: %v", err)
	}
	if got.RiskTier != triage.LevelYellow {
		t.Errorf("RiskTier = %q, want YELLOW", got.RiskTier)
	}
	if !got.ReferralRecommended {
		t.Error("ReferralRecommended = false, want true")
	}

	for _, want := range []string{"29", "F", "fever and headache", "two days", "38.2", "malaria protocol"} {
		if !strings.Contains(inv.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if inv.opts.MaxOutputTokens != DefaultMaxOutputTokens {
		t.Errorf("MaxOutputTokens = %d, want %d", inv.opts.MaxOutputTokens, DefaultMaxOutputTokens)
	}
	if inv.opts.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v when unset", inv.opts.Temperature, DefaultTemperature)
	}
}

func TestTemperatureZeroReachesInvoker(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	zero := 0.0
	inv := &fakeInvoker{response: validResponse}
	a := NewAssessor(inv, AssessorConfig{Temperature: &zero}, zerolog.Nop())

	if _, err := a.GenerateAssessment(context.Background(), testRequest("fever")); err != nil {
		t.Fatalf("GenerateAssessment: %v", err)
	}
	if inv.opts.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0 passed through", inv.opts.Temperature)
	}
}

func TestPromptUnderBudgetUntouched(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	inv := &fakeInvoker{response: validResponse}
	a := NewAssessor(inv, AssessorConfig{}, zerolog.Nop())

	if _, err := a.GenerateAssessment(context.Background(), testRequest("mild cough")); err != nil {
		t.Fatalf("GenerateAssessment: %v", err)
	}
	if strings.Contains(inv.prompt, TruncationMarker) {
		t.Error("short prompt should not carry the truncation marker")
	}
}

func TestPromptOverBudgetTruncated(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	inv := &fakeInvoker{response: validResponse}
	a := NewAssessor(inv, AssessorConfig{MaxInputTokens: 100}, zerolog.Nop())

	long := strings.Repeat("patient reports intermittent fever. ", 200)
	if _, err := a.GenerateAssessment(context.Background(), testRequest(long)); err != nil {
		t.Fatalf("GenerateAssessment: %v", err)
	}

	maxChars := 100 * charsPerToken
	if len(inv.prompt) > maxChars {
		t.Errorf("prompt length = %d, want <= %d", len(inv.prompt), maxChars)
	}
	if !strings.HasSuffix(inv.prompt, TruncationMarker) {
		t.Error("truncated prompt must end with the marker")
	}
}

func TestTimeoutMapsToProviderTimeout(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	inv := &fakeInvoker{response: validResponse, delay: time.Second}
	a := NewAssessor(inv, AssessorConfig{Timeout: 10 * time.Millisecond}, zerolog.Nop())

	_, err := a.GenerateAssessment(context.Background(), testRequest("fever"))
	if !errors.Is(err, triage.ErrProviderTimeout) {
		t.Fatalf("err = %v, want ErrProviderTimeout", err)
	}
}

func TestTransportErrorPassedThrough(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	boom := errors.New("connection refused")
	inv := &fakeInvoker{err: boom}
	a := NewAssessor(inv, AssessorConfig{}, zerolog.Nop())

	_, err := a.GenerateAssessment(context.Background(), testRequest("fever"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, triage.ErrProviderTimeout) {
		t.Error("transport error must not map to timeout")
	}
}

func TestMalformedResponseIsValidationError(t *testing.T) {
	ResetTemplate()
	t.Cleanup(ResetTemplate)

	inv := &fakeInvoker{response: "I cannot assess this patient."}
	a := NewAssessor(inv, AssessorConfig{}, zerolog.Nop())

	_, err := a.GenerateAssessment(context.Background(), testRequest("fever"))
	var verr *triage.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *triage.ValidationError", err)
	}
}
