package triage

import (
	"context"
	"errors"
	"fmt"
)

// ErrProviderTimeout means the AI call exceeded its configured duration.
// Recovered locally via the rule-engine fallback, never surfaced to callers.
var ErrProviderTimeout = errors.New("ai provider timed out")

// ErrNotFound is returned by the service when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidInput marks caller mistakes (bad demographics, empty symptoms).
var ErrInvalidInput = errors.New("invalid input")

// ValidationError means a provider returned malformed or incomplete output.
// The orchestrator catches it and falls back; it never propagates as result data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid provider response: %s: %s", e.Field, e.Reason)
}

// AssessmentRequest carries everything a provider needs to assess one encounter.
type AssessmentRequest struct {
	Encounter *Encounter
	Followups []Followup

	// Protocols is free-text local health protocol guidance injected into
	// the prompt, supplied by the configuration collaborator.
	Protocols string
}

// Provider is the interface for any AI assessment backend. Implementations
// are selected once at startup; the engine never switches providers mid-run.
type Provider interface {
	Name() string
	GenerateAssessment(ctx context.Context, req *AssessmentRequest) (*Assessment, error)
}

// ProtocolSource supplies the active local health protocol text.
type ProtocolSource interface {
	ActiveProtocol(ctx context.Context) (string, error)
}

// StaticProtocol is a ProtocolSource backed by a fixed string.
type StaticProtocol string

// ActiveProtocol implements ProtocolSource.
func (p StaticProtocol) ActiveProtocol(context.Context) (string, error) {
	return string(p), nil
}
