package triage

import "context"

// RollupEvent is the per-triage datapoint handed to the dashboard rollup
// collaborator after finalization.
type RollupEvent struct {
	Date        string   `json:"date"` // YYYY-MM-DD
	Channel     string   `json:"channel"`
	Tier        Level    `json:"triage_level"`
	Symptoms    string   `json:"symptoms"`
	DangerSigns []string `json:"danger_signs"`
	HasReferral bool     `json:"has_referral"`
	AILatencyMs int64    `json:"ai_latency_ms"`
}

// Rollup receives finalized triage datapoints. Calls are fire-and-forget:
// a rollup failure must never fail the triage request.
type Rollup interface {
	UpdateRollup(ctx context.Context, ev *RollupEvent) error
}

// Notifier delivers finalized results that need human attention
// (escalations, fallback usage). Failures are logged, never surfaced.
type Notifier interface {
	Send(ctx context.Context, res *Result) error
}
