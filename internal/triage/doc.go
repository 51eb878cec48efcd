// Package triage provides the clinical triage decision engine: danger-sign
// detection, the deterministic rule fallback, the AI Provider seam, the
// Engine (decision pipeline), the Service (lifecycle, persistence, rollup
// fan-out), and the Store interface with its domain models.
package triage
