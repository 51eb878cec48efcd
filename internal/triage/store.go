package triage

import "context"

// Store is the persistence interface for encounters and triage results.
type Store interface {
	PutEncounter(ctx context.Context, enc *Encounter) error
	GetEncounter(ctx context.Context, id string) (*Encounter, []Followup, bool, error)
	AddFollowups(ctx context.Context, encounterID string, followups []Followup) error
	UpdateEncounterStatus(ctx context.Context, id string, status EncounterStatus) error

	// PutResult inserts a new result. Results are immutable: implementations
	// must never overwrite an existing ID.
	PutResult(ctx context.Context, res *Result) error
	GetResult(ctx context.Context, id string) (*Result, bool, error)
}
