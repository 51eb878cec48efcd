// Package memstore provides in-memory implementations of triage.Store and
// triage.Rollup. Suitable for dev/testing.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/okapihealth/okapi/internal/triage"
)

// Store holds encounters and triage results in memory.
type Store struct {
	mu         sync.RWMutex
	encounters map[string]*triage.Encounter
	followups  map[string][]triage.Followup
	results    map[string]*triage.Result
	rollups    map[string]*RollupRow
}

// RollupRow is one aggregated cell of the in-memory dashboard rollup.
type RollupRow struct {
	Date           string
	Channel        string
	Tier           triage.Level
	Total          int64
	Referrals      int64
	DangerSigns    int64
	AILatencyMsSum int64
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		encounters: make(map[string]*triage.Encounter),
		followups:  make(map[string][]triage.Followup),
		results:    make(map[string]*triage.Result),
		rollups:    make(map[string]*RollupRow),
	}
}

// PutEncounter stores a copy of the encounter.
func (s *Store) PutEncounter(_ context.Context, enc *triage.Encounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *enc
	s.encounters[enc.ID] = &cp
	return nil
}

// GetEncounter retrieves an encounter and its follow-ups. Returns copies.
func (s *Store) GetEncounter(_ context.Context, id string) (*triage.Encounter, []triage.Followup, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enc, ok := s.encounters[id]
	if !ok {
		return nil, nil, false, nil
	}
	cp := *enc
	return &cp, append([]triage.Followup(nil), s.followups[id]...), true, nil
}

// AddFollowups appends follow-up answers in order.
func (s *Store) AddFollowups(_ context.Context, encounterID string, followups []triage.Followup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.encounters[encounterID]; !ok {
		return fmt.Errorf("encounter %s: %w", encounterID, triage.ErrNotFound)
	}
	s.followups[encounterID] = append(s.followups[encounterID], followups...)
	return nil
}

// UpdateEncounterStatus transitions an encounter's status.
func (s *Store) UpdateEncounterStatus(_ context.Context, id string, status triage.EncounterStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, ok := s.encounters[id]
	if !ok {
		return fmt.Errorf("encounter %s: %w", id, triage.ErrNotFound)
	}
	enc.Status = status
	return nil
}

// PutResult stores a copy of the result. Results are immutable; writing an
// existing ID is an error.
func (s *Store) PutResult(_ context.Context, res *triage.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[res.ID]; exists {
		return fmt.Errorf("triage result %s already exists", res.ID)
	}
	cp := *res
	s.results[res.ID] = &cp
	return nil
}

// GetResult retrieves a triage result by ID. Returns a copy.
func (s *Store) GetResult(_ context.Context, id string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// UpdateRollup accumulates a finalized triage datapoint.
func (s *Store) UpdateRollup(_ context.Context, ev *triage.RollupEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ev.Date + "|" + ev.Channel + "|" + string(ev.Tier)
	row, ok := s.rollups[key]
	if !ok {
		row = &RollupRow{Date: ev.Date, Channel: ev.Channel, Tier: ev.Tier}
		s.rollups[key] = row
	}
	row.Total++
	if ev.HasReferral {
		row.Referrals++
	}
	row.DangerSigns += int64(len(ev.DangerSigns))
	row.AILatencyMsSum += ev.AILatencyMs
	return nil
}

// Rollups returns a snapshot of the accumulated rollup rows.
func (s *Store) Rollups() []RollupRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RollupRow, 0, len(s.rollups))
	for _, row := range s.rollups {
		out = append(out, *row)
	}
	return out
}
