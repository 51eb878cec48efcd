package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu         sync.Mutex
	encounters map[string]*Encounter
	followups  map[string][]Followup
	results    map[string]*Result
	putResErr  error
	statusErr  error
	statuses   []EncounterStatus
	putResTry  int
}

func newMockStore() *mockStore {
	return &mockStore{
		encounters: make(map[string]*Encounter),
		followups:  make(map[string][]Followup),
		results:    make(map[string]*Result),
	}
}

func (m *mockStore) PutEncounter(_ context.Context, enc *Encounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *enc
	m.encounters[enc.ID] = &cp
	return nil
}

func (m *mockStore) GetEncounter(_ context.Context, id string) (*Encounter, []Followup, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc, ok := m.encounters[id]
	if !ok {
		return nil, nil, false, nil
	}
	cp := *enc
	return &cp, append([]Followup(nil), m.followups[id]...), true, nil
}

func (m *mockStore) AddFollowups(_ context.Context, id string, fus []Followup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followups[id] = append(m.followups[id], fus...)
	return nil
}

func (m *mockStore) UpdateEncounterStatus(_ context.Context, id string, status EncounterStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	if enc, ok := m.encounters[id]; ok {
		enc.Status = status
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockStore) PutResult(_ context.Context, res *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putResTry++
	if m.putResErr != nil {
		return m.putResErr
	}
	cp := *res
	m.results[res.ID] = &cp
	return nil
}

func (m *mockStore) GetResult(_ context.Context, id string) (*Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// mockRollup records events and signals on a channel.
type mockRollup struct {
	mu     sync.Mutex
	events []*RollupEvent
	done   chan struct{}
}

func newMockRollup() *mockRollup {
	return &mockRollup{done: make(chan struct{}, 8)}
}

func (m *mockRollup) UpdateRollup(_ context.Context, ev *RollupEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func newTestService(store Store, provider Provider, rollup Rollup) *Service {
	engine := NewEngine(provider, NewRuleEngine(), zerolog.Nop(), EngineHooks{}, time.Second)
	return NewService(store, engine, StaticProtocol("local protocol"), rollup, nil, zerolog.Nop())
}

func seedEncounter(t *testing.T, store *mockStore, symptoms string) string {
	t.Helper()
	enc := &Encounter{
		ID:       "enc-test",
		Age:      30,
		Sex:      SexMale,
		Symptoms: symptoms,
		Channel:  "web",
		Status:   EncounterCreated,
	}
	if err := store.PutEncounter(context.Background(), enc); err != nil {
		t.Fatalf("PutEncounter: %v", err)
	}
	return enc.ID
}

func TestCreateEncounter_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), nil, nil)

	cases := []*Encounter{
		{Age: -1, Sex: SexMale, Symptoms: "fever"},
		{Age: 30, Sex: Sex("X"), Symptoms: "fever"},
		{Age: 30, Sex: SexMale, Symptoms: "   "},
	}
	for i, enc := range cases {
		if _, err := svc.CreateEncounter(context.Background(), enc); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestCreateEncounter_AssignsIdentity(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), nil, nil)

	enc, err := svc.CreateEncounter(context.Background(), &Encounter{Age: 30, Sex: SexFemale, Symptoms: "fever"})
	if err != nil {
		t.Fatalf("CreateEncounter: %v", err)
	}
	if enc.ID == "" {
		t.Error("expected assigned ID")
	}
	if enc.Status != EncounterCreated {
		t.Errorf("status = %q, want created", enc.Status)
	}
}

func TestTriage_HappyPath(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	rollup := newMockRollup()
	id := seedEncounter(t, store, "mild headache")
	svc := newTestService(store, &mockProvider{assessment: validGreen()}, rollup)

	res, err := svc.Triage(context.Background(), id)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.ID == "" {
		t.Error("expected assigned result ID")
	}
	if res.EncounterID != id {
		t.Errorf("EncounterID = %q, want %q", res.EncounterID, id)
	}

	// status transitions: in_progress then completed
	if len(store.statuses) != 2 || store.statuses[0] != EncounterInProgress || store.statuses[1] != EncounterCompleted {
		t.Errorf("status transitions = %v, want [in_progress completed]", store.statuses)
	}

	stored, ok, err := store.GetResult(context.Background(), res.ID)
	if err != nil || !ok {
		t.Fatalf("result not persisted: ok=%v err=%v", ok, err)
	}
	if stored.RiskTier != res.RiskTier {
		t.Errorf("persisted tier = %q, want %q", stored.RiskTier, res.RiskTier)
	}

	select {
	case <-rollup.done:
	case <-time.After(2 * time.Second):
		t.Fatal("rollup never called")
	}
	rollup.mu.Lock()
	defer rollup.mu.Unlock()
	if len(rollup.events) != 1 {
		t.Fatalf("rollup events = %d, want 1", len(rollup.events))
	}
	ev := rollup.events[0]
	if ev.Channel != "web" || ev.Tier != res.RiskTier {
		t.Errorf("rollup event = %+v, want channel web and tier %s", ev, res.RiskTier)
	}
}

func TestTriage_NotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), nil, nil)

	if _, err := svc.Triage(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTriage_StorageFailureSurfacesAfterRetries(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	id := seedEncounter(t, store, "mild headache")
	store.putResErr = errors.New("db down")
	svc := newTestService(store, &mockProvider{assessment: validGreen()}, nil)

	if _, err := svc.Triage(context.Background(), id); err == nil {
		t.Fatal("expected error when result storage is exhausted")
	}
	if store.putResTry < 2 {
		t.Errorf("PutResult attempted %d times, want retries", store.putResTry)
	}
}

func TestTriage_FallbackFlowEndToEnd(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	id := seedEncounter(t, store, "mild headache")
	svc := newTestService(store, &mockProvider{err: ErrProviderTimeout}, nil)

	res, err := svc.Triage(context.Background(), id)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback = false, want true")
	}
	if !res.RiskTier.Valid() {
		t.Errorf("tier = %q, want valid", res.RiskTier)
	}
	if len(res.Disclaimer) <= 10 {
		t.Errorf("disclaimer too short: %q", res.Disclaimer)
	}
}

func TestAddFollowups_ReturnsNextQuestions(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	id := seedEncounter(t, store, "fever for two days")
	svc := newTestService(store, nil, nil)

	qs, err := svc.AddFollowups(context.Background(), id, []Followup{
		{Question: "When did it start?", Response: "Monday"},
	})
	if err != nil {
		t.Fatalf("AddFollowups: %v", err)
	}
	if len(qs) < 3 || len(qs) > 5 {
		t.Errorf("questions = %d, want 3..5", len(qs))
	}

	_, fus, _, err := store.GetEncounter(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if len(fus) != 1 || fus[0].Response != "Monday" {
		t.Errorf("followups = %v, want the stored answer", fus)
	}
}

func TestAddFollowups_NotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), nil, nil)
	if _, err := svc.AddFollowups(context.Background(), "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
