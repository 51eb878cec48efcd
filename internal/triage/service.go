package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	storageMaxTries        = 4
	storageInitialInterval = 50 * time.Millisecond
	storageMaxInterval     = time.Second
)

// Service is the business boundary for triage operations: encounter
// lifecycle, engine dispatch, durable persistence, and post-finalization
// fan-out to the rollup and notification collaborators.
type Service struct {
	store     Store
	engine    *Engine
	protocols ProtocolSource
	rollup    Rollup
	notifier  Notifier
	logger    zerolog.Logger
}

// NewService creates a triage service. rollup and notifier may be nil.
func NewService(store Store, engine *Engine, protocols ProtocolSource, rollup Rollup, notifier Notifier, logger zerolog.Logger) *Service {
	if protocols == nil {
		protocols = StaticProtocol("")
	}
	return &Service{
		store:     store,
		engine:    engine,
		protocols: protocols,
		rollup:    rollup,
		notifier:  notifier,
		logger:    logger,
	}
}

// CreateEncounter validates and registers a new encounter.
func (s *Service) CreateEncounter(ctx context.Context, enc *Encounter) (*Encounter, error) {
	if enc.Age < 0 {
		return nil, fmt.Errorf("%w: age must be >= 0", ErrInvalidInput)
	}
	if !enc.Sex.Valid() {
		return nil, fmt.Errorf("%w: sex must be M, F, or O", ErrInvalidInput)
	}
	if strings.TrimSpace(enc.Symptoms) == "" {
		return nil, fmt.Errorf("%w: symptoms must not be empty", ErrInvalidInput)
	}

	enc.ID = uuid.NewString()
	enc.Status = EncounterCreated
	enc.CreatedAt = time.Now()

	if err := s.retryStorage(ctx, func() error { return s.store.PutEncounter(ctx, enc) }); err != nil {
		return nil, fmt.Errorf("store encounter: %w", err)
	}
	return enc, nil
}

// GetEncounter fetches an encounter with its follow-up answers.
func (s *Service) GetEncounter(ctx context.Context, id string) (*Encounter, []Followup, bool, error) {
	return s.store.GetEncounter(ctx, id)
}

// AddFollowups appends answered follow-up questions to an encounter and
// returns the next suggested questions for the reported symptoms.
func (s *Service) AddFollowups(ctx context.Context, encounterID string, followups []Followup) ([]string, error) {
	enc, _, ok, err := s.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("load encounter: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	if len(followups) > 0 {
		if err := s.retryStorage(ctx, func() error { return s.store.AddFollowups(ctx, encounterID, followups) }); err != nil {
			return nil, fmt.Errorf("store followups: %w", err)
		}
	}
	return s.engine.rules.FollowupQuestions(enc.Symptoms), nil
}

// Triage runs the full decision pipeline for an encounter and persists the
// result. Storage failures are retried with exponential backoff and jitter;
// only exhausted retries fail the request.
func (s *Service) Triage(ctx context.Context, encounterID string) (*Result, error) {
	L := s.logger.With().Str("encounter_id", encounterID).Logger()

	enc, followups, ok, err := s.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("load encounter: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	if err := s.retryStorage(ctx, func() error {
		return s.store.UpdateEncounterStatus(ctx, encounterID, EncounterInProgress)
	}); err != nil {
		return nil, fmt.Errorf("mark encounter in progress: %w", err)
	}

	protocols, err := s.protocols.ActiveProtocol(ctx)
	if err != nil {
		L.Warn().Err(err).Msg("active protocol unavailable, proceeding without it")
		protocols = ""
	}

	res := s.engine.Run(ctx, enc, followups, protocols)
	res.ID = ulid.Make().String()

	if err := s.retryStorage(ctx, func() error { return s.store.PutResult(ctx, res) }); err != nil {
		return nil, fmt.Errorf("store triage result: %w", err)
	}
	if err := s.retryStorage(ctx, func() error {
		return s.store.UpdateEncounterStatus(ctx, encounterID, EncounterCompleted)
	}); err != nil {
		return nil, fmt.Errorf("mark encounter completed: %w", err)
	}

	// Rollup and notification are fire-and-forget: detach from the request
	// context so a fast client disconnect does not cancel them.
	go s.afterFinalize(context.WithoutCancel(ctx), enc, res)

	return res, nil
}

// GetResult fetches a finalized result by ID.
func (s *Service) GetResult(ctx context.Context, id string) (*Result, bool, error) {
	return s.store.GetResult(ctx, id)
}

// Questions returns suggested follow-up questions for an encounter without
// recording anything.
func (s *Service) Questions(ctx context.Context, encounterID string) ([]string, error) {
	enc, _, ok, err := s.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("load encounter: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.engine.rules.FollowupQuestions(enc.Symptoms), nil
}

func (s *Service) afterFinalize(ctx context.Context, enc *Encounter, res *Result) {
	L := s.logger.With().Str("triage_id", res.ID).Logger()

	if s.rollup != nil {
		ev := &RollupEvent{
			Date:        res.CreatedAt.UTC().Format("2006-01-02"),
			Channel:     enc.Channel,
			Tier:        res.RiskTier,
			Symptoms:    enc.Symptoms,
			DangerSigns: res.DangerSigns,
			HasReferral: res.ReferralRecommended,
			AILatencyMs: res.AILatencyMs,
		}
		if err := s.rollup.UpdateRollup(ctx, ev); err != nil {
			L.Error().Err(err).Msg("rollup update failed")
		}
	}

	if s.notifier != nil && (res.RiskTier == LevelRed || res.UsedFallback) {
		if err := s.notifier.Send(ctx, res); err != nil {
			L.Error().Err(err).Msg("notification failed")
		}
	}
}

// retryStorage retries a storage operation with exponential backoff and
// jitter until it succeeds or the attempt budget is exhausted.
func (s *Service) retryStorage(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = storageInitialInterval
	bo.MaxInterval = storageMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(storageMaxTries))
	return err
}
