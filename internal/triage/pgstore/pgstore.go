// Package pgstore provides PostgreSQL implementations of triage.Store and
// triage.Rollup backed by a pgx connection pool.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/okapihealth/okapi/internal/postgres"
	"github.com/okapihealth/okapi/internal/triage"
)

var tracer = otel.Tracer("github.com/okapihealth/okapi/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists encounters and triage results in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Store, error) {
	pool, err := postgres.NewPool(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// PutEncounter inserts or updates an encounter.
func (s *Store) PutEncounter(ctx context.Context, enc *triage.Encounter) error {
	ctx, span := startSpan(ctx, "pgstore.PutEncounter", "UPSERT")
	defer span.End()

	var temp *float64
	var pulse, resp *int
	var bp *string
	if enc.Vitals != nil {
		if enc.Vitals.Temperature != 0 {
			temp = &enc.Vitals.Temperature
		}
		if enc.Vitals.Pulse != 0 {
			pulse = &enc.Vitals.Pulse
		}
		if enc.Vitals.BloodPressure != "" {
			bp = &enc.Vitals.BloodPressure
		}
		if enc.Vitals.RespiratoryRate != 0 {
			resp = &enc.Vitals.RespiratoryRate
		}
	}

	query := `INSERT INTO encounters (
		id, age, sex, location, symptoms, temperature, pulse, blood_pressure,
		respiratory_rate, channel, status, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status`

	_, err := s.pool.Exec(ctx, query,
		enc.ID, enc.Age, string(enc.Sex), enc.Location, enc.Symptoms,
		temp, pulse, bp, resp, enc.Channel, string(enc.Status), enc.CreatedAt,
	)
	if err != nil {
		return recordErr(span, fmt.Errorf("upsert encounter: %w", err))
	}
	return nil
}

// GetEncounter retrieves an encounter and its ordered follow-ups.
func (s *Store) GetEncounter(ctx context.Context, id string) (*triage.Encounter, []triage.Followup, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetEncounter", "SELECT")
	defer span.End()

	query := `SELECT id, age, sex, location, symptoms, temperature, pulse,
		blood_pressure, respiratory_rate, channel, status, created_at
		FROM encounters WHERE id = $1`

	var (
		enc    triage.Encounter
		sex    string
		status string
		temp   *float64
		pulse  *int
		bp     *string
		resp   *int
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&enc.ID, &enc.Age, &sex, &enc.Location, &enc.Symptoms,
		&temp, &pulse, &bp, &resp, &enc.Channel, &status, &enc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, false, nil
		}
		return nil, nil, false, recordErr(span, fmt.Errorf("scan encounter: %w", err))
	}
	enc.Sex = triage.Sex(sex)
	enc.Status = triage.EncounterStatus(status)
	if temp != nil || pulse != nil || bp != nil || resp != nil {
		enc.Vitals = &triage.Vitals{}
		if temp != nil {
			enc.Vitals.Temperature = *temp
		}
		if pulse != nil {
			enc.Vitals.Pulse = *pulse
		}
		if bp != nil {
			enc.Vitals.BloodPressure = *bp
		}
		if resp != nil {
			enc.Vitals.RespiratoryRate = *resp
		}
	}

	followups, err := s.loadFollowups(ctx, id)
	if err != nil {
		return nil, nil, false, recordErr(span, err)
	}
	return &enc, followups, true, nil
}

// AddFollowups appends follow-up answers, continuing the sequence.
func (s *Store) AddFollowups(ctx context.Context, encounterID string, followups []triage.Followup) error {
	ctx, span := startSpan(ctx, "pgstore.AddFollowups", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return recordErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM followups WHERE encounter_id = $1`,
		encounterID,
	).Scan(&next); err != nil {
		return recordErr(span, fmt.Errorf("next seq: %w", err))
	}

	for i, f := range followups {
		if _, err := tx.Exec(ctx,
			`INSERT INTO followups (encounter_id, seq, question, response) VALUES ($1, $2, $3, $4)`,
			encounterID, next+i, f.Question, f.Response,
		); err != nil {
			return recordErr(span, fmt.Errorf("insert followup seq %d: %w", next+i, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return recordErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// UpdateEncounterStatus transitions an encounter's status.
func (s *Store) UpdateEncounterStatus(ctx context.Context, id string, status triage.EncounterStatus) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateEncounterStatus", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE encounters SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return recordErr(span, fmt.Errorf("update status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return recordErr(span, fmt.Errorf("encounter %s: %w", id, triage.ErrNotFound))
	}
	return nil
}

// PutResult inserts a new triage result. Results are immutable, so this is a
// plain INSERT: a duplicate ID is an error.
func (s *Store) PutResult(ctx context.Context, res *triage.Result) error {
	ctx, span := startSpan(ctx, "pgstore.PutResult", "INSERT")
	defer span.End()

	signsJSON, err := json.Marshal(res.DangerSigns)
	if err != nil {
		return recordErr(span, fmt.Errorf("marshal danger signs: %w", err))
	}
	stepsJSON, err := json.Marshal(res.RecommendedNextSteps)
	if err != nil {
		return recordErr(span, fmt.Errorf("marshal next steps: %w", err))
	}
	watchJSON, err := json.Marshal(res.WatchOuts)
	if err != nil {
		return recordErr(span, fmt.Errorf("marshal watch-outs: %w", err))
	}

	query := `INSERT INTO triage_results (
		id, encounter_id, risk_tier, danger_signs, uncertainty,
		recommended_next_steps, watch_outs, referral_recommended, disclaimer,
		reasoning, provider, ai_latency_ms, used_fallback, danger_override, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err = s.pool.Exec(ctx, query,
		res.ID, res.EncounterID, string(res.RiskTier), signsJSON, string(res.Uncertainty),
		stepsJSON, watchJSON, res.ReferralRecommended, res.Disclaimer,
		res.Reasoning, res.Provider, res.AILatencyMs, res.UsedFallback, res.DangerOverride, res.CreatedAt,
	)
	if err != nil {
		return recordErr(span, fmt.Errorf("insert result: %w", err))
	}
	return nil
}

// GetResult retrieves a triage result by ID.
func (s *Store) GetResult(ctx context.Context, id string) (*triage.Result, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetResult", "SELECT")
	defer span.End()

	query := `SELECT id, encounter_id, risk_tier, danger_signs, uncertainty,
		recommended_next_steps, watch_outs, referral_recommended, disclaimer,
		reasoning, provider, ai_latency_ms, used_fallback, danger_override, created_at
		FROM triage_results WHERE id = $1`

	var (
		res         triage.Result
		tier        string
		uncertainty string
		signsJSON   []byte
		stepsJSON   []byte
		watchJSON   []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&res.ID, &res.EncounterID, &tier, &signsJSON, &uncertainty,
		&stepsJSON, &watchJSON, &res.ReferralRecommended, &res.Disclaimer,
		&res.Reasoning, &res.Provider, &res.AILatencyMs, &res.UsedFallback, &res.DangerOverride, &res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, recordErr(span, fmt.Errorf("scan result: %w", err))
	}
	res.RiskTier = triage.Level(tier)
	res.Uncertainty = triage.Uncertainty(uncertainty)
	if err := json.Unmarshal(signsJSON, &res.DangerSigns); err != nil {
		return nil, false, recordErr(span, fmt.Errorf("unmarshal danger signs: %w", err))
	}
	if err := json.Unmarshal(stepsJSON, &res.RecommendedNextSteps); err != nil {
		return nil, false, recordErr(span, fmt.Errorf("unmarshal next steps: %w", err))
	}
	if err := json.Unmarshal(watchJSON, &res.WatchOuts); err != nil {
		return nil, false, recordErr(span, fmt.Errorf("unmarshal watch-outs: %w", err))
	}
	return &res, true, nil
}

// UpdateRollup increments the daily aggregation cell for a finalized triage.
func (s *Store) UpdateRollup(ctx context.Context, ev *triage.RollupEvent) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateRollup", "UPSERT")
	defer span.End()

	query := `INSERT INTO triage_rollups (day, channel, risk_tier, total, referrals, danger_signs, ai_latency_ms_sum)
	VALUES ($1, $2, $3, 1, $4, $5, $6)
	ON CONFLICT (day, channel, risk_tier) DO UPDATE SET
		total             = triage_rollups.total + 1,
		referrals         = triage_rollups.referrals + EXCLUDED.referrals,
		danger_signs      = triage_rollups.danger_signs + EXCLUDED.danger_signs,
		ai_latency_ms_sum = triage_rollups.ai_latency_ms_sum + EXCLUDED.ai_latency_ms_sum`

	referrals := 0
	if ev.HasReferral {
		referrals = 1
	}
	_, err := s.pool.Exec(ctx, query,
		ev.Date, ev.Channel, string(ev.Tier), referrals, len(ev.DangerSigns), ev.AILatencyMs)
	if err != nil {
		return recordErr(span, fmt.Errorf("upsert rollup: %w", err))
	}
	return nil
}

func (s *Store) loadFollowups(ctx context.Context, encounterID string) ([]triage.Followup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT question, response FROM followups WHERE encounter_id = $1 ORDER BY seq`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query followups: %w", err)
	}
	defer rows.Close()

	var followups []triage.Followup
	for rows.Next() {
		var f triage.Followup
		if err := rows.Scan(&f.Question, &f.Response); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		followups = append(followups, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate followups: %w", err)
	}
	return followups, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
