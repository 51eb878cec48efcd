// Package postgres builds pgx connection pools with tracing and query
// logging instrumentation.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// slowQueryThreshold controls which successful queries get a log line.
// Errors are always logged.
const slowQueryThreshold = 250 * time.Millisecond

// NewPool connects to PostgreSQL with OpenTelemetry query tracing and slow
// query logging enabled, and verifies the connection with a ping.
func NewPool(ctx context.Context, databaseURL string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = queryTracer{
		inner:  otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()),
		logger: logger,
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

type ctxKey string

const (
	ctxKeySQL   ctxKey = "pgx.sql"
	ctxKeyStart ctxKey = "pgx.start"
)

// queryTracer wraps another pgx.QueryTracer (otelpgx) and adds a structured
// log line for slow or failed queries.
type queryTracer struct {
	inner  pgx.QueryTracer
	logger zerolog.Logger
}

func (t queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	// Let the inner tracer create its span first.
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}
	ctx = context.WithValue(ctx, ctxKeySQL, data.SQL)
	ctx = context.WithValue(ctx, ctxKeyStart, time.Now())
	return ctx
}

func (t queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	// Always finish the inner tracer's span first.
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	start, _ := ctx.Value(ctxKeyStart).(time.Time)
	var dur time.Duration
	if !start.IsZero() {
		dur = time.Since(start)
	}
	if data.Err == nil && dur < slowQueryThreshold {
		return
	}

	sql, _ := ctx.Value(ctxKeySQL).(string)
	ev := t.logger.Warn().
		Str("db_statement", collapseWhitespace(sql)).
		Dur("db_duration", dur)
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		ev = ev.Str("pg_command_tag", tag)
	}
	if data.Err != nil {
		ev.Err(data.Err).Msg("query failed")
		return
	}
	ev.Msg("slow query")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
