package timing

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trackgraph/pkg/graph"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger records the outcome of every processed event.
type Ledger struct {
	db dbConn
}

func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{db: pool}
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create event_outcomes: %w", err)
	}
	return nil
}

// RecordOutcome appends one row for o.
func (l *Ledger) RecordOutcome(ctx context.Context, o graph.Outcome) error {
	var errText *string
	if o.Err != nil {
		s := o.Err.Error()
		errText = &s
	}
	_, err := l.db.Exec(ctx, insertSQL,
		o.EventID,
		string(o.Status),
		o.Duration.Milliseconds(),
		int64(o.Hits),
		int64(o.InputEdges),
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome of event %d: %w", o.EventID, err)
	}
	return nil
}

// MeanDuration returns the mean duration of all recorded events with the
// given status, or zero when there are none.
func (l *Ledger) MeanDuration(ctx context.Context, status graph.Status) (time.Duration, error) {
	var ms float64
	if err := l.db.QueryRow(ctx, meanSQL, string(status)).Scan(&ms); err != nil {
		return 0, fmt.Errorf("failed to query mean duration: %w", err)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// PredictBatchDuration estimates the wall time of processing events with
// parallel workers from the mean duration of processed events.
func (l *Ledger) PredictBatchDuration(ctx context.Context, events, parallel int) (time.Duration, error) {
	mean, err := l.MeanDuration(ctx, graph.StatusProcessed)
	if err != nil {
		return 0, err
	}
	if parallel <= 0 {
		parallel = 1
	}
	rounds := (events + parallel - 1) / parallel
	return mean * time.Duration(rounds), nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS event_outcomes (
    id          BIGSERIAL PRIMARY KEY,
    event_id    BIGINT NOT NULL,
    status      TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    hits        BIGINT NOT NULL,
    input_edges BIGINT NOT NULL,
    error       TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const insertSQL = `
INSERT INTO event_outcomes (event_id, status, duration_ms, hits, input_edges, error)
VALUES ($1, $2, $3, $4, $5, $6);
`

const meanSQL = `
SELECT COALESCE(AVG(duration_ms), 0)::float8
FROM event_outcomes
WHERE status = $1;
`
