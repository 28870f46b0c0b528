// Package ledger is the durable, uniquely-keyed record of every payment event
// ever received. The primary-key constraint on event_id is the only
// serialization point between concurrent deliveries of the same event.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/seamark/payrecon/internal/domain"
	"github.com/seamark/payrecon/internal/event"
)

const pgUniqueViolation = "23505"

// Ledger persists payment events in Postgres.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
}

// New creates a Ledger over db.
func New(db *sql.DB, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{db: db, log: log}
}

// EnsureRecord inserts a row for ev, keyed by its provider event id. When the
// insert loses to an earlier delivery, the existing row is fetched instead and
// its processed state reported. No application-level locking is involved.
func (l *Ledger) EnsureRecord(ctx context.Context, ev *event.Event) (alreadyProcessed bool, err error) {
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO payment_events (event_id, event_type, provider_created_at, payload)
		 VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.Type, ev.CreatedAt, []byte(ev.Data))
	if err == nil {
		return false, nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgUniqueViolation {
		return false, domain.Wrap(domain.EUNAVAILABLE, err, "event ledger insert failed")
	}

	var processedAt sql.NullTime
	row := l.db.QueryRowContext(ctx,
		`SELECT processed_at FROM payment_events WHERE event_id = $1`, ev.ID)
	if err := row.Scan(&processedAt); err != nil {
		return false, domain.Wrap(domain.EUNAVAILABLE, err, "event ledger fetch failed")
	}
	return processedAt.Valid, nil
}

// MarkProcessed records the final outcome for an event. Failures here are
// logged and swallowed so bookkeeping can never mask the primary outcome
// already delivered to the caller.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID string, processedAt time.Time, procErr string) {
	_, err := l.db.ExecContext(ctx,
		`UPDATE payment_events SET processed_at = $2, processing_error = NULLIF($3, '')
		 WHERE event_id = $1`,
		eventID, processedAt, procErr)
	if err != nil {
		l.log.Error("failed to mark event processed", "event_id", eventID, "err", err)
	}
}

// Record is a ledger row, used by the order timeline surface.
type Record struct {
	EventID           string
	Type              string
	ProviderCreatedAt time.Time
	ProcessedAt       *time.Time
	ProcessingError   string
}

// RecentForType returns the latest rows of a given event type, newest first.
func (l *Ledger) RecentForType(ctx context.Context, eventType string, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT event_id, event_type, provider_created_at, processed_at, COALESCE(processing_error, '')
		 FROM payment_events WHERE event_type = $1
		 ORDER BY provider_created_at DESC LIMIT $2`,
		eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var processedAt sql.NullTime
		if err := rows.Scan(&r.EventID, &r.Type, &r.ProviderCreatedAt, &processedAt, &r.ProcessingError); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if processedAt.Valid {
			t := processedAt.Time
			r.ProcessedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
