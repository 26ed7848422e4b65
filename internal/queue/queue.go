// Package queue implements the durable offline queue: local storage for
// events awaiting confirmed delivery to the batch-ingest service.
//
// Records are keyed by event_id with idempotent insertion, drained FIFO
// by (timestamp, event_id), and removed only by explicit acknowledgment
// after the server confirms them. Rejections are retained with retry
// bookkeeping; there is no backoff - every sync retries every retained
// record.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chutedev/chute/internal/envelope"
)

// MaxDrain caps the number of events a single batch may carry.
const MaxDrain = 1000

// Record status values.
const (
	StatusPending  = "pending"
	StatusRejected = "rejected"
)

// Record wraps an event with its queue lifecycle state.
type Record struct {
	Event      *envelope.Event
	Status     string
	RetryCount int
	LastError  string
}

// Queue is the durable offline queue over the shared chute database.
//
// Safe under concurrent append while a drain/ack cycle is in flight:
// acknowledgments operate on explicit id sets, never cursor positions,
// and the store's WAL mode covers cross-process access.
type Queue struct {
	db *sql.DB
}

// New creates a queue over the given database. The queue table must
// already exist (store.Open applies the schema).
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue persists an event for transmission. Insertion is idempotent:
// re-enqueueing an event_id already present is a no-op, not an error.
// The event is available to Drain immediately.
func (q *Queue) Enqueue(ctx context.Context, ev *envelope.Event) error {
	if ev.LocalOnly() {
		return fmt.Errorf("enqueue %s: event has no project uuid (local-only)", ev.EventID)
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("enqueue %s: marshal: %w", ev.EventID, err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue (event_id, timestamp, status, retry_count, last_error, envelope)
		VALUES (?, ?, 'pending', 0, '', ?)
		ON CONFLICT(event_id) DO NOTHING
	`, ev.EventID, ev.Timestamp, string(raw))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.EventID, err)
	}
	return nil
}

// Drain returns up to limit records in FIFO order: (timestamp ASC,
// event_id ASC). Records are not removed - removal happens only through
// the Ack methods once the server has confirmed each event. Rejected
// records are drained alongside pending ones (unconditional retry).
//
// A limit <= 0 or > MaxDrain is clamped to MaxDrain.
func (q *Queue) Drain(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > MaxDrain {
		limit = MaxDrain
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT status, retry_count, last_error, envelope
		FROM queue
		ORDER BY timestamp ASC, event_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var raw string
		if err := rows.Scan(&rec.Status, &rec.RetryCount, &rec.LastError, &raw); err != nil {
			return nil, fmt.Errorf("drain: scan: %w", err)
		}
		var ev envelope.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("drain: unmarshal envelope: %w", err)
		}
		rec.Event = &ev
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}
	return records, nil
}

// AckSuccess deletes records the server accepted.
func (q *Queue) AckSuccess(ctx context.Context, eventIDs []string) error {
	return q.deleteByID(ctx, "ack success", eventIDs)
}

// AckDuplicate deletes records the server already had. Duplicate is not
// a failure: the event was delivered, just not by this batch.
func (q *Queue) AckDuplicate(ctx context.Context, eventIDs []string) error {
	return q.deleteByID(ctx, "ack duplicate", eventIDs)
}

// AckRejected retains a rejected record, incrementing its retry count
// and storing the server's reason for the failure report.
func (q *Queue) AckRejected(ctx context.Context, eventID, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue
		SET status = 'rejected', retry_count = retry_count + 1, last_error = ?
		WHERE event_id = ?
	`, reason, eventID)
	if err != nil {
		return fmt.Errorf("ack rejected %s: %w", eventID, err)
	}
	return nil
}

// Len returns the number of queued records (pending and rejected).
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}

// Rejected returns all retained rejected records, FIFO-ordered. Used by
// the failure report.
func (q *Queue) Rejected(ctx context.Context) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT status, retry_count, last_error, envelope
		FROM queue
		WHERE status = 'rejected'
		ORDER BY timestamp ASC, event_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("rejected: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var raw string
		if err := rows.Scan(&rec.Status, &rec.RetryCount, &rec.LastError, &raw); err != nil {
			return nil, fmt.Errorf("rejected: scan: %w", err)
		}
		var ev envelope.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("rejected: unmarshal envelope: %w", err)
		}
		rec.Event = &ev
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rejected: %w", err)
	}
	return records, nil
}

// deleteByID removes records by explicit id set inside one transaction.
func (q *Queue) deleteByID(ctx context.Context, op string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(eventIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM queue WHERE event_id IN (%s)`, placeholders)
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
