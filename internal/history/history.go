// Package history keeps the append-only local record of every emitted
// event. The record happens regardless of transmissibility: local-only
// events (no project uuid) appear here and nowhere else.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/chutedev/chute/internal/envelope"
)

// Entry is one recorded emit.
type Entry struct {
	EventID      string
	EventType    envelope.Type
	AggregateID  string
	LamportClock uint64
	Timestamp    string
	LocalOnly    bool
	Event        *envelope.Event
}

// Log is the history log over the shared chute database.
type Log struct {
	db *sql.DB
}

// New creates a history log. The history table must already exist
// (store.Open applies the schema).
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append records an emitted event. Idempotent on event_id so a retried
// emit path cannot double-record.
func (l *Log) Append(ctx context.Context, ev *envelope.Event, localOnly bool) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("history append %s: marshal: %w", ev.EventID, err)
	}

	flag := 0
	if localOnly {
		flag = 1
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO history (event_id, event_type, aggregate_id, lamport_clock, timestamp, local_only, envelope)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, ev.EventID, string(ev.EventType), ev.AggregateID, ev.LamportClock, ev.Timestamp, flag, string(raw))
	if err != nil {
		return fmt.Errorf("history append %s: %w", ev.EventID, err)
	}
	return nil
}

// Recent returns the latest n entries, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, aggregate_id, lamport_clock, timestamp, local_only, envelope
		FROM history
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var eventType, raw string
		var flag int
		if err := rows.Scan(&e.EventID, &eventType, &e.AggregateID, &e.LamportClock, &e.Timestamp, &flag, &raw); err != nil {
			return nil, fmt.Errorf("history recent: scan: %w", err)
		}
		e.EventType = envelope.Type(eventType)
		e.LocalOnly = flag == 1
		var ev envelope.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("history recent: unmarshal envelope: %w", err)
		}
		e.Event = &ev
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	return entries, nil
}

// ForAggregate returns all entries for one aggregate, oldest first.
func (l *Log) ForAggregate(ctx context.Context, aggregateID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, aggregate_id, lamport_clock, timestamp, local_only, envelope
		FROM history
		WHERE aggregate_id = ?
		ORDER BY id ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("history for aggregate: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var eventType, raw string
		var flag int
		if err := rows.Scan(&e.EventID, &eventType, &e.AggregateID, &e.LamportClock, &e.Timestamp, &flag, &raw); err != nil {
			return nil, fmt.Errorf("history for aggregate: scan: %w", err)
		}
		e.EventType = envelope.Type(eventType)
		e.LocalOnly = flag == 1
		var ev envelope.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("history for aggregate: unmarshal envelope: %w", err)
		}
		e.Event = &ev
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history for aggregate: %w", err)
	}
	return entries, nil
}
