// Package runlog records unit lifecycle events in the geodatabase
// container, giving each run an auditable trail and later runs a cheap
// way to see what the previous one did.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event names recorded by the pipeline stages.
const (
	EventRunStart = "run_start"
	EventRunEnd   = "run_end"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS ku_event_log_id_seq;`

const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS ku_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('ku_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    unit            VARCHAR NOT NULL,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    message         VARCHAR
);
CREATE INDEX IF NOT EXISTS idx_ku_event_log_unit ON ku_event_log (unit, event_timestamp);
CREATE INDEX IF NOT EXISTS idx_ku_event_log_run ON ku_event_log (run_id);
`

// Entry is one recorded event.
type Entry struct {
	RunID     string
	Unit      string
	Event     string
	Timestamp time.Time
	Message   string
}

// Log writes events for a single run, identified by a fresh run id.
type Log struct {
	db    *sql.DB
	runID string
}

// New initializes the event-log schema in the container and returns a Log
// stamped with a new run id.
func New(db *sql.DB) (*Log, error) {
	for _, stmt := range []string{schemaSequenceSQL, schemaTableSQL} {
		if _, err := db.Exec(stmt); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil, fmt.Errorf("initialize event log schema: %w", err)
		}
	}
	return &Log{db: db, runID: uuid.NewString()}, nil
}

// RunID returns the identifier stamped on this run's events.
func (l *Log) RunID() string { return l.runID }

// Record inserts one event. The empty unit is used for run-level events.
func (l *Log) Record(ctx context.Context, unit, event, message string) error {
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO ku_event_log (run_id, unit, event, event_timestamp, message)
        VALUES (?, ?, ?, ?, ?);`,
		l.runID,
		unit,
		event,
		time.Now().UTC(),
		sql.NullString{String: message, Valid: message != ""},
	)
	if err != nil {
		return fmt.Errorf("record event '%s' for unit '%s': %w", event, unit, err)
	}
	return nil
}

// Latest returns the most recent event for a unit across all runs.
func Latest(ctx context.Context, db *sql.DB, unit string) (Entry, bool, error) {
	row := db.QueryRowContext(ctx, `
        SELECT run_id, unit, event, event_timestamp, coalesce(message, '')
        FROM ku_event_log
        WHERE unit = ?
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;`, unit)

	var e Entry
	if err := row.Scan(&e.RunID, &e.Unit, &e.Event, &e.Timestamp, &e.Message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("query latest event for unit '%s': %w", unit, err)
	}
	return e, true, nil
}

// Tail returns the most recent limit events, newest first.
func Tail(ctx context.Context, db *sql.DB, limit int) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT run_id, unit, event, event_timestamp, coalesce(message, '')
        FROM ku_event_log
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query event log tail: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Unit, &e.Event, &e.Timestamp, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
