package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/proctorhub/backend/internal/event"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    type TEXT NOT NULL,
    detail TEXT,
    candidate_id TEXT,
    ts TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session_ts ON events(session_id, ts, id);
`

// Store is the append-only durable log of session events, backed by SQLite.
// Rows are never updated or deleted by this service.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the event log at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append durably records one event. Each event is an independent write;
// repeated identical events produce distinct rows.
func (s *Store) Append(ctx context.Context, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Ts.IsZero() {
		return fmt.Errorf("event has no resolved timestamp")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, type, detail, candidate_id, ts) VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID,
		string(ev.Type),
		nullString(ev.Detail),
		nullString(ev.CandidateID),
		ev.Ts.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// QueryBySession returns every event recorded for sessionID ordered by
// timestamp, arrival order breaking ties.
func (s *Store) QueryBySession(ctx context.Context, sessionID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, type, detail, candidate_id, ts FROM events WHERE session_id = ? ORDER BY ts, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev        event.Event
			detail    sql.NullString
			candidate sql.NullString
			ts        string
		)
		if err := rows.Scan(&ev.SessionID, &ev.Type, &detail, &candidate, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Detail = detail.String
		ev.CandidateID = candidate.String
		ev.Ts, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", ts, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
