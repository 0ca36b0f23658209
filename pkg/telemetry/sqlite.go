package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteSink persists events to a SQLite database so traces survive process
// restarts. An empty path opens an in-memory database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens the database at path and creates the events table if
// it does not exist yet.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// A single connection keeps writes serialized and keeps the in-memory
	// database alive: every pooled connection to :memory: is a separate DB.
	db.SetMaxOpenConns(1)
	s := &SQLiteSink{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) init() error {
	// timestamp_ns keeps ordering exact; RFC3339 text would lose it once
	// trailing fractional zeros are trimmed.
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			schema TEXT NOT NULL,
			turn_id TEXT,
			session_id TEXT,
			type TEXT NOT NULL,
			timestamp_ns INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			data TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create events table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)",
		"CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ns)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Record(ctx context.Context, ev Event) error {
	ev = stamp(ev)

	var data any
	if len(ev.Data) > 0 {
		encoded, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		data = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO events (id, schema, turn_id, session_id, type, timestamp_ns, duration_ns, error, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Schema, ev.TurnID, ev.SessionID, string(ev.Type), ev.Timestamp.UnixNano(), int64(ev.Duration), ev.Error, data)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByTurn returns the stored events for one turn, oldest first.
func (s *SQLiteSink) ByTurn(ctx context.Context, turnID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema, turn_id, session_id, type, timestamp_ns, duration_ns, error, data
		FROM events WHERE turn_id = ? ORDER BY timestamp_ns ASC
	`, turnID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent returns the latest n events, newest first. Non-positive n defaults
// to 50.
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema, turn_id, session_id, type, timestamp_ns, duration_ns, error, data
		FROM events ORDER BY timestamp_ns DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			ev        Event
			typ       string
			tsNano    int64
			duration  int64
			sessionID sql.NullString
			errText   sql.NullString
			data      sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Schema, &ev.TurnID, &sessionID, &typ, &tsNano, &duration, &errText, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = EventType(typ)
		ev.Timestamp = time.Unix(0, tsNano).UTC()
		ev.Duration = time.Duration(duration)
		ev.SessionID = sessionID.String
		ev.Error = errText.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
