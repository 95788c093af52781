// SPDX-License-Identifier: MIT

package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go driver

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// StoreConfig tunes the SQLite audit store.
type StoreConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	BufferSize   int
}

// DefaultStoreConfig returns the recommended settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
		BufferSize:   256,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL,
	type       TEXT NOT NULL,
	initiator  TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
`

// Store persists audit events in SQLite. Writes are decoupled from the
// pipeline through a buffered channel; when the buffer is full events are
// dropped rather than blocking a request.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	events chan Event
	done   chan struct{}
}

// OpenStore opens (or creates) the audit database at path. WAL mode and
// busy_timeout ride on the DSN so they apply to every pooled connection.
func OpenStore(path string, cfg StoreConfig) (*Store, error) {
	if cfg.BusyTimeout == 0 {
		cfg = DefaultStoreConfig()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: schema failed: %w", err)
	}

	s := &Store{
		db:     db,
		logger: log.WithComponent("audit-store"),
		events: make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// Record implements Sink.
func (s *Store) Record(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("audit buffer full, event dropped")
	}
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for event := range s.events {
		if err := s.insert(event); err != nil {
			s.logger.Error().Err(err).Msg("audit insert failed")
		}
	}
}

func (s *Store) insert(event Event) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_events (timestamp, type, initiator, url, error_kind, detail, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(event.Type),
		event.Initiator,
		event.URL,
		event.ErrorKind,
		event.Detail,
		event.RequestID,
	)
	return err
}

// Query returns the most recent events, newest first, optionally filtered
// by type.
func (s *Store) Query(eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT timestamp, type, initiator, url, error_kind, detail, request_id
		FROM audit_events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query failed: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var events []Event
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(&ts, &e.Type, &e.Initiator, &e.URL, &e.ErrorKind, &e.Detail, &e.RequestID); err != nil {
			return nil, fmt.Errorf("audit: scan failed: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close drains pending events and releases the database.
func (s *Store) Close() error {
	close(s.events)
	<-s.done
	return s.db.Close()
}
