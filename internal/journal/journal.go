// Package journal records completed submissions in a SQLite table.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	method      TEXT NOT NULL,
	path        TEXT NOT NULL,
	status      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_created_at ON executions (created_at);
CREATE INDEX IF NOT EXISTS executions_request_id ON executions (request_id);
`

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 50

// MaxLimit caps Recent.
const MaxLimit = 1000

// Entry is one recorded submission. ID identifies the row; RequestID is the
// caller's request id and may repeat across retries.
type Entry struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id,omitempty"`
	Action    string        `json:"action"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Journal is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %q: %w", path, err)
	}
	// One connection: SQLite has a single writer and :memory: is per connection.
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, _ = db.Exec("PRAGMA journal_mode=WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e. An empty ID gets a fresh UUID and a zero CreatedAt is
// set to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO executions (id, request_id, action, method, path, status, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Action, e.Method, e.Path, e.Status, e.Duration.Milliseconds(), e.Error, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording execution %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, request_id, action, method, path, status, duration_ms, error, created_at
		 FROM executions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			createdMS  int64
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Action, &e.Method, &e.Path, &e.Status, &durationMS, &e.Error, &createdMS); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdMS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
