// Package history keeps a journal of print job outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Entry is one finished print job.
type Entry struct {
	ID        string
	Kind      string
	Device    string
	Success   bool
	ErrorKind string
	Detail    string
	StartedAt time.Time
	Duration  time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	device      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_started_at ON jobs (started_at);
`

// Store is a SQLite-backed job journal.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the journal location used when none is configured.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting config directory: %w", err)
	}
	return filepath.Join(dir, "printbridge", "history.db"), nil
}

// Open opens or creates the journal at path. An empty path uses DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record appends an entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, device, success, error_kind, detail, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Device, e.Success, e.ErrorKind, e.Detail,
		e.StartedAt.UnixNano(), e.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording job %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, device, success, error_kind, detail, started_at, duration_ms
		 FROM jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Device, &e.Success, &e.ErrorKind, &e.Detail, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		e.StartedAt = time.Unix(0, startedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
