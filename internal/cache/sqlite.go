// Package cache is the persistent call cache: completed task invocations
// keyed by fingerprint, with a keyed lock to serialize concurrent executions
// of identical invocations.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/me/wdlrun/internal/logging"
)

// Entry is one cached invocation. Outputs hold the canonical outputs JSON;
// the task runner decodes them against the task's declared output types.
type Entry struct {
	Fingerprint string
	Task        string
	OutputsJSON string
	Attempts    int
	CreatedAt   time.Time
}

// Store is a SQLite-backed call cache.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the cache database at dbPath. Use ":memory:" for
// tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL mode for concurrent readers while a worker stores an entry.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS call_cache (
		fingerprint TEXT PRIMARY KEY,
		task_name   TEXT NOT NULL,
		outputs     TEXT NOT NULL,
		attempts    INTEGER NOT NULL,
		created_at  TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create call_cache: %w", err)
	}

	return &Store{db: db, logger: logging.Component(logger, "cache")}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the entry for a fingerprint. Malformed rows degrade to a
// miss; a broken cache entry must never fail a run.
func (s *Store) Lookup(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	s.logger.Debug("sql", "op", "select", "fingerprint", fingerprint)

	var e Entry
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, task_name, outputs, attempts, created_at
		 FROM call_cache WHERE fingerprint = ?`, fingerprint,
	).Scan(&e.Fingerprint, &e.Task, &e.OutputsJSON, &e.Attempts, &createdAt)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	if !json.Valid([]byte(e.OutputsJSON)) {
		s.logger.Warn("corrupt cache entry, treating as miss", "fingerprint", fingerprint)
		return nil, false, nil
	}
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		s.logger.Warn("corrupt cache timestamp, treating as miss", "fingerprint", fingerprint)
		return nil, false, nil
	}
	return &e, true, nil
}

// Put upserts an entry. The keyed execution lock makes writers for one
// fingerprint single-file, so last-write-wins is deterministic.
func (s *Store) Put(ctx context.Context, e Entry) error {
	s.logger.Debug("sql", "op", "upsert", "fingerprint", e.Fingerprint, "task", e.Task)

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_cache (fingerprint, task_name, outputs, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   task_name = excluded.task_name,
		   outputs = excluded.outputs,
		   attempts = excluded.attempts,
		   created_at = excluded.created_at`,
		e.Fingerprint, e.Task, e.OutputsJSON, e.Attempts, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
