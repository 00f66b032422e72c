// Package sqlite provides a SQLite job store built on database/sql and
// mattn/go-sqlite3. Suited to single-process deployments that want
// durability without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/job"
)

// Ensure Store satisfies the store contracts at compile time.
var (
	_ job.Store      = (*Store)(nil)
	_ jobmill.Storer = (*Store)(nil)
)

// Store is a SQLite implementation of the job store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// ephemeral database. Connections are capped at one writer because
// SQLite serializes writes anyway; busy_timeout covers the rest.
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("jobmill/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromDB creates a store from an existing *sql.DB. Close closes the
// handle either way.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobmill_jobs (
			id              TEXT PRIMARY KEY,
			type            TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			priority        INTEGER NOT NULL DEFAULT 0,
			params          BLOB,
			result          BLOB,
			target_id       TEXT NOT NULL DEFAULT '',
			principal_id    TEXT NOT NULL DEFAULT '',
			scheduled_at    TIMESTAMP NOT NULL,
			created_at      TIMESTAMP NOT NULL,
			started_at      TIMESTAMP,
			completed_at    TIMESTAMP,
			error_message   TEXT NOT NULL DEFAULT '',
			timeout_ns      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobmill_jobs_claim
			ON jobmill_jobs (status, priority DESC, created_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobmill_jobs_retention
			ON jobmill_jobs (status, completed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("jobmill/sqlite: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}
