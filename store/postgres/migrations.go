package postgres

import (
	"context"
	"fmt"
)

// migration is one named schema change. Applied migrations are recorded
// in jobmill_migrations so re-running Migrate is safe.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "001_create_jobs_table",
		sql: `
			CREATE TABLE IF NOT EXISTS jobmill_jobs (
				id              TEXT PRIMARY KEY,
				type            TEXT NOT NULL,
				status          TEXT NOT NULL DEFAULT 'pending',
				priority        INTEGER NOT NULL DEFAULT 0,
				params          BYTEA,
				result          BYTEA,
				target_id       TEXT NOT NULL DEFAULT '',
				principal_id    TEXT NOT NULL DEFAULT '',
				scheduled_at    TIMESTAMPTZ NOT NULL,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				started_at      TIMESTAMPTZ,
				completed_at    TIMESTAMPTZ,
				error_message   TEXT NOT NULL DEFAULT '',
				timeout_ns      BIGINT NOT NULL DEFAULT 0
			)`,
	},
	{
		name: "002_create_claim_index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_jobmill_jobs_claim
				ON jobmill_jobs (priority DESC, created_at ASC)
				WHERE status = 'pending'`,
	},
	{
		name: "003_create_status_index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_jobmill_jobs_status
				ON jobmill_jobs (status, created_at DESC)`,
	},
	{
		name: "004_create_retention_index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_jobmill_jobs_retention
				ON jobmill_jobs (completed_at)
				WHERE completed_at IS NOT NULL`,
	},
}

// Migrate applies all pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobmill_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("jobmill/postgres: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM jobmill_migrations WHERE name = $1)`,
			m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("jobmill/postgres: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("jobmill/postgres: execute migration %s: %w", m.name, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO jobmill_migrations (name) VALUES ($1)`, m.name,
		); err != nil {
			return fmt.Errorf("jobmill/postgres: record migration %s: %w", m.name, err)
		}

		s.logger.Info("applied migration", "name", m.name)
	}
	return nil
}
