package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
)

const jobColumns = `
	id, type, status, priority, params, result,
	target_id, principal_id,
	scheduled_at, created_at, started_at, completed_at,
	error_message, timeout_ns`

// CreateJob persists a new record.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobmill_jobs (
			id, type, status, priority, params, result,
			target_id, principal_id,
			scheduled_at, created_at, started_at, completed_at,
			error_message, timeout_ns
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12,
			$13, $14
		)`,
		r.ID.String(), r.Type, string(r.Status), r.Priority,
		[]byte(r.Params), []byte(r.Result),
		r.TargetID, r.PrincipalID,
		r.ScheduledAt, r.CreatedAt, r.StartedAt, r.CompletedAt,
		r.ErrorMessage, r.Timeout.Nanoseconds(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobmill.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobmill/postgres: create job: %w", err)
	}
	return nil
}

// FindEligible returns up to limit pending records whose scheduled time
// has arrived, highest priority first, oldest first within a priority.
func (s *Store) FindEligible(ctx context.Context, limit int, now time.Time) ([]*job.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobmill_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("jobmill/postgres: find eligible: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ClaimJob transitions a record from pending to running with a single
// conditional UPDATE. The WHERE clause on status makes the claim atomic
// across concurrent dispatchers.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobmill_jobs
		SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'pending'`,
		jobID.String(), now,
	)
	if err != nil {
		return false, fmt.Errorf("jobmill/postgres: claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelPending transitions a record from pending to cancelled.
func (s *Store) CancelPending(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobmill_jobs
		SET status = 'cancelled', completed_at = $2
		WHERE id = $1 AND status = 'pending'`,
		jobID.String(), now,
	)
	if err != nil {
		return false, fmt.Errorf("jobmill/postgres: cancel pending: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobmill_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobmill.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobmill/postgres: get job: %w", err)
	}
	return r, nil
}

// UpdateJob persists changes to an existing record.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobmill_jobs SET
			type = $2, status = $3, priority = $4,
			params = $5, result = $6,
			target_id = $7, principal_id = $8,
			scheduled_at = $9, started_at = $10, completed_at = $11,
			error_message = $12, timeout_ns = $13
		WHERE id = $1`,
		r.ID.String(), r.Type, string(r.Status), r.Priority,
		[]byte(r.Params), []byte(r.Result),
		r.TargetID, r.PrincipalID,
		r.ScheduledAt, r.StartedAt, r.CompletedAt,
		r.ErrorMessage, r.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("jobmill/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobmill.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns records in the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobmill_jobs
		WHERE status = $1
		ORDER BY created_at DESC`
	args := []any{string(status)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobmill/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountJobs returns the number of records matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM jobmill_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.PrincipalID != "" {
		query += fmt.Sprintf(" AND principal_id = $%d", argIdx)
		args = append(args, opts.PrincipalID)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("jobmill/postgres: count jobs: %w", err)
	}
	return count, nil
}

// DeleteFinishedBefore removes records in the given statuses finished at
// or before cutoff.
func (s *Store) DeleteFinishedBefore(ctx context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobmill_jobs
		WHERE status = ANY($1)
		  AND completed_at IS NOT NULL
		  AND completed_at <= $2`,
		vals, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("jobmill/postgres: delete finished: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanRecord scans a single record row.
func scanRecord(row pgx.Row) (*job.Record, error) {
	var (
		r         job.Record
		idStr     string
		statusStr string
		params    []byte
		result    []byte
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &r.Type, &statusStr, &r.Priority, &params, &result,
		&r.TargetID, &r.PrincipalID,
		&r.ScheduledAt, &r.CreatedAt, &r.StartedAt, &r.CompletedAt,
		&r.ErrorMessage, &timeoutNs,
	)
	if err != nil {
		return nil, err
	}

	r.Status = job.Status(statusStr)
	r.Params = params
	r.Result = result
	r.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("jobmill/postgres: parse job id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	return &r, nil
}

// collectRecords collects all records from query rows.
func collectRecords(rows pgx.Rows) ([]*job.Record, error) {
	var records []*job.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("jobmill/postgres: scan job row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobmill/postgres: iterate job rows: %w", err)
	}
	return records, nil
}

// isDuplicateKey checks for a PostgreSQL unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
