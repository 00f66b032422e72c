package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobmill_jobs (
			id, type, status, priority, params, result,
			target_id, principal_id,
			scheduled_at, created_at, started_at, completed_at,
			error_message, timeout_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Type, string(r.Status), r.Priority,
		[]byte(r.Params), []byte(r.Result),
		r.TargetID, r.PrincipalID,
		r.ScheduledAt.UTC(), r.CreatedAt.UTC(),
		nullTime(r.StartedAt), nullTime(r.CompletedAt),
		r.ErrorMessage, r.Timeout.Nanoseconds(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobmill.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobmill/sqlite: create job: %w", err)
	}
	return nil
}

// FindEligible returns up to limit pending records whose scheduled time
// has arrived, highest priority first, oldest first within a priority.
func (s *Store) FindEligible(ctx context.Context, limit int, now time.Time) ([]*job.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobmill_jobs
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("jobmill/sqlite: find eligible: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ClaimJob transitions a record from pending to running with a single
// conditional UPDATE.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobmill_jobs
		SET status = 'running', started_at = ?
		WHERE id = ? AND status = 'pending'`,
		now.UTC(), jobID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("jobmill/sqlite: claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobmill/sqlite: claim job rows: %w", err)
	}
	return n == 1, nil
}

// CancelPending transitions a record from pending to cancelled.
func (s *Store) CancelPending(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobmill_jobs
		SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status = 'pending'`,
		now.UTC(), jobID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("jobmill/sqlite: cancel pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobmill/sqlite: cancel pending rows: %w", err)
	}
	return n == 1, nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobmill_jobs
		WHERE id = ?`,
		jobID.String(),
	)

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobmill.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobmill/sqlite: get job: %w", err)
	}
	return r, nil
}

// UpdateJob persists changes to an existing record.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobmill_jobs SET
			type = ?, status = ?, priority = ?,
			params = ?, result = ?,
			target_id = ?, principal_id = ?,
			scheduled_at = ?, started_at = ?, completed_at = ?,
			error_message = ?, timeout_ns = ?
		WHERE id = ?`,
		r.Type, string(r.Status), r.Priority,
		[]byte(r.Params), []byte(r.Result),
		r.TargetID, r.PrincipalID,
		r.ScheduledAt.UTC(), nullTime(r.StartedAt), nullTime(r.CompletedAt),
		r.ErrorMessage, r.Timeout.Nanoseconds(),
		r.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("jobmill/sqlite: update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobmill/sqlite: update job rows: %w", err)
	}
	if n == 0 {
		return jobmill.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns records in the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobmill_jobs
		WHERE status = ?
		ORDER BY created_at DESC`
	args := []any{string(status)}

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET.
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobmill/sqlite: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountJobs returns the number of records matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM jobmill_jobs WHERE 1=1`
	args := []any{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.PrincipalID != "" {
		query += " AND principal_id = ?"
		args = append(args, opts.PrincipalID)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("jobmill/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// DeleteFinishedBefore removes records in the given statuses finished at
// or before cutoff.
func (s *Store) DeleteFinishedBefore(ctx context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	args = append(args, cutoff.UTC())

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM jobmill_jobs
		WHERE status IN (%s)
		  AND completed_at IS NOT NULL
		  AND completed_at <= ?`,
		strings.Join(placeholders, ",")),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("jobmill/sqlite: delete finished: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("jobmill/sqlite: delete finished rows: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a single record row.
func scanRecord(row rowScanner) (*job.Record, error) {
	var (
		r           job.Record
		idStr       string
		statusStr   string
		params      []byte
		result      []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
		timeoutNs   int64
	)
	err := row.Scan(
		&idStr, &r.Type, &statusStr, &r.Priority, &params, &result,
		&r.TargetID, &r.PrincipalID,
		&r.ScheduledAt, &r.CreatedAt, &startedAt, &completedAt,
		&r.ErrorMessage, &timeoutNs,
	)
	if err != nil {
		return nil, err
	}

	r.Status = job.Status(statusStr)
	r.Params = params
	r.Result = result
	r.Timeout = time.Duration(timeoutNs)
	if startedAt.Valid {
		t := startedAt.Time
		r.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("jobmill/sqlite: parse job id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	return &r, nil
}

// collectRecords collects all records from query rows.
func collectRecords(rows *sql.Rows) ([]*job.Record, error) {
	var records []*job.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("jobmill/sqlite: scan job row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobmill/sqlite: iterate job rows: %w", err)
	}
	return records, nil
}

// nullTime converts a *time.Time into a driver-friendly value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
