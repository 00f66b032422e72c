package job

import (
	"context"
	"time"

	"github.com/jobmill/jobmill/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// PrincipalID filters by owning principal. Empty means all principals.
	PrincipalID string
}

// Store defines the persistence contract for job records. It is the single
// source of truth shared by the dispatcher (claims), execution tasks
// (completion writes), manual operations, and the retention sweeper; its
// conditional-update methods are the only locking the system relies on.
type Store interface {
	// CreateJob persists a new record in pending state.
	CreateJob(ctx context.Context, r *Record) error

	// FindEligible returns up to limit pending records with
	// ScheduledAt <= now, ordered by priority (descending) then
	// CreatedAt (ascending). It does not modify the records.
	FindEligible(ctx context.Context, limit int, now time.Time) ([]*Record, error)

	// ClaimJob atomically transitions a record from pending to running
	// and stamps StartedAt. It returns false when the record is missing
	// or no longer pending, which callers treat as losing the race.
	ClaimJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error)

	// CancelPending atomically transitions a record from pending to
	// cancelled and stamps CompletedAt. Returns false when the record is
	// missing or not pending.
	CancelPending(ctx context.Context, jobID id.JobID, now time.Time) (bool, error)

	// GetJob retrieves a record by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// UpdateJob persists changes to an existing record.
	UpdateJob(ctx context.Context, r *Record) error

	// ListJobsByStatus returns records matching the given status, newest
	// first.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Record, error)

	// CountJobs returns the number of records matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// DeleteFinishedBefore removes records whose status is in statuses and
	// whose CompletedAt is at or before cutoff, returning how many were
	// deleted. Statuses are compared by their stable string values.
	DeleteFinishedBefore(ctx context.Context, statuses []Status, cutoff time.Time) (int64, error)
}
