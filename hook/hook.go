// Package hook defines the lifecycle hook system for jobmill.
// Hooks are notified of lifecycle events (job enqueued, completed,
// cancelled, etc.) and can react to them: logging, metrics, auditing.
//
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/jobmill/jobmill/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// JobEnqueued is called after a record is successfully persisted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, r *job.Record) error
}

// JobStarted is called when an execution task begins running a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, r *job.Record) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error
}

// JobFailed is called when a job fails.
type JobFailed interface {
	OnJobFailed(ctx context.Context, r *job.Record, err error) error
}

// JobCancelled is called when a job reaches the cancelled state, whether
// before dispatch or by a handler observing its signal.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, r *job.Record) error
}

// SweepCompleted is called after a retention sweep finishes.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, deleted int64) error
}

// Shutdown is called when the queue stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
