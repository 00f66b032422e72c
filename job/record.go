package job

import (
	"encoding/json"
	"time"

	"github.com/jobmill/jobmill/id"
)

// Status represents the lifecycle state of a job record.
//
// The string values are the durable representation: stores persist and
// filter on them directly, so they must never change.
type Status string

const (
	// StatusPending means the job is waiting to be claimed by the dispatcher.
	StatusPending Status = "pending"
	// StatusRunning means an execution task is currently running the job.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled, either before dispatch
	// or by a handler observing its cancellation signal.
	StatusCancelled Status = "cancelled"
)

// TerminalStatuses lists the states a record never leaves.
var TerminalStatuses = []Status{StatusCompleted, StatusFailed, StatusCancelled}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Record is the unit of work persisted in the store.
type Record struct {
	ID     id.JobID        `json:"id"`
	Type   string          `json:"type"`
	Status Status          `json:"status"`
	// Priority determines claim ordering. Higher values dispatch first;
	// ties break by CreatedAt ascending.
	Priority int             `json:"priority"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`

	// TargetID correlates the job with the entity it operates on.
	TargetID string `json:"target_id,omitempty"`
	// PrincipalID identifies the owning user or tenant.
	PrincipalID string `json:"principal_id,omitempty"`

	// ScheduledAt is the earliest eligible dispatch time.
	ScheduledAt time.Time  `json:"scheduled_at"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string        `json:"error_message,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// Eligible reports whether the record may be claimed at the given instant.
func (r *Record) Eligible(now time.Time) bool {
	return r.Status == StatusPending && !r.ScheduledAt.After(now)
}
