package job

import "time"

// Options configures per-job enqueue behavior.
type Options struct {
	// Priority determines claim ordering. Higher values dispatch first.
	Priority int

	// Timeout is the deadline after which the job's cancellation signal
	// fires automatically. Zero means no deadline.
	Timeout time.Duration

	// ScheduledAt defers the job to a future instant. Zero means eligible
	// immediately.
	ScheduledAt time.Time

	// TargetID correlates the job with the entity it operates on.
	TargetID string

	// PrincipalID identifies the owning user or tenant.
	PrincipalID string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Priority: 0,
	}
}

// Option is a functional option for configuring an enqueued job.
type Option func(*Options)

// WithPriority sets the job priority. Higher values dispatch first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the deadline after which cancellation is requested
// automatically.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithScheduledAt defers the job until the given instant.
func WithScheduledAt(t time.Time) Option {
	return func(o *Options) {
		o.ScheduledAt = t
	}
}

// WithTargetID associates the job with the entity it operates on.
func WithTargetID(id string) Option {
	return func(o *Options) {
		o.TargetID = id
	}
}

// WithPrincipalID records the owning user or tenant.
func WithPrincipalID(id string) Option {
	return func(o *Options) {
		o.PrincipalID = id
	}
}
