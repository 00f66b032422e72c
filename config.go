package jobmill

import "time"

// Config holds configuration for a Queue.
type Config struct {
	// MaxConcurrent is the maximum number of jobs executing simultaneously.
	MaxConcurrent int

	// PollInterval is how often the dispatcher polls for eligible jobs.
	PollInterval time.Duration

	// RetentionWindow is how long finished jobs are kept before the
	// sweeper deletes them.
	RetentionWindow time.Duration

	// SweepInterval is the minimum time between retention sweeps.
	SweepInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   20,
		PollInterval:    100 * time.Millisecond,
		RetentionWindow: 7 * 24 * time.Hour,
		SweepInterval:   time.Hour,
		ShutdownTimeout: 30 * time.Second,
	}
}
