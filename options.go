package jobmill

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Queue.
type Option func(*Queue) error

// Storer is the minimal store interface held by the Queue. It covers
// lifecycle operations only. The job.Store interface is asserted from it
// in the engine layer, which avoids an import cycle between the root
// package and the job package.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// dispatchRunner is an internal interface for dispatcher lifecycle.
type dispatchRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle hook events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Queue is the coordinator that owns the store handle, configuration, and
// logger for one queue instance. Multiple independent Queues can be
// constructed for isolated testing.
//
// Create one with New() and functional options, then use engine.Build to
// wire the dispatcher, registry, and sweeper on top of it.
type Queue struct {
	config Config
	logger *slog.Logger
	store  Storer
	hooks  hookEmitter
	disp   dispatchRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Queue with the given options.
func New(opts ...Option) (*Queue, error) {
	q := &Queue{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Logger returns the queue's logger.
func (q *Queue) Logger() *slog.Logger { return q.logger }

// Store returns the queue's store.
func (q *Queue) Store() Storer { return q.store }

// Config returns a copy of the queue's configuration.
func (q *Queue) Config() Config { return q.config }

// SetDispatcher sets the dispatcher (called by the engine package).
func (q *Queue) SetDispatcher(d dispatchRunner) { q.disp = d }

// SetHooks sets the hook emitter (called by the engine package).
func (q *Queue) SetHooks(h hookEmitter) { q.hooks = h }

// Start begins job processing.
func (q *Queue) Start(ctx context.Context) error {
	if q.disp == nil {
		return ErrNoStore
	}
	if err := q.disp.Start(ctx); err != nil {
		return err
	}
	q.started = true
	return nil
}

// Stop gracefully shuts down the queue.
func (q *Queue) Stop(ctx context.Context) error {
	if q.disp != nil && q.started {
		if err := q.disp.Stop(ctx); err != nil {
			q.logger.Error("dispatcher stop error", "error", err)
		}
	}
	if q.hooks != nil {
		q.hooks.EmitShutdown(ctx)
	}
	if q.store != nil {
		return q.store.Close()
	}
	return nil
}

// WithMaxConcurrent sets the maximum number of simultaneously running jobs.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) error {
		q.config.MaxConcurrent = n
		return nil
	}
}

// WithPollInterval sets how often the dispatcher polls for eligible jobs.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) error {
		q.config.PollInterval = d
		return nil
	}
}

// WithRetentionWindow sets how long finished jobs are kept before deletion.
func WithRetentionWindow(d time.Duration) Option {
	return func(q *Queue) error {
		q.config.RetentionWindow = d
		return nil
	}
}

// WithLogger sets the structured logger for the queue.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) error {
		q.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the queue.
// The store must implement Storer at minimum; typically it also implements
// job.Store, which the engine layer asserts.
func WithStore(s Storer) Option {
	return func(q *Queue) error {
		q.store = s
		return nil
	}
}
