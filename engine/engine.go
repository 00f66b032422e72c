// Package engine wires the queue coordinator, job registry, dispatcher,
// and retention sweeper into one runnable facade. Most applications
// interact with jobmill exclusively through an Engine.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
	"github.com/jobmill/jobmill/middleware"
	"github.com/jobmill/jobmill/observability"
	"github.com/jobmill/jobmill/retention"
	"github.com/jobmill/jobmill/tuning"
	"github.com/jobmill/jobmill/worker"
)

// meterScope is the instrumentation scope for engine-built telemetry.
const meterScope = "github.com/jobmill/jobmill"

// Option configures the engine build.
type Option func(*buildConfig)

type buildConfig struct {
	middlewares    []middleware.Middleware
	hooks          []hook.Hook
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMiddleware appends middlewares inside the default stack, closest
// to the handler.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *buildConfig) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// WithHook registers additional lifecycle hooks.
func WithHook(hs ...hook.Hook) Option {
	return func(c *buildConfig) {
		c.hooks = append(c.hooks, hs...)
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for job
// metrics. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *buildConfig) { c.meterProvider = mp }
}

// WithTracerProvider sets the OpenTelemetry tracer provider for job
// spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *buildConfig) { c.tracerProvider = tp }
}

// Engine is the assembled queue: registry, dispatcher, sweeper, and the
// enqueue and control surface over them.
type Engine struct {
	queue      *jobmill.Queue
	store      job.Store
	registry   *job.Registry
	hooks      *hook.Registry
	tuning     *tuning.Manager
	dispatcher *worker.Dispatcher
	chain      middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
}

// Build assembles an Engine on top of a configured Queue. The queue's
// store must implement job.Store.
func Build(q *jobmill.Queue, opts ...Option) (*Engine, error) {
	storer := q.Store()
	if storer == nil {
		return nil, jobmill.ErrNoStore
	}
	store, ok := storer.(job.Store)
	if !ok {
		return nil, fmt.Errorf("jobmill: store %T does not implement job.Store", storer)
	}

	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := q.Logger()
	qc := q.Config()

	hooks := hook.NewRegistry(logger)
	if cfg.meterProvider != nil {
		hooks.Register(observability.NewMetricsHookWithMeter(cfg.meterProvider.Meter(meterScope)))
	} else {
		hooks.Register(observability.NewMetricsHook())
	}
	for _, h := range cfg.hooks {
		hooks.Register(h)
	}

	tracingMW := middleware.Tracing()
	if cfg.tracerProvider != nil {
		tracingMW = middleware.TracingWithTracer(cfg.tracerProvider.Tracer(meterScope))
	}
	metricsMW := middleware.Metrics()
	if cfg.meterProvider != nil {
		metricsMW = middleware.MetricsWithMeter(cfg.meterProvider.Meter(meterScope))
	}
	stack := []middleware.Middleware{
		middleware.Recover(logger),
		tracingMW,
		metricsMW,
		middleware.Logging(logger),
	}
	stack = append(stack, cfg.middlewares...)

	registry := job.NewRegistry()
	tun := tuning.NewManager(qc.MaxConcurrent, qc.PollInterval)
	executor := worker.NewExecutor(registry, store, hooks, logger, stack...)
	sweeper := retention.NewSweeper(store, hooks, qc.RetentionWindow, qc.SweepInterval, logger)
	dispatcher := worker.NewDispatcher(store, executor, hooks, tun, logger,
		worker.WithMaintenance(sweeper))

	q.SetDispatcher(dispatcher)
	q.SetHooks(hooks)

	return &Engine{
		queue:      q,
		store:      store,
		registry:   registry,
		hooks:      hooks,
		tuning:     tun,
		dispatcher: dispatcher,
		chain:      middleware.Chain(stack...),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// RegisterJob adds a handler to the registry. Re-registering a name
// replaces the previous handler.
func (e *Engine) RegisterJob(h job.Handler) {
	e.registry.Register(h)
}

// Register adds a typed job definition to an engine's registry.
func Register[T any](e *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(e.registry, def)
}

// JobTypes lists the registered job type names, sorted.
func (e *Engine) JobTypes() []string {
	return e.registry.Names()
}

// Start migrates the store and begins polling for jobs.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.queue.Store().Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %v", jobmill.ErrMigrationFailed, err)
	}
	return e.queue.Start(ctx)
}

// Stop shuts the queue down. When ctx carries no deadline the
// configured shutdown timeout applies.
func (e *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queue.Config().ShutdownTimeout)
		defer cancel()
	}
	return e.queue.Stop(ctx)
}

// CreateJob persists a new pending job of the given registered type.
// params is JSON-marshalled into the record; a json.RawMessage or nil
// passes through unchanged.
func (e *Engine) CreateJob(ctx context.Context, jobType string, params any, opts ...job.Option) (*job.Record, error) {
	if _, ok := e.registry.Get(jobType); !ok {
		return nil, fmt.Errorf("%w: %q", jobmill.ErrUnknownJobType, jobType)
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("jobmill: marshal params for %q: %w", jobType, err)
	}

	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	now := e.now().UTC()
	scheduledAt := o.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	rec := &job.Record{
		ID:          id.NewJobID(),
		Type:        jobType,
		Status:      job.StatusPending,
		Priority:    o.Priority,
		Params:      raw,
		TargetID:    o.TargetID,
		PrincipalID: o.PrincipalID,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		Timeout:     o.Timeout,
	}
	if err := e.store.CreateJob(ctx, rec); err != nil {
		return nil, err
	}
	e.hooks.EmitJobEnqueued(ctx, rec)

	e.logger.Debug("job enqueued",
		slog.String("job_id", rec.ID.String()),
		slog.String("job_type", jobType),
		slog.Int("priority", rec.Priority))
	return rec, nil
}

// PerformLater enqueues a job for the dispatcher to pick up on its next
// eligible tick. It is CreateJob under its queue-idiomatic name.
func (e *Engine) PerformLater(ctx context.Context, jobType string, params any, opts ...job.Option) (*job.Record, error) {
	return e.CreateJob(ctx, jobType, params, opts...)
}

// PerformAt enqueues a job deferred until the given instant.
func (e *Engine) PerformAt(ctx context.Context, at time.Time, jobType string, params any, opts ...job.Option) (*job.Record, error) {
	opts = append(opts, job.WithScheduledAt(at))
	return e.CreateJob(ctx, jobType, params, opts...)
}

// PerformNow runs a job synchronously on the caller's goroutine,
// bypassing both the queue and the store: no record is persisted and
// the handler's result is returned directly. Validation still applies,
// and a timeout option still arms the automatic cancellation deadline.
func (e *Engine) PerformNow(ctx context.Context, jobType string, params any, opts ...job.Option) (any, error) {
	handler, ok := e.registry.Get(jobType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", jobmill.ErrUnknownJobType, jobType)
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("jobmill: marshal params for %q: %w", jobType, err)
	}
	if v, ok := handler.(job.Validator); ok && !v.Validate(raw) {
		return nil, fmt.Errorf("jobmill: parameters rejected by %s validator", jobType)
	}

	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// Ephemeral record so the middleware stack sees the same shape as a
	// dispatched job. It never touches the store.
	now := e.now().UTC()
	started := now
	rec := &job.Record{
		ID:          id.NewJobID(),
		Type:        jobType,
		Status:      job.StatusRunning,
		Priority:    o.Priority,
		Params:      raw,
		TargetID:    o.TargetID,
		PrincipalID: o.PrincipalID,
		ScheduledAt: now,
		CreatedAt:   now,
		StartedAt:   &started,
		Timeout:     o.Timeout,
	}

	runCtx, ctrl := worker.NewCancelController(ctx, o.Timeout)
	defer ctrl.Release()

	var result any
	err = e.chain(runCtx, rec, func(ctx context.Context) error {
		var perr error
		result, perr = handler.Perform(ctx, raw)
		return perr
	})
	return result, err
}

// GetJob retrieves a record by ID.
func (e *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return e.store.GetJob(ctx, jobID)
}

// ListJobs returns records in the given status, newest first.
func (e *Engine) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	return e.store.ListJobsByStatus(ctx, status, opts)
}

// CancelJob cancels a job wherever it currently is. A running job
// receives its cooperative cancellation signal; a pending job moves
// straight to cancelled. Returns false when the job is already terminal
// or unknown.
func (e *Engine) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	if e.dispatcher.CancelActive(jobID.String()) {
		return true, nil
	}
	cancelled, err := e.store.CancelPending(ctx, jobID, e.now().UTC())
	if err != nil {
		return false, err
	}
	if cancelled {
		if rec, err := e.store.GetJob(ctx, jobID); err == nil {
			e.hooks.EmitJobCancelled(ctx, rec)
		}
		return true, nil
	}
	return false, nil
}

// ExecuteJobByID starts a pending job immediately, outside the
// dispatcher's concurrency budget. The claim is still atomic, so a
// concurrent dispatcher tick cannot double-run the job. Returns false
// when the job is not pending.
func (e *Engine) ExecuteJobByID(ctx context.Context, jobID id.JobID) (bool, error) {
	rec, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	now := e.now().UTC()
	claimed, err := e.store.ClaimJob(ctx, jobID, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	started := now
	rec.Status = job.StatusRunning
	rec.StartedAt = &started
	e.dispatcher.Launch(rec)
	return true, nil
}

// Concurrency describes the dispatcher's budget at a point in time.
type Concurrency struct {
	Max       int `json:"max"`
	Current   int `json:"current"`
	Available int `json:"available"`
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	IsRunning    bool          `json:"is_running"`
	JobTypes     []string      `json:"job_types"`
	Concurrency  Concurrency   `json:"concurrency"`
	RunningJobs  []string      `json:"running_jobs"`
	PollInterval time.Duration `json:"poll_interval"`
}

// Status reports the engine's current state. Current counts budgeted
// slots only; RunningJobs includes out-of-band executions too.
func (e *Engine) Status() Status {
	max, interval := e.tuning.Snapshot()
	current := e.dispatcher.BudgetInUse()
	available := max - current
	if available < 0 {
		available = 0
	}
	return Status{
		IsRunning: e.dispatcher.IsRunning(),
		JobTypes:  e.registry.Names(),
		Concurrency: Concurrency{
			Max:       max,
			Current:   current,
			Available: available,
		},
		RunningJobs:  e.dispatcher.ActiveIDs(),
		PollInterval: interval,
	}
}

// Stats holds per-status record counts.
type Stats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Stats counts records by status.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	for _, pair := range []struct {
		status job.Status
		dst    *int64
	}{
		{job.StatusPending, &s.Pending},
		{job.StatusRunning, &s.Running},
		{job.StatusCompleted, &s.Completed},
		{job.StatusFailed, &s.Failed},
		{job.StatusCancelled, &s.Cancelled},
	} {
		n, err := e.store.CountJobs(ctx, job.CountOpts{Status: pair.status})
		if err != nil {
			return Stats{}, err
		}
		*pair.dst = n
	}
	return s, nil
}

// SetPrincipalSettings applies runtime tuning for a principal. Changes
// take effect on the dispatcher's next tick.
func (e *Engine) SetPrincipalSettings(s tuning.Settings) {
	e.tuning.Apply(s)
	e.logger.Info("principal settings applied",
		slog.String("principal_id", s.PrincipalID),
		slog.Int("max_concurrent", s.MaxConcurrentJobs),
		slog.Duration("poll_interval", s.PollInterval))
}

// PrincipalSettings returns the last settings applied for a principal.
func (e *Engine) PrincipalSettings(principalID string) (tuning.Settings, bool) {
	return e.tuning.PrincipalSettings(principalID)
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(params)
	}
}
