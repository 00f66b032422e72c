package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/job"
	"github.com/jobmill/jobmill/middleware"
)

// maxErrorMessageLen bounds the failure message persisted on a record.
const maxErrorMessageLen = 1024

// Executor runs a single claimed job through the middleware chain and
// writes the terminal state back to the store. It owns the mapping from
// handler outcome to record state: success, failure, or cancelled.
type Executor struct {
	registry *job.Registry
	store    job.Store
	hooks    *hook.Registry
	chain    middleware.Middleware
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor builds an executor. Middlewares wrap the handler in order,
// so the first middleware is the outermost.
func NewExecutor(registry *job.Registry, store job.Store, hooks *hook.Registry, logger *slog.Logger, middlewares ...middleware.Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		store:    store,
		hooks:    hooks,
		chain:    middleware.Chain(middlewares...),
		logger:   logger,
		now:      time.Now,
	}
}

// Execute runs the record's handler and persists the outcome. The
// record must already be claimed (status Running with StartedAt set).
// ctx is the job's run context; terminal writes survive its
// cancellation.
func (e *Executor) Execute(ctx context.Context, r *job.Record, ctrl *CancelController) error {
	started := e.now()

	handler, ok := e.registry.Get(r.Type)
	if !ok {
		e.logger.Error("no handler registered for job type",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type))
		return e.finishFailed(ctx, r, started, fmt.Errorf("no handler registered for job type %q", r.Type))
	}

	if v, ok := handler.(job.Validator); ok && !v.Validate(r.Params) {
		return e.finishFailed(ctx, r, started, fmt.Errorf("parameters rejected by %s validator", r.Type))
	}

	var result any
	err := e.chain(ctx, r, func(ctx context.Context) error {
		var perr error
		result, perr = handler.Perform(ctx, r.Params)
		return perr
	})

	if err != nil {
		if cancelObserved(ctrl, err) {
			return e.finishCancelled(ctx, r, started)
		}
		return e.finishFailed(ctx, r, started, err)
	}
	return e.finishCompleted(ctx, r, started, result)
}

// cancelObserved reports whether the handler error is the cooperative
// response to a cancellation request. An unrelated context error from,
// say, an upstream call the handler made with its own deadline still
// counts as a failure unless cancellation was actually requested.
func cancelObserved(ctrl *CancelController, err error) bool {
	if ctrl == nil || !ctrl.Requested() {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Executor) finishCompleted(ctx context.Context, r *job.Record, started time.Time, result any) error {
	r.Status = job.StatusCompleted
	r.ErrorMessage = ""
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			e.logger.Warn("job result not serializable, dropping",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()))
		} else {
			r.Result = raw
		}
	}
	if err := e.writeTerminal(ctx, r); err != nil {
		return err
	}
	e.hooks.EmitJobCompleted(context.WithoutCancel(ctx), r, e.now().Sub(started))
	return nil
}

func (e *Executor) finishFailed(ctx context.Context, r *job.Record, started time.Time, cause error) error {
	r.Status = job.StatusFailed
	r.ErrorMessage = truncateError(cause)
	if err := e.writeTerminal(ctx, r); err != nil {
		return err
	}
	e.hooks.EmitJobFailed(context.WithoutCancel(ctx), r, cause)
	return nil
}

func (e *Executor) finishCancelled(ctx context.Context, r *job.Record, started time.Time) error {
	r.Status = job.StatusCancelled
	if err := e.writeTerminal(ctx, r); err != nil {
		return err
	}
	e.hooks.EmitJobCancelled(context.WithoutCancel(ctx), r)
	return nil
}

// writeTerminal persists the terminal record. The run context may
// already be cancelled, so the write uses a context detached from
// cancellation.
func (e *Executor) writeTerminal(ctx context.Context, r *job.Record) error {
	now := e.now().UTC()
	r.CompletedAt = &now
	if err := e.store.UpdateJob(context.WithoutCancel(ctx), r); err != nil {
		e.logger.Error("failed to persist terminal job state",
			slog.String("job_id", r.ID.String()),
			slog.String("status", string(r.Status)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		return msg[:maxErrorMessageLen]
	}
	return msg
}
