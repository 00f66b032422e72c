package worker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
	"github.com/jobmill/jobmill/tuning"
)

// Maintenance is periodic housekeeping driven by the dispatch loop.
// Implementations decide internally whether a run is due.
type Maintenance interface {
	MaybeSweep(ctx context.Context, now time.Time)
}

// task is one in-flight job tracked by the dispatcher. counted tasks
// consume a slot of the concurrency budget; detached tasks (out-of-band
// execution) are tracked and cancellable but do not.
type task struct {
	record  *job.Record
	ctrl    *CancelController
	counted bool
}

// Dispatcher is the single polling loop that moves eligible pending
// jobs into execution. One loop serves the whole process: it reads the
// current tuning snapshot each tick, claims up to the available budget,
// and launches each claimed job on its own goroutine.
type Dispatcher struct {
	id          id.DispatcherID
	store       job.Store
	executor    *Executor
	hooks       *hook.Registry
	tuning      *tuning.Manager
	maintenance Maintenance
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	activeMu sync.Mutex
	active   map[string]*task
	budget   int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaintenance attaches housekeeping invoked once per poll tick.
func WithMaintenance(m Maintenance) DispatcherOption {
	return func(d *Dispatcher) { d.maintenance = m }
}

// WithClock overrides the dispatcher's time source. Used by tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher builds a dispatcher. It does not start polling until
// Start is called.
func NewDispatcher(store job.Store, executor *Executor, hooks *hook.Registry, tun *tuning.Manager, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		id:       id.NewDispatcherID(),
		store:    store,
		executor: executor,
		hooks:    hooks,
		tuning:   tun,
		logger:   logger,
		now:      time.Now,
		active:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the dispatcher's identifier.
func (d *Dispatcher) ID() id.DispatcherID { return d.id }

// IsRunning reports whether the poll loop is active.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start launches the poll loop. Starting a running dispatcher is a
// no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})

	d.wg.Add(1)
	go d.pollLoop()

	d.logger.Info("dispatcher started",
		slog.String("dispatcher_id", d.id.String()))
	return nil
}

// Stop halts polling and waits for in-flight jobs to finish. When ctx
// expires before they do, every remaining job receives a cancellation
// request and Stop waits for them to observe it.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("shutdown deadline reached, cancelling in-flight jobs",
			slog.Int("in_flight", d.ActiveCount()))
		d.cancelAll()
		<-done
	}

	d.logger.Info("dispatcher stopped",
		slog.String("dispatcher_id", d.id.String()))
	return nil
}

func (d *Dispatcher) pollLoop() {
	defer d.wg.Done()
	for {
		_, interval := d.tuning.Snapshot()
		select {
		case <-d.stopCh:
			return
		case <-time.After(interval):
		}
		d.tick(context.Background())
	}
}

// tick runs one dispatch cycle: housekeeping, then claim and launch up
// to the currently available budget.
func (d *Dispatcher) tick(ctx context.Context) {
	now := d.now().UTC()

	if d.maintenance != nil {
		d.maintenance.MaybeSweep(ctx, now)
	}

	maxConcurrent, _ := d.tuning.Snapshot()
	available := maxConcurrent - d.BudgetInUse()
	if available <= 0 {
		return
	}

	records, err := d.store.FindEligible(ctx, available, now)
	if err != nil {
		d.logger.Error("eligible job query failed",
			slog.String("error", err.Error()))
		return
	}

	for _, rec := range records {
		if available <= 0 {
			return
		}
		if !d.tuning.Allow(rec.PrincipalID) {
			continue
		}
		claimed, err := d.store.ClaimJob(ctx, rec.ID, now)
		if err != nil {
			d.logger.Error("job claim failed",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if !claimed {
			// Another claimant won the race; skip.
			continue
		}
		started := now
		rec.Status = job.StatusRunning
		rec.StartedAt = &started
		d.launch(rec, true)
		available--
	}
}

// Launch runs an already-claimed record outside the budgeted dispatch
// path. The job is tracked and cancellable like any other but does not
// consume a concurrency slot.
func (d *Dispatcher) Launch(rec *job.Record) {
	d.launch(rec, false)
}

func (d *Dispatcher) launch(rec *job.Record, counted bool) {
	runCtx, ctrl := NewCancelController(context.Background(), rec.Timeout)
	t := &task{record: rec, ctrl: ctrl, counted: counted}
	key := rec.ID.String()

	d.activeMu.Lock()
	d.active[key] = t
	if counted {
		d.budget++
	}
	d.activeMu.Unlock()

	d.hooks.EmitJobStarted(runCtx, rec)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer ctrl.Release()
		defer d.untrack(key)
		if err := d.executor.Execute(runCtx, rec, ctrl); err != nil {
			d.logger.Debug("terminal state write failed",
				slog.String("job_id", key),
				slog.String("error", err.Error()))
		}
	}()
}

func (d *Dispatcher) untrack(key string) {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	if t, ok := d.active[key]; ok {
		if t.counted {
			d.budget--
		}
		delete(d.active, key)
	}
}

// CancelActive requests cooperative cancellation of a running job.
// Returns false when the job is not currently running here.
func (d *Dispatcher) CancelActive(jobID string) bool {
	d.activeMu.Lock()
	t, ok := d.active[jobID]
	d.activeMu.Unlock()
	if !ok {
		return false
	}
	t.ctrl.RequestCancel()
	return true
}

// cancelAll requests cancellation of every in-flight job.
func (d *Dispatcher) cancelAll() {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	for _, t := range d.active {
		t.ctrl.RequestCancel()
	}
}

// BudgetInUse returns how many budgeted slots are occupied.
func (d *Dispatcher) BudgetInUse() int {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	return d.budget
}

// ActiveCount returns the number of in-flight jobs, counted or not.
func (d *Dispatcher) ActiveCount() int {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	return len(d.active)
}

// ActiveIDs lists in-flight job IDs in stable order.
func (d *Dispatcher) ActiveIDs() []string {
	d.activeMu.Lock()
	ids := make([]string, 0, len(d.active))
	for k := range d.active {
		ids = append(ids, k)
	}
	d.activeMu.Unlock()
	sort.Strings(ids)
	return ids
}
