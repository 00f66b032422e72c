package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
)

// recordingHook implements every lifecycle interface and records calls.
type recordingHook struct {
	name      string
	enqueued  int
	started   int
	completed int
	failed    int
	cancelled int
	swept     int64
	shutdowns int
	err       error
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) OnJobEnqueued(_ context.Context, _ *job.Record) error {
	h.enqueued++
	return h.err
}

func (h *recordingHook) OnJobStarted(_ context.Context, _ *job.Record) error {
	h.started++
	return h.err
}

func (h *recordingHook) OnJobCompleted(_ context.Context, _ *job.Record, _ time.Duration) error {
	h.completed++
	return h.err
}

func (h *recordingHook) OnJobFailed(_ context.Context, _ *job.Record, _ error) error {
	h.failed++
	return h.err
}

func (h *recordingHook) OnJobCancelled(_ context.Context, _ *job.Record) error {
	h.cancelled++
	return h.err
}

func (h *recordingHook) OnSweepCompleted(_ context.Context, deleted int64) error {
	h.swept += deleted
	return h.err
}

func (h *recordingHook) OnShutdown(_ context.Context) error {
	h.shutdowns++
	return h.err
}

// startOnlyHook implements only JobStarted.
type startOnlyHook struct {
	started int
}

func (h *startOnlyHook) Name() string { return "start-only" }

func (h *startOnlyHook) OnJobStarted(_ context.Context, _ *job.Record) error {
	h.started++
	return nil
}

func testRecord() *job.Record {
	return &job.Record{ID: id.NewJobID(), Type: "hook-test", Status: job.StatusPending}
}

func TestRegistry_EmitsAllEvents(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	h := &recordingHook{name: "recording"}
	r.Register(h)

	ctx := context.Background()
	rec := testRecord()

	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobStarted(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Millisecond)
	r.EmitJobFailed(ctx, rec, errors.New("boom"))
	r.EmitJobCancelled(ctx, rec)
	r.EmitSweepCompleted(ctx, 5)
	r.EmitShutdown(ctx)

	if h.enqueued != 1 || h.started != 1 || h.completed != 1 || h.failed != 1 || h.cancelled != 1 {
		t.Errorf("unexpected counts: %+v", h)
	}
	if h.swept != 5 {
		t.Errorf("swept = %d, want 5", h.swept)
	}
	if h.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", h.shutdowns)
	}
}

func TestRegistry_PartialHook(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	h := &startOnlyHook{}
	r.Register(h)

	ctx := context.Background()
	rec := testRecord()

	// Only JobStarted should reach the hook; the rest are no-ops.
	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobStarted(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Millisecond)
	r.EmitShutdown(ctx)

	if h.started != 1 {
		t.Errorf("started = %d, want 1", h.started)
	}
}

func TestRegistry_HookErrorsNotPropagated(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	failing := &recordingHook{name: "failing", err: errors.New("hook error")}
	after := &recordingHook{name: "after"}
	r.Register(failing)
	r.Register(after)

	// A failing hook must not prevent later hooks from running.
	r.EmitJobStarted(context.Background(), testRecord())

	if failing.started != 1 {
		t.Errorf("failing.started = %d, want 1", failing.started)
	}
	if after.started != 1 {
		t.Errorf("after.started = %d, want 1", after.started)
	}
}

func TestRegistry_Hooks(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	r.Register(&recordingHook{name: "a"})
	r.Register(&startOnlyHook{})

	if got := len(r.Hooks()); got != 2 {
		t.Errorf("len(Hooks()) = %d, want 2", got)
	}
}
