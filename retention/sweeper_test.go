package retention_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
	"github.com/jobmill/jobmill/retention"
	"github.com/jobmill/jobmill/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type sweepHook struct {
	calls   int
	deleted int64
}

func (h *sweepHook) Name() string { return "sweep-recorder" }

func (h *sweepHook) OnSweepCompleted(_ context.Context, deleted int64) error {
	h.calls++
	h.deleted += deleted
	return nil
}

func seedJob(t *testing.T, store job.Store, status job.Status, completedAt time.Time) *job.Record {
	t.Helper()
	now := time.Now().UTC()
	rec := &job.Record{
		ID:          id.NewJobID(),
		Type:        "seed",
		Status:      status,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	if status.Terminal() {
		rec.CompletedAt = &completedAt
	}
	if err := store.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return rec
}

func TestSweepRemovesExpiredTerminalRecords(t *testing.T) {
	store := memory.New()
	hooks := hook.NewRegistry(discardLogger())
	sh := &sweepHook{}
	hooks.Register(sh)

	now := time.Now().UTC()
	window := 7 * 24 * time.Hour
	old := now.Add(-window - time.Hour)
	fresh := now.Add(-time.Hour)

	expired := seedJob(t, store, job.StatusCompleted, old)
	expiredFailed := seedJob(t, store, job.StatusFailed, old)
	recent := seedJob(t, store, job.StatusCompleted, fresh)
	pending := seedJob(t, store, job.StatusPending, time.Time{})
	running := seedJob(t, store, job.StatusRunning, time.Time{})

	s := retention.NewSweeper(store, hooks, window, time.Hour, discardLogger())
	if err := s.Sweep(context.Background(), now); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, rec := range []*job.Record{expired, expiredFailed} {
		if _, err := store.GetJob(context.Background(), rec.ID); err == nil {
			t.Fatalf("expired record %s survived sweep", rec.ID)
		}
	}
	for _, rec := range []*job.Record{recent, pending, running} {
		if _, err := store.GetJob(context.Background(), rec.ID); err != nil {
			t.Fatalf("record %s (%s) was deleted", rec.ID, rec.Status)
		}
	}
	if sh.calls != 1 || sh.deleted != 2 {
		t.Fatalf("sweep hook calls=%d deleted=%d, want 1 call deleting 2", sh.calls, sh.deleted)
	}
}

func TestMaybeSweepRespectsInterval(t *testing.T) {
	store := memory.New()
	hooks := hook.NewRegistry(discardLogger())
	sh := &sweepHook{}
	hooks.Register(sh)

	now := time.Now().UTC()
	s := retention.NewSweeper(store, hooks, time.Hour, time.Minute, discardLogger())

	s.MaybeSweep(context.Background(), now)
	s.MaybeSweep(context.Background(), now.Add(10*time.Second))
	s.MaybeSweep(context.Background(), now.Add(30*time.Second))
	if sh.calls != 1 {
		t.Fatalf("sweeps within interval = %d, want 1", sh.calls)
	}

	s.MaybeSweep(context.Background(), now.Add(2*time.Minute))
	if sh.calls != 2 {
		t.Fatalf("sweeps after interval = %d, want 2", sh.calls)
	}
}

type failingStore struct {
	job.Store
	fail bool
}

func (f *failingStore) DeleteFinishedBefore(ctx context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	if f.fail {
		return 0, errors.New("backend offline")
	}
	return f.Store.DeleteFinishedBefore(ctx, statuses, cutoff)
}

func TestMaybeSweepRetriesAfterFailure(t *testing.T) {
	fs := &failingStore{Store: memory.New(), fail: true}
	hooks := hook.NewRegistry(discardLogger())
	sh := &sweepHook{}
	hooks.Register(sh)

	now := time.Now().UTC()
	s := retention.NewSweeper(fs, hooks, time.Hour, time.Minute, discardLogger())

	s.MaybeSweep(context.Background(), now)
	if sh.calls != 0 {
		t.Fatalf("hook fired on failed sweep")
	}

	// Failure did not advance the watermark, so the very next tick
	// retries even though the interval has not elapsed.
	fs.fail = false
	s.MaybeSweep(context.Background(), now.Add(time.Second))
	if sh.calls != 1 {
		t.Fatalf("sweep did not retry after failure, calls = %d", sh.calls)
	}
}
