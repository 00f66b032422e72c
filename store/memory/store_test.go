package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
	"github.com/jobmill/jobmill/store/memory"
)

func newRecord(typ string, priority int, createdAt time.Time) *job.Record {
	return &job.Record{
		ID:          id.NewJobID(),
		Type:        typ,
		Status:      job.StatusPending,
		Priority:    priority,
		ScheduledAt: createdAt,
		CreatedAt:   createdAt,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	r := newRecord("reindex", 0, time.Now().UTC())

	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("create error: %v", err)
	}

	got, err := s.GetJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Type != "reindex" {
		t.Errorf("Type = %q, want %q", got.Type, "reindex")
	}

	// Duplicate create is rejected.
	if err := s.CreateJob(ctx, r); !errors.Is(err, jobmill.ErrJobAlreadyExists) {
		t.Errorf("expected ErrJobAlreadyExists, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := memory.New()
	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, jobmill.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_FindEligible_Ordering(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	low := newRecord("low", 0, now.Add(-3*time.Second))
	high := newRecord("high", 90, now.Add(-1*time.Second))
	older := newRecord("older", 0, now.Add(-5*time.Second))

	for _, r := range []*job.Record{low, high, older} {
		if err := s.CreateJob(ctx, r); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}

	eligible, err := s.FindEligible(ctx, 0, now)
	if err != nil {
		t.Fatalf("find error: %v", err)
	}
	if len(eligible) != 3 {
		t.Fatalf("expected 3 eligible, got %d", len(eligible))
	}

	// Priority desc first, then CreatedAt asc.
	if eligible[0].Type != "high" {
		t.Errorf("eligible[0] = %q, want high", eligible[0].Type)
	}
	if eligible[1].Type != "older" {
		t.Errorf("eligible[1] = %q, want older", eligible[1].Type)
	}
	if eligible[2].Type != "low" {
		t.Errorf("eligible[2] = %q, want low", eligible[2].Type)
	}
}

func TestStore_FindEligible_Limit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := s.CreateJob(ctx, newRecord("bulk", 0, now.Add(-time.Second))); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}

	eligible, err := s.FindEligible(ctx, 2, now)
	if err != nil {
		t.Fatalf("find error: %v", err)
	}
	if len(eligible) != 2 {
		t.Errorf("expected 2 records, got %d", len(eligible))
	}
}

func TestStore_FindEligible_SkipsFutureAndNonPending(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	future := newRecord("future", 0, now)
	future.ScheduledAt = now.Add(time.Hour)

	running := newRecord("running", 0, now.Add(-time.Second))
	running.Status = job.StatusRunning

	ready := newRecord("ready", 0, now.Add(-time.Second))

	for _, r := range []*job.Record{future, running, ready} {
		if err := s.CreateJob(ctx, r); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}

	eligible, err := s.FindEligible(ctx, 0, now)
	if err != nil {
		t.Fatalf("find error: %v", err)
	}
	if len(eligible) != 1 || eligible[0].Type != "ready" {
		t.Fatalf("expected only 'ready', got %v", eligible)
	}
}

func TestStore_ClaimJob(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	r := newRecord("claim-me", 0, now)

	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("create error: %v", err)
	}

	ok, err := s.ClaimJob(ctx, r.ID, now)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if !ok {
		t.Fatal("expected first claim to succeed")
	}

	got, _ := s.GetJob(ctx, r.ID)
	if got.Status != job.StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not stamped")
	}

	// Second claim loses the race.
	ok, err = s.ClaimJob(ctx, r.ID, now)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if ok {
		t.Error("expected second claim to fail")
	}

	// Claiming a missing record is not an error, just false.
	ok, err = s.ClaimJob(ctx, id.NewJobID(), now)
	if err != nil || ok {
		t.Errorf("missing claim = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestStore_CancelPending(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	r := newRecord("cancel-me", 0, now)

	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("create error: %v", err)
	}

	ok, err := s.CancelPending(ctx, r.ID, now)
	if err != nil || !ok {
		t.Fatalf("cancel = (%v, %v), want (true, nil)", ok, err)
	}

	got, _ := s.GetJob(ctx, r.ID)
	if got.Status != job.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}

	// Terminal records cannot be cancelled again.
	ok, err = s.CancelPending(ctx, r.ID, now)
	if err != nil || ok {
		t.Errorf("second cancel = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestStore_CountJobs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	a := newRecord("a", 0, now)
	a.PrincipalID = "user-1"
	b := newRecord("b", 0, now)
	b.PrincipalID = "user-2"
	c := newRecord("c", 0, now)
	c.PrincipalID = "user-1"
	c.Status = job.StatusCompleted

	for _, r := range []*job.Record{a, b, c} {
		if err := s.CreateJob(ctx, r); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}

	count, err := s.CountJobs(ctx, job.CountOpts{Status: job.StatusPending})
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 2 {
		t.Errorf("pending count = %d, want 2", count)
	}

	count, err = s.CountJobs(ctx, job.CountOpts{PrincipalID: "user-1"})
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 2 {
		t.Errorf("principal count = %d, want 2", count)
	}
}

func TestStore_ListJobsByStatus(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	older := newRecord("older", 0, now.Add(-2*time.Hour))
	newer := newRecord("newer", 0, now.Add(-time.Hour))
	done := newRecord("done", 0, now)
	done.Status = job.StatusCompleted

	for _, r := range []*job.Record{older, newer, done} {
		if err := s.CreateJob(ctx, r); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}

	pending, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	// Newest first.
	if pending[0].Type != "newer" || pending[1].Type != "older" {
		t.Errorf("unexpected order: %q, %q", pending[0].Type, pending[1].Type)
	}

	limited, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(limited) != 1 || limited[0].Type != "older" {
		t.Errorf("expected [older], got %v", limited)
	}
}

func TestStore_DeleteFinishedBefore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-7 * 24 * time.Hour)

	oldDone := newRecord("old-done", 0, now.Add(-30*24*time.Hour))
	oldDone.Status = job.StatusCompleted
	past := now.Add(-8 * 24 * time.Hour)
	oldDone.CompletedAt = &past

	freshDone := newRecord("fresh-done", 0, now.Add(-time.Hour))
	freshDone.Status = job.StatusFailed
	recent := now.Add(-time.Hour)
	freshDone.CompletedAt = &recent

	ancientPending := newRecord("ancient-pending", 0, now.Add(-60*24*time.Hour))

	ancientRunning := newRecord("ancient-running", 0, now.Add(-60*24*time.Hour))
	ancientRunning.Status = job.StatusRunning

	for _, r := range []*job.Record{oldDone, freshDone, ancientPending, ancientRunning} {
		if err := s.CreateJob(ctx, r); err != nil {
			t.Fatalf("create error: %v", err)
		}
	}

	deleted, err := s.DeleteFinishedBefore(ctx, job.TerminalStatuses, cutoff)
	if err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := s.GetJob(ctx, oldDone.ID); !errors.Is(err, jobmill.ErrJobNotFound) {
		t.Error("old terminal record should be deleted")
	}
	for _, keep := range []*job.Record{freshDone, ancientPending, ancientRunning} {
		if _, err := s.GetJob(ctx, keep.ID); err != nil {
			t.Errorf("record %q should be preserved: %v", keep.Type, err)
		}
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	r := newRecord("copy-check", 0, now)

	if err := s.CreateJob(ctx, r); err != nil {
		t.Fatalf("create error: %v", err)
	}

	got, _ := s.GetJob(ctx, r.ID)
	got.Status = job.StatusFailed

	again, _ := s.GetJob(ctx, r.ID)
	if again.Status != job.StatusPending {
		t.Error("mutating a returned record must not affect the store")
	}
}
