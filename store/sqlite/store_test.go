package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
	"github.com/jobmill/jobmill/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func newRecord(priority int, scheduledAt, createdAt time.Time) *job.Record {
	return &job.Record{
		ID:          id.NewJobID(),
		Type:        "sample",
		Status:      job.StatusPending,
		Priority:    priority,
		Params:      json.RawMessage(`{"k":"v"}`),
		ScheduledAt: scheduledAt,
		CreatedAt:   createdAt,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := newRecord(3, now, now)
	rec.TargetID = "doc-1"
	rec.PrincipalID = "tenant-1"
	rec.Timeout = 30 * time.Second

	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Type != "sample" || got.Priority != 3 || got.Status != job.StatusPending {
		t.Fatalf("record = %+v", got)
	}
	if got.TargetID != "doc-1" || got.PrincipalID != "tenant-1" {
		t.Fatalf("associations = %q/%q", got.TargetID, got.PrincipalID)
	}
	if got.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v", got.Timeout)
	}
	if string(got.Params) != `{"k":"v"}` {
		t.Fatalf("params = %s", got.Params)
	}
}

func TestCreateJobDuplicate(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()
	rec := newRecord(0, now, now)

	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(context.Background(), rec); !errors.Is(err, jobmill.ErrJobAlreadyExists) {
		t.Fatalf("err = %v, want ErrJobAlreadyExists", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newStore(t)
	if _, err := s.GetJob(context.Background(), id.NewJobID()); !errors.Is(err, jobmill.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestFindEligibleOrdering(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()

	lowOld := newRecord(1, now.Add(-time.Minute), now.Add(-3*time.Minute))
	lowNew := newRecord(1, now.Add(-time.Minute), now.Add(-time.Minute))
	high := newRecord(9, now.Add(-time.Minute), now.Add(-time.Second))
	future := newRecord(9, now.Add(time.Hour), now.Add(-time.Hour))

	for _, r := range []*job.Record{lowNew, high, lowOld, future} {
		if err := s.CreateJob(context.Background(), r); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	got, err := s.FindEligible(context.Background(), 10, now)
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("eligible = %d, want 3", len(got))
	}
	want := []string{high.ID.String(), lowOld.ID.String(), lowNew.ID.String()}
	for i, r := range got {
		if r.ID.String() != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, r.ID, want[i])
		}
	}
}

func TestClaimJobIsConditional(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()
	rec := newRecord(0, now, now)
	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	claimed, err := s.ClaimJob(context.Background(), rec.ID, now)
	if err != nil || !claimed {
		t.Fatalf("first claim = %v, %v", claimed, err)
	}
	claimed, err = s.ClaimJob(context.Background(), rec.ID, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("claimed a running job")
	}

	got, _ := s.GetJob(context.Background(), rec.ID)
	if got.Status != job.StatusRunning || got.StartedAt == nil {
		t.Fatalf("record after claim = %+v", got)
	}
}

func TestCancelPending(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()
	rec := newRecord(0, now, now)
	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	ok, err := s.CancelPending(context.Background(), rec.ID, now)
	if err != nil || !ok {
		t.Fatalf("CancelPending = %v, %v", ok, err)
	}
	got, _ := s.GetJob(context.Background(), rec.ID)
	if got.Status != job.StatusCancelled || got.CompletedAt == nil {
		t.Fatalf("record after cancel = %+v", got)
	}

	ok, err = s.CancelPending(context.Background(), rec.ID, now)
	if err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if ok {
		t.Fatal("cancelled a terminal job")
	}
}

func TestUpdateJobTerminalWrite(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := newRecord(0, now, now)
	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	done := now.Add(time.Second)
	rec.Status = job.StatusFailed
	rec.ErrorMessage = "boom"
	rec.CompletedAt = &done
	if err := s.UpdateJob(context.Background(), rec); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, _ := s.GetJob(context.Background(), rec.ID)
	if got.Status != job.StatusFailed || got.ErrorMessage != "boom" || got.CompletedAt == nil {
		t.Fatalf("record = %+v", got)
	}
}

func TestUpdateJobMissing(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()
	rec := newRecord(0, now, now)
	if err := s.UpdateJob(context.Background(), rec); !errors.Is(err, jobmill.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestListAndCountByStatus(t *testing.T) {
	s := newStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := newRecord(0, base, base.Add(time.Duration(i)*time.Minute))
		rec.PrincipalID = "tenant-a"
		if err := s.CreateJob(context.Background(), rec); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	records, err := s.ListJobsByStatus(context.Background(), job.StatusPending, job.ListOpts{Limit: 3})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	// Newest first.
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.After(records[i-1].CreatedAt) {
			t.Fatal("list not newest-first")
		}
	}

	n, err := s.CountJobs(context.Background(), job.CountOpts{Status: job.StatusPending, PrincipalID: "tenant-a"})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 5 {
		t.Fatalf("count = %d, want 5", n)
	}
}

func TestDeleteFinishedBefore(t *testing.T) {
	s := newStore(t)
	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	oldDone := now.Add(-48 * time.Hour)
	freshDone := now.Add(-time.Hour)

	expired := newRecord(0, oldDone, oldDone)
	expired.Status = job.StatusCompleted
	expired.CompletedAt = &oldDone

	fresh := newRecord(0, freshDone, freshDone)
	fresh.Status = job.StatusFailed
	fresh.CompletedAt = &freshDone

	pending := newRecord(0, now, now)

	for _, r := range []*job.Record{expired, fresh, pending} {
		if err := s.CreateJob(context.Background(), r); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	deleted, err := s.DeleteFinishedBefore(context.Background(), job.TerminalStatuses, cutoff)
	if err != nil {
		t.Fatalf("DeleteFinishedBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := s.GetJob(context.Background(), expired.ID); !errors.Is(err, jobmill.ErrJobNotFound) {
		t.Fatal("expired record survived")
	}
	for _, r := range []*job.Record{fresh, pending} {
		if _, err := s.GetJob(context.Background(), r.ID); err != nil {
			t.Fatalf("record %s was deleted", r.ID)
		}
	}
}
