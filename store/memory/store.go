// Package memory provides a fully in-memory job store. Safe for
// concurrent access; intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
)

// Compile-time interface checks.
var (
	_ job.Store      = (*Store)(nil)
	_ jobmill.Storer = (*Store)(nil)
)

// Store is an in-memory implementation of the job store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Record),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// CreateJob persists a new record in pending state.
func (m *Store) CreateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.jobs[key]; exists {
		return jobmill.ErrJobAlreadyExists
	}
	cp := *r
	m.jobs[key] = &cp
	return nil
}

// FindEligible returns up to limit pending records eligible at now,
// ordered by priority descending then CreatedAt ascending.
func (m *Store) FindEligible(_ context.Context, limit int, now time.Time) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*job.Record, 0, len(m.jobs))
	for _, r := range m.jobs {
		if r.Eligible(now) {
			candidates = append(candidates, r)
		}
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// Return copies so callers can mutate without racing with the store.
	result := make([]*job.Record, len(candidates))
	for i, r := range candidates {
		cp := *r
		result[i] = &cp
	}
	return result, nil
}

// ClaimJob atomically transitions a record from pending to running.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok || r.Status != job.StatusPending {
		return false, nil
	}

	r.Status = job.StatusRunning
	started := now
	r.StartedAt = &started
	return true, nil
}

// CancelPending atomically transitions a record from pending to cancelled.
func (m *Store) CancelPending(_ context.Context, jobID id.JobID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok || r.Status != job.StatusPending {
		return false, nil
	}

	r.Status = job.StatusCancelled
	completed := now
	r.CompletedAt = &completed
	return true, nil
}

// GetJob retrieves a record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobmill.ErrJobNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateJob persists changes to an existing record.
func (m *Store) UpdateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return jobmill.ErrJobNotFound
	}
	cp := *r
	m.jobs[key] = &cp
	return nil
}

// ListJobsByStatus returns records matching the given status, newest first.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Record, 0)
	for _, r := range m.jobs {
		if r.Status == status {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*job.Record{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	result := make([]*job.Record, len(matched))
	for i, r := range matched {
		cp := *r
		result[i] = &cp
	}
	return result, nil
}

// CountJobs returns the number of records matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, r := range m.jobs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.PrincipalID != "" && r.PrincipalID != opts.PrincipalID {
			continue
		}
		count++
	}
	return count, nil
}

// DeleteFinishedBefore removes records whose status is in statuses and
// whose CompletedAt is at or before cutoff.
func (m *Store) DeleteFinishedBefore(_ context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	// Compare stable string values, matching what durable backends do.
	statusSet := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		statusSet[string(s)] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, r := range m.jobs {
		if _, ok := statusSet[string(r.Status)]; !ok {
			continue
		}
		if r.CompletedAt == nil || r.CompletedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, key)
		deleted++
	}
	return deleted, nil
}
