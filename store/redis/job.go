package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
)

// claimScript transitions a record from pending to running and removes
// it from the pending queue, all server-side. Returns 1 on success, 0
// when the record is gone or no longer pending.
var claimScript = goredis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if status ~= 'pending' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'running', 'started_at', ARGV[1])
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 1
`)

// cancelPendingScript transitions a record from pending to cancelled.
var cancelPendingScript = goredis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if status ~= 'pending' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'cancelled', 'completed_at', ARGV[1])
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 1
`)

// CreateJob stores the record as a Hash and queues it in the pending
// Sorted Set.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	rID := r.ID.String()
	key := jobKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobmill/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return jobmill.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordToMap(r))
	pipe.SAdd(ctx, jobIDsKey, rID)
	if r.Status == job.StatusPending {
		pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: claimScore(r), Member: rID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobmill/redis: create job: %w", err)
	}
	return nil
}

// FindEligible walks the pending queue in claim order and returns up to
// limit records whose scheduled time has arrived. Records still in the
// future are skipped, not popped.
func (s *Store) FindEligible(ctx context.Context, limit int, now time.Time) ([]*job.Record, error) {
	ids, err := s.client.ZRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobmill/redis: find eligible zrange: %w", err)
	}

	records := make([]*job.Record, 0, limit)
	for _, rID := range ids {
		if len(records) >= limit {
			break
		}
		r, getErr := s.getRecordByKey(ctx, jobKey(rID))
		if getErr != nil {
			continue // removed concurrently
		}
		if !r.Eligible(now) {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// ClaimJob atomically transitions a record from pending to running.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	rID := jobID.String()
	n, err := claimScript.Run(ctx, s.client,
		[]string{jobKey(rID), pendingKey},
		now.UTC().Format(time.RFC3339Nano), rID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("jobmill/redis: claim job: %w", err)
	}
	return n == 1, nil
}

// CancelPending atomically transitions a record from pending to cancelled.
func (s *Store) CancelPending(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	rID := jobID.String()
	n, err := cancelPendingScript.Run(ctx, s.client,
		[]string{jobKey(rID), pendingKey},
		now.UTC().Format(time.RFC3339Nano), rID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("jobmill/redis: cancel pending: %w", err)
	}
	return n == 1, nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return s.getRecordByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing record.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	rID := r.ID.String()
	key := jobKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("jobmill/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return jobmill.ErrJobNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordToMap(r))
	if r.Status == job.StatusPending {
		pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: claimScore(r), Member: rID})
	} else {
		pipe.ZRem(ctx, pendingKey, rID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobmill/redis: update job: %w", err)
	}
	return nil
}

// ListJobsByStatus returns records in the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("jobmill/redis: list jobs smembers: %w", err)
	}

	records := make([]*job.Record, 0, len(ids))
	for _, rID := range ids {
		r, getErr := s.getRecordByKey(ctx, jobKey(rID))
		if getErr != nil {
			continue // skip missing
		}
		if r.Status != status {
			continue
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return nil, nil
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records, nil
}

// CountJobs returns the number of records matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("jobmill/redis: count smembers: %w", err)
	}

	var count int64
	for _, rID := range ids {
		r, getErr := s.getRecordByKey(ctx, jobKey(rID))
		if getErr != nil {
			continue
		}
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

// DeleteFinishedBefore removes records in the given statuses finished at
// or before cutoff.
func (s *Store) DeleteFinishedBefore(ctx context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	wanted := make(map[job.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("jobmill/redis: delete finished smembers: %w", err)
	}

	var deleted int64
	for _, rID := range ids {
		r, getErr := s.getRecordByKey(ctx, jobKey(rID))
		if getErr != nil {
			continue
		}
		if !wanted[r.Status] || r.CompletedAt == nil || r.CompletedAt.After(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(rID))
		pipe.SRem(ctx, jobIDsKey, rID)
		pipe.ZRem(ctx, pendingKey, rID)
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, fmt.Errorf("jobmill/redis: delete finished: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// claimScore computes the pending Sorted Set score. Priority is negated
// so higher priority sorts first; a fractional creation-time component
// keeps FIFO order within a priority.
func claimScore(r *job.Record) float64 {
	return float64(-r.Priority) + float64(r.CreatedAt.UnixMilli())/1e15
}

func recordToMap(r *job.Record) map[string]interface{} {
	m := map[string]interface{}{
		"id":            r.ID.String(),
		"type":          r.Type,
		"status":        string(r.Status),
		"priority":      strconv.Itoa(r.Priority),
		"params":        string(r.Params),
		"result":        string(r.Result),
		"target_id":     r.TargetID,
		"principal_id":  r.PrincipalID,
		"scheduled_at":  r.ScheduledAt.Format(time.RFC3339Nano),
		"created_at":    r.CreatedAt.Format(time.RFC3339Nano),
		"error_message": r.ErrorMessage,
		"timeout":       strconv.FormatInt(int64(r.Timeout), 10),
	}
	if r.StartedAt != nil {
		m["started_at"] = r.StartedAt.Format(time.RFC3339Nano)
	}
	if r.CompletedAt != nil {
		m["completed_at"] = r.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getRecordByKey(ctx context.Context, key string) (*job.Record, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("jobmill/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobmill.ErrJobNotFound
	}
	return mapToRecord(vals)
}

func mapToRecord(m map[string]string) (*job.Record, error) {
	rID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobmill/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	scheduledAt, _ := time.Parse(time.RFC3339Nano, m["scheduled_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])     //nolint:errcheck // best-effort parse from trusted Redis data

	r := &job.Record{
		ID:           rID,
		Type:         m["type"],
		Status:       job.Status(m["status"]),
		Priority:     priority,
		TargetID:     m["target_id"],
		PrincipalID:  m["principal_id"],
		ScheduledAt:  scheduledAt,
		CreatedAt:    createdAt,
		ErrorMessage: m["error_message"],
		Timeout:      time.Duration(timeout),
	}
	if v := m["params"]; v != "" {
		r.Params = []byte(v)
	}
	if v := m["result"]; v != "" {
		r.Result = []byte(v)
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.CompletedAt = &t
	}

	return r, nil
}
