package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/store"
)

// Connection reads and eagerly writes through the parent Store's client.
type Connection struct {
	s *Store
}

// CreateJob stores the job Hash and its parameter snapshot. HSETNX on the
// id field claims the key so concurrent creates of one ID cannot both win.
func (c *Connection) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := c.s.jobKey(jID)

	created, err := c.s.client.HSetNX(ctx, key, fieldID, jID).Result()
	if err != nil {
		return fmt.Errorf("hangfire/redis: create job: %w", err)
	}
	if !created {
		return hangfire.ErrJobAlreadyExists
	}

	_, err = c.s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, jobToMap(j))
		if len(j.Parameters) > 0 {
			pipe.HSet(ctx, c.s.paramsKey(jID), pairs(j.Parameters)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hangfire/redis: create job: %w", err)
	}
	return nil
}

// GetJob returns the job with its committed state name and a snapshot
// of its stored parameters.
func (c *Connection) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	jID := jobID.String()

	var fields, params *goredis.MapStringStringCmd
	_, err := c.s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, c.s.jobKey(jID))
		params = pipe.HGetAll(ctx, c.s.paramsKey(jID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: get job: %w", err)
	}
	if len(fields.Val()) == 0 {
		return nil, hangfire.ErrJobNotFound
	}

	j, err := mapToJob(fields.Val())
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: get job: %w", err)
	}
	j.Parameters = params.Val()
	return j, nil
}

// GetStateName returns the committed state name of a job.
func (c *Connection) GetStateName(ctx context.Context, jobID id.JobID) (string, error) {
	name, found, err := stateName(ctx, c.s.client, c.s.jobKey(jobID.String()))
	if err != nil {
		return "", fmt.Errorf("hangfire/redis: get state name: %w", err)
	}
	if !found {
		return "", hangfire.ErrJobNotFound
	}
	return name, nil
}

// GetStateData returns the committed state record of a job.
func (c *Connection) GetStateData(ctx context.Context, jobID id.JobID) (*store.StateRecord, error) {
	jID := jobID.String()

	var exists *goredis.IntCmd
	var rec, data *goredis.MapStringStringCmd
	_, err := c.s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		exists = pipe.Exists(ctx, c.s.jobKey(jID))
		rec = pipe.HGetAll(ctx, c.s.stateKey(jID))
		data = pipe.HGetAll(ctx, c.s.stateDataKey(jID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: get state data: %w", err)
	}
	if exists.Val() == 0 {
		return nil, hangfire.ErrJobNotFound
	}
	if len(rec.Val()) == 0 {
		return nil, nil
	}

	out := &store.StateRecord{
		Name:   rec.Val()[fieldStateName],
		Reason: rec.Val()[fieldStateReason],
	}
	if out.CreatedAt, err = parseTime(rec.Val()[fieldStateCreatedAt]); err != nil {
		return nil, fmt.Errorf("hangfire/redis: get state data: %w", err)
	}
	if len(data.Val()) > 0 {
		out.Data = data.Val()
	}
	return out, nil
}

// GetJobParameter returns a stored parameter.
func (c *Connection) GetJobParameter(ctx context.Context, jobID id.JobID, name string) (string, error) {
	jID := jobID.String()

	var exists *goredis.IntCmd
	var value *goredis.StringCmd
	_, err := c.s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		exists = pipe.Exists(ctx, c.s.jobKey(jID))
		value = pipe.HGet(ctx, c.s.paramsKey(jID), name)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("hangfire/redis: get job parameter: %w", err)
	}
	if exists.Val() == 0 {
		return "", hangfire.ErrJobNotFound
	}
	return value.Val(), nil
}

// SetJobParameter writes a parameter immediately.
func (c *Connection) SetJobParameter(ctx context.Context, jobID id.JobID, name, value string) error {
	jID := jobID.String()

	exists, err := c.s.client.Exists(ctx, c.s.jobKey(jID)).Result()
	if err != nil {
		return fmt.Errorf("hangfire/redis: set job parameter: %w", err)
	}
	if exists == 0 {
		return hangfire.ErrJobNotFound
	}
	if err := c.s.client.HSet(ctx, c.s.paramsKey(jID), name, value).Err(); err != nil {
		return fmt.Errorf("hangfire/redis: set job parameter: %w", err)
	}
	return nil
}

// CreateWriteTransaction opens a transaction against the store.
func (c *Connection) CreateWriteTransaction(_ context.Context) (store.Transaction, error) {
	return &Transaction{s: c.s}, nil
}

// Close is a no-op; connections share the client pool.
func (c *Connection) Close() error { return nil }

// ──────────────────────────────────────────────────
// Monitor
// ──────────────────────────────────────────────────

// Queue returns the job IDs in a queue.
func (c *Connection) Queue(ctx context.Context, name string) ([]id.JobID, error) {
	members, err := c.s.client.LRange(ctx, c.s.queueKey(name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: queue: %w", err)
	}
	out := make([]id.JobID, 0, len(members))
	for _, m := range members {
		jID, err := id.ParseJobID(m)
		if err != nil {
			c.s.logger.Warn("skipping malformed queue member",
				"queue", name,
				"member", m,
				"error", err,
			)
			continue
		}
		out = append(out, jID)
	}
	return out, nil
}

// SetScore returns the score of value in set key.
func (c *Connection) SetScore(ctx context.Context, key, value string) (float64, bool, error) {
	score, err := c.s.client.ZScore(ctx, c.s.setKey(key), value).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("hangfire/redis: set score: %w", err)
	}
	return score, true, nil
}

// Counter returns a counter value.
func (c *Connection) Counter(ctx context.Context, key string) (int64, error) {
	n, err := c.s.client.Get(ctx, c.s.counterKey(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hangfire/redis: counter: %w", err)
	}
	return n, nil
}

// History returns the state history of a job.
func (c *Connection) History(ctx context.Context, jobID id.JobID) ([]store.StateRecord, error) {
	jID := jobID.String()

	var exists *goredis.IntCmd
	var entries *goredis.StringSliceCmd
	_, err := c.s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		exists = pipe.Exists(ctx, c.s.jobKey(jID))
		entries = pipe.LRange(ctx, c.s.historyKey(jID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hangfire/redis: history: %w", err)
	}
	if exists.Val() == 0 {
		return nil, hangfire.ErrJobNotFound
	}

	out := make([]store.StateRecord, 0, len(entries.Val()))
	for _, raw := range entries.Val() {
		var rec store.StateRecord
		if err := msgpack.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("hangfire/redis: decode history: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Hash mapping
// ──────────────────────────────────────────────────

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		fieldID:        j.ID.String(),
		fieldType:      j.Type,
		fieldCreatedAt: j.CreatedAt.Format(time.RFC3339Nano),
		fieldUpdatedAt: j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.ExpireAt != nil {
		m[fieldExpireAt] = j.ExpireAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToJob(vals map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(vals[fieldID])
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	j := &job.Job{
		ID:        jID,
		Type:      vals[fieldType],
		StateName: vals[fieldState],
	}
	if j.CreatedAt, err = parseTime(vals[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(vals[fieldUpdatedAt]); err != nil {
		return nil, err
	}
	if v, ok := vals[fieldExpireAt]; ok && v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		j.ExpireAt = &t
	}
	return j, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// pairs flattens a string map into HSET field/value arguments.
func pairs(m map[string]string) []interface{} {
	out := make([]interface{}, 0, 2*len(m))
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}

// hashReader is the slice of the client API stateName needs. Both the
// pooled client and a WATCH transaction satisfy it.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *goredis.SliceCmd
}

// stateName reads the committed state name and whether the job exists.
func stateName(ctx context.Context, c hashReader, key string) (string, bool, error) {
	vals, err := c.HMGet(ctx, key, fieldID, fieldState).Result()
	if err != nil {
		return "", false, err
	}
	if vals[0] == nil {
		return "", false, nil
	}
	name, _ := vals[1].(string)
	return name, true, nil
}
