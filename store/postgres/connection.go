package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/store"
)

// Connection reads and eagerly writes through the pool.
type Connection struct {
	s *Store
}

// CreateJob inserts the job row and its parameter snapshot in one
// transaction.
func (c *Connection) CreateJob(ctx context.Context, j *job.Job) error {
	err := pgx.BeginFunc(ctx, c.s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO hf_job (id, type, expire_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			j.ID.String(), j.Type, j.ExpireAt, j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			return err
		}

		if len(j.Parameters) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for name, value := range j.Parameters {
			batch.Queue(`INSERT INTO hf_job_parameter (job_id, name, value) VALUES ($1, $2, $3)`,
				j.ID.String(), name, value)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isDuplicateKey(err) {
			return hangfire.ErrJobAlreadyExists
		}
		return fmt.Errorf("hangfire/postgres: create job: %w", err)
	}
	return nil
}

// GetJob returns the job with its committed state name and a snapshot
// of its stored parameters.
func (c *Connection) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var (
		typ, stateName       string
		expireAt             *time.Time
		createdAt, updatedAt time.Time
	)
	err := c.s.pool.QueryRow(ctx, `
		SELECT type, state_name, expire_at, created_at, updated_at
		FROM hf_job WHERE id = $1`,
		jobID.String(),
	).Scan(&typ, &stateName, &expireAt, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, hangfire.ErrJobNotFound
		}
		return nil, fmt.Errorf("hangfire/postgres: get job: %w", err)
	}

	params, err := c.parameters(ctx, jobID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity: hangfire.Entity{
			CreatedAt: createdAt.UTC(),
			UpdatedAt: updatedAt.UTC(),
		},
		ID:         jobID,
		Type:       typ,
		StateName:  stateName,
		Parameters: params,
	}
	if expireAt != nil {
		t := expireAt.UTC()
		j.ExpireAt = &t
	}
	return j, nil
}

func (c *Connection) parameters(ctx context.Context, jobID id.JobID) (map[string]string, error) {
	rows, err := c.s.pool.Query(ctx,
		`SELECT name, value FROM hf_job_parameter WHERE job_id = $1`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: get parameters: %w", err)
	}
	defer rows.Close()

	params := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("hangfire/postgres: scan parameter: %w", err)
		}
		params[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hangfire/postgres: get parameters: %w", err)
	}
	return params, nil
}

// GetStateName returns the committed state name of a job.
func (c *Connection) GetStateName(ctx context.Context, jobID id.JobID) (string, error) {
	var name string
	err := c.s.pool.QueryRow(ctx,
		`SELECT state_name FROM hf_job WHERE id = $1`, jobID.String(),
	).Scan(&name)
	if err != nil {
		if isNoRows(err) {
			return "", hangfire.ErrJobNotFound
		}
		return "", fmt.Errorf("hangfire/postgres: get state name: %w", err)
	}
	return name, nil
}

// GetStateData returns the committed state record of a job.
func (c *Connection) GetStateData(ctx context.Context, jobID id.JobID) (*store.StateRecord, error) {
	var (
		name, reason string
		raw          []byte
		createdAt    *time.Time
	)
	err := c.s.pool.QueryRow(ctx, `
		SELECT state_name, state_reason, state_data, state_created_at
		FROM hf_job WHERE id = $1`,
		jobID.String(),
	).Scan(&name, &reason, &raw, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, hangfire.ErrJobNotFound
		}
		return nil, fmt.Errorf("hangfire/postgres: get state data: %w", err)
	}
	if name == "" {
		return nil, nil
	}

	data, err := decodeData(raw)
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: decode state data: %w", err)
	}
	rec := &store.StateRecord{Name: name, Reason: reason, Data: data}
	if createdAt != nil {
		rec.CreatedAt = createdAt.UTC()
	}
	return rec, nil
}

// GetJobParameter returns a stored parameter.
func (c *Connection) GetJobParameter(ctx context.Context, jobID id.JobID, name string) (string, error) {
	var (
		exists bool
		value  *string
	)
	err := c.s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM hf_job WHERE id = $1),
		       (SELECT value FROM hf_job_parameter WHERE job_id = $1 AND name = $2)`,
		jobID.String(), name,
	).Scan(&exists, &value)
	if err != nil {
		return "", fmt.Errorf("hangfire/postgres: get job parameter: %w", err)
	}
	if !exists {
		return "", hangfire.ErrJobNotFound
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// SetJobParameter upserts a parameter immediately, outside any open
// write transaction.
func (c *Connection) SetJobParameter(ctx context.Context, jobID id.JobID, name, value string) error {
	tag, err := c.s.pool.Exec(ctx, `
		INSERT INTO hf_job_parameter (job_id, name, value)
		SELECT id, $2, $3 FROM hf_job WHERE id = $1
		ON CONFLICT (job_id, name) DO UPDATE SET value = EXCLUDED.value`,
		jobID.String(), name, value,
	)
	if err != nil {
		return fmt.Errorf("hangfire/postgres: set job parameter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hangfire.ErrJobNotFound
	}
	return nil
}

// CreateWriteTransaction opens a transaction. No database transaction is
// started until Commit.
func (c *Connection) CreateWriteTransaction(_ context.Context) (store.Transaction, error) {
	return &Transaction{s: c.s}, nil
}

// Close is a no-op; connections share the pool.
func (c *Connection) Close() error { return nil }

// ──────────────────────────────────────────────────
// Monitor
// ──────────────────────────────────────────────────

// Queue returns the job IDs in a queue in insertion order.
func (c *Connection) Queue(ctx context.Context, name string) ([]id.JobID, error) {
	rows, err := c.s.pool.Query(ctx,
		`SELECT job_id FROM hf_job_queue WHERE queue = $1 ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: queue: %w", err)
	}
	defer rows.Close()

	var out []id.JobID
	for rows.Next() {
		var jID id.JobID
		if err := rows.Scan(&jID); err != nil {
			return nil, fmt.Errorf("hangfire/postgres: scan queue: %w", err)
		}
		out = append(out, jID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hangfire/postgres: queue: %w", err)
	}
	return out, nil
}

// SetScore returns the score of value in set key.
func (c *Connection) SetScore(ctx context.Context, key, value string) (float64, bool, error) {
	var score float64
	err := c.s.pool.QueryRow(ctx,
		`SELECT score FROM hf_set WHERE key = $1 AND value = $2`, key, value,
	).Scan(&score)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("hangfire/postgres: set score: %w", err)
	}
	return score, true, nil
}

// Counter returns a counter value.
func (c *Connection) Counter(ctx context.Context, key string) (int64, error) {
	var n int64
	err := c.s.pool.QueryRow(ctx,
		`SELECT value FROM hf_counter WHERE key = $1`, key,
	).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("hangfire/postgres: counter: %w", err)
	}
	return n, nil
}

// History returns the state history of a job, oldest first.
func (c *Connection) History(ctx context.Context, jobID id.JobID) ([]store.StateRecord, error) {
	if _, err := c.GetStateName(ctx, jobID); err != nil {
		return nil, err
	}

	rows, err := c.s.pool.Query(ctx, `
		SELECT name, reason, data, created_at
		FROM hf_state WHERE job_id = $1 ORDER BY id`,
		jobID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("hangfire/postgres: history: %w", err)
	}
	defer rows.Close()

	var out []store.StateRecord
	for rows.Next() {
		var (
			rec store.StateRecord
			raw []byte
		)
		if err := rows.Scan(&rec.Name, &rec.Reason, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("hangfire/postgres: scan history: %w", err)
		}
		if rec.Data, err = decodeData(raw); err != nil {
			return nil, fmt.Errorf("hangfire/postgres: decode history: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hangfire/postgres: history: %w", err)
	}
	return out, nil
}
