package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
)

// Transaction queues writes and replays them in one database transaction
// on Commit.
type Transaction struct {
	store.Batch
	s *Store
}

// Commit locks the rows of every job the transaction touches, checks the
// guards against the locked rows and applies the queued writes. Rows are
// locked in ID order so two commits over the same jobs cannot deadlock.
func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.Finish(); err != nil {
		return err
	}

	err := pgx.BeginTxFunc(ctx, t.s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if err := t.checkGuards(ctx, tx); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		now := t.s.now()
		for _, op := range t.Ops() {
			if err := queueOp(batch, op, now); err != nil {
				return err
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, hangfire.ErrConflictOnCommit), errors.Is(err, hangfire.ErrJobNotFound):
		return err
	case isRetryable(err):
		t.s.logger.Debug("postgres commit lost a race", "error", err)
		return hangfire.ErrConflictOnCommit
	default:
		return fmt.Errorf("hangfire/postgres: commit: %w", err)
	}
}

// Rollback discards the queued writes. Nothing reached the database yet.
func (t *Transaction) Rollback(_ context.Context) error {
	_ = t.Finish()
	return nil
}

func (t *Transaction) checkGuards(ctx context.Context, tx pgx.Tx) error {
	var ids []string
	for _, g := range t.Guards() {
		ids = append(ids, g.JobID.String())
	}
	for _, op := range t.Ops() {
		if !op.JobID.IsNil() {
			ids = append(ids, op.JobID.String())
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows, err := tx.Query(ctx,
		`SELECT id, state_name FROM hf_job WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("lock jobs: %w", err)
	}
	current := make(map[string]string, len(ids))
	for rows.Next() {
		var jID, name string
		if err := rows.Scan(&jID, &name); err != nil {
			rows.Close()
			return fmt.Errorf("scan locked job: %w", err)
		}
		current[jID] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock jobs: %w", err)
	}

	for _, jID := range ids {
		if _, ok := current[jID]; !ok {
			return hangfire.ErrJobNotFound
		}
	}
	for _, g := range t.Guards() {
		if current[g.JobID.String()] != g.StateName {
			return hangfire.ErrConflictOnCommit
		}
	}
	return nil
}

// queueOp adds the SQL for one write to batch.
func queueOp(batch *pgx.Batch, op store.Op, now time.Time) error {
	jID := op.JobID.String()

	switch op.Kind {
	case store.OpExpireStateData:
		batch.Queue(`UPDATE hf_job SET state_data = NULL WHERE id = $1`, jID)

	case store.OpSetJobState:
		data, err := encodeData(op.State.Data)
		if err != nil {
			return fmt.Errorf("encode state data: %w", err)
		}
		batch.Queue(`
			UPDATE hf_job
			SET state_name = $2, state_reason = $3, state_data = $4,
			    state_created_at = $5, updated_at = $6
			WHERE id = $1`,
			jID, op.State.Name, op.State.Reason, data, op.State.CreatedAt, now)

	case store.OpAddJobState:
		data, err := encodeData(op.State.Data)
		if err != nil {
			return fmt.Errorf("encode state data: %w", err)
		}
		batch.Queue(`
			INSERT INTO hf_state (job_id, name, reason, data, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			jID, op.State.Name, op.State.Reason, data, op.State.CreatedAt)

	case store.OpExpireJob:
		batch.Queue(`UPDATE hf_job SET expire_at = $2 WHERE id = $1`, jID, now.Add(op.TTL))

	case store.OpPersistJob:
		batch.Queue(`UPDATE hf_job SET expire_at = NULL WHERE id = $1`, jID)

	case store.OpAddToQueue:
		batch.Queue(`
			INSERT INTO hf_job_queue (queue, job_id) VALUES ($1, $2)
			ON CONFLICT (queue, job_id) DO NOTHING`,
			op.Key, jID)

	case store.OpRemoveFromQueue:
		batch.Queue(`DELETE FROM hf_job_queue WHERE queue = $1 AND job_id = $2`, op.Key, jID)

	case store.OpAddToSet:
		batch.Queue(`
			INSERT INTO hf_set (key, value, score) VALUES ($1, $2, $3)
			ON CONFLICT (key, value) DO UPDATE SET score = EXCLUDED.score`,
			op.Key, op.Value, op.Score)

	case store.OpRemoveFromSet:
		batch.Queue(`DELETE FROM hf_set WHERE key = $1 AND value = $2`, op.Key, op.Value)

	case store.OpIncrementCounter:
		queueCounter(batch, op.Key, 1)

	case store.OpDecrementCounter:
		queueCounter(batch, op.Key, -1)

	default:
		return fmt.Errorf("unknown op %s", op.Kind)
	}
	return nil
}

func queueCounter(batch *pgx.Batch, key string, delta int64) {
	batch.Queue(`
		INSERT INTO hf_counter (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = hf_counter.value + EXCLUDED.value`,
		key, delta)
}
