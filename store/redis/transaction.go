package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
)

// Transaction queues writes and replays them in MULTI/EXEC on Commit.
type Transaction struct {
	store.Batch
	s *Store
}

// Commit watches the Hash of every job the transaction touches, checks
// the guards and job existence against the watched values, then applies
// the queued writes in one MULTI/EXEC. If another client changes a
// watched job in between, EXEC is discarded and Commit reports
// hangfire.ErrConflictOnCommit.
func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.Finish(); err != nil {
		return err
	}

	s := t.s
	watched := t.watchedKeys()

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		for _, g := range t.Guards() {
			current, found, err := stateName(ctx, tx, s.jobKey(g.JobID.String()))
			if err != nil {
				return fmt.Errorf("read guard: %w", err)
			}
			if !found {
				return hangfire.ErrJobNotFound
			}
			if current != g.StateName {
				return hangfire.ErrConflictOnCommit
			}
		}

		for _, key := range watched {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("check job: %w", err)
			}
			if n == 0 {
				return hangfire.ErrJobNotFound
			}
		}

		now := s.now()
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, op := range t.Ops() {
				if err := s.apply(ctx, pipe, op, now); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	}, watched...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		s.logger.Debug("redis commit aborted by concurrent write", "keys", len(watched))
		return hangfire.ErrConflictOnCommit
	case errors.Is(err, hangfire.ErrConflictOnCommit), errors.Is(err, hangfire.ErrJobNotFound):
		return err
	default:
		return fmt.Errorf("hangfire/redis: commit: %w", err)
	}
}

// Rollback discards the queued writes. Nothing reached Redis yet.
func (t *Transaction) Rollback(_ context.Context) error {
	_ = t.Finish()
	return nil
}

// watchedKeys returns the distinct job Hash keys referenced by guards
// and job-scoped writes.
func (t *Transaction) watchedKeys() []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(jID string) {
		k := t.s.jobKey(jID)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, g := range t.Guards() {
		add(g.JobID.String())
	}
	for _, op := range t.Ops() {
		if !op.JobID.IsNil() {
			add(op.JobID.String())
		}
	}
	return keys
}

// apply queues the Redis commands for one write on pipe.
func (s *Store) apply(ctx context.Context, pipe goredis.Pipeliner, op store.Op, now time.Time) error {
	jID := op.JobID.String()

	switch op.Kind {
	case store.OpExpireStateData:
		pipe.Del(ctx, s.stateDataKey(jID))

	case store.OpSetJobState:
		pipe.HSet(ctx, s.jobKey(jID),
			fieldState, op.State.Name,
			fieldUpdatedAt, now.Format(time.RFC3339Nano),
		)
		pipe.Del(ctx, s.stateKey(jID), s.stateDataKey(jID))
		pipe.HSet(ctx, s.stateKey(jID),
			fieldStateName, op.State.Name,
			fieldStateReason, op.State.Reason,
			fieldStateCreatedAt, op.State.CreatedAt.Format(time.RFC3339Nano),
		)
		if len(op.State.Data) > 0 {
			pipe.HSet(ctx, s.stateDataKey(jID), pairs(op.State.Data)...)
		}

	case store.OpAddJobState:
		raw, err := msgpack.Marshal(&op.State)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		pipe.RPush(ctx, s.historyKey(jID), raw)

	case store.OpExpireJob:
		for _, k := range s.jobKeys(jID) {
			pipe.Expire(ctx, k, op.TTL)
		}
		pipe.HSet(ctx, s.jobKey(jID), fieldExpireAt, now.Add(op.TTL).Format(time.RFC3339Nano))

	case store.OpPersistJob:
		for _, k := range s.jobKeys(jID) {
			pipe.Persist(ctx, k)
		}
		pipe.HDel(ctx, s.jobKey(jID), fieldExpireAt)

	case store.OpAddToQueue:
		// LREM first so a job appears in a queue at most once.
		pipe.LRem(ctx, s.queueKey(op.Key), 0, jID)
		pipe.RPush(ctx, s.queueKey(op.Key), jID)

	case store.OpRemoveFromQueue:
		pipe.LRem(ctx, s.queueKey(op.Key), 0, jID)

	case store.OpAddToSet:
		pipe.ZAdd(ctx, s.setKey(op.Key), goredis.Z{Score: op.Score, Member: op.Value})

	case store.OpRemoveFromSet:
		pipe.ZRem(ctx, s.setKey(op.Key), op.Value)

	case store.OpIncrementCounter:
		pipe.Incr(ctx, s.counterKey(op.Key))

	case store.OpDecrementCounter:
		pipe.Decr(ctx, s.counterKey(op.Key))

	default:
		return fmt.Errorf("unknown op %s", op.Kind)
	}
	return nil
}
