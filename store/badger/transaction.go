package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
)

// Transaction queues writes and replays them in one Badger transaction
// on Commit.
type Transaction struct {
	store.Batch
	s *Store
}

// Commit checks the guards and applies the queued writes atomically.
// Counters are read-modify-write, so two commits touching the same
// counter also conflict.
func (t *Transaction) Commit(_ context.Context) error {
	if err := t.Finish(); err != nil {
		return err
	}

	err := t.s.db.Update(func(txn *badger.Txn) error {
		c := &commit{txn: txn, s: t.s, jobs: make(map[string]*jobRecord), now: t.s.now()}

		for _, g := range t.Guards() {
			rec, err := c.job(g.JobID.String())
			if err != nil {
				return err
			}
			if rec.stateName() != g.StateName {
				return hangfire.ErrConflictOnCommit
			}
		}
		for _, op := range t.Ops() {
			if op.JobID.IsNil() {
				continue
			}
			if _, err := c.job(op.JobID.String()); err != nil {
				return err
			}
		}

		for _, op := range t.Ops() {
			if err := c.apply(op); err != nil {
				return err
			}
		}
		return c.flush()
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		t.s.logger.Debug("badger commit lost a race")
		return hangfire.ErrConflictOnCommit
	case errors.Is(err, hangfire.ErrConflictOnCommit), errors.Is(err, hangfire.ErrJobNotFound):
		return err
	default:
		return fmt.Errorf("hangfire/badger: commit: %w", err)
	}
}

// Rollback discards the queued writes.
func (t *Transaction) Rollback(_ context.Context) error {
	_ = t.Finish()
	return nil
}

// commit holds the job records loaded by one Commit.
type commit struct {
	txn  *badger.Txn
	s    *Store
	now  time.Time
	jobs map[string]*jobRecord

	dirty   map[string]bool
	retimed map[string]bool
}

func (c *commit) job(jobID string) (*jobRecord, error) {
	if rec, ok := c.jobs[jobID]; ok {
		return rec, nil
	}
	rec, err := loadJob(c.txn, jobID)
	if err != nil {
		return nil, err
	}
	c.jobs[jobID] = rec
	return rec, nil
}

func (c *commit) touch(jobID string) {
	if c.dirty == nil {
		c.dirty = make(map[string]bool)
	}
	c.dirty[jobID] = true
}

func (c *commit) retime(jobID string) {
	if c.retimed == nil {
		c.retimed = make(map[string]bool)
	}
	c.retimed[jobID] = true
	c.touch(jobID)
}

func (c *commit) apply(op store.Op) error {
	jID := op.JobID.String()
	rec := c.jobs[jID]

	switch op.Kind {
	case store.OpExpireStateData:
		if rec.State != nil {
			rec.State.Data = nil
			c.touch(jID)
		}

	case store.OpSetJobState:
		rec.State = store.CloneRecord(&op.State)
		rec.UpdatedAt = c.now
		c.touch(jID)

	case store.OpAddJobState:
		raw, err := msgpack.Marshal(&op.State)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		if err := c.txn.SetEntry(entry(historyKey(jID, rec.History), raw, rec.ExpireAt)); err != nil {
			return err
		}
		rec.History++
		c.touch(jID)

	case store.OpExpireJob:
		at := c.now.Add(op.TTL)
		rec.ExpireAt = &at
		c.retime(jID)

	case store.OpPersistJob:
		rec.ExpireAt = nil
		c.retime(jID)

	case store.OpAddToQueue:
		return c.addToQueue(op.Key, jID)

	case store.OpRemoveFromQueue:
		return c.removeFromQueue(op.Key, jID)

	case store.OpAddToSet:
		return c.txn.Set(setKey(op.Key, op.Value), encodeScore(op.Score))

	case store.OpRemoveFromSet:
		return c.txn.Delete(setKey(op.Key, op.Value))

	case store.OpIncrementCounter:
		return c.addCounter(op.Key, 1)

	case store.OpDecrementCounter:
		return c.addCounter(op.Key, -1)

	default:
		return fmt.Errorf("unknown op %s", op.Kind)
	}
	return nil
}

// addToQueue appends a job unless it is already queued, keeping its
// original position.
func (c *commit) addToQueue(queue, jobID string) error {
	idx := queueIndexKey(queue, jobID)
	if _, err := c.txn.Get(idx); err == nil {
		return nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	n, err := c.s.seq.Next()
	if err != nil {
		return fmt.Errorf("queue sequence: %w", err)
	}
	key := queueKey(queue, n)
	if err := c.txn.Set(key, []byte(jobID)); err != nil {
		return err
	}
	return c.txn.Set(idx, key)
}

func (c *commit) removeFromQueue(queue, jobID string) error {
	idx := queueIndexKey(queue, jobID)
	item, err := c.txn.Get(idx)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := c.txn.Delete(key); err != nil {
		return err
	}
	return c.txn.Delete(idx)
}

func (c *commit) addCounter(key string, delta int64) error {
	n, err := readCounter(c.txn, key)
	if err != nil {
		return err
	}
	return c.txn.Set(counterKey(key), encodeCounter(n+delta))
}

// flush writes modified job records. Jobs whose expiration changed get
// their parameter and history entries rewritten with the new TTL.
func (c *commit) flush() error {
	for jID := range c.dirty {
		rec := c.jobs[jID]
		if err := saveJob(c.txn, rec); err != nil {
			return err
		}
		if !c.retimed[jID] {
			continue
		}
		for _, prefix := range [][]byte{paramPrefix(jID), historyPrefix(jID)} {
			if err := c.rewrite(prefix, rec.ExpireAt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *commit) rewrite(prefix []byte, expireAt *time.Time) error {
	type kv struct{ k, v []byte }
	var entries []kv
	err := scanPrefix(c.txn, prefix, func(key, val []byte) error {
		entries = append(entries, kv{key, val})
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := c.txn.SetEntry(entry(e.k, e.v, expireAt)); err != nil {
			return err
		}
	}
	return nil
}
