package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/store"
)

// Connection reads through View transactions and writes parameters
// eagerly through Update transactions.
type Connection struct {
	s *Store
}

// CreateJob writes the job record and its parameter snapshot.
func (c *Connection) CreateJob(_ context.Context, j *job.Job) error {
	jID := j.ID.String()
	err := c.s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(jobKey(jID)); err == nil {
			return hangfire.ErrJobAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		rec := &jobRecord{
			ID:        jID,
			Type:      j.Type,
			ExpireAt:  j.ExpireAt,
			CreatedAt: j.CreatedAt,
			UpdatedAt: j.UpdatedAt,
		}
		if err := saveJob(txn, rec); err != nil {
			return err
		}
		for name, value := range j.Parameters {
			if err := txn.SetEntry(entry(paramKey(jID, name), []byte(value), rec.ExpireAt)); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hangfire.ErrJobAlreadyExists), errors.Is(err, badger.ErrConflict):
		// A conflict means a concurrent create of the same ID won.
		return hangfire.ErrJobAlreadyExists
	default:
		return fmt.Errorf("hangfire/badger: create job: %w", err)
	}
}

// GetJob returns the job with its committed state name and a snapshot
// of its stored parameters.
func (c *Connection) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	var out *job.Job
	err := c.s.db.View(func(txn *badger.Txn) error {
		rec, err := loadJob(txn, jobID.String())
		if err != nil {
			return err
		}
		params, err := readParams(txn, rec.ID)
		if err != nil {
			return err
		}
		out = &job.Job{
			Entity: hangfire.Entity{
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			},
			ID:         jobID,
			Type:       rec.Type,
			StateName:  rec.stateName(),
			Parameters: params,
			ExpireAt:   rec.ExpireAt,
		}
		return nil
	})
	if err != nil {
		return nil, wrap("get job", err)
	}
	return out, nil
}

func readParams(txn *badger.Txn, jobID string) (map[string]string, error) {
	prefix := paramPrefix(jobID)
	params := make(map[string]string)
	err := scanPrefix(txn, prefix, func(key, val []byte) error {
		params[string(key[len(prefix):])] = string(val)
		return nil
	})
	return params, err
}

// GetStateName returns the committed state name of a job.
func (c *Connection) GetStateName(_ context.Context, jobID id.JobID) (string, error) {
	var name string
	err := c.s.db.View(func(txn *badger.Txn) error {
		rec, err := loadJob(txn, jobID.String())
		if err != nil {
			return err
		}
		name = rec.stateName()
		return nil
	})
	if err != nil {
		return "", wrap("get state name", err)
	}
	return name, nil
}

// GetStateData returns the committed state record of a job.
func (c *Connection) GetStateData(_ context.Context, jobID id.JobID) (*store.StateRecord, error) {
	var out *store.StateRecord
	err := c.s.db.View(func(txn *badger.Txn) error {
		rec, err := loadJob(txn, jobID.String())
		if err != nil {
			return err
		}
		out = rec.State
		return nil
	})
	if err != nil {
		return nil, wrap("get state data", err)
	}
	return out, nil
}

// GetJobParameter returns a stored parameter.
func (c *Connection) GetJobParameter(_ context.Context, jobID id.JobID, name string) (string, error) {
	jID := jobID.String()
	var value string
	err := c.s.db.View(func(txn *badger.Txn) error {
		if _, err := loadJob(txn, jID); err != nil {
			return err
		}
		item, err := txn.Get(paramKey(jID, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		value = string(raw)
		return err
	})
	if err != nil {
		return "", wrap("get job parameter", err)
	}
	return value, nil
}

// SetJobParameter writes a parameter immediately. The entry inherits the
// job's expiration.
func (c *Connection) SetJobParameter(ctx context.Context, jobID id.JobID, name, value string) error {
	jID := jobID.String()
	err := c.s.updateRetry(ctx, func(txn *badger.Txn) error {
		rec, err := loadJob(txn, jID)
		if err != nil {
			return err
		}
		return txn.SetEntry(entry(paramKey(jID, name), []byte(value), rec.ExpireAt))
	})
	if err != nil {
		return wrap("set job parameter", err)
	}
	return nil
}

// CreateWriteTransaction opens a transaction against the store.
func (c *Connection) CreateWriteTransaction(_ context.Context) (store.Transaction, error) {
	return &Transaction{s: c.s}, nil
}

// Close is a no-op.
func (c *Connection) Close() error { return nil }

// ──────────────────────────────────────────────────
// Monitor
// ──────────────────────────────────────────────────

// Queue returns the job IDs in a queue in insertion order.
func (c *Connection) Queue(_ context.Context, name string) ([]id.JobID, error) {
	var out []id.JobID
	err := c.s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, queuePrefix(name), func(_, val []byte) error {
			jID, err := id.ParseJobID(string(val))
			if err != nil {
				return err
			}
			out = append(out, jID)
			return nil
		})
	})
	if err != nil {
		return nil, wrap("queue", err)
	}
	return out, nil
}

// SetScore returns the score of value in set key.
func (c *Connection) SetScore(_ context.Context, key, value string) (float64, bool, error) {
	var (
		score float64
		found bool
	)
	err := c.s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(setKey(key, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			score = decodeScore(val)
			return nil
		})
	})
	if err != nil {
		return 0, false, wrap("set score", err)
	}
	return score, found, nil
}

// Counter returns a counter value.
func (c *Connection) Counter(_ context.Context, key string) (int64, error) {
	var n int64
	err := c.s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCounter(txn, key)
		return err
	})
	if err != nil {
		return 0, wrap("counter", err)
	}
	return n, nil
}

// History returns the state history of a job, oldest first.
func (c *Connection) History(_ context.Context, jobID id.JobID) ([]store.StateRecord, error) {
	jID := jobID.String()
	var out []store.StateRecord
	err := c.s.db.View(func(txn *badger.Txn) error {
		if _, err := loadJob(txn, jID); err != nil {
			return err
		}
		return scanPrefix(txn, historyPrefix(jID), func(_, val []byte) error {
			var rec store.StateRecord
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode history: %w", err)
			}
			rec.CreatedAt = rec.CreatedAt.UTC()
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, wrap("history", err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Value codecs
// ──────────────────────────────────────────────────

func encodeScore(f float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(f))
}

func decodeScore(b []byte) float64 {
	if len(b) != 8 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func readCounter(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get(counterKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = item.Value(func(val []byte) error {
		if len(val) == 8 {
			n = int64(binary.BigEndian.Uint64(val))
		}
		return nil
	})
	return n, err
}

func encodeCounter(n int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(n))
}

// wrap passes sentinel errors through and prefixes everything else.
func wrap(op string, err error) error {
	if errors.Is(err, hangfire.ErrJobNotFound) || errors.Is(err, hangfire.ErrJobAlreadyExists) {
		return err
	}
	return fmt.Errorf("hangfire/badger: %s: %w", op, err)
}
