// Package store defines the persistence contract the state machine needs
// from a storage backend: a connection for reads and eager parameter
// writes, and a write transaction that queues state changes and commits
// them atomically behind an optimistic state-name guard.
package store

import (
	"context"
	"time"

	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
)

// StateRecord is the persisted form of a state.
type StateRecord struct {
	Name      string            `json:"name" msgpack:"name"`
	Reason    string            `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Data      map[string]string `json:"data,omitempty" msgpack:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at" msgpack:"created_at"`
}

// Store is the aggregate persistence interface a backend implements.
type Store interface {
	// Connect opens a connection. Connections are cheap and must be
	// closed by the caller.
	Connect(ctx context.Context) (Connection, error)

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}

// Connection gives synchronous reads and eager writes.
type Connection interface {
	// CreateJob persists a new job together with its parameter snapshot.
	// The snapshot values are also written as stored parameters.
	CreateJob(ctx context.Context, j *job.Job) error

	// GetJob returns the job with its committed state name and a snapshot
	// of its parameters, or hangfire.ErrJobNotFound.
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)

	// GetStateName returns the committed state name of a job. The empty
	// string means the job has no committed state.
	GetStateName(ctx context.Context, jobID id.JobID) (string, error)

	// GetStateData returns the committed state record of a job, or nil
	// when the job has no committed state.
	GetStateData(ctx context.Context, jobID id.JobID) (*StateRecord, error)

	// GetJobParameter returns the serialized parameter value, or the
	// empty string when it is absent.
	GetJobParameter(ctx context.Context, jobID id.JobID, name string) (string, error)

	// SetJobParameter writes a serialized parameter immediately,
	// independent of any open transaction.
	SetJobParameter(ctx context.Context, jobID id.JobID, name, value string) error

	// CreateWriteTransaction opens a transaction owned by one attempt.
	CreateWriteTransaction(ctx context.Context) (Transaction, error)

	// Close releases the connection.
	Close() error
}

// Transaction queues writes and applies them atomically on Commit.
// A Transaction is not safe for concurrent use.
type Transaction interface {
	// ExpectState registers a guard: Commit fails with
	// hangfire.ErrConflictOnCommit unless the committed state name of
	// jobID still equals name.
	ExpectState(jobID id.JobID, name string)

	// ExpireStateData clears transient data of the current state.
	ExpireStateData(jobID id.JobID)

	// SetJobState replaces the current state of a job.
	SetJobState(jobID id.JobID, rec StateRecord)

	// AddJobState appends a record to the job's state history.
	AddJobState(jobID id.JobID, rec StateRecord)

	// ExpireJob marks a job for removal after ttl.
	ExpireJob(jobID id.JobID, ttl time.Duration)

	// PersistJob removes any expiration from a job.
	PersistJob(jobID id.JobID)

	AddToQueue(queue string, jobID id.JobID)
	RemoveFromQueue(queue string, jobID id.JobID)

	AddToSet(key, value string, score float64)
	RemoveFromSet(key, value string)

	IncrementCounter(key string)
	DecrementCounter(key string)

	// Commit applies every queued write atomically.
	Commit(ctx context.Context) error

	// Rollback discards the queued writes. It is safe to call after
	// Commit, in which case it does nothing.
	Rollback(ctx context.Context) error
}

// Monitor gives read access to the structures transactions write besides
// job state: queues, sets, counters and state history. Connections of
// every bundled backend implement it.
type Monitor interface {
	// Queue returns the job IDs in a queue in insertion order.
	Queue(ctx context.Context, name string) ([]id.JobID, error)

	// SetScore returns the score of value in the set key and whether it
	// is a member.
	SetScore(ctx context.Context, key, value string) (float64, bool, error)

	// Counter returns the current value of a counter. Missing counters
	// read as zero.
	Counter(ctx context.Context, key string) (int64, error)

	// History returns the state history of a job, oldest first.
	History(ctx context.Context, jobID id.JobID) ([]StateRecord, error)
}
