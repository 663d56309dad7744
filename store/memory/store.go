package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/store"
)

// Compile-time interface checks.
var (
	_ store.Store       = (*Store)(nil)
	_ store.Connection  = (*Connection)(nil)
	_ store.Monitor     = (*Connection)(nil)
	_ store.Transaction = (*Transaction)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*entry
	queues   map[string][]id.JobID
	sets     map[string]map[string]float64
	counters map[string]int64

	closed bool
	now    func() time.Time
}

// entry is everything the store keeps about one job.
type entry struct {
	job     *job.Job
	params  map[string]string
	state   *store.StateRecord
	history []store.StateRecord
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*entry),
		queues:   make(map[string][]id.JobID),
		sets:     make(map[string]map[string]float64),
		counters: make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Connect returns a connection to the store.
func (m *Store) Connect(_ context.Context) (store.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, hangfire.ErrStoreClosed
	}
	return &Connection{s: m}, nil
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return hangfire.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Existing data stays readable by open
// connections.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Connection
// ──────────────────────────────────────────────────

// Connection reads and eagerly writes through the parent Store.
type Connection struct {
	s *Store
}

// CreateJob persists a new job and its parameter snapshot.
func (c *Connection) CreateJob(_ context.Context, j *job.Job) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	key := j.ID.String()
	if _, exists := c.s.jobs[key]; exists {
		return hangfire.ErrJobAlreadyExists
	}
	cp := j.Clone()
	cp.StateName = ""
	c.s.jobs[key] = &entry{
		job:    cp,
		params: maps.Clone(j.Parameters),
	}
	if c.s.jobs[key].params == nil {
		c.s.jobs[key].params = make(map[string]string)
	}
	return nil
}

// GetJob returns a copy of the job with its committed state name and a
// snapshot of its current parameters.
func (c *Connection) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.jobs[jobID.String()]
	if !ok {
		return nil, hangfire.ErrJobNotFound
	}
	cp := e.job.Clone()
	cp.Parameters = maps.Clone(e.params)
	if e.state != nil {
		cp.StateName = e.state.Name
	}
	return cp, nil
}

// GetStateName returns the committed state name of a job.
func (c *Connection) GetStateName(_ context.Context, jobID id.JobID) (string, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.jobs[jobID.String()]
	if !ok {
		return "", hangfire.ErrJobNotFound
	}
	if e.state == nil {
		return "", nil
	}
	return e.state.Name, nil
}

// GetStateData returns a copy of the committed state record.
func (c *Connection) GetStateData(_ context.Context, jobID id.JobID) (*store.StateRecord, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.jobs[jobID.String()]
	if !ok {
		return nil, hangfire.ErrJobNotFound
	}
	return store.CloneRecord(e.state), nil
}

// GetJobParameter returns a stored parameter.
func (c *Connection) GetJobParameter(_ context.Context, jobID id.JobID, name string) (string, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.jobs[jobID.String()]
	if !ok {
		return "", hangfire.ErrJobNotFound
	}
	return e.params[name], nil
}

// SetJobParameter writes a parameter immediately.
func (c *Connection) SetJobParameter(_ context.Context, jobID id.JobID, name, value string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	e, ok := c.s.jobs[jobID.String()]
	if !ok {
		return hangfire.ErrJobNotFound
	}
	e.params[name] = value
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

// Queue returns the job IDs in a queue.
func (c *Connection) Queue(_ context.Context, name string) ([]id.JobID, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return slices.Clone(c.s.queues[name]), nil
}

// SetScore returns the score of value in set key.
func (c *Connection) SetScore(_ context.Context, key, value string) (float64, bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	score, ok := c.s.sets[key][value]
	return score, ok, nil
}

// Counter returns a counter value.
func (c *Connection) Counter(_ context.Context, key string) (int64, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.counters[key], nil
}

// History returns the state history of a job.
func (c *Connection) History(_ context.Context, jobID id.JobID) ([]store.StateRecord, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	e, ok := c.s.jobs[jobID.String()]
	if !ok {
		return nil, hangfire.ErrJobNotFound
	}
	out := make([]store.StateRecord, len(e.history))
	for i := range e.history {
		out[i] = *store.CloneRecord(&e.history[i])
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

// Transaction queues writes and applies them under the store lock.
type Transaction struct {
	store.Batch
	s *Store
}

// Commit checks every guard and applies the queued writes while holding
// the store lock, so no other commit can interleave.
func (t *Transaction) Commit(_ context.Context) error {
	if err := t.Finish(); err != nil {
		return err
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, g := range t.Guards() {
		e, ok := t.s.jobs[g.JobID.String()]
		if !ok {
			return hangfire.ErrJobNotFound
		}
		current := ""
		if e.state != nil {
			current = e.state.Name
		}
		if current != g.StateName {
			return hangfire.ErrConflictOnCommit
		}
	}
	for _, op := range t.Ops() {
		if op.JobID.IsNil() {
			continue
		}
		if _, ok := t.s.jobs[op.JobID.String()]; !ok {
			return hangfire.ErrJobNotFound
		}
	}

	now := t.s.now()
	for _, op := range t.Ops() {
		t.s.apply(op, now)
	}
	return nil
}

// Rollback discards the queued writes.
func (t *Transaction) Rollback(_ context.Context) error {
	_ = t.Finish()
	return nil
}

// apply performs one write. Callers hold m.mu and have validated job IDs.
func (m *Store) apply(op store.Op, now time.Time) {
	var e *entry
	if !op.JobID.IsNil() {
		e = m.jobs[op.JobID.String()]
	}

	switch op.Kind {
	case store.OpExpireStateData:
		if e.state != nil {
			e.state.Data = nil
		}
	case store.OpSetJobState:
		e.state = store.CloneRecord(&op.State)
		e.job.UpdatedAt = now
	case store.OpAddJobState:
		e.history = append(e.history, *store.CloneRecord(&op.State))
	case store.OpExpireJob:
		at := now.Add(op.TTL)
		e.job.ExpireAt = &at
	case store.OpPersistJob:
		e.job.ExpireAt = nil
	case store.OpAddToQueue:
		if !slices.Contains(m.queues[op.Key], op.JobID) {
			m.queues[op.Key] = append(m.queues[op.Key], op.JobID)
		}
	case store.OpRemoveFromQueue:
		m.queues[op.Key] = slices.DeleteFunc(m.queues[op.Key], func(x id.JobID) bool { return x == op.JobID })
	case store.OpAddToSet:
		if m.sets[op.Key] == nil {
			m.sets[op.Key] = make(map[string]float64)
		}
		m.sets[op.Key][op.Value] = op.Score
	case store.OpRemoveFromSet:
		delete(m.sets[op.Key], op.Value)
	case store.OpIncrementCounter:
		m.counters[op.Key]++
	case store.OpDecrementCounter:
		m.counters[op.Key]--
	}
}
