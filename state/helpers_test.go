package state_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
	"github.com/Pearl2B/Hangfire/store/memory"
	"github.com/Pearl2B/Hangfire/store/storetest"
)

// ──────────────────────────────────────────────────
// Test filters
// ──────────────────────────────────────────────────

// electFunc adapts a function to an electing filter.
type electFunc struct {
	name string
	fn   func(ctx context.Context, c *state.ElectContext) error
}

func (f *electFunc) Name() string { return f.name }

func (f *electFunc) OnStateElection(ctx context.Context, c *state.ElectContext) error {
	return f.fn(ctx, c)
}

// applyFunc adapts a function to an applied filter.
type applyFunc struct {
	name string
	fn   func(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error
}

func (f *applyFunc) Name() string { return f.name }

func (f *applyFunc) OnStateApplied(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error {
	return f.fn(ctx, c, tx)
}

// unapplyFunc adapts a function to an unapplied filter.
type unapplyFunc struct {
	name string
	fn   func(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error
}

func (f *unapplyFunc) Name() string { return f.name }

func (f *unapplyFunc) OnStateUnapplied(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error {
	return f.fn(ctx, c, tx)
}

// redirect returns a filter that replaces a candidate named from with to().
func redirect(from string, to func() state.State) *electFunc {
	return &electFunc{
		name: "redirect-" + from,
		fn: func(_ context.Context, c *state.ElectContext) error {
			if c.CandidateState().Name() == from {
				return c.SetCandidateState(to())
			}
			return nil
		},
	}
}

// ──────────────────────────────────────────────────
// Counting connection
// ──────────────────────────────────────────────────

// countingConn records how many parameter reads reach storage.
type countingConn struct {
	store.Connection
	paramReads atomic.Int64
	readErr    error
}

func (c *countingConn) GetJobParameter(ctx context.Context, jobID id.JobID, name string) (string, error) {
	c.paramReads.Add(1)
	if c.readErr != nil {
		return "", c.readErr
	}
	return c.Connection.GetJobParameter(ctx, jobID, name)
}

// ──────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────

func newConn(t *testing.T) (*memory.Store, store.Connection) {
	t.Helper()
	s := memory.New()
	conn, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s, conn
}

// seedJob creates a job and, when name is not empty, commits it in that state.
func seedJob(t *testing.T, conn store.Connection, stateName string, opts ...job.Option) *job.Job {
	t.Helper()
	j, err := job.New("test", opts...)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	if err := conn.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if stateName != "" {
		storetest.SetState(t, conn, j.ID, stateName)
		j.StateName = stateName
	}
	return j
}

func committedState(t *testing.T, conn store.Connection, jobID id.JobID) string {
	t.Helper()
	name, err := conn.GetStateName(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetStateName: %v", err)
	}
	return name
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
