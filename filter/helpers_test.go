package filter_test

import (
	"context"
	"testing"

	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
	"github.com/Pearl2B/Hangfire/store/memory"
	"github.com/Pearl2B/Hangfire/store/storetest"
)

// electFunc adapts a function to an electing filter.
type electFunc struct {
	name string
	fn   func(ctx context.Context, c *state.ElectContext) error
}

func (f *electFunc) Name() string { return f.name }

func (f *electFunc) OnStateElection(ctx context.Context, c *state.ElectContext) error {
	return f.fn(ctx, c)
}

// recorder implements every stage and records the calls it receives.
type recorder struct {
	name  string
	calls *[]string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnStateElection(_ context.Context, _ *state.ElectContext) error {
	*r.calls = append(*r.calls, r.name+":elect")
	return nil
}

func (r *recorder) OnStateApplied(_ context.Context, _ *state.ApplyContext, _ store.Transaction) error {
	*r.calls = append(*r.calls, r.name+":applied")
	return nil
}

func (r *recorder) OnStateUnapplied(_ context.Context, _ *state.ApplyContext, _ store.Transaction) error {
	*r.calls = append(*r.calls, r.name+":unapplied")
	return nil
}

func newConn(t *testing.T) store.Connection {
	t.Helper()
	conn, err := memory.New().Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return conn
}

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

func monitor(t *testing.T, conn store.Connection) store.Monitor {
	t.Helper()
	m, ok := conn.(store.Monitor)
	if !ok {
		t.Fatalf("connection %T does not implement store.Monitor", conn)
	}
	return m
}
