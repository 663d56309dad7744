package filter_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/filter"
	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// unapplyOnly implements only the unapplied stage.
type unapplyOnly struct{}

func (unapplyOnly) Name() string { return "unapply-only" }

func (unapplyOnly) OnStateUnapplied(_ context.Context, _ *state.ApplyContext, _ store.Transaction) error {
	return nil
}

func TestRegistry_CachesByStage(t *testing.T) {
	r := filter.NewRegistry(slog.Default())
	var calls []string
	r.Register(&recorder{name: "all", calls: &calls})
	r.Register(unapplyOnly{})

	if got := r.Len(); got != 2 {
		t.Fatalf("expected 2 filters, got %d", got)
	}
	if got := len(r.ElectStateFilters()); got != 1 {
		t.Errorf("expected 1 electing filter, got %d", got)
	}
	if got := len(r.ApplyStateFilters()); got != 1 {
		t.Errorf("expected 1 applied filter, got %d", got)
	}
	if got := len(r.UnapplyStateFilters()); got != 2 {
		t.Errorf("expected 2 unapplied filters, got %d", got)
	}
	if got := r.Filters()[1].Name(); got != "unapply-only" {
		t.Errorf("expected second filter 'unapply-only', got %q", got)
	}
}

func TestRegistry_RunsInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.EnqueuedStateName)

	var calls []string
	r := filter.NewRegistry(slog.Default())
	r.Register(&recorder{name: "a", calls: &calls})
	r.Register(&recorder{name: "b", calls: &calls})

	m := state.NewMachine(state.WithFilters(r))
	if _, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewProcessing("srv", "w1"),
		Unapply:    true,
	}); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	want := []string{"a:elect", "b:elect", "a:unapplied", "b:unapplied", "a:applied", "b:applied"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("got calls %v, want %v", calls, want)
	}
}

func TestRegistry_FilterErrorAborts(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.EnqueuedStateName)

	r := filter.NewRegistry(slog.Default())
	r.Register(&electFunc{name: "failing", fn: func(_ context.Context, _ *state.ElectContext) error {
		return errors.New("boom")
	}})

	m := state.NewMachine(state.WithFilters(r))
	_, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewProcessing("srv", "w1"),
	})
	if !errors.Is(err, hangfire.ErrAborted) {
		t.Fatalf("got error %v, want %v", err, hangfire.ErrAborted)
	}
	if !strings.Contains(err.Error(), `"failing"`) {
		t.Errorf("error %q does not name the filter", err)
	}
}

func TestRegistry_BestEffortErrorsLoggedNotPropagated(t *testing.T) {
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.EnqueuedStateName)

	var calls []string
	r := filter.NewRegistry(slog.Default())
	r.RegisterBestEffort(&electFunc{name: "failing", fn: func(_ context.Context, _ *state.ElectContext) error {
		return errors.New("boom")
	}})
	r.Register(&recorder{name: "after", calls: &calls})

	m := state.NewMachine(state.WithFilters(r))
	res, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewProcessing("srv", "w1"),
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if res.State.Name() != state.ProcessingStateName {
		t.Errorf("got final %q, want %q", res.State.Name(), state.ProcessingStateName)
	}
	if len(calls) == 0 || calls[0] != "after:elect" {
		t.Errorf("filter after the failing one did not run: %v", calls)
	}
}

func TestRegistry_NilLoggerUsesDefault(t *testing.T) {
	r := filter.NewRegistry(nil)
	r.RegisterBestEffort(&electFunc{name: "noop", fn: func(_ context.Context, _ *state.ElectContext) error {
		return nil
	}})
	if got := len(r.ElectStateFilters()); got != 1 {
		t.Fatalf("expected 1 electing filter, got %d", got)
	}
}
