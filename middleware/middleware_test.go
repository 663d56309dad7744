package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/middleware"
	"github.com/Pearl2B/Hangfire/state"
)

func newTestRequest() *state.AttemptRequest {
	j, err := job.New("send-email")
	if err != nil {
		panic(err)
	}
	j.StateName = state.EnqueuedStateName
	return &state.AttemptRequest{
		Job:      j,
		NewState: state.NewProcessing("srv", "w1"),
	}
}

// commit is a terminal handler committing the proposed state.
func commit(req *state.AttemptRequest) middleware.Handler {
	return func(_ context.Context) (*state.Result, error) {
		return &state.Result{State: req.NewState, PreviousStateName: req.Job.StateName}, nil
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *state.AttemptRequest, next middleware.Handler) (*state.Result, error) {
		order = append(order, "mw1-before")
		res, err := next(ctx)
		order = append(order, "mw1-after")
		return res, err
	}

	mw2 := func(ctx context.Context, _ *state.AttemptRequest, next middleware.Handler) (*state.Result, error) {
		order = append(order, "mw2-before")
		res, err := next(ctx)
		order = append(order, "mw2-after")
		return res, err
	}

	chain := middleware.Chain(mw1, mw2)
	req := newTestRequest()
	handler := func(ctx context.Context) (*state.Result, error) {
		order = append(order, "handler")
		return commit(req)(ctx)
	}

	if _, err := chain(context.Background(), req, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	req := newTestRequest()

	res, err := chain(context.Background(), req, commit(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State.Name() != state.ProcessingStateName {
		t.Fatalf("got state %q, want %q", res.State.Name(), state.ProcessingStateName)
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *state.AttemptRequest, next middleware.Handler) (*state.Result, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("attempt error")

	_, err := chain(context.Background(), newTestRequest(), func(_ context.Context) (*state.Result, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	res, err := mw(context.Background(), newTestRequest(), func(_ context.Context) (*state.Result, error) {
		panic("test panic")
	})
	if !errors.Is(err, hangfire.ErrAborted) {
		t.Fatalf("got error %v, want %v", err, hangfire.ErrAborted)
	}
	if !strings.Contains(err.Error(), "test panic") {
		t.Errorf("error %q does not carry the panic value", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	req := newTestRequest()

	res, err := mw(context.Background(), req, commit(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
}

func TestLogging_Success(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	req := newTestRequest()

	res, err := mw(context.Background(), req, commit(req))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PreviousStateName != state.EnqueuedStateName {
		t.Errorf("got previous %q, want %q", res.PreviousStateName, state.EnqueuedStateName)
	}
}

func TestLogging_Error(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	want := errors.New("fail")

	_, err := mw(context.Background(), newTestRequest(), func(_ context.Context) (*state.Result, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	mw := middleware.Timeout(slog.Default(), time.Second)
	req := newTestRequest()

	_, err := mw(context.Background(), req, func(ctx context.Context) (*state.Result, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the attempt context")
		}
		return commit(req)(ctx)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	mw := middleware.Timeout(slog.Default(), 0)
	req := newTestRequest()

	_, err := mw(context.Background(), req, func(ctx context.Context) (*state.Result, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline")
		}
		return commit(req)(ctx)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_Expires(t *testing.T) {
	mw := middleware.Timeout(slog.Default(), 10*time.Millisecond)

	_, err := mw(context.Background(), newTestRequest(), func(ctx context.Context) (*state.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got error %v, want %v", err, context.DeadlineExceeded)
	}
}
