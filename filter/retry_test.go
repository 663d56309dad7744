package filter_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Pearl2B/Hangfire/backoff"
	"github.com/Pearl2B/Hangfire/filter"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/state"
)

func failJob(t *testing.T, r *filter.Retry, opts ...job.Option) (*state.Result, *job.Job, *state.Machine) {
	t.Helper()
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName, opts...)
	m := state.NewMachine(state.WithFilters(state.FilterList{r}))
	res, err := m.Attempt(context.Background(), state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New("connection reset")),
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	return res, j, m
}

func TestRetry_SchedulesFailedJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName)

	r := filter.NewRetry(filter.WithAttempts(3), filter.WithBackoff(backoff.NewConstant(time.Minute)))
	m := state.NewMachine(state.WithFilters(state.FilterList{r}))

	before := time.Now()
	res, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New("connection reset")),
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	sched, ok := res.State.(*state.Scheduled)
	if !ok {
		t.Fatalf("got final %T, want *state.Scheduled", res.State)
	}
	if sched.EnqueueAt().Before(before.Add(time.Minute)) {
		t.Errorf("EnqueueAt %v is earlier than one minute from %v", sched.EnqueueAt(), before)
	}
	if want := "Retry attempt 1 of 3: connection reset"; sched.Reason() != want {
		t.Errorf("got reason %q, want %q", sched.Reason(), want)
	}
	if got := state.Names(res.Traversed); len(got) != 1 || got[0] != state.FailedStateName {
		t.Errorf("got traversed %v, want [Failed]", got)
	}

	count, err := conn.GetJobParameter(ctx, j.ID, filter.RetryCountParameter)
	if err != nil {
		t.Fatalf("GetJobParameter: %v", err)
	}
	if count != "1" {
		t.Errorf("got RetryCount %q, want %q", count, "1")
	}

	score, ok, err := monitor(t, conn).SetScore(ctx, filter.RetrySet, j.ID.String())
	if err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if !ok || score != 1 {
		t.Errorf("got retries score (%v, %v), want (1, true)", score, ok)
	}
	if _, ok, _ := monitor(t, conn).SetScore(ctx, state.ScheduleSet, j.ID.String()); !ok {
		t.Error("job missing from the schedule set")
	}
}

func TestRetry_ZeroDelayEnqueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName)

	r := filter.NewRetry(
		filter.WithBackoff(backoff.NewConstant(0)),
		filter.WithRetryQueue("critical"),
	)
	m := state.NewMachine(state.WithFilters(state.FilterList{r}))

	res, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New("boom")),
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	enq, ok := res.State.(*state.Enqueued)
	if !ok {
		t.Fatalf("got final %T, want *state.Enqueued", res.State)
	}
	if enq.Queue() != "critical" {
		t.Errorf("got queue %q, want %q", enq.Queue(), "critical")
	}
	ids, err := monitor(t, conn).Queue(ctx, "critical")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(ids) != 1 || ids[0] != j.ID {
		t.Errorf("got queue %v, want [%s]", ids, j.ID)
	}
	if _, ok, _ := monitor(t, conn).SetScore(ctx, filter.RetrySet, j.ID.String()); ok {
		t.Error("enqueued retry must not be tracked in the retries set")
	}
}

func TestRetry_AttemptsExceeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action filter.AttemptsExceededAction
		want   string
	}{
		{"fail", filter.AttemptsExceededFail, state.FailedStateName},
		{"delete", filter.AttemptsExceededDelete, state.DeletedStateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := filter.NewRetry(filter.WithAttempts(3), filter.WithAttemptsExceeded(tt.action))
			res, _, _ := failJob(t, r, job.WithParameter(filter.RetryCountParameter, 3))
			if res.State.Name() != tt.want {
				t.Errorf("got final %q, want %q", res.State.Name(), tt.want)
			}
		})
	}
}

func TestRetry_ZeroAttemptsNeverRetries(t *testing.T) {
	t.Parallel()
	r := filter.NewRetry(filter.WithAttempts(-1))
	if r.Attempts() != 0 {
		t.Fatalf("got attempts %d, want 0", r.Attempts())
	}
	res, _, _ := failJob(t, r)
	if res.State.Name() != state.FailedStateName {
		t.Errorf("got final %q, want %q", res.State.Name(), state.FailedStateName)
	}
}

func TestRetry_IgnoresOtherStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.EnqueuedStateName)

	m := state.NewMachine(state.WithFilters(state.FilterList{filter.NewRetry()}))
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
	if v, _ := conn.GetJobParameter(ctx, j.ID, filter.RetryCountParameter); v != "" {
		t.Errorf("RetryCount written for a non-failed candidate: %q", v)
	}
}

func TestRetry_UnapplyRemovesFromRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName)

	r := filter.NewRetry(filter.WithBackoff(backoff.NewConstant(time.Hour)))
	m := state.NewMachine(state.WithFilters(state.FilterList{r}))

	if _, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New("boom")),
	}); err != nil {
		t.Fatalf("Attempt (fail): %v", err)
	}
	if _, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewEnqueued(state.DefaultQueue),
		Unapply:    true,
	}); err != nil {
		t.Fatalf("Attempt (enqueue): %v", err)
	}

	mon := monitor(t, conn)
	if _, ok, _ := mon.SetScore(ctx, filter.RetrySet, j.ID.String()); ok {
		t.Error("job still in the retries set after leaving Scheduled")
	}
	if _, ok, _ := mon.SetScore(ctx, state.ScheduleSet, j.ID.String()); ok {
		t.Error("job still in the schedule set after leaving Scheduled")
	}
}

func TestRetry_TruncatesLongMessages(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 80)
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName)
	m := state.NewMachine(state.WithFilters(state.FilterList{filter.NewRetry()}))

	res, err := m.Attempt(context.Background(), state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New(long)),
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	want := "Retry attempt 1 of 10: " + strings.Repeat("x", 50) + "…"
	if res.State.Reason() != want {
		t.Errorf("got reason %q, want %q", res.State.Reason(), want)
	}
}
