package filter

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/Pearl2B/Hangfire/backoff"
	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// Retry bookkeeping names.
const (
	// RetryCountParameter is the job parameter holding the number of
	// retries already scheduled.
	RetryCountParameter = "RetryCount"

	// RetryAttemptKey is the custom data key set when the filter
	// reschedules a job during election.
	RetryAttemptKey = "RetryAttempt"

	// RetrySet is the set holding jobs scheduled for a retry.
	RetrySet = "retries"

	// DefaultRetryAttempts is the retry budget of NewRetry.
	DefaultRetryAttempts = 10
)

// maxReasonMessage bounds the error message copied into a retry reason.
const maxReasonMessage = 50

// AttemptsExceededAction selects what happens to a failed job once its
// retry budget is spent.
type AttemptsExceededAction int

const (
	// AttemptsExceededFail leaves the job in the Failed state.
	AttemptsExceededFail AttemptsExceededAction = iota

	// AttemptsExceededDelete moves the job to the Deleted state.
	AttemptsExceededDelete
)

func (a AttemptsExceededAction) String() string {
	switch a {
	case AttemptsExceededFail:
		return "fail"
	case AttemptsExceededDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// RetryOption configures a Retry filter.
type RetryOption func(*Retry)

// WithAttempts sets the retry budget. Zero disables retries; negative
// values are treated as zero.
func WithAttempts(n int) RetryOption {
	return func(r *Retry) { r.attempts = max(n, 0) }
}

// WithBackoff sets the delay strategy between retries.
func WithBackoff(s backoff.Strategy) RetryOption {
	return func(r *Retry) {
		if s != nil {
			r.backoff = s
		}
	}
}

// WithAttemptsExceeded sets the action taken once the budget is spent.
func WithAttemptsExceeded(a AttemptsExceededAction) RetryOption {
	return func(r *Retry) { r.onExceeded = a }
}

// WithRetryQueue sets the queue a job is enqueued to when the backoff
// returns no delay.
func WithRetryQueue(queue string) RetryOption {
	return func(r *Retry) {
		if queue != "" {
			r.queue = queue
		}
	}
}

// WithLogger sets the logger of the filter.
func WithLogger(l *slog.Logger) RetryOption {
	return func(r *Retry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Retry reschedules failed jobs. When a Failed state is elected and the
// job still has retries left, the filter bumps the RetryCount parameter
// and replaces the candidate with a Scheduled state delayed by the
// backoff, or an Enqueued state when the delay is zero.
type Retry struct {
	attempts   int
	backoff    backoff.Strategy
	onExceeded AttemptsExceededAction
	queue      string
	logger     *slog.Logger
}

var (
	_ state.ElectStateFilter   = (*Retry)(nil)
	_ state.ApplyStateFilter   = (*Retry)(nil)
	_ state.UnapplyStateFilter = (*Retry)(nil)
)

// NewRetry returns a retry filter with ten attempts and the polynomial
// backoff.
func NewRetry(opts ...RetryOption) *Retry {
	r := &Retry{
		attempts: DefaultRetryAttempts,
		backoff:  backoff.DefaultStrategy(),
		queue:    state.DefaultQueue,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Name implements state.Filter.
func (r *Retry) Name() string { return "retry" }

// Attempts returns the retry budget.
func (r *Retry) Attempts() int { return r.attempts }

// OnStateElection implements state.ElectStateFilter.
func (r *Retry) OnStateElection(ctx context.Context, c *state.ElectContext) error {
	failed, ok := c.CandidateState().(*state.Failed)
	if !ok {
		return nil
	}

	count, err := state.GetJobParameter[int](ctx, c, RetryCountParameter, false)
	if err != nil {
		return err
	}
	attempt := count + 1

	if attempt <= r.attempts {
		return r.scheduleAgainLater(ctx, c, attempt, failed)
	}

	if r.onExceeded == AttemptsExceededDelete {
		r.logger.Warn("job exceeded retry attempts, deleting",
			slog.String("job_id", c.Job().ID.String()),
			slog.Int("attempts", r.attempts),
		)
		return c.SetCandidateState(state.NewDeleted(
			state.WithReason(fmt.Sprintf("Exceeded the maximum number of retry attempts (%d).", r.attempts)),
		))
	}

	r.logger.Error("job failed, no retry attempts left",
		slog.String("job_id", c.Job().ID.String()),
		slog.Int("attempts", r.attempts),
		slog.String("error", failed.ErrorMessage()),
	)
	return nil
}

func (r *Retry) scheduleAgainLater(ctx context.Context, c *state.ElectContext, attempt int, failed *state.Failed) error {
	if err := c.SetJobParameter(ctx, RetryCountParameter, attempt); err != nil {
		return err
	}

	delay := r.backoff.Delay(attempt)
	reason := state.WithReason(fmt.Sprintf("Retry attempt %d of %d: %s",
		attempt, r.attempts, truncate(failed.ErrorMessage(), maxReasonMessage)))

	var next state.State
	if delay <= 0 {
		next = state.NewEnqueued(r.queue, reason)
	} else {
		next = state.NewScheduledIn(delay, reason)
	}
	if err := c.SetCandidateState(next); err != nil {
		return err
	}
	c.CustomData()[RetryAttemptKey] = attempt

	r.logger.Warn("job failed, retry scheduled",
		slog.String("job_id", c.Job().ID.String()),
		slog.Int("attempt", attempt),
		slog.Int("attempts", r.attempts),
		slog.Duration("delay", delay),
		slog.String("error", failed.ErrorMessage()),
	)
	return nil
}

// OnStateApplied tracks jobs rescheduled by this filter in RetrySet,
// scored by attempt.
func (r *Retry) OnStateApplied(_ context.Context, c *state.ApplyContext, tx store.Transaction) error {
	if c.NewState().Name() != state.ScheduledStateName {
		return nil
	}
	attempt, ok := c.CustomData()[RetryAttemptKey].(int)
	if !ok {
		return nil
	}
	tx.AddToSet(RetrySet, c.Job().ID.String(), float64(attempt))
	return nil
}

// OnStateUnapplied removes the job from RetrySet when it leaves the
// Scheduled state.
func (r *Retry) OnStateUnapplied(_ context.Context, c *state.ApplyContext, tx store.Transaction) error {
	if c.OldStateName() == state.ScheduledStateName {
		tx.RemoveFromSet(RetrySet, c.Job().ID.String())
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
