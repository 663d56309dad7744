package state

import (
	"context"

	"github.com/Pearl2B/Hangfire/store"
)

// Storage keys written by the stock handlers.
const (
	ScheduleSet      = "schedule"
	FailedSet        = "failed"
	AwaitingRetrySet = "awaiting-retry"
	SucceededCounter = "stats:succeeded"
	DeletedCounter   = "stats:deleted"
)

// Handler performs the storage side effects that belong to a state
// name. Apply runs when a job enters the state, Unapply when a
// transition that unapplies leaves it.
type Handler interface {
	StateName() string
	Apply(ctx context.Context, c *ApplyContext, tx store.Transaction) error
	Unapply(ctx context.Context, c *ApplyContext, tx store.Transaction) error
}

// HandlerSet groups handlers by state name. It is not safe for
// concurrent mutation; build it before the machine runs.
type HandlerSet struct {
	byName map[string][]Handler
}

// NewHandlerSet returns a set holding hs.
func NewHandlerSet(hs ...Handler) *HandlerSet {
	s := &HandlerSet{byName: make(map[string][]Handler)}
	for _, h := range hs {
		s.Add(h)
	}
	return s
}

// DefaultHandlers returns the handlers of the stock states.
func DefaultHandlers() *HandlerSet {
	return NewHandlerSet(
		EnqueuedHandler{},
		ScheduledHandler{},
		SucceededHandler{},
		FailedHandler{},
		DeletedHandler{},
		AwaitingRetryHandler{},
	)
}

// Add appends h to the handlers of its state name.
func (s *HandlerSet) Add(h Handler) {
	s.byName[h.StateName()] = append(s.byName[h.StateName()], h)
}

// For returns the handlers registered for name.
func (s *HandlerSet) For(name string) []Handler { return s.byName[name] }

// ──────────────────────────────────────────────────
// Stock handlers
// ──────────────────────────────────────────────────

// EnqueuedHandler pushes the job onto its queue.
type EnqueuedHandler struct{}

func (EnqueuedHandler) StateName() string { return EnqueuedStateName }

func (EnqueuedHandler) Apply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	queue := DefaultQueue
	if s, ok := c.NewState().(*Enqueued); ok {
		queue = s.Queue()
	}
	tx.AddToQueue(queue, c.Job().ID)
	return nil
}

func (EnqueuedHandler) Unapply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	queue := DefaultQueue
	if s, ok := c.PreviousState().(*Enqueued); ok {
		queue = s.Queue()
	}
	tx.RemoveFromQueue(queue, c.Job().ID)
	return nil
}

// ScheduledHandler adds the job to the schedule set, scored by the Unix
// time it should be enqueued at.
type ScheduledHandler struct{}

func (ScheduledHandler) StateName() string { return ScheduledStateName }

func (ScheduledHandler) Apply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	var score float64
	if s, ok := c.NewState().(*Scheduled); ok {
		score = float64(s.EnqueueAt().Unix())
	}
	tx.AddToSet(ScheduleSet, c.Job().ID.String(), score)
	return nil
}

func (ScheduledHandler) Unapply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	tx.RemoveFromSet(ScheduleSet, c.Job().ID.String())
	return nil
}

// SucceededHandler counts succeeded jobs.
type SucceededHandler struct{}

func (SucceededHandler) StateName() string { return SucceededStateName }

func (SucceededHandler) Apply(_ context.Context, _ *ApplyContext, tx store.Transaction) error {
	tx.IncrementCounter(SucceededCounter)
	return nil
}

func (SucceededHandler) Unapply(_ context.Context, _ *ApplyContext, tx store.Transaction) error {
	tx.DecrementCounter(SucceededCounter)
	return nil
}

// FailedHandler adds the job to the failed set, scored by failure time.
type FailedHandler struct{}

func (FailedHandler) StateName() string { return FailedStateName }

func (FailedHandler) Apply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	var score float64
	if s, ok := c.NewState().(*Failed); ok {
		score = float64(s.FailedAt().Unix())
	}
	tx.AddToSet(FailedSet, c.Job().ID.String(), score)
	return nil
}

func (FailedHandler) Unapply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	tx.RemoveFromSet(FailedSet, c.Job().ID.String())
	return nil
}

// DeletedHandler counts deleted jobs.
type DeletedHandler struct{}

func (DeletedHandler) StateName() string { return DeletedStateName }

func (DeletedHandler) Apply(_ context.Context, _ *ApplyContext, tx store.Transaction) error {
	tx.IncrementCounter(DeletedCounter)
	return nil
}

func (DeletedHandler) Unapply(_ context.Context, _ *ApplyContext, tx store.Transaction) error {
	tx.DecrementCounter(DeletedCounter)
	return nil
}

// AwaitingRetryHandler tracks parked jobs, scored by retry attempt.
type AwaitingRetryHandler struct{}

func (AwaitingRetryHandler) StateName() string { return AwaitingRetryStateName }

func (AwaitingRetryHandler) Apply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	var score float64
	if s, ok := c.NewState().(*AwaitingRetry); ok {
		score = float64(s.Attempt())
	}
	tx.AddToSet(AwaitingRetrySet, c.Job().ID.String(), score)
	return nil
}

func (AwaitingRetryHandler) Unapply(_ context.Context, c *ApplyContext, tx store.Transaction) error {
	tx.RemoveFromSet(AwaitingRetrySet, c.Job().ID.String())
	return nil
}
