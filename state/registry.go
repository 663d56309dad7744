package state

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
)

// Constructor rebuilds a state from its persisted record.
type Constructor func(rec store.StateRecord) (State, error)

// Registry maps state names to constructors so states read back from
// storage become typed variants again. Names without a constructor
// restore as Generic. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	final map[string]bool
}

// NewRegistry returns a registry that knows every stock state.
func NewRegistry() *Registry {
	r := &Registry{
		ctors: make(map[string]Constructor),
		final: make(map[string]bool),
	}
	r.Register(EnqueuedStateName, false, restoreEnqueued)
	r.Register(ScheduledStateName, false, restoreScheduled)
	r.Register(ProcessingStateName, false, restoreProcessing)
	r.Register(SucceededStateName, true, restoreSucceeded)
	r.Register(FailedStateName, false, restoreFailed)
	r.Register(DeletedStateName, true, restoreDeleted)
	r.Register(AwaitingRetryStateName, false, restoreAwaitingRetry)
	return r
}

// Register installs or replaces the constructor for name. final tells
// Generic fallbacks and callers whether the name denotes a final state.
func (r *Registry) Register(name string, final bool, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = c
	r.final[name] = final
}

// Restore rebuilds the state described by rec.
func (r *Registry) Restore(rec store.StateRecord) (State, error) {
	r.mu.RLock()
	c, ok := r.ctors[rec.Name]
	r.mu.RUnlock()

	if !ok {
		return NewGeneric(rec.Name, false, rec.Data, WithReason(rec.Reason)), nil
	}
	s, err := c(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: restore state %q: %w", hangfire.ErrOperationFailed, rec.Name, err)
	}
	return s, nil
}

// IsFinal reports whether name was registered as a final state.
func (r *Registry) IsFinal(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.final[name]
}

// Names returns the registered state names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ──────────────────────────────────────────────────
// Stock constructors
// ──────────────────────────────────────────────────

func restoreEnqueued(rec store.StateRecord) (State, error) {
	at, err := parseTime(rec.Data, "EnqueuedAt")
	if err != nil {
		return nil, err
	}
	queue := rec.Data["Queue"]
	if queue == "" {
		queue = DefaultQueue
	}
	return &Enqueued{base: base{reason: rec.Reason}, queue: queue, enqueuedAt: at}, nil
}

func restoreScheduled(rec store.StateRecord) (State, error) {
	enqueueAt, err := parseTime(rec.Data, "EnqueueAt")
	if err != nil {
		return nil, err
	}
	scheduledAt, err := parseTime(rec.Data, "ScheduledAt")
	if err != nil {
		return nil, err
	}
	return &Scheduled{base: base{reason: rec.Reason}, enqueueAt: enqueueAt, scheduledAt: scheduledAt}, nil
}

func restoreProcessing(rec store.StateRecord) (State, error) {
	at, err := parseTime(rec.Data, "StartedAt")
	if err != nil {
		return nil, err
	}
	return &Processing{
		base:      base{reason: rec.Reason},
		serverID:  rec.Data["ServerId"],
		workerID:  rec.Data["WorkerId"],
		startedAt: at,
	}, nil
}

func restoreSucceeded(rec store.StateRecord) (State, error) {
	at, err := parseTime(rec.Data, "SucceededAt")
	if err != nil {
		return nil, err
	}
	latency, err := parseMillis(rec.Data, "Latency")
	if err != nil {
		return nil, err
	}
	duration, err := parseMillis(rec.Data, "PerformanceDuration")
	if err != nil {
		return nil, err
	}
	return &Succeeded{
		base:        base{reason: rec.Reason},
		result:      rec.Data["Result"],
		latency:     latency,
		duration:    duration,
		succeededAt: at,
	}, nil
}

func restoreFailed(rec store.StateRecord) (State, error) {
	at, err := parseTime(rec.Data, "FailedAt")
	if err != nil {
		return nil, err
	}
	return &Failed{
		base:       base{reason: rec.Reason},
		errType:    rec.Data["ExceptionType"],
		errMessage: rec.Data["ExceptionMessage"],
		errDetails: rec.Data["ExceptionDetails"],
		failedAt:   at,
	}, nil
}

func restoreDeleted(rec store.StateRecord) (State, error) {
	at, err := parseTime(rec.Data, "DeletedAt")
	if err != nil {
		return nil, err
	}
	return &Deleted{base: base{reason: rec.Reason}, deletedAt: at}, nil
}

func restoreAwaitingRetry(rec store.StateRecord) (State, error) {
	at, err := parseTime(rec.Data, "AwaitedAt")
	if err != nil {
		return nil, err
	}
	attempt := 0
	if v := rec.Data["Attempt"]; v != "" {
		if attempt, err = strconv.Atoi(v); err != nil {
			return nil, err
		}
	}
	return &AwaitingRetry{base: base{reason: rec.Reason}, attempt: attempt, awaitedAt: at}, nil
}
