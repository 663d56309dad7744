package state

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/Pearl2B/Hangfire/serialization"
)

// Stock state names.
const (
	EnqueuedStateName      = "Enqueued"
	ScheduledStateName     = "Scheduled"
	ProcessingStateName    = "Processing"
	SucceededStateName     = "Succeeded"
	FailedStateName        = "Failed"
	DeletedStateName       = "Deleted"
	AwaitingRetryStateName = "AwaitingRetry"
)

// DefaultQueue is the queue of an Enqueued state created without one.
const DefaultQueue = "default"

// ──────────────────────────────────────────────────
// Enqueued
// ──────────────────────────────────────────────────

// Enqueued places a job on a queue for workers to pick up.
type Enqueued struct {
	base
	queue      string
	enqueuedAt time.Time
}

// NewEnqueued returns an Enqueued state for queue. An empty queue means
// DefaultQueue.
func NewEnqueued(queue string, opts ...Option) *Enqueued {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Enqueued{base: newBase(opts), queue: queue, enqueuedAt: time.Now().UTC()}
}

func (s *Enqueued) Name() string          { return EnqueuedStateName }
func (s *Enqueued) IsFinal() bool         { return false }
func (s *Enqueued) Queue() string         { return s.queue }
func (s *Enqueued) EnqueuedAt() time.Time { return s.enqueuedAt }

func (s *Enqueued) SerializeData() map[string]string {
	return map[string]string{
		"EnqueuedAt": formatTime(s.enqueuedAt),
		"Queue":      s.queue,
	}
}

// ──────────────────────────────────────────────────
// Scheduled
// ──────────────────────────────────────────────────

// Scheduled delays a job until EnqueueAt.
type Scheduled struct {
	base
	enqueueAt   time.Time
	scheduledAt time.Time
}

// NewScheduled returns a Scheduled state that enqueues the job at enqueueAt.
func NewScheduled(enqueueAt time.Time, opts ...Option) *Scheduled {
	return &Scheduled{base: newBase(opts), enqueueAt: enqueueAt.UTC(), scheduledAt: time.Now().UTC()}
}

// NewScheduledIn returns a Scheduled state that enqueues the job after delay.
func NewScheduledIn(delay time.Duration, opts ...Option) *Scheduled {
	return NewScheduled(time.Now().Add(delay), opts...)
}

func (s *Scheduled) Name() string           { return ScheduledStateName }
func (s *Scheduled) IsFinal() bool          { return false }
func (s *Scheduled) EnqueueAt() time.Time   { return s.enqueueAt }
func (s *Scheduled) ScheduledAt() time.Time { return s.scheduledAt }

func (s *Scheduled) SerializeData() map[string]string {
	return map[string]string{
		"EnqueueAt":   formatTime(s.enqueueAt),
		"ScheduledAt": formatTime(s.scheduledAt),
	}
}

// ──────────────────────────────────────────────────
// Processing
// ──────────────────────────────────────────────────

// Processing records that a worker started performing the job.
type Processing struct {
	base
	serverID  string
	workerID  string
	startedAt time.Time
}

// NewProcessing returns a Processing state owned by serverID/workerID.
func NewProcessing(serverID, workerID string, opts ...Option) *Processing {
	return &Processing{base: newBase(opts), serverID: serverID, workerID: workerID, startedAt: time.Now().UTC()}
}

func (s *Processing) Name() string         { return ProcessingStateName }
func (s *Processing) IsFinal() bool        { return false }
func (s *Processing) ServerID() string     { return s.serverID }
func (s *Processing) WorkerID() string     { return s.workerID }
func (s *Processing) StartedAt() time.Time { return s.startedAt }

func (s *Processing) SerializeData() map[string]string {
	return map[string]string{
		"StartedAt": formatTime(s.startedAt),
		"ServerId":  s.serverID,
		"WorkerId":  s.workerID,
	}
}

// ──────────────────────────────────────────────────
// Succeeded
// ──────────────────────────────────────────────────

// Succeeded is the final state of a job that completed without error.
type Succeeded struct {
	base
	result      string
	latency     time.Duration
	duration    time.Duration
	succeededAt time.Time
}

// NewSucceeded returns a Succeeded state. result is serialized with the
// user profile; latency is the time the job waited before processing and
// duration the time spent performing it.
func NewSucceeded(result any, latency, duration time.Duration, opts ...Option) (*Succeeded, error) {
	s, err := serialization.Serialize(result, serialization.User)
	if err != nil {
		return nil, fmt.Errorf("state: serialize succeeded result: %w", err)
	}
	return &Succeeded{
		base:        newBase(opts),
		result:      s,
		latency:     latency,
		duration:    duration,
		succeededAt: time.Now().UTC(),
	}, nil
}

func (s *Succeeded) Name() string                       { return SucceededStateName }
func (s *Succeeded) IsFinal() bool                      { return true }
func (s *Succeeded) Result() string                     { return s.result }
func (s *Succeeded) Latency() time.Duration             { return s.latency }
func (s *Succeeded) PerformanceDuration() time.Duration { return s.duration }
func (s *Succeeded) SucceededAt() time.Time             { return s.succeededAt }

func (s *Succeeded) SerializeData() map[string]string {
	data := map[string]string{
		"SucceededAt":         formatTime(s.succeededAt),
		"PerformanceDuration": formatMillis(s.duration),
		"Latency":             formatMillis(s.latency),
	}
	if s.result != "" {
		data["Result"] = s.result
	}
	return data
}

// ──────────────────────────────────────────────────
// Failed
// ──────────────────────────────────────────────────

// Failed records an error raised while performing the job. It is not
// final: a retry filter may still move the job on.
type Failed struct {
	base
	errType    string
	errMessage string
	errDetails string
	failedAt   time.Time
}

// NewFailed returns a Failed state describing err.
func NewFailed(err error, opts ...Option) *Failed {
	s := &Failed{base: newBase(opts), failedAt: time.Now().UTC()}
	if err != nil {
		s.errType = fmt.Sprintf("%T", err)
		s.errMessage = err.Error()
		s.errDetails = fmt.Sprintf("%+v", err)
	}
	if s.reason == "" {
		s.reason = "An error occurred while performing the job"
	}
	return s
}

func (s *Failed) Name() string         { return FailedStateName }
func (s *Failed) IsFinal() bool        { return false }
func (s *Failed) ErrorType() string    { return s.errType }
func (s *Failed) ErrorMessage() string { return s.errMessage }
func (s *Failed) ErrorDetails() string { return s.errDetails }
func (s *Failed) FailedAt() time.Time  { return s.failedAt }

func (s *Failed) SerializeData() map[string]string {
	return map[string]string{
		"FailedAt":         formatTime(s.failedAt),
		"ExceptionType":    s.errType,
		"ExceptionMessage": s.errMessage,
		"ExceptionDetails": s.errDetails,
	}
}

// ──────────────────────────────────────────────────
// Deleted
// ──────────────────────────────────────────────────

// Deleted is the final state of a job removed before completion.
type Deleted struct {
	base
	deletedAt time.Time
}

// NewDeleted returns a Deleted state.
func NewDeleted(opts ...Option) *Deleted {
	return &Deleted{base: newBase(opts), deletedAt: time.Now().UTC()}
}

func (s *Deleted) Name() string         { return DeletedStateName }
func (s *Deleted) IsFinal() bool        { return true }
func (s *Deleted) DeletedAt() time.Time { return s.deletedAt }

func (s *Deleted) SerializeData() map[string]string {
	return map[string]string{"DeletedAt": formatTime(s.deletedAt)}
}

// ──────────────────────────────────────────────────
// AwaitingRetry
// ──────────────────────────────────────────────────

// AwaitingRetry parks a failed job until an operator or external trigger
// requeues it. Attempt is the number of the retry being awaited.
type AwaitingRetry struct {
	base
	attempt   int
	awaitedAt time.Time
}

// NewAwaitingRetry returns an AwaitingRetry state for retry attempt n.
func NewAwaitingRetry(attempt int, opts ...Option) *AwaitingRetry {
	return &AwaitingRetry{base: newBase(opts), attempt: attempt, awaitedAt: time.Now().UTC()}
}

func (s *AwaitingRetry) Name() string         { return AwaitingRetryStateName }
func (s *AwaitingRetry) IsFinal() bool        { return false }
func (s *AwaitingRetry) Attempt() int         { return s.attempt }
func (s *AwaitingRetry) AwaitedAt() time.Time { return s.awaitedAt }

func (s *AwaitingRetry) SerializeData() map[string]string {
	return map[string]string{
		"Attempt":   strconv.Itoa(s.attempt),
		"AwaitedAt": formatTime(s.awaitedAt),
	}
}

// ──────────────────────────────────────────────────
// Generic
// ──────────────────────────────────────────────────

// Generic is a state defined entirely by data, used for application
// state names without a registered variant.
type Generic struct {
	base
	name  string
	final bool
	data  map[string]string
}

// NewGeneric returns a state named name carrying a copy of data.
func NewGeneric(name string, final bool, data map[string]string, opts ...Option) *Generic {
	return &Generic{base: newBase(opts), name: name, final: final, data: maps.Clone(data)}
}

func (s *Generic) Name() string  { return s.name }
func (s *Generic) IsFinal() bool { return s.final }

func (s *Generic) SerializeData() map[string]string { return maps.Clone(s.data) }
