// Package engine wires the state-transition subsystems together. It
// builds the filter registry, state handlers, middleware chain and the
// state machine, and provides ChangeState and its helpers.
//
// This package exists to break the import cycle: the root hangfire
// package defines Entity and the sentinel errors (imported by job,
// state, store, etc.) and so cannot import those packages back. The
// engine package sits above all subsystem packages and below the
// application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/backoff"
	"github.com/Pearl2B/Hangfire/filter"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	mw "github.com/Pearl2B/Hangfire/middleware"
	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// Engine performs state changes against the store of a hangfire.Core.
// Use Build() to create one. An Engine is safe for concurrent use once
// built.
type Engine struct {
	core     *hangfire.Core
	store    store.Store
	filters  *filter.Registry
	handlers *state.HandlerSet
	registry *state.Registry
	machine  *state.Machine
	chain    mw.Middleware
	logger   *slog.Logger

	mws             []mw.Middleware
	conflictBackoff backoff.Strategy
	attemptTimeout  time.Duration
	unapply         bool
	observer        state.PhaseObserver

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilter registers a state filter. Filters run in registration order
// and an error returned by one aborts the attempt.
func WithFilter(f state.Filter) Option {
	return func(eng *Engine) {
		eng.filters.Register(f)
	}
}

// WithBestEffortFilter registers a state filter whose errors are logged
// and never abort the attempt.
func WithBestEffortFilter(f state.Filter) Option {
	return func(eng *Engine) {
		eng.filters.RegisterBestEffort(f)
	}
}

// WithMiddleware adds middleware to the engine's chain. Custom middleware
// runs inside the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithHandler adds a state handler next to the stock ones.
func WithHandler(h state.Handler) Option {
	return func(eng *Engine) {
		eng.handlers.Add(h)
	}
}

// WithState registers a custom state so it can be restored from storage
// when a transition unapplies it.
func WithState(name string, final bool, c state.Constructor) Option {
	return func(eng *Engine) {
		eng.registry.Register(name, final, c)
	}
}

// WithConflictBackoff sets the pacing between attempts that failed with
// a commit conflict. If not set, backoff.DefaultConflictStrategy seeded
// with Config.ConflictRetryDelay is used.
func WithConflictBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.conflictBackoff = b
	}
}

// WithAttemptTimeout bounds every attempt with a deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.attemptTimeout = d
	}
}

// WithoutUnapply disables unapplication: the handlers and unapplied
// filters of the state a job leaves are not run.
func WithoutUnapply() Option {
	return func(eng *Engine) {
		eng.unapply = false
	}
}

// WithPhaseObserver registers a callback notified as each attempt moves
// through its phases.
func WithPhaseObserver(o state.PhaseObserver) Option {
	return func(eng *Engine) {
		eng.observer = o
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the metrics filter use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Core.
// The Core's storage must implement store.Store.
func Build(core *hangfire.Core, opts ...Option) (*Engine, error) {
	if core == nil {
		return nil, fmt.Errorf("%w: nil core", hangfire.ErrInvalidArgument)
	}
	logger := core.Logger()
	storer := core.Storage()

	if storer == nil {
		return nil, hangfire.ErrNoStore
	}

	// Type-assert the storage to get the store.Store interface.
	s, ok := storer.(store.Store)
	if !ok {
		return nil, fmt.Errorf("hangfire: storage %T does not implement store.Store", storer)
	}

	eng := &Engine{
		core:     core,
		store:    s,
		filters:  filter.NewRegistry(logger),
		handlers: state.DefaultHandlers(),
		registry: state.NewRegistry(),
		logger:   logger,
		unapply:  true,
	}

	for _, opt := range opts {
		opt(eng)
	}

	config := core.Config()
	if eng.conflictBackoff == nil {
		eng.conflictBackoff = backoff.DefaultConflictStrategy(config.ConflictRetryDelay)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/Pearl2B/Hangfire")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware and filter (custom provider or global).
	var metricsMw mw.Middleware
	var metricsFilter *filter.Metrics
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/Pearl2B/Hangfire"))
		metricsFilter = filter.NewMetricsWithMeter(eng.meterProvider.Meter("github.com/Pearl2B/Hangfire/filter"))
	} else {
		metricsMw = mw.Metrics()
		metricsFilter = filter.NewMetrics()
	}
	eng.filters.RegisterBestEffort(metricsFilter)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, eng.attemptTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)
	eng.chain = mw.Chain(allMws...)

	machineOpts := []state.MachineOption{
		state.WithFilters(eng.filters),
		state.WithHandlers(eng.handlers),
		state.WithRegistry(eng.registry),
		state.WithLogger(logger),
		state.WithJobExpirationTimeout(config.JobExpirationTimeout),
	}
	if eng.observer != nil {
		machineOpts = append(machineOpts, state.WithPhaseObserver(eng.observer))
	}
	eng.machine = state.NewMachine(machineOpts...)

	return eng, nil
}

// ChangeRequest describes a state change.
type ChangeRequest struct {
	// JobID is the job to transition.
	JobID id.JobID

	// NewState is the proposed state.
	NewState state.State

	// ExpectedStates, when not empty, lists the committed state names the
	// job may be in. The empty string stands for "no committed state".
	ExpectedStates []string

	// CustomData seeds the side-channel bag shared by the filters.
	CustomData map[string]any
}

// ChangeState proposes req.NewState for a job and commits the state the
// filters elect. A commit conflict reloads the job and retries the whole
// attempt, up to Config.MaxStateChangeAttempts, before failing with
// hangfire.ErrMaxAttemptsExceeded. Any other failure is returned as is.
func (eng *Engine) ChangeState(ctx context.Context, req ChangeRequest) (*state.Result, error) {
	if req.NewState == nil {
		return nil, fmt.Errorf("%w: proposed state must not be nil", hangfire.ErrInvalidArgument)
	}

	conn, err := eng.store.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("hangfire: connect: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			eng.logger.Warn("failed to close storage connection", slog.String("error", closeErr.Error()))
		}
	}()

	maxAttempts := eng.core.Config().MaxStateChangeAttempts
	for attempt := 1; ; attempt++ {
		j, err := conn.GetJob(ctx, req.JobID)
		if err != nil {
			return nil, fmt.Errorf("hangfire: load job %s: %w", req.JobID, err)
		}

		res, err := eng.attempt(ctx, state.AttemptRequest{
			Job:            j,
			Connection:     conn,
			NewState:       req.NewState,
			ExpectedStates: req.ExpectedStates,
			Unapply:        eng.unapply,
			CustomData:     req.CustomData,
		})
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, hangfire.ErrConflictOnCommit) {
			return nil, err
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("%w: state change of job %s after %d attempts: %w",
				hangfire.ErrMaxAttemptsExceeded, req.JobID, attempt, err)
		}

		delay := eng.conflictBackoff.Delay(attempt)
		eng.logger.Debug("state change conflict, retrying",
			slog.String("job_id", req.JobID.String()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt runs one machine attempt through the middleware chain.
func (eng *Engine) attempt(ctx context.Context, req state.AttemptRequest) (*state.Result, error) {
	return eng.chain(ctx, &req, func(ctx context.Context) (*state.Result, error) {
		return eng.machine.Attempt(ctx, req)
	})
}

// Create persists a new job of type typ and moves it into initial. The
// job must not have a committed state yet.
func (eng *Engine) Create(ctx context.Context, typ string, initial state.State, opts ...job.Option) (*job.Job, error) {
	if initial == nil {
		return nil, fmt.Errorf("%w: initial state must not be nil", hangfire.ErrInvalidArgument)
	}
	j, err := job.New(typ, opts...)
	if err != nil {
		return nil, err
	}

	conn, err := eng.store.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("hangfire: connect: %w", err)
	}
	err = conn.CreateJob(ctx, j)
	_ = conn.Close()
	if err != nil {
		return nil, fmt.Errorf("hangfire: create job %s: %w", j.ID, err)
	}

	res, err := eng.ChangeState(ctx, ChangeRequest{
		JobID:          j.ID,
		NewState:       initial,
		ExpectedStates: []string{""},
	})
	if err != nil {
		return nil, err
	}
	j.StateName = res.State.Name()
	return j, nil
}

// Enqueue moves a job to the Enqueued state on queue. An empty queue
// uses Config.DefaultQueue.
func (eng *Engine) Enqueue(ctx context.Context, jobID id.JobID, queue string) (*state.Result, error) {
	return eng.ChangeState(ctx, ChangeRequest{
		JobID:    jobID,
		NewState: state.NewEnqueued(eng.queueOrDefault(queue)),
	})
}

// Requeue moves a job back to the Enqueued state, but only while it is
// in one of fromStates. With no fromStates any current state is accepted.
func (eng *Engine) Requeue(ctx context.Context, jobID id.JobID, queue string, fromStates ...string) (*state.Result, error) {
	return eng.ChangeState(ctx, ChangeRequest{
		JobID:          jobID,
		NewState:       state.NewEnqueued(eng.queueOrDefault(queue), state.WithReason("Triggered by requeue")),
		ExpectedStates: fromStates,
	})
}

// Schedule moves a job to the Scheduled state, enqueued after delay.
func (eng *Engine) Schedule(ctx context.Context, jobID id.JobID, delay time.Duration) (*state.Result, error) {
	return eng.ChangeState(ctx, ChangeRequest{
		JobID:    jobID,
		NewState: state.NewScheduledIn(delay),
	})
}

// Delete moves a job to the Deleted state, but only while it is in one of
// fromStates. With no fromStates any current state is accepted.
func (eng *Engine) Delete(ctx context.Context, jobID id.JobID, fromStates ...string) (*state.Result, error) {
	return eng.ChangeState(ctx, ChangeRequest{
		JobID:          jobID,
		NewState:       state.NewDeleted(state.WithReason("Triggered by delete")),
		ExpectedStates: fromStates,
	})
}

func (eng *Engine) queueOrDefault(queue string) string {
	if queue != "" {
		return queue
	}
	return eng.core.Config().DefaultQueue
}

// Core returns the underlying Core.
func (eng *Engine) Core() *hangfire.Core { return eng.core }

// Store returns the engine's store.
func (eng *Engine) Store() store.Store { return eng.store }

// Filters returns the filter registry.
func (eng *Engine) Filters() *filter.Registry { return eng.filters }

// Machine returns the state machine.
func (eng *Engine) Machine() *state.Machine { return eng.machine }

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
