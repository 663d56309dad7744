// Package engine wires the state-transition subsystems together and
// provides the application-level API for changing job states.
//
// The engine package exists to break a fundamental import cycle: the root
// hangfire package defines Entity and the sentinel errors (imported by
// job, state, store, etc.) and therefore cannot import those packages
// back. Engine sits above all subsystem packages and below the
// application layer.
//
// # Building an Engine
//
//	core, err := hangfire.New(
//	    hangfire.WithStorage(pgStore),
//	    hangfire.WithMaxStateChangeAttempts(5),
//	)
//
//	eng, err := engine.Build(core,
//	    engine.WithFilter(filter.NewRetry(filter.WithAttempts(3))),
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithConflictBackoff(backoff.NewConstant(20*time.Millisecond)),
//	)
//
// # Changing States
//
//	j, err := eng.Create(ctx, "send-email", state.NewEnqueued("critical"))
//
//	res, err := eng.ChangeState(ctx, engine.ChangeRequest{
//	    JobID:          j.ID,
//	    NewState:       state.NewProcessing("server-1", "worker-3"),
//	    ExpectedStates: []string{state.EnqueuedStateName},
//	})
//
//	// Many jobs at once, bounded by Config.BatchConcurrency and BatchRate.
//	results, err := eng.ChangeStates(ctx, reqs)
//
// A state change whose commit conflicts with a concurrent one is retried
// from a fresh read of the job, up to Config.MaxStateChangeAttempts.
//
// # Options
//
//   - [WithFilter] registers a state filter
//   - [WithBestEffortFilter] registers a filter whose errors are only logged
//   - [WithMiddleware] adds a middleware around every attempt
//   - [WithHandler] adds a state handler
//   - [WithState] registers a custom state for restoration
//   - [WithConflictBackoff] sets the pacing between conflict retries
//   - [WithAttemptTimeout] bounds every attempt with a deadline
//   - [WithoutUnapply] skips unapplying the state a job leaves
//   - [WithPhaseObserver] observes attempt phases
//   - [WithTracerProvider] sets the OpenTelemetry tracer provider
//   - [WithMeterProvider] sets the OpenTelemetry meter provider
package engine
