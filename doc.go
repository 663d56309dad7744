// Package hangfire provides the state-transition core of a background-job
// framework: the machinery that decides, mutates and durably commits the
// lifecycle state of a job.
//
// A transition proposes a new state. Electing filters may redirect the
// candidate (a failure becomes a scheduled retry), every redirection is
// recorded, and the final candidate is committed atomically together with
// the side effects queued by applied filters.
//
// # Quick Start
//
//	store := memory.New()
//	core, err := hangfire.New(hangfire.WithStorage(store))
//	eng, err := engine.Build(core,
//	    engine.WithFilter(filter.NewRetry(filter.WithAttempts(5))),
//	)
//	res, err := eng.ChangeState(ctx, engine.ChangeRequest{
//	    JobID:    jobID,
//	    NewState: state.NewProcessing("server-1", "worker-3"),
//	})
//
// # Architecture
//
// The state package holds the contexts and the orchestrator
// (state.Machine). The store package defines the connection and
// transaction contract every backend satisfies; memory, redis, postgres
// and badger backends live under store/. The filter package provides the
// filter registry and the stock filters. The engine package wires
// filters, handlers and middleware and owns the conflict retry policy.
//
// All job IDs are type-prefixed, K-sortable, UUIDv7-based identifiers.
package hangfire
