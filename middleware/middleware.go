// Package middleware provides composable middleware for state change
// attempts. Middleware wraps a whole attempt synchronously and can modify
// it (recover from panics, bound it with a deadline, log, trace, etc.).
package middleware

import (
	"context"

	"github.com/Pearl2B/Hangfire/state"
)

// Handler is the terminal function that runs one attempt.
type Handler func(ctx context.Context) (*state.Result, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the attempt being run, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, req *state.AttemptRequest, next Handler) (*state.Result, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, req *state.AttemptRequest, next Handler) (*state.Result, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (*state.Result, error) {
				return mw(ctx, req, prev)
			}
		}
		return h(ctx)
	}
}

// proposed returns the name of the state an attempt proposes.
func proposed(req *state.AttemptRequest) string {
	if req.NewState == nil {
		return ""
	}
	return req.NewState.Name()
}

// jobID returns the job ID of an attempt, or the empty string.
func jobID(req *state.AttemptRequest) string {
	if req.Job == nil {
		return ""
	}
	return req.Job.ID.String()
}
