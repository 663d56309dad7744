// Package middleware provides composable middleware for state change
// attempts.
//
// A [Middleware] is a function that wraps one run of state.Machine.Attempt.
// Middleware are composed into a chain using [Chain] and applied around
// every attempt the engine makes, including conflict retries. They are
// applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → attempt
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs the proposed state, the outcome and the duration
//   - [Recover] turns panics in filters or handlers into aborted attempts
//   - [Timeout] bounds each attempt with a deadline
//   - [Tracing] wraps each attempt in an OpenTelemetry span
//   - [Metrics] records per-attempt duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, req *state.AttemptRequest, next middleware.Handler) (*state.Result, error) {
//	        // pre-processing
//	        res, err := next(ctx)
//	        // post-processing
//	        return res, err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
