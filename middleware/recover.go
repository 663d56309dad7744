package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/state"
)

// Recover returns middleware that recovers from panics raised by filters
// or handlers. A panic becomes an error wrapping hangfire.ErrAborted and
// is logged with a stack trace. The attempt's transaction is rolled back
// by the machine's deferred cleanup.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *state.AttemptRequest, next Handler) (res *state.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("state change panicked",
					slog.String("job_id", jobID(req)),
					slog.String("proposed", proposed(req)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				res = nil
				retErr = fmt.Errorf("%w: panic while changing state of job %s: %v", hangfire.ErrAborted, jobID(req), r)
			}
		}()
		return next(ctx)
	}
}
