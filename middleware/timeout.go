package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pearl2B/Hangfire/state"
)

// Timeout returns middleware that bounds each attempt with a deadline.
// A non-positive d makes it a pass-through. Stores observe the cancelled
// context and the attempt fails with context.DeadlineExceeded.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, req *state.AttemptRequest, next Handler) (*state.Result, error) {
		if d <= 0 {
			return next(ctx)
		}
		logger.Debug("state change timeout set",
			slog.String("job_id", jobID(req)),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
