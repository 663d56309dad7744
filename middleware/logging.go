package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pearl2B/Hangfire/state"
)

// Logging returns middleware that logs the start and outcome of each
// attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *state.AttemptRequest, next Handler) (*state.Result, error) {
		logger.Debug("state change started",
			slog.String("job_id", jobID(req)),
			slog.String("proposed", proposed(req)),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("state change failed",
				slog.String("job_id", jobID(req)),
				slog.String("proposed", proposed(req)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("state changed",
				slog.String("job_id", jobID(req)),
				slog.String("from", res.PreviousStateName),
				slog.String("to", res.State.Name()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return res, err
	}
}
