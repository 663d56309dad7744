package filter

import (
	"context"
	"log/slog"

	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// Logging logs every stage of a transition it takes part in. Register
// it first to see the candidate as proposed, last to see it as elected.
type Logging struct {
	logger *slog.Logger
}

var (
	_ state.ElectStateFilter   = (*Logging)(nil)
	_ state.ApplyStateFilter   = (*Logging)(nil)
	_ state.UnapplyStateFilter = (*Logging)(nil)
)

// NewLogging returns a logging filter writing to logger.
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger}
}

// Name implements state.Filter.
func (l *Logging) Name() string { return "logging" }

// OnStateElection implements state.ElectStateFilter.
func (l *Logging) OnStateElection(ctx context.Context, c *state.ElectContext) error {
	l.logger.DebugContext(ctx, "job state election",
		slog.String("job_id", c.Job().ID.String()),
		slog.String("from", c.CurrentState()),
		slog.String("candidate", c.CandidateState().Name()),
	)
	return nil
}

// OnStateApplied implements state.ApplyStateFilter.
func (l *Logging) OnStateApplied(ctx context.Context, c *state.ApplyContext, _ store.Transaction) error {
	attrs := []any{
		slog.String("job_id", c.Job().ID.String()),
		slog.String("from", c.OldStateName()),
		slog.String("to", c.NewState().Name()),
	}
	if reason := c.NewState().Reason(); reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	if traversed := c.TraversedStates(); len(traversed) > 0 {
		attrs = append(attrs, slog.Any("traversed", state.Names(traversed)))
	}
	l.logger.InfoContext(ctx, "job state applied", attrs...)
	return nil
}

// OnStateUnapplied implements state.UnapplyStateFilter.
func (l *Logging) OnStateUnapplied(ctx context.Context, c *state.ApplyContext, _ store.Transaction) error {
	l.logger.DebugContext(ctx, "job state unapplied",
		slog.String("job_id", c.Job().ID.String()),
		slog.String("state", c.OldStateName()),
	)
	return nil
}
