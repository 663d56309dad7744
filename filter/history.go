package filter

import (
	"context"
	"time"

	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// TraversedReason prefixes the reason of history records written for
// candidates that lost the election.
const TraversedReason = "Traversed during election"

// History appends every state superseded during election to the job's
// state history, after the record of the elected state. Without it the
// history only holds states that were actually committed.
type History struct {
	now func() time.Time
}

var _ state.ApplyStateFilter = (*History)(nil)

// NewHistory returns a history filter.
func NewHistory() *History {
	return &History{now: func() time.Time { return time.Now().UTC() }}
}

// Name implements state.Filter.
func (h *History) Name() string { return "history" }

// OnStateApplied implements state.ApplyStateFilter.
func (h *History) OnStateApplied(_ context.Context, c *state.ApplyContext, tx store.Transaction) error {
	at := h.now()
	for _, s := range c.TraversedStates() {
		rec := state.Record(s, at)
		if rec.Reason == "" {
			rec.Reason = TraversedReason
		} else {
			rec.Reason = TraversedReason + ": " + rec.Reason
		}
		tx.AddJobState(c.Job().ID, rec)
	}
	return nil
}
