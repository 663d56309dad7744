package filter

import (
	"context"
	"log/slog"

	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// Named entry types pair a filter with the name captured at registration
// time and whether its errors are swallowed.
type electEntry struct {
	name       string
	hook       state.ElectStateFilter
	bestEffort bool
}

type applyEntry struct {
	name       string
	hook       state.ApplyStateFilter
	bestEffort bool
}

type unapplyEntry struct {
	name       string
	hook       state.UnapplyStateFilter
	bestEffort bool
}

// Registry holds registered filters and exposes them as the ordered
// chains a state.Machine runs. It type-caches filters at registration
// time so each chain holds only filters implementing that stage.
//
// Register is not safe for concurrent use; finish registration before
// the registry is handed to a machine.
type Registry struct {
	filters []state.Filter
	logger  *slog.Logger

	elect   []electEntry
	apply   []applyEntry
	unapply []unapplyEntry
}

var _ state.FilterProvider = (*Registry)(nil)

// NewRegistry creates a filter registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a filter to every chain whose interface it implements.
// Filters run in registration order. An error returned by a registered
// filter aborts the attempt.
func (r *Registry) Register(f state.Filter) {
	r.register(f, false)
}

// RegisterBestEffort adds a filter whose errors are logged and dropped.
// Use it for observers that must never block a transition.
func (r *Registry) RegisterBestEffort(f state.Filter) {
	r.register(f, true)
}

func (r *Registry) register(f state.Filter, bestEffort bool) {
	r.filters = append(r.filters, f)
	name := f.Name()

	if h, ok := f.(state.ElectStateFilter); ok {
		r.elect = append(r.elect, electEntry{name, h, bestEffort})
	}
	if h, ok := f.(state.ApplyStateFilter); ok {
		r.apply = append(r.apply, applyEntry{name, h, bestEffort})
	}
	if h, ok := f.(state.UnapplyStateFilter); ok {
		r.unapply = append(r.unapply, unapplyEntry{name, h, bestEffort})
	}
}

// Filters returns all registered filters in registration order.
func (r *Registry) Filters() []state.Filter {
	out := make([]state.Filter, len(r.filters))
	copy(out, r.filters)
	return out
}

// Len returns the number of registered filters.
func (r *Registry) Len() int { return len(r.filters) }

// ElectStateFilters returns the electing chain.
func (r *Registry) ElectStateFilters() []state.ElectStateFilter {
	out := make([]state.ElectStateFilter, 0, len(r.elect))
	for _, e := range r.elect {
		if e.bestEffort {
			out = append(out, &safeElect{entry: e, r: r})
			continue
		}
		out = append(out, namedElect{e})
	}
	return out
}

// ApplyStateFilters returns the applied chain.
func (r *Registry) ApplyStateFilters() []state.ApplyStateFilter {
	out := make([]state.ApplyStateFilter, 0, len(r.apply))
	for _, e := range r.apply {
		if e.bestEffort {
			out = append(out, &safeApply{entry: e, r: r})
			continue
		}
		out = append(out, namedApply{e})
	}
	return out
}

// UnapplyStateFilters returns the unapplied chain.
func (r *Registry) UnapplyStateFilters() []state.UnapplyStateFilter {
	out := make([]state.UnapplyStateFilter, 0, len(r.unapply))
	for _, e := range r.unapply {
		if e.bestEffort {
			out = append(out, &safeUnapply{entry: e, r: r})
			continue
		}
		out = append(out, namedUnapply{e})
	}
	return out
}

// ──────────────────────────────────────────────────
// Chain adapters
// ──────────────────────────────────────────────────

// The named adapters keep the registration name visible to the machine's
// error messages even when the filter value is a bare function type.

type namedElect struct{ e electEntry }

func (n namedElect) Name() string { return n.e.name }

func (n namedElect) OnStateElection(ctx context.Context, c *state.ElectContext) error {
	return n.e.hook.OnStateElection(ctx, c)
}

type namedApply struct{ e applyEntry }

func (n namedApply) Name() string { return n.e.name }

func (n namedApply) OnStateApplied(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error {
	return n.e.hook.OnStateApplied(ctx, c, tx)
}

type namedUnapply struct{ e unapplyEntry }

func (n namedUnapply) Name() string { return n.e.name }

func (n namedUnapply) OnStateUnapplied(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error {
	return n.e.hook.OnStateUnapplied(ctx, c, tx)
}

type safeElect struct {
	entry electEntry
	r     *Registry
}

func (s *safeElect) Name() string { return s.entry.name }

func (s *safeElect) OnStateElection(ctx context.Context, c *state.ElectContext) error {
	if err := s.entry.hook.OnStateElection(ctx, c); err != nil {
		s.r.logFilterError("OnStateElection", s.entry.name, c.Job().ID.String(), err)
	}
	return nil
}

type safeApply struct {
	entry applyEntry
	r     *Registry
}

func (s *safeApply) Name() string { return s.entry.name }

func (s *safeApply) OnStateApplied(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error {
	if err := s.entry.hook.OnStateApplied(ctx, c, tx); err != nil {
		s.r.logFilterError("OnStateApplied", s.entry.name, c.Job().ID.String(), err)
	}
	return nil
}

type safeUnapply struct {
	entry unapplyEntry
	r     *Registry
}

func (s *safeUnapply) Name() string { return s.entry.name }

func (s *safeUnapply) OnStateUnapplied(ctx context.Context, c *state.ApplyContext, tx store.Transaction) error {
	if err := s.entry.hook.OnStateUnapplied(ctx, c, tx); err != nil {
		s.r.logFilterError("OnStateUnapplied", s.entry.name, c.Job().ID.String(), err)
	}
	return nil
}

// logFilterError logs a warning when a best-effort filter fails.
func (r *Registry) logFilterError(stage, name, jobID string, err error) {
	r.logger.Warn("state filter error",
		slog.String("stage", stage),
		slog.String("filter", name),
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
}
