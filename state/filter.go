package state

import (
	"context"
	"fmt"

	"github.com/Pearl2B/Hangfire/store"
)

// Filter is the base interface all state filters implement.
type Filter interface {
	// Name returns a unique human-readable name for the filter.
	Name() string
}

// ElectStateFilter may inspect and replace the candidate state before it
// is finalized.
type ElectStateFilter interface {
	OnStateElection(ctx context.Context, c *ElectContext) error
}

// ApplyStateFilter runs after the candidate is finalized, inside the
// attempt's transaction. It may queue writes but must not reassign the
// candidate.
type ApplyStateFilter interface {
	OnStateApplied(ctx context.Context, c *ApplyContext, tx store.Transaction) error
}

// UnapplyStateFilter undoes side effects of the previous state when a
// transition supersedes it and the caller asked for unapplication.
type UnapplyStateFilter interface {
	OnStateUnapplied(ctx context.Context, c *ApplyContext, tx store.Transaction) error
}

// FilterProvider supplies the ordered filter chains of an attempt.
type FilterProvider interface {
	ElectStateFilters() []ElectStateFilter
	ApplyStateFilters() []ApplyStateFilter
	UnapplyStateFilters() []UnapplyStateFilter
}

// FilterList is a FilterProvider over a fixed, ordered list. Each element
// joins every chain whose interface it implements.
type FilterList []Filter

func (l FilterList) ElectStateFilters() []ElectStateFilter {
	var out []ElectStateFilter
	for _, f := range l {
		if e, ok := f.(ElectStateFilter); ok {
			out = append(out, e)
		}
	}
	return out
}

func (l FilterList) ApplyStateFilters() []ApplyStateFilter {
	var out []ApplyStateFilter
	for _, f := range l {
		if a, ok := f.(ApplyStateFilter); ok {
			out = append(out, a)
		}
	}
	return out
}

func (l FilterList) UnapplyStateFilters() []UnapplyStateFilter {
	var out []UnapplyStateFilter
	for _, f := range l {
		if u, ok := f.(UnapplyStateFilter); ok {
			out = append(out, u)
		}
	}
	return out
}

// FilterName returns f's Name when it implements Filter, or its type.
func FilterName(f any) string {
	if n, ok := f.(Filter); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", f)
}
