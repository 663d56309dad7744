package state

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
)

// State describes what is true about a job at a point in time.
// Implementations must be immutable once constructed: a candidate is
// replaced by constructing a new instance, never mutated in place.
// Implementations must also be pointer types; instance identity decides
// whether a candidate change is recorded in the traversed history.
type State interface {
	// Name is used for dispatch to handlers and for persistence.
	Name() string

	// Reason is a human-readable explanation of the transition.
	Reason() string

	// IsFinal reports whether a job in this state is done. Jobs in a
	// final state expire after the configured retention.
	IsFinal() bool

	// SerializeData returns the payload persisted with the state.
	SerializeData() map[string]string
}

// ExpirationPolicy is implemented by states that override the retention
// of a job entering them. ok=false keeps the configured default.
type ExpirationPolicy interface {
	ExpireIn() (d time.Duration, ok bool)
}

// Option customizes a state at construction.
type Option func(*base)

// WithReason sets the state reason.
func WithReason(reason string) Option {
	return func(b *base) { b.reason = reason }
}

// WithExpireIn overrides the retention applied when the state is final.
func WithExpireIn(d time.Duration) Option {
	return func(b *base) {
		b.expireIn = d
		b.hasExpire = true
	}
}

// base holds the fields shared by every stock state.
type base struct {
	reason    string
	expireIn  time.Duration
	hasExpire bool
}

func newBase(opts []Option) base {
	var b base
	for _, o := range opts {
		o(&b)
	}
	return b
}

// Reason returns the state reason.
func (b *base) Reason() string { return b.reason }

// ExpireIn returns the retention override, if any.
func (b *base) ExpireIn() (time.Duration, bool) { return b.expireIn, b.hasExpire }

// Record converts s to its persisted form, stamped with at.
func Record(s State, at time.Time) store.StateRecord {
	return store.StateRecord{
		Name:      s.Name(),
		Reason:    s.Reason(),
		Data:      s.SerializeData(),
		CreatedAt: at.UTC(),
	}
}

// Same reports whether a and b are the same state instance. States are
// pointers, so two value-equal but distinct instances are different.
func Same(a, b State) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// checkState rejects nil states and states whose dynamic type is not a
// pointer.
func checkState(s State, role string) error {
	if s == nil {
		return fmt.Errorf("%w: %s state must not be nil", hangfire.ErrInvalidArgument, role)
	}
	if k := reflect.TypeOf(s).Kind(); k != reflect.Pointer {
		return fmt.Errorf("%w: %s state %q is a %s, want a pointer", hangfire.ErrInvalidArgument, role, s.Name(), k)
	}
	return nil
}

// Names returns the names of states in order.
func Names(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.Name()
	}
	return out
}

// ──────────────────────────────────────────────────
// Data encoding helpers
// ──────────────────────────────────────────────────

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(data map[string]string, key string) (time.Time, error) {
	v, ok := data[key]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func formatMillis(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }

func parseMillis(data map[string]string, key string) (time.Duration, error) {
	v, ok := data[key]
	if !ok || v == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
