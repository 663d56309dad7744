// Package backoff provides retry delay strategies used when a failed job
// is rescheduled and when a conflicting state change is retried.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Func adapts an ordinary function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f(attempt).
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// ──────────────────────────────────────────────────
// Table
// ──────────────────────────────────────────────────

// Table returns delays from an explicit list. Attempts past the end of
// the list reuse the last entry.
type Table struct {
	Delays []time.Duration
}

// NewTable creates a table-driven strategy.
func NewTable(delays ...time.Duration) *Table {
	return &Table{Delays: delays}
}

// Delay returns Delays[attempt-1], clamped to the list bounds.
func (t *Table) Delay(attempt int) time.Duration {
	if len(t.Delays) == 0 {
		return 0
	}
	i := min(max(attempt-1, 0), len(t.Delays)-1)
	return t.Delays[i]
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max). With Jitter set, the result
// is drawn uniformly from [0, that value].
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns the capped exponential delay for attempt.
func (e *Exponential) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(max(attempt, 1)-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if e.Jitter {
		return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(base)
}

// ──────────────────────────────────────────────────
// Polynomial
// ──────────────────────────────────────────────────

// Polynomial grows with the fourth power of the attempt number plus a
// randomized spread, in seconds:
//
//	attempt^4 + 15 + rand[0,30) * (attempt+1)
//
// The first retries come quickly while later ones back off to hours.
type Polynomial struct{}

// NewPolynomial creates the polynomial strategy.
func NewPolynomial() *Polynomial { return &Polynomial{} }

// Delay returns the polynomial delay for attempt.
func (Polynomial) Delay(attempt int) time.Duration {
	n := max(attempt, 1)
	seconds := math.Pow(float64(n), 4) + 15 + float64(rand.IntN(30)*(n+1)) //nolint:gosec // jitter intentionally uses non-crypto rand
	return time.Duration(seconds * float64(time.Second))
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default retry backoff: Polynomial.
func DefaultStrategy() Strategy { return NewPolynomial() }

// DefaultConflictStrategy returns the pacing used between conflicting
// state change attempts: ExponentialWithJitter from initial, capped at
// one second.
func DefaultConflictStrategy(initial time.Duration) Strategy {
	return NewExponentialWithJitter(initial, time.Second)
}
