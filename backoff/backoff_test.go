package backoff_test

import (
	"testing"
	"time"

	"github.com/Pearl2B/Hangfire/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestTable_ClampsToBounds(t *testing.T) {
	tb := backoff.NewTable(time.Second, 10*time.Second, time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 10 * time.Second},
		{3, time.Minute},
		{9, time.Minute},
	}
	for _, tt := range tests {
		if got := tb.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := backoff.NewTable().Delay(1); got != 0 {
		t.Errorf("empty table Delay(1) = %v, want 0", got)
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	seen := make(map[time.Duration]bool)
	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want within [0, 10s]", attempt, got)
			}
			seen[got] = true
		}
	}
	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got only %d distinct values", len(seen))
	}
}

func TestPolynomial_Range(t *testing.T) {
	p := backoff.NewPolynomial()

	tests := []struct {
		attempt int
		lo, hi  time.Duration
	}{
		// 1 + 15 + [0,29]*2
		{1, 16 * time.Second, 74 * time.Second},
		// 16 + 15 + [0,29]*3
		{2, 31 * time.Second, 118 * time.Second},
		// 10000 + 15 + [0,29]*11
		{10, 10015 * time.Second, 10334 * time.Second},
	}
	for _, tt := range tests {
		for range 50 {
			got := p.Delay(tt.attempt)
			if got < tt.lo || got > tt.hi {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", tt.attempt, got, tt.lo, tt.hi)
			}
		}
	}
}

func TestFunc(t *testing.T) {
	f := backoff.Func(func(n int) time.Duration { return time.Duration(n) * time.Millisecond })
	if got := f.Delay(7); got != 7*time.Millisecond {
		t.Errorf("Delay(7) = %v, want 7ms", got)
	}
}

func TestDefaultStrategy_IsPolynomial(t *testing.T) {
	s := backoff.DefaultStrategy()
	if _, ok := s.(*backoff.Polynomial); !ok {
		t.Fatalf("DefaultStrategy() = %T, want *backoff.Polynomial", s)
	}
	if d := s.Delay(1); d < 16*time.Second {
		t.Errorf("DefaultStrategy().Delay(1) = %v, want >= 16s", d)
	}
}
