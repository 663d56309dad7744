package hangfire

import "time"

// Config holds configuration for the state-transition core.
type Config struct {
	// JobExpirationTimeout is how long a job in a final state is retained
	// before storage may expire it.
	JobExpirationTimeout time.Duration

	// MaxStateChangeAttempts bounds how many times a state change is
	// retried after a commit conflict.
	MaxStateChangeAttempts int

	// ConflictRetryDelay is the base pause between conflict retries.
	ConflictRetryDelay time.Duration

	// BatchConcurrency is the maximum number of transitions a batch
	// change runs at once.
	BatchConcurrency int

	// BatchRate limits batch transitions per second. Zero means unlimited.
	BatchRate float64

	// DefaultQueue is the queue used by Enqueued states that name none.
	DefaultQueue string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		JobExpirationTimeout:   24 * time.Hour,
		MaxStateChangeAttempts: 10,
		ConflictRetryDelay:     10 * time.Millisecond,
		BatchConcurrency:       8,
		DefaultQueue:           "default",
	}
}
