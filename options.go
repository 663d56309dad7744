package hangfire

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Core.
type Option func(*Core) error

// Storer is the minimal storage interface held by the Core.
// It covers lifecycle operations only. The full connection and
// transaction contract (store.Store) is used by the engine layer,
// which type-asserts the configured Storer at build time.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Core holds the configuration, logger and storage shared by every
// state transition.
//
// Create one with New() and functional options, then pass it to
// engine.Build to obtain an engine that performs transitions.
type Core struct {
	config  Config
	logger  *slog.Logger
	storage Storer
}

// New creates a new Core with the given options.
func New(opts ...Option) (*Core, error) {
	c := &Core{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the core's logger.
func (c *Core) Logger() *slog.Logger { return c.logger }

// Storage returns the core's storage.
func (c *Core) Storage() Storer { return c.storage }

// Config returns a copy of the core's configuration.
func (c *Core) Config() Config { return c.config }

// Migrate runs the storage migrations.
func (c *Core) Migrate(ctx context.Context) error {
	if c.storage == nil {
		return ErrNoStore
	}
	return c.storage.Migrate(ctx)
}

// Close releases the storage.
func (c *Core) Close() error {
	if c.storage == nil {
		return nil
	}
	return c.storage.Close()
}

// WithStorage sets the persistence backend.
// The value must implement Storer at minimum; the engine additionally
// requires store.Store.
func WithStorage(s Storer) Option {
	return func(c *Core) error {
		c.storage = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidArgument)
		}
		c.logger = l
		return nil
	}
}

// WithJobExpirationTimeout sets how long jobs in final states are retained.
func WithJobExpirationTimeout(d time.Duration) Option {
	return func(c *Core) error {
		if d <= 0 {
			return fmt.Errorf("%w: job expiration timeout must be positive, got %s", ErrInvalidArgument, d)
		}
		c.config.JobExpirationTimeout = d
		return nil
	}
}

// WithMaxStateChangeAttempts sets how many times a conflicting state
// change is retried.
func WithMaxStateChangeAttempts(n int) Option {
	return func(c *Core) error {
		if n < 1 {
			return fmt.Errorf("%w: max state change attempts must be at least 1, got %d", ErrInvalidArgument, n)
		}
		c.config.MaxStateChangeAttempts = n
		return nil
	}
}

// WithConflictRetryDelay sets the base pause between conflict retries.
func WithConflictRetryDelay(d time.Duration) Option {
	return func(c *Core) error {
		c.config.ConflictRetryDelay = d
		return nil
	}
}

// WithBatchConcurrency sets the fan-out of batch state changes.
func WithBatchConcurrency(n int) Option {
	return func(c *Core) error {
		if n < 1 {
			return fmt.Errorf("%w: batch concurrency must be at least 1, got %d", ErrInvalidArgument, n)
		}
		c.config.BatchConcurrency = n
		return nil
	}
}

// WithBatchRate limits batch state changes to n per second.
func WithBatchRate(n float64) Option {
	return func(c *Core) error {
		c.config.BatchRate = n
		return nil
	}
}

// WithDefaultQueue sets the queue used by Enqueued states that name none.
func WithDefaultQueue(name string) Option {
	return func(c *Core) error {
		if name == "" {
			return fmt.Errorf("%w: empty default queue", ErrInvalidArgument)
		}
		c.config.DefaultQueue = name
		return nil
	}
}
