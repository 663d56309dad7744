package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Pearl2B/Hangfire/store"
)

// Compile-time interface checks.
var (
	_ store.Store       = (*Store)(nil)
	_ store.Connection  = (*Connection)(nil)
	_ store.Monitor     = (*Connection)(nil)
	_ store.Transaction = (*Transaction)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
	prefix string
	now    func() time.Time
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle. The client must support WATCH, which rules out a plain
// Pipeliner or Cmdable.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		prefix: defaultKeyPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Connect returns a connection sharing the store's client pool.
func (s *Store) Connect(_ context.Context) (store.Connection, error) {
	return &Connection{s: s}, nil
}

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
