package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
)

// Compile-time interface checks.
var (
	_ store.Store       = (*Store)(nil)
	_ store.Connection  = (*Connection)(nil)
	_ store.Monitor     = (*Connection)(nil)
	_ store.Transaction = (*Transaction)(nil)
)

// sequenceBandwidth is how many queue sequence numbers are leased at once.
const sequenceBandwidth = 128

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

// Store implements store.Store on BadgerDB.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
	ownsDB bool
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) a Badger database at path and returns a store
// that owns it. An empty path opens an in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(path)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	// Badger has its own logger interface; keep its internal chatter off.
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("hangfire/badger: open: %w", err)
	}
	s, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *badger.DB, opts ...Option) (*Store, error) {
	seq, err := db.GetSequence([]byte(queueSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("hangfire/badger: queue sequence: %w", err)
	}
	s := &Store{
		db:     db,
		seq:    seq,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// DB returns the underlying database.
func (s *Store) DB() *badger.DB { return s.db }

// Connect returns a connection to the store.
func (s *Store) Connect(_ context.Context) (store.Connection, error) {
	if s.db.IsClosed() {
		return nil, hangfire.ErrStoreClosed
	}
	return &Connection{s: s}, nil
}

// Migrate is a no-op; Badger is schemaless.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping fails once the database is closed.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return hangfire.ErrStoreClosed
	}
	return nil
}

// Close releases the queue sequence and, when the store opened the
// database itself, closes it.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.seq.Release()
		if s.ownsDB {
			s.closeErr = errors.Join(s.closeErr, s.db.Close())
		}
	})
	return s.closeErr
}

// ──────────────────────────────────────────────────
// Records
// ──────────────────────────────────────────────────

// jobRecord is the value stored under a job key.
type jobRecord struct {
	ID        string             `msgpack:"id"`
	Type      string             `msgpack:"type"`
	State     *store.StateRecord `msgpack:"state,omitempty"`
	History   uint64             `msgpack:"history"`
	ExpireAt  *time.Time         `msgpack:"expire_at,omitempty"`
	CreatedAt time.Time          `msgpack:"created_at"`
	UpdatedAt time.Time          `msgpack:"updated_at"`
}

func (r *jobRecord) stateName() string {
	if r.State == nil {
		return ""
	}
	return r.State.Name
}

// entry builds a write that inherits the job's expiration.
func entry(key, value []byte, expireAt *time.Time) *badger.Entry {
	e := badger.NewEntry(key, value)
	if expireAt != nil {
		e.ExpiresAt = uint64(expireAt.Unix())
	}
	return e
}

// loadJob reads a job record. It returns hangfire.ErrJobNotFound when the
// key is absent or expired.
func loadJob(txn *badger.Txn, jobID string) (*jobRecord, error) {
	item, err := txn.Get(jobKey(jobID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, hangfire.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec jobRecord
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.ExpireAt != nil {
		t := rec.ExpireAt.UTC()
		rec.ExpireAt = &t
	}
	if rec.State != nil {
		rec.State.CreatedAt = rec.State.CreatedAt.UTC()
	}
	return &rec, nil
}

func saveJob(txn *badger.Txn, rec *jobRecord) error {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return txn.SetEntry(entry(jobKey(rec.ID), raw, rec.ExpireAt))
}

// scanPrefix calls fn for every live key under prefix, in key order.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

// updateRetry runs fn in a read-write transaction and repeats it when
// Badger reports a conflict. Only eager writes that do not carry a guard
// use it; transition commits must surface conflicts to the caller.
func (s *Store) updateRetry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	const (
		maxRetries = 20
		retryDelay = time.Millisecond
	)

	var err error
	for attempt := range maxRetries {
		if attempt > 0 {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			time.Sleep(retryDelay)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("conflict after %d retries: %w", maxRetries, err)
}
