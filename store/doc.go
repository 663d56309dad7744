// Package store defines the persistence contract of the state-transition
// core.
//
// A backend implements three interfaces:
//
//	type Store interface {
//	    Connect(ctx context.Context) (Connection, error)
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// [Connection] serves synchronous reads (committed state name, state
// record, job parameters) and eager parameter writes that bypass any
// transaction. [Transaction] queues writes and applies them atomically on
// Commit.
//
// # Optimistic Guard
//
// Every transaction may carry guards registered with ExpectState. Commit
// must verify, atomically with applying the writes, that each guarded job
// still has the expected committed state name, and fail with
// hangfire.ErrConflictOnCommit otherwise. Two concurrent attempts that
// both read the same state therefore cannot both commit.
//
// Backends that queue writes embed [Batch] and replay its Ops inside
// their native transaction.
//
// # Available Backends
//
//   - store/memory: in-process store for development and testing
//   - store/redis: Redis backend using go-redis (WATCH/MULTI/EXEC)
//   - store/postgres: PostgreSQL backend using pgx/v5 (SELECT ... FOR UPDATE)
//   - store/badger: embedded Badger backend (serializable transactions)
//
// The store/storetest package holds the conformance suite every backend
// runs in its own tests.
package store
