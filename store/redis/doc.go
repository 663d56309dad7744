// Package redis implements store.Store on Redis.
//
// Each job is a Hash holding its metadata and committed state name, with
// side keys for parameters, the current state record, its transient data
// and the state history. Queues are Lists, sets are Sorted Sets and
// counters are plain integer keys.
//
// Commit watches the keys of every job it touches, checks the state-name
// guards and replays the queued writes in MULTI/EXEC. A concurrent write
// to a watched key aborts EXEC, which surfaces as
// hangfire.ErrConflictOnCommit.
//
// The caller owns the Redis client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
