// Package badger implements store.Store on an embedded BadgerDB.
//
// A job's metadata and current state are one msgpack record under its
// job key. Parameters, history entries, queue members, set members and
// counters each get their own key. Commit runs inside a single Badger
// read-write transaction: it reads the record of every job it touches,
// checks the state-name guards and writes the results. Badger's
// optimistic concurrency control aborts the commit with ErrConflict when
// another transaction wrote one of those records first, which surfaces as
// hangfire.ErrConflictOnCommit.
//
// Job expiration maps onto Badger's per-key TTL.
package badger
