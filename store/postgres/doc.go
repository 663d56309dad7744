// Package postgres implements store.Store on PostgreSQL using pgx/v5 with
// raw SQL and embedded migrations.
//
// The current state of a job lives on its hf_job row, the history in
// hf_state. Commit runs in one database transaction: it locks every job
// row the transaction touches with SELECT ... FOR UPDATE, checks the
// state-name guards against the locked rows and replays the queued writes
// as a pgx batch. Serialization failures and deadlocks are reported as
// hangfire.ErrConflictOnCommit.
package postgres
