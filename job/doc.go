// Package job defines the job entity observed by the state-transition core.
//
// # Job Entity
//
// A [Job] pairs an immutable [id.JobID] with the mutable lifecycle data
// the core observes: the name of the last committed state and an optional
// parameter snapshot.
//
// StateName reflects committed transitions only. A job created by a
// producer has an empty StateName until its first transition commits.
//
// # Parameter Snapshot
//
// Parameters holds serialized values captured when the job was enqueued.
// Readers that accept stale data use the snapshot and skip a storage
// round trip; everyone else reads through the storage connection.
//
//	j, err := job.New("send_email",
//	    job.WithParameter("CurrentCulture", "en-US"),
//	)
package job
