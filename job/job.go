package job

import (
	"maps"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
)

// Job is one unit of deferred work tracked through a lifecycle of
// named states.
type Job struct {
	hangfire.Entity

	ID id.JobID `json:"id"`

	// Type names the kind of work, as registered by the producer.
	Type string `json:"type"`

	// StateName is the name of the last committed state. Empty means the
	// job has no committed state yet. It never reflects an in-flight
	// candidate.
	StateName string `json:"state_name,omitempty"`

	// Parameters is the parameter snapshot captured at enqueue time,
	// holding serialized values. Nil means no snapshot was captured.
	Parameters map[string]string `json:"parameters,omitempty"`

	// ExpireAt is when storage may remove the job. Nil means never.
	ExpireAt *time.Time `json:"expire_at,omitempty"`
}

// New creates a job with a fresh ID and the given options applied.
func New(typ string, opts ...Option) (*Job, error) {
	j := &Job{
		Entity: hangfire.NewEntity(),
		ID:     id.NewJobID(),
		Type:   typ,
	}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// HasSnapshot reports whether a parameter snapshot was captured.
func (j *Job) HasSnapshot() bool { return j.Parameters != nil }

// SnapshotParameter returns the serialized snapshot value for name and
// whether it was present.
func (j *Job) SnapshotParameter(name string) (string, bool) {
	v, ok := j.Parameters[name]
	return v, ok
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Parameters != nil {
		cp.Parameters = maps.Clone(j.Parameters)
	}
	if j.ExpireAt != nil {
		t := *j.ExpireAt
		cp.ExpireAt = &t
	}
	return &cp
}
