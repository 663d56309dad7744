package job

import (
	"fmt"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/serialization"
)

// Option configures a job created with New.
type Option func(*Job) error

// WithID sets an explicit job ID instead of generating one.
func WithID(jobID id.JobID) Option {
	return func(j *Job) error {
		if jobID.IsNil() {
			return fmt.Errorf("%w: nil job id", hangfire.ErrInvalidArgument)
		}
		j.ID = jobID
		return nil
	}
}

// WithParameter serializes value with the user profile and stores it in
// the job's parameter snapshot.
func WithParameter(name string, value any) Option {
	return func(j *Job) error {
		if name == "" {
			return fmt.Errorf("%w: empty parameter name", hangfire.ErrInvalidArgument)
		}
		s, err := serialization.Serialize(value, serialization.User)
		if err != nil {
			return fmt.Errorf("%w: serialize parameter %q: %w", hangfire.ErrOperationFailed, name, err)
		}
		if j.Parameters == nil {
			j.Parameters = make(map[string]string)
		}
		j.Parameters[name] = s
		return nil
	}
}

// WithRawParameters installs an already-serialized parameter snapshot.
func WithRawParameters(params map[string]string) Option {
	return func(j *Job) error {
		j.Parameters = make(map[string]string, len(params))
		for k, v := range params {
			j.Parameters[k] = v
		}
		return nil
	}
}
