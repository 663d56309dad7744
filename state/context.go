package state

import (
	"context"
	"fmt"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/serialization"
	"github.com/Pearl2B/Hangfire/store"
)

// ElectContext is the mutable record of an in-flight transition seen by
// electing filters. It is owned by one attempt and never shared across
// goroutines.
type ElectContext struct {
	job        *job.Job
	conn       store.Connection
	tx         store.Transaction
	current    string
	candidate  State
	traversed  []State
	customData map[string]any
	frozen     bool
}

// Job returns the job being transitioned.
func (c *ElectContext) Job() *job.Job { return c.job }

// Connection returns the storage connection of the attempt.
func (c *ElectContext) Connection() store.Connection { return c.conn }

// Transaction returns the write transaction of the attempt.
func (c *ElectContext) Transaction() store.Transaction { return c.tx }

// CurrentState returns the committed state name read when the attempt
// started. Empty means the job had no committed state.
func (c *ElectContext) CurrentState() string { return c.current }

// CandidateState returns the state currently proposed for the job.
func (c *ElectContext) CandidateState() State { return c.candidate }

// SetCandidateState replaces the candidate. The previous candidate is
// appended to the traversed states unless s is that same instance, in
// which case nothing changes. A nil or non-pointer state fails with
// hangfire.ErrInvalidArgument and leaves the candidate untouched, as does
// any call made once election is over.
func (c *ElectContext) SetCandidateState(s State) error {
	if err := checkState(s, "candidate"); err != nil {
		return err
	}
	if c.frozen {
		return fmt.Errorf("%w: candidate state of job %s is final", hangfire.ErrInvalidArgument, c.job.ID)
	}
	if Same(s, c.candidate) {
		return nil
	}
	c.traversed = append(c.traversed, c.candidate)
	c.candidate = s
	return nil
}

// TraversedStates returns a copy of the candidates superseded so far,
// oldest first.
func (c *ElectContext) TraversedStates() []State {
	out := make([]State, len(c.traversed))
	copy(out, c.traversed)
	return out
}

// CustomData returns the side-channel bag shared by every filter of the
// attempt. Values are opaque and never persisted.
func (c *ElectContext) CustomData() map[string]any { return c.customData }

// SetJobParameter serializes value with the user profile and writes it
// through the connection immediately. The write is not part of the
// attempt's transaction and survives an aborted attempt.
func (c *ElectContext) SetJobParameter(ctx context.Context, name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: job parameter name must not be empty", hangfire.ErrInvalidArgument)
	}
	s, err := serialization.Serialize(value, serialization.User)
	if err != nil {
		return c.parameterError("set", name, err)
	}
	if err := c.conn.SetJobParameter(ctx, c.job.ID, name, s); err != nil {
		return c.parameterError("set", name, err)
	}
	return nil
}

// GetJobParameter returns the serialized value of a job parameter. With
// allowStale and a captured snapshot it reads the snapshot and performs
// no storage call; otherwise it reads through the connection.
func (c *ElectContext) GetJobParameter(ctx context.Context, name string, allowStale bool) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: job parameter name must not be empty", hangfire.ErrInvalidArgument)
	}
	if allowStale && c.job.HasSnapshot() {
		v, _ := c.job.SnapshotParameter(name)
		return v, nil
	}
	v, err := c.conn.GetJobParameter(ctx, c.job.ID, name)
	if err != nil {
		return "", c.parameterError("get", name, err)
	}
	return v, nil
}

func (c *ElectContext) parameterError(op, name string, err error) error {
	return fmt.Errorf("%w: could not %s a value of the job parameter %q for job %s: %w",
		hangfire.ErrOperationFailed, op, name, c.job.ID, err)
}

// GetJobParameter reads a job parameter and deserializes it into T with
// the user profile. A missing parameter yields the zero value of T. Read
// and deserialization failures are wrapped in hangfire.ErrOperationFailed
// naming the parameter.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func GetJobParameter[T any](ctx context.Context, c *ElectContext, name string, allowStale bool) (T, error) {
	var zero T
	raw, err := c.GetJobParameter(ctx, name, allowStale)
	if err != nil {
		return zero, err
	}
	v, err := serialization.Deserialize[T](raw, serialization.User)
	if err != nil {
		return zero, c.parameterError("get", name, err)
	}
	return v, nil
}

// ApplyContext extends ElectContext with what applied and unapplied
// filters need once the candidate is final. Applied filters must not
// reassign the candidate.
type ApplyContext struct {
	*ElectContext

	previousState        State
	jobExpirationTimeout time.Duration
}

// NewApplyContext builds the application context for one attempt.
// customData is copied into a fresh bag; nil is allowed.
func NewApplyContext(
	j *job.Job,
	conn store.Connection,
	tx store.Transaction,
	previousStateName string,
	proposed State,
	customData map[string]any,
	jobExpirationTimeout time.Duration,
) (*ApplyContext, error) {
	if j == nil || j.ID.IsNil() {
		return nil, fmt.Errorf("%w: job must not be nil", hangfire.ErrInvalidArgument)
	}
	if err := checkState(proposed, "proposed"); err != nil {
		return nil, err
	}
	bag := make(map[string]any, len(customData))
	for k, v := range customData {
		bag[k] = v
	}
	return &ApplyContext{
		ElectContext: &ElectContext{
			job:        j,
			conn:       conn,
			tx:         tx,
			current:    previousStateName,
			candidate:  proposed,
			customData: bag,
		},
		jobExpirationTimeout: jobExpirationTimeout,
	}, nil
}

// Elect returns the election view over the same attempt. Candidate
// changes made through it are visible to the application context.
func (c *ApplyContext) Elect() *ElectContext { return c.ElectContext }

// PreviousStateName returns the name of the state the job held before
// this attempt. Empty means none.
func (c *ApplyContext) PreviousStateName() string { return c.current }

// OldStateName is an alias of PreviousStateName.
func (c *ApplyContext) OldStateName() string { return c.current }

// NewState returns the final candidate.
func (c *ApplyContext) NewState() State { return c.candidate }

// PreviousState returns the restored previous state when the attempt
// unapplies it, or nil.
func (c *ApplyContext) PreviousState() State { return c.previousState }

// JobExpirationTimeout returns the retention applied to final states.
func (c *ApplyContext) JobExpirationTimeout() time.Duration { return c.jobExpirationTimeout }
