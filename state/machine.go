package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/store"
)

// Phase is the progress of one attempt.
type Phase int

// Attempt phases. An attempt moves forward only and ends in Committed or
// Aborted.
const (
	PhaseInitialized Phase = iota
	PhaseElecting
	PhaseFinalized
	PhaseApplying
	PhaseCommitted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseElecting:
		return "electing"
	case PhaseFinalized:
		return "finalized"
	case PhaseApplying:
		return "applying"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseObserver is notified each time an attempt enters a phase.
type PhaseObserver func(jobID id.JobID, p Phase)

// AttemptRequest describes one proposed transition.
type AttemptRequest struct {
	// Job is the job to transition. Its StateName is updated after a
	// successful commit.
	Job *job.Job

	// Connection is the storage connection the attempt reads and opens
	// its transaction through.
	Connection store.Connection

	// NewState is the proposed state.
	NewState State

	// ExpectedStates, when not empty, lists the committed state names the
	// job may be in. The empty string stands for "no committed state".
	ExpectedStates []string

	// Unapply runs the handlers and unapplied filters of the previous
	// state before the new one is applied.
	Unapply bool

	// CustomData seeds the side-channel bag. It is copied.
	CustomData map[string]any
}

// Result is the outcome of a committed attempt.
type Result struct {
	State             State
	Traversed         []State
	PreviousStateName string
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithFilters sets the filter chains.
func WithFilters(p FilterProvider) MachineOption {
	return func(m *Machine) { m.filters = p }
}

// WithHandlers sets the state handlers.
func WithHandlers(h *HandlerSet) MachineOption {
	return func(m *Machine) { m.handlers = h }
}

// WithRegistry sets the registry used to restore previous states.
func WithRegistry(r *Registry) MachineOption {
	return func(m *Machine) { m.registry = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// WithJobExpirationTimeout sets the retention of jobs in final states.
func WithJobExpirationTimeout(d time.Duration) MachineOption {
	return func(m *Machine) { m.expiration = d }
}

// WithPhaseObserver registers a callback for phase changes.
func WithPhaseObserver(o PhaseObserver) MachineOption {
	return func(m *Machine) { m.observer = o }
}

// WithClock overrides the clock stamping state records.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// Machine drives one transition end to end: election, finalization,
// application, commit. It holds no per-attempt state and is safe for
// concurrent use. It never retries; see engine.ChangeState for that.
type Machine struct {
	filters    FilterProvider
	handlers   *HandlerSet
	registry   *Registry
	logger     *slog.Logger
	expiration time.Duration
	observer   PhaseObserver
	now        func() time.Time
}

// NewMachine returns a machine with the stock handlers and registry, no
// filters, and a 24h expiration.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		filters:    FilterList(nil),
		handlers:   DefaultHandlers(),
		registry:   NewRegistry(),
		logger:     slog.Default(),
		expiration: 24 * time.Hour,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Registry returns the machine's state registry.
func (m *Machine) Registry() *Registry { return m.registry }

// attempt tracks the phase of one Attempt call.
type attempt struct {
	m     *Machine
	jobID id.JobID
	phase Phase
}

func (a *attempt) enter(p Phase) {
	a.phase = p
	if a.m.observer != nil {
		a.m.observer(a.jobID, p)
	}
}

// Attempt runs one transition. Failures are typed:
//
//   - hangfire.ErrInvalidArgument for a malformed request
//   - hangfire.ErrPreconditionFailed when ExpectedStates does not match
//   - hangfire.ErrAborted when a filter or handler fails
//   - hangfire.ErrConflictOnCommit when the store detects that the
//     committed state changed since it was read
//
// Nothing written through the transaction is visible after a failure.
// Parameter writes made with SetJobParameter during election are not
// undone.
func (m *Machine) Attempt(ctx context.Context, req AttemptRequest) (_ *Result, err error) {
	if req.Job == nil || req.Job.ID.IsNil() {
		return nil, fmt.Errorf("%w: attempt requires a job", hangfire.ErrInvalidArgument)
	}
	if req.Connection == nil {
		return nil, fmt.Errorf("%w: attempt requires a connection", hangfire.ErrInvalidArgument)
	}
	if req.NewState == nil {
		return nil, fmt.Errorf("%w: proposed state must not be nil", hangfire.ErrInvalidArgument)
	}

	jobID := req.Job.ID
	a := &attempt{m: m, jobID: jobID}
	a.enter(PhaseInitialized)
	defer func() {
		if r := recover(); r != nil {
			a.enter(PhaseAborted)
			panic(r)
		}
		if err != nil {
			a.enter(PhaseAborted)
		}
	}()

	tx, err := req.Connection.CreateWriteTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("hangfire: open transaction for job %s: %w", jobID, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, hangfire.ErrTransactionDone) {
			m.logger.Warn("state transaction rollback failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", rbErr.Error()),
			)
		}
	}()

	current, err := req.Connection.GetStateName(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("hangfire: read state of job %s: %w", jobID, err)
	}
	if len(req.ExpectedStates) > 0 && !slices.Contains(req.ExpectedStates, current) {
		return nil, fmt.Errorf("%w: job %s is in state %q, expected one of %q",
			hangfire.ErrPreconditionFailed, jobID, current, req.ExpectedStates)
	}

	applyCtx, err := NewApplyContext(req.Job, req.Connection, tx, current, req.NewState, req.CustomData, m.expiration)
	if err != nil {
		return nil, err
	}
	if req.Unapply && current != "" {
		if applyCtx.previousState, err = m.restorePrevious(ctx, req.Connection, jobID); err != nil {
			return nil, err
		}
	}

	// Election.
	a.enter(PhaseElecting)
	electCtx := applyCtx.Elect()
	for _, f := range m.filters.ElectStateFilters() {
		if err := f.OnStateElection(ctx, electCtx); err != nil {
			return nil, fmt.Errorf("%w: electing filter %q on job %s: %w", hangfire.ErrAborted, FilterName(f), jobID, err)
		}
	}

	// Finalization.
	a.enter(PhaseFinalized)
	electCtx.frozen = true
	final := electCtx.CandidateState()
	traversed := len(electCtx.traversed)
	m.logger.Debug("state elected",
		slog.String("job_id", jobID.String()),
		slog.String("from", current),
		slog.String("to", final.Name()),
		slog.Int("traversed", len(electCtx.traversed)),
	)

	tx.ExpectState(jobID, current)
	if req.Unapply && current != "" {
		if err := m.unapply(ctx, applyCtx, tx, current); err != nil {
			return nil, err
		}
		if !Same(applyCtx.CandidateState(), final) || len(electCtx.traversed) != traversed {
			return nil, fmt.Errorf("%w: unapplied filter reassigned the candidate state of job %s", hangfire.ErrAborted, jobID)
		}
	}

	rec := Record(final, m.now())
	tx.ExpireStateData(jobID)
	tx.SetJobState(jobID, rec)
	tx.AddJobState(jobID, rec)
	if final.IsFinal() {
		tx.ExpireJob(jobID, m.expireIn(final))
	} else {
		tx.PersistJob(jobID)
	}

	// Application.
	a.enter(PhaseApplying)
	for _, h := range m.handlers.For(final.Name()) {
		if err := h.Apply(ctx, applyCtx, tx); err != nil {
			return nil, fmt.Errorf("%w: %s handler on job %s: %w", hangfire.ErrAborted, h.StateName(), jobID, err)
		}
	}
	for _, f := range m.filters.ApplyStateFilters() {
		if err := f.OnStateApplied(ctx, applyCtx, tx); err != nil {
			return nil, fmt.Errorf("%w: applied filter %q on job %s: %w", hangfire.ErrAborted, FilterName(f), jobID, err)
		}
		if !Same(applyCtx.CandidateState(), final) || len(electCtx.traversed) != traversed {
			return nil, fmt.Errorf("%w: applied filter %q reassigned the candidate state of job %s",
				hangfire.ErrAborted, FilterName(f), jobID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("hangfire: commit %s state of job %s: %w", final.Name(), jobID, err)
	}
	committed = true
	a.enter(PhaseCommitted)

	req.Job.StateName = final.Name()
	req.Job.Touch()
	return &Result{
		State:             final,
		Traversed:         electCtx.TraversedStates(),
		PreviousStateName: current,
	}, nil
}

func (m *Machine) restorePrevious(ctx context.Context, conn store.Connection, jobID id.JobID) (State, error) {
	rec, err := conn.GetStateData(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("hangfire: read state data of job %s: %w", jobID, err)
	}
	if rec == nil {
		return nil, nil
	}
	s, err := m.registry.Restore(*rec)
	if err != nil {
		m.logger.Warn("previous state restored as generic",
			slog.String("job_id", jobID.String()),
			slog.String("state", rec.Name),
			slog.String("error", err.Error()),
		)
		return NewGeneric(rec.Name, m.registry.IsFinal(rec.Name), rec.Data, WithReason(rec.Reason)), nil
	}
	return s, nil
}

func (m *Machine) unapply(ctx context.Context, c *ApplyContext, tx store.Transaction, previous string) error {
	for _, h := range m.handlers.For(previous) {
		if err := h.Unapply(ctx, c, tx); err != nil {
			return fmt.Errorf("%w: %s handler unapply on job %s: %w", hangfire.ErrAborted, previous, c.Job().ID, err)
		}
	}
	for _, f := range m.filters.UnapplyStateFilters() {
		if err := f.OnStateUnapplied(ctx, c, tx); err != nil {
			return fmt.Errorf("%w: unapplied filter %q on job %s: %w", hangfire.ErrAborted, FilterName(f), c.Job().ID, err)
		}
	}
	return nil
}

func (m *Machine) expireIn(s State) time.Duration {
	if p, ok := s.(ExpirationPolicy); ok {
		if d, ok := p.ExpireIn(); ok {
			return d
		}
	}
	return m.expiration
}
