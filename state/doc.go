// Package state holds the election-and-application pipeline that moves a
// job from one lifecycle state to the next.
//
// # States
//
// A [State] is an immutable descriptor: a name, a reason, whether it is
// final, and a string payload persisted with it. The stock variants are
// [Enqueued], [Scheduled], [Processing], [Succeeded], [Failed], [Deleted]
// and [AwaitingRetry]; applications add their own by implementing State
// and registering a [Constructor] in a [Registry].
//
// # Contexts
//
// Each attempt owns an [ApplyContext]. Its election view, [ElectContext],
// carries the candidate state and the ordered list of candidates it
// replaced:
//
//	func (f *Guard) OnStateElection(ctx context.Context, c *state.ElectContext) error {
//	    if c.CandidateState().Name() == state.ProcessingStateName && !f.ready(c.Job()) {
//	        return c.SetCandidateState(state.NewFailed(errNotReady))
//	    }
//	    return nil
//	}
//
// Replacing the candidate with the same instance is a no-op; replacing it
// with a nil state fails. Job parameters are read with [GetJobParameter]
// and written eagerly, outside the transaction, with SetJobParameter.
//
// # Machine
//
// [Machine.Attempt] runs one transition:
//
//	Initialized → Electing → Finalized → Applying → Committed
//	Initialized | Electing | Finalized | Applying → Aborted
//
// Electing filters run in order and may redirect the candidate. The final
// candidate is written to the transaction, the state's [Handler] and the
// applied filters queue their side effects, and the transaction commits
// behind a guard on the committed state name read at the start. A
// concurrent change surfaces as hangfire.ErrConflictOnCommit; the machine
// never retries.
package state
