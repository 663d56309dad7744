package store

import (
	"maps"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
)

// OpKind identifies a queued transaction write.
type OpKind int

// Queued write kinds.
const (
	OpExpireStateData OpKind = iota + 1
	OpSetJobState
	OpAddJobState
	OpExpireJob
	OpPersistJob
	OpAddToQueue
	OpRemoveFromQueue
	OpAddToSet
	OpRemoveFromSet
	OpIncrementCounter
	OpDecrementCounter
)

var opNames = map[OpKind]string{
	OpExpireStateData:  "expire_state_data",
	OpSetJobState:      "set_job_state",
	OpAddJobState:      "add_job_state",
	OpExpireJob:        "expire_job",
	OpPersistJob:       "persist_job",
	OpAddToQueue:       "add_to_queue",
	OpRemoveFromQueue:  "remove_from_queue",
	OpAddToSet:         "add_to_set",
	OpRemoveFromSet:    "remove_from_set",
	OpIncrementCounter: "increment_counter",
	OpDecrementCounter: "decrement_counter",
}

func (k OpKind) String() string {
	if n, ok := opNames[k]; ok {
		return n
	}
	return "unknown"
}

// Op is one queued write. Fields not relevant to Kind are zero.
type Op struct {
	Kind  OpKind
	JobID id.JobID
	// Key is the queue name, set key or counter key.
	Key   string
	Value string
	Score float64
	State StateRecord
	TTL   time.Duration
}

// Guard is an optimistic precondition checked at commit time.
type Guard struct {
	JobID     id.JobID
	StateName string
}

// Batch records guards and writes in call order. Backends embed it to
// satisfy the queueing half of Transaction and replay Ops inside their
// native transaction on Commit.
type Batch struct {
	guards []Guard
	ops    []Op
	done   bool
}

// Guards returns the registered guards.
func (b *Batch) Guards() []Guard { return b.guards }

// Ops returns the queued writes in call order.
func (b *Batch) Ops() []Op { return b.ops }

// Finish marks the batch consumed. It returns hangfire.ErrTransactionDone
// if the batch was already committed or rolled back.
func (b *Batch) Finish() error {
	if b.done {
		return hangfire.ErrTransactionDone
	}
	b.done = true
	return nil
}

// Done reports whether the batch was committed or rolled back.
func (b *Batch) Done() bool { return b.done }

func (b *Batch) push(op Op) { b.ops = append(b.ops, op) }

func (b *Batch) ExpectState(jobID id.JobID, name string) {
	b.guards = append(b.guards, Guard{JobID: jobID, StateName: name})
}

func (b *Batch) ExpireStateData(jobID id.JobID) {
	b.push(Op{Kind: OpExpireStateData, JobID: jobID})
}

func (b *Batch) SetJobState(jobID id.JobID, rec StateRecord) {
	b.push(Op{Kind: OpSetJobState, JobID: jobID, State: cloneRecord(rec)})
}

func (b *Batch) AddJobState(jobID id.JobID, rec StateRecord) {
	b.push(Op{Kind: OpAddJobState, JobID: jobID, State: cloneRecord(rec)})
}

func (b *Batch) ExpireJob(jobID id.JobID, ttl time.Duration) {
	b.push(Op{Kind: OpExpireJob, JobID: jobID, TTL: ttl})
}

func (b *Batch) PersistJob(jobID id.JobID) {
	b.push(Op{Kind: OpPersistJob, JobID: jobID})
}

func (b *Batch) AddToQueue(queue string, jobID id.JobID) {
	b.push(Op{Kind: OpAddToQueue, Key: queue, JobID: jobID})
}

func (b *Batch) RemoveFromQueue(queue string, jobID id.JobID) {
	b.push(Op{Kind: OpRemoveFromQueue, Key: queue, JobID: jobID})
}

func (b *Batch) AddToSet(key, value string, score float64) {
	b.push(Op{Kind: OpAddToSet, Key: key, Value: value, Score: score})
}

func (b *Batch) RemoveFromSet(key, value string) {
	b.push(Op{Kind: OpRemoveFromSet, Key: key, Value: value})
}

func (b *Batch) IncrementCounter(key string) {
	b.push(Op{Kind: OpIncrementCounter, Key: key})
}

func (b *Batch) DecrementCounter(key string) {
	b.push(Op{Kind: OpDecrementCounter, Key: key})
}

// CloneRecord returns a deep copy of rec.
func CloneRecord(rec *StateRecord) *StateRecord {
	if rec == nil {
		return nil
	}
	cp := cloneRecord(*rec)
	return &cp
}

func cloneRecord(rec StateRecord) StateRecord {
	rec.Data = maps.Clone(rec.Data)
	return rec
}
