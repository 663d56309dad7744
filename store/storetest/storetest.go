// Package storetest holds the conformance suite shared by every store
// backend. Backend tests call Run with a factory returning a fresh,
// empty store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
	"github.com/Pearl2B/Hangfire/store"
)

// Factory returns a fresh, empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGetJob", testCreateAndGetJob},
		{"MissingJob", testMissingJob},
		{"DuplicateJob", testDuplicateJob},
		{"EagerParameters", testEagerParameters},
		{"CommitAppliesWrites", testCommitAppliesWrites},
		{"RollbackDiscards", testRollbackDiscards},
		{"GuardMismatch", testGuardMismatch},
		{"SequentialConflict", testSequentialConflict},
		{"ConcurrentConflict", testConcurrentConflict},
		{"Expiration", testExpiration},
		{"SetsAndCounters", testSetsAndCounters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func connect(t *testing.T, s store.Store) store.Connection {
	t.Helper()
	conn, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func monitor(t *testing.T, conn store.Connection) store.Monitor {
	t.Helper()
	m, ok := conn.(store.Monitor)
	if !ok {
		t.Fatalf("%T does not implement store.Monitor", conn)
	}
	return m
}

func createJob(t *testing.T, conn store.Connection, opts ...job.Option) *job.Job {
	t.Helper()
	j, err := job.New("test", opts...)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	if err := conn.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

// SetState commits name as the state of jobID without a guard.
func SetState(t *testing.T, conn store.Connection, jobID id.JobID, name string) {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	rec := store.StateRecord{Name: name, CreatedAt: time.Now().UTC()}
	tx.SetJobState(jobID, rec)
	tx.AddJobState(jobID, rec)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func stateName(t *testing.T, conn store.Connection, jobID id.JobID) string {
	t.Helper()
	name, err := conn.GetStateName(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetStateName: %v", err)
	}
	return name
}

// ──────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────

func testCreateAndGetJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	j := createJob(t, conn, job.WithParameter("CurrentCulture", "en-US"))

	got, err := conn.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("got id %s, want %s", got.ID, j.ID)
	}
	if got.Type != j.Type {
		t.Errorf("got type %q, want %q", got.Type, j.Type)
	}
	if got.StateName != "" {
		t.Errorf("got state %q, want empty", got.StateName)
	}
	if v := got.Parameters["CurrentCulture"]; v != `"en-US"` {
		t.Errorf("got snapshot %q, want %q", v, `"en-US"`)
	}

	if name := stateName(t, conn, j.ID); name != "" {
		t.Errorf("got state name %q, want empty", name)
	}
	rec, err := conn.GetStateData(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetStateData: %v", err)
	}
	if rec != nil {
		t.Errorf("got state record %+v, want nil", rec)
	}

	v, err := conn.GetJobParameter(ctx, j.ID, "CurrentCulture")
	if err != nil {
		t.Fatalf("GetJobParameter: %v", err)
	}
	if v != `"en-US"` {
		t.Errorf("got parameter %q, want %q", v, `"en-US"`)
	}
}

func testMissingJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	missing := id.NewJobID()

	if _, err := conn.GetJob(ctx, missing); !errors.Is(err, hangfire.ErrJobNotFound) {
		t.Errorf("GetJob: got error %v, want %v", err, hangfire.ErrJobNotFound)
	}
	if _, err := conn.GetStateName(ctx, missing); !errors.Is(err, hangfire.ErrJobNotFound) {
		t.Errorf("GetStateName: got error %v, want %v", err, hangfire.ErrJobNotFound)
	}
}

func testDuplicateJob(t *testing.T, s store.Store) {
	conn := connect(t, s)
	j := createJob(t, conn)

	if err := conn.CreateJob(context.Background(), j); !errors.Is(err, hangfire.ErrJobAlreadyExists) {
		t.Errorf("got error %v, want %v", err, hangfire.ErrJobAlreadyExists)
	}
}

func testEagerParameters(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	j := createJob(t, conn)

	v, err := conn.GetJobParameter(ctx, j.ID, "RetryCount")
	if err != nil {
		t.Fatalf("GetJobParameter: %v", err)
	}
	if v != "" {
		t.Errorf("got %q for missing parameter, want empty", v)
	}

	// An open, later rolled back transaction must not affect the write.
	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	if err := conn.SetJobParameter(ctx, j.ID, "RetryCount", "3"); err != nil {
		t.Fatalf("SetJobParameter: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	other := connect(t, s)
	v, err = other.GetJobParameter(ctx, j.ID, "RetryCount")
	if err != nil {
		t.Fatalf("GetJobParameter: %v", err)
	}
	if v != "3" {
		t.Errorf("got %q, want %q", v, "3")
	}

	fetched, err := other.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got := fetched.Parameters["RetryCount"]; got != "3" {
		t.Errorf("got snapshot %q, want %q", got, "3")
	}
}

func testCommitAppliesWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	j := createJob(t, conn)

	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	rec := store.StateRecord{
		Name:      "Enqueued",
		Reason:    "Triggered by test",
		Data:      map[string]string{"Queue": "critical"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	tx.ExpectState(j.ID, "")
	tx.ExpireStateData(j.ID)
	tx.SetJobState(j.ID, rec)
	tx.AddJobState(j.ID, rec)
	tx.AddToQueue("critical", j.ID)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if name := stateName(t, conn, j.ID); name != "Enqueued" {
		t.Errorf("got state %q, want %q", name, "Enqueued")
	}
	got, err := conn.GetStateData(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetStateData: %v", err)
	}
	if got == nil || got.Reason != rec.Reason || got.Data["Queue"] != "critical" {
		t.Errorf("got state record %+v, want %+v", got, rec)
	}

	m := monitor(t, conn)
	queue, err := m.Queue(ctx, "critical")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(queue) != 1 || queue[0] != j.ID {
		t.Errorf("got queue %v, want [%s]", queue, j.ID)
	}
	history, err := m.History(ctx, j.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Name != "Enqueued" {
		t.Errorf("got history %+v, want one Enqueued record", history)
	}
}

func testRollbackDiscards(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	j := createJob(t, conn)

	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	tx.SetJobState(j.ID, store.StateRecord{Name: "Processing", CreatedAt: time.Now().UTC()})
	tx.AddToQueue("default", j.ID)
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, hangfire.ErrTransactionDone) {
		t.Errorf("Commit after Rollback: got error %v, want %v", err, hangfire.ErrTransactionDone)
	}

	if name := stateName(t, conn, j.ID); name != "" {
		t.Errorf("got state %q, want empty", name)
	}
	queue, err := monitor(t, conn).Queue(ctx, "default")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("got queue %v, want empty", queue)
	}
}

func testGuardMismatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	j := createJob(t, conn)
	SetState(t, conn, j.ID, "Enqueued")

	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	tx.ExpectState(j.ID, "Processing")
	tx.SetJobState(j.ID, store.StateRecord{Name: "Succeeded", CreatedAt: time.Now().UTC()})
	tx.IncrementCounter("stats:succeeded")
	if err := tx.Commit(ctx); !errors.Is(err, hangfire.ErrConflictOnCommit) {
		t.Fatalf("got error %v, want %v", err, hangfire.ErrConflictOnCommit)
	}

	if name := stateName(t, conn, j.ID); name != "Enqueued" {
		t.Errorf("got state %q, want %q", name, "Enqueued")
	}
	n, err := monitor(t, conn).Counter(ctx, "stats:succeeded")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if n != 0 {
		t.Errorf("got counter %d, want 0", n)
	}
}

func testSequentialConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	connA := connect(t, s)
	connB := connect(t, s)
	j := createJob(t, connA)
	SetState(t, connA, j.ID, "Processing")

	txA, err := connA.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction A: %v", err)
	}
	txB, err := connB.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction B: %v", err)
	}

	txA.ExpectState(j.ID, "Processing")
	txA.SetJobState(j.ID, store.StateRecord{Name: "Succeeded", CreatedAt: time.Now().UTC()})
	txB.ExpectState(j.ID, "Processing")
	txB.SetJobState(j.ID, store.StateRecord{Name: "Failed", CreatedAt: time.Now().UTC()})

	if err := txA.Commit(ctx); err != nil {
		t.Fatalf("Commit A: %v", err)
	}
	if err := txB.Commit(ctx); !errors.Is(err, hangfire.ErrConflictOnCommit) {
		t.Fatalf("Commit B: got error %v, want %v", err, hangfire.ErrConflictOnCommit)
	}
	if name := stateName(t, connA, j.ID); name != "Succeeded" {
		t.Errorf("got state %q, want %q", name, "Succeeded")
	}
}

func testConcurrentConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	setup := connect(t, s)
	j := createJob(t, setup)
	SetState(t, setup, j.ID, "Processing")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		other     []error
	)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := s.Connect(ctx)
			if err != nil {
				mu.Lock()
				other = append(other, err)
				mu.Unlock()
				return
			}
			defer conn.Close()

			tx, err := conn.CreateWriteTransaction(ctx)
			if err != nil {
				mu.Lock()
				other = append(other, err)
				mu.Unlock()
				return
			}
			tx.ExpectState(j.ID, "Processing")
			tx.SetJobState(j.ID, store.StateRecord{Name: "Succeeded", Reason: string(rune('a' + i)), CreatedAt: time.Now().UTC()})
			err = tx.Commit(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, hangfire.ErrConflictOnCommit):
				conflicts++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if succeeded != 1 {
		t.Errorf("got %d successful commits, want 1", succeeded)
	}
	if conflicts != workers-1 {
		t.Errorf("got %d conflicts, want %d", conflicts, workers-1)
	}
}

func testExpiration(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	j := createJob(t, conn)

	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	tx.SetJobState(j.ID, store.StateRecord{Name: "Succeeded", CreatedAt: time.Now().UTC()})
	tx.ExpireJob(j.ID, time.Hour)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := conn.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ExpireAt == nil {
		t.Fatal("expected ExpireAt to be set")
	}
	if until := time.Until(*got.ExpireAt); until < 50*time.Minute || until > 61*time.Minute {
		t.Errorf("got ExpireAt in %v, want about 1h", until)
	}

	tx, err = conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	tx.SetJobState(j.ID, store.StateRecord{Name: "Enqueued", CreatedAt: time.Now().UTC()})
	tx.PersistJob(j.ID)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err = conn.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ExpireAt != nil {
		t.Errorf("got ExpireAt %v, want nil", got.ExpireAt)
	}
}

func testSetsAndCounters(t *testing.T, s store.Store) {
	ctx := context.Background()
	conn := connect(t, s)
	m := monitor(t, conn)

	tx, err := conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	tx.AddToSet("schedule", "a", 10)
	tx.AddToSet("schedule", "b", 20)
	tx.IncrementCounter("stats:succeeded")
	tx.IncrementCounter("stats:succeeded")
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx, err = conn.CreateWriteTransaction(ctx)
	if err != nil {
		t.Fatalf("CreateWriteTransaction: %v", err)
	}
	tx.RemoveFromSet("schedule", "a")
	tx.DecrementCounter("stats:succeeded")
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, ok, err := m.SetScore(ctx, "schedule", "a"); err != nil || ok {
		t.Errorf("SetScore(a): got member=%v err=%v, want removed", ok, err)
	}
	score, ok, err := m.SetScore(ctx, "schedule", "b")
	if err != nil || !ok || score != 20 {
		t.Errorf("SetScore(b): got %v, %v, %v, want 20, true, nil", score, ok, err)
	}
	n, err := m.Counter(ctx, "stats:succeeded")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if n != 1 {
		t.Errorf("got counter %d, want 1", n)
	}
}
