package state_test

import (
	"errors"
	"testing"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

func TestRegistryRestoresStockStates(t *testing.T) {
	t.Parallel()

	succeeded, err := state.NewSucceeded(map[string]int{"rows": 3}, 2*time.Second, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSucceeded: %v", err)
	}
	tests := []struct {
		name  string
		state state.State
		check func(t *testing.T, got state.State)
	}{
		{"enqueued", state.NewEnqueued("critical", state.WithReason("manual")), func(t *testing.T, got state.State) {
			s := got.(*state.Enqueued)
			if s.Queue() != "critical" || s.Reason() != "manual" {
				t.Errorf("got queue=%q reason=%q", s.Queue(), s.Reason())
			}
		}},
		{"scheduled", state.NewScheduled(time.Unix(1_900_000_000, 0)), func(t *testing.T, got state.State) {
			if s := got.(*state.Scheduled); !s.EnqueueAt().Equal(time.Unix(1_900_000_000, 0)) {
				t.Errorf("got enqueue at %v", s.EnqueueAt())
			}
		}},
		{"processing", state.NewProcessing("srv-1", "w-2"), func(t *testing.T, got state.State) {
			if s := got.(*state.Processing); s.ServerID() != "srv-1" || s.WorkerID() != "w-2" {
				t.Errorf("got server=%q worker=%q", s.ServerID(), s.WorkerID())
			}
		}},
		{"succeeded", succeeded, func(t *testing.T, got state.State) {
			s := got.(*state.Succeeded)
			if s.Result() != `{"rows":3}` || s.Latency() != 2*time.Second || s.PerformanceDuration() != 1500*time.Millisecond {
				t.Errorf("got result=%q latency=%v duration=%v", s.Result(), s.Latency(), s.PerformanceDuration())
			}
		}},
		{"failed", state.NewFailed(errors.New("boom")), func(t *testing.T, got state.State) {
			if s := got.(*state.Failed); s.ErrorMessage() != "boom" || s.ErrorType() != "*errors.errorString" {
				t.Errorf("got type=%q message=%q", s.ErrorType(), s.ErrorMessage())
			}
		}},
		{"deleted", state.NewDeleted(), func(t *testing.T, got state.State) {
			if !got.IsFinal() {
				t.Error("restored Deleted is not final")
			}
		}},
		{"awaiting retry", state.NewAwaitingRetry(4), func(t *testing.T, got state.State) {
			if s := got.(*state.AwaitingRetry); s.Attempt() != 4 {
				t.Errorf("got attempt %d", s.Attempt())
			}
		}},
	}

	r := state.NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := state.Record(tt.state, time.Now())
			got, err := r.Restore(rec)
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if got.Name() != tt.state.Name() {
				t.Fatalf("got name %q, want %q", got.Name(), tt.state.Name())
			}
			if got.IsFinal() != tt.state.IsFinal() {
				t.Errorf("got final %v, want %v", got.IsFinal(), tt.state.IsFinal())
			}
			tt.check(t, got)
		})
	}
}

func TestRegistryUnknownNameIsGeneric(t *testing.T) {
	t.Parallel()

	r := state.NewRegistry()
	got, err := r.Restore(store.StateRecord{Name: "Awaiting", Reason: "parent", Data: map[string]string{"ParentId": "job_x"}})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	g, ok := got.(*state.Generic)
	if !ok {
		t.Fatalf("got %T, want *state.Generic", got)
	}
	if g.Reason() != "parent" || g.SerializeData()["ParentId"] != "job_x" {
		t.Errorf("got reason=%q data=%v", g.Reason(), g.SerializeData())
	}
}

func TestRegistryCustomConstructor(t *testing.T) {
	t.Parallel()

	r := state.NewRegistry()
	r.Register("Archived", true, func(rec store.StateRecord) (state.State, error) {
		return state.NewGeneric("Archived", true, rec.Data), nil
	})
	if !r.IsFinal("Archived") {
		t.Error("custom final state not reported final")
	}
	got, err := r.Restore(store.StateRecord{Name: "Archived"})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !got.IsFinal() {
		t.Error("custom constructor not used")
	}
}

func TestRegistryRejectsCorruptData(t *testing.T) {
	t.Parallel()

	_, err := state.NewRegistry().Restore(store.StateRecord{
		Name: state.EnqueuedStateName,
		Data: map[string]string{"EnqueuedAt": "yesterday"},
	})
	if !errors.Is(err, hangfire.ErrOperationFailed) {
		t.Fatalf("got error %v, want %v", err, hangfire.ErrOperationFailed)
	}
}

func TestGenericIsImmutable(t *testing.T) {
	t.Parallel()

	data := map[string]string{"k": "v"}
	g := state.NewGeneric("Custom", false, data)
	data["k"] = "changed"
	g.SerializeData()["k"] = "changed"
	if g.SerializeData()["k"] != "v" {
		t.Error("generic state data is mutable from outside")
	}
}
