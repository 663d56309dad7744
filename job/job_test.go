package job_test

import (
	"errors"
	"testing"
	"time"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/id"
	"github.com/Pearl2B/Hangfire/job"
)

func TestNew(t *testing.T) {
	j, err := job.New("send_email")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if j.ID.IsNil() {
		t.Fatal("expected generated ID")
	}
	if j.ID.Prefix() != id.PrefixJob {
		t.Errorf("got prefix %q, want %q", j.ID.Prefix(), id.PrefixJob)
	}
	if j.StateName != "" {
		t.Errorf("got state %q, want empty", j.StateName)
	}
	if j.HasSnapshot() {
		t.Error("expected no snapshot")
	}
	if j.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestWithParameter(t *testing.T) {
	j, err := job.New("report", job.WithParameter("RetryCount", 2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, ok := j.SnapshotParameter("RetryCount")
	if !ok {
		t.Fatal("expected snapshot value")
	}
	if v != "2" {
		t.Errorf("got %q, want %q", v, "2")
	}
}

func TestWithParameterRejectsEmptyName(t *testing.T) {
	_, err := job.New("report", job.WithParameter("", 1))
	if !errors.Is(err, hangfire.ErrInvalidArgument) {
		t.Fatalf("got error %v, want %v", err, hangfire.ErrInvalidArgument)
	}
}

func TestWithID(t *testing.T) {
	want := id.NewJobID()
	j, err := job.New("report", job.WithID(want))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if j.ID != want {
		t.Errorf("got %s, want %s", j.ID, want)
	}

	if _, err := job.New("report", job.WithID(id.Nil)); !errors.Is(err, hangfire.ErrInvalidArgument) {
		t.Fatalf("got error %v, want %v", err, hangfire.ErrInvalidArgument)
	}
}

func TestClone(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	j, err := job.New("report", job.WithRawParameters(map[string]string{"a": `"x"`}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.ExpireAt = &exp

	cp := j.Clone()
	cp.Parameters["a"] = `"y"`
	*cp.ExpireAt = exp.Add(time.Hour)

	if j.Parameters["a"] != `"x"` {
		t.Error("clone shares parameter map with original")
	}
	if !j.ExpireAt.Equal(exp) {
		t.Error("clone shares ExpireAt with original")
	}
}
