package filter_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/Pearl2B/Hangfire/filter"
	"github.com/Pearl2B/Hangfire/state"
)

func TestLogging_LogsApplication(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName)

	m := state.NewMachine(state.WithFilters(state.FilterList{
		filter.NewLogging(logger),
		filter.NewRetry(filter.WithLogger(logger)),
	}))
	if _, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New("boom")),
		Unapply:    true,
	}); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"job state election",
		"candidate=Failed",
		"job state unapplied",
		"job state applied",
		"to=Scheduled",
		"traversed=[Failed]",
		"job failed, retry scheduled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
