package filter_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Pearl2B/Hangfire/filter"
	"github.com/Pearl2B/Hangfire/state"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data type, got %T", name, m.Data)
			}
			return sum
		}
	}
	t.Fatalf("%s metric not found", name)
	return metricdata.Sum[int64]{}
}

func TestMetrics_CountsAppliedAndTraversed(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ctx := context.Background()
	conn := newConn(t)
	j := seedJob(t, conn, state.ProcessingStateName)

	m := state.NewMachine(state.WithFilters(state.FilterList{
		filter.NewRetry(),
		filter.NewMetricsWithMeter(mp.Meter("test")),
	}))
	if _, err := m.Attempt(ctx, state.AttemptRequest{
		Job:        j,
		Connection: conn,
		NewState:   state.NewFailed(errors.New("boom")),
	}); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	rm := collectMetrics(t, reader)

	applied := findSum(t, rm, "hangfire.state.applied")
	if len(applied.DataPoints) != 1 || applied.DataPoints[0].Value != 1 {
		t.Fatalf("expected one applied data point with value 1, got %+v", applied.DataPoints)
	}
	attrs := applied.DataPoints[0].Attributes
	if v, _ := attrs.Value("from"); v.AsString() != state.ProcessingStateName {
		t.Errorf("got from=%q, want %q", v.AsString(), state.ProcessingStateName)
	}
	if v, _ := attrs.Value("to"); v.AsString() != state.ScheduledStateName {
		t.Errorf("got to=%q, want %q", v.AsString(), state.ScheduledStateName)
	}

	traversed := findSum(t, rm, "hangfire.state.traversed")
	if len(traversed.DataPoints) != 1 || traversed.DataPoints[0].Value != 1 {
		t.Errorf("expected one traversed data point with value 1, got %+v", traversed.DataPoints)
	}
}
