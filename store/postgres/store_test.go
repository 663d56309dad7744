package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/store"
	"github.com/Pearl2B/Hangfire/store/storetest"
)

// dsnEnv names the variable pointing the tests at a disposable database.
const dsnEnv = "HANGFIRE_POSTGRES_DSN"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := s.Pool().Exec(ctx,
		`TRUNCATE hf_job, hf_job_parameter, hf_state, hf_job_queue, hf_set, hf_counter`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestDataCodec(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]string
		want int
	}{
		{"Nil", nil, 0},
		{"Empty", map[string]string{}, 0},
		{"Values", map[string]string{"Queue": "critical", "EnqueuedAt": "2026-10-19T00:00:00Z"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := encodeData(tt.in)
			if err != nil {
				t.Fatalf("encodeData: %v", err)
			}
			if tt.want == 0 && raw != nil {
				t.Fatalf("got %q, want NULL", raw)
			}
			got, err := decodeData(raw)
			if err != nil {
				t.Fatalf("decodeData: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d entries, want %d", len(got), tt.want)
			}
			for k, v := range tt.in {
				if got[k] != v {
					t.Errorf("got %s=%q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestInvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz")
	if err == nil {
		t.Fatal("got nil error for malformed DSN")
	}
	if errors.Is(err, hangfire.ErrMigrationFailed) {
		t.Fatalf("got migration error %v for a parse failure", err)
	}
}
