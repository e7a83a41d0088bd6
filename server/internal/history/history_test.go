package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(op string, created time.Time) Run {
	return Run{
		Op: op,
		Params: etc.ParamSet{
			Instrument:     "nircam",
			Filter:         "f115w",
			ApertureArcsec: 0.1,
			Background:     etc.BackgroundMedium,
			Groups:         6,
			Exposures:      4,
			MagAB:          24.5,
		},
		TargetSNR:  10,
		SNR:        10.4,
		Evals:      7,
		DurationMS: 812,
		CreatedAt:  created,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	first := sampleRun("solve_magnitude", base)
	second := sampleRun("calculate", base.Add(time.Minute))

	if err := s.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Recent returned %d runs, want 2", len(runs))
	}
	if runs[0].Op != "calculate" {
		t.Errorf("newest run first: got op %q", runs[0].Op)
	}
	if runs[0].ID == "" {
		t.Error("missing ID was not filled in")
	}
	if diff := cmp.Diff(first.Params, runs[1].Params); diff != "" {
		t.Errorf("params round trip mismatch (-want +got):\n%s", diff)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, sampleRun("calculate", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("Recent returned %d runs, want 3", len(runs))
	}
}

func TestEvictBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	if err := s.Record(ctx, sampleRun("calculate", base)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, sampleRun("calculate", base.Add(48*time.Hour))); err != nil {
		t.Fatalf("Record: %v", err)
	}

	removed, err := s.EvictBefore(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("EvictBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("EvictBefore removed %d, want 1", removed)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d after evict, want 1", n)
	}
}

func TestDiscard(t *testing.T) {
	var s Store = Discard{}
	ctx := context.Background()

	if err := s.Record(ctx, sampleRun("calculate", time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Discard remembered %d runs", len(runs))
	}
}
