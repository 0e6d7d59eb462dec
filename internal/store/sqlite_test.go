package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinscooper/lighteval/internal/aggregate"
	"github.com/martinscooper/lighteval/internal/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testRun(id, model string, acc float64) *Run {
	return &Run{
		ID:               id,
		Model:            model,
		Provider:         "openai",
		CreatedAt:        time.Now().UTC(),
		DataParallel:     2,
		TensorParallel:   1,
		PipelineParallel: 1,
		WorldSize:        2,
		Tasks:            []string{"demo|qa|0|0"},
		Report: &aggregate.Report{
			Results: map[string]aggregate.TaskReport{
				"demo|qa|0": {Metrics: map[string]float64{"acc": acc}, Examples: 10},
			},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run := testRun("run-1", "gpt-4o-mini", 0.7)
	if err := st.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Model != "gpt-4o-mini" || got.WorldSize != 2 {
		t.Fatalf("run: got %+v", got)
	}
	if len(got.Tasks) != 1 || got.Tasks[0] != "demo|qa|0|0" {
		t.Fatalf("tasks: got %v", got.Tasks)
	}
	if got.Report == nil || got.Report.Results["demo|qa|0"].Metrics["acc"] != 0.7 {
		t.Fatalf("report: got %+v", got.Report)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.GetRun(context.Background(), "missing"); err == nil {
		t.Fatalf("GetRun: expected error")
	}
}

func TestSaveRun_Validation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, nil); err == nil {
		t.Fatalf("nil run should fail")
	}
	if err := st.SaveRun(ctx, &Run{ID: "  "}); err == nil {
		t.Fatalf("empty id should fail")
	}
	if err := st.SaveRun(ctx, &Run{ID: "x"}); err == nil {
		t.Fatalf("run without report should fail")
	}
}

func TestSaveRun_DuplicateID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, testRun("run-1", "m", 0.5)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(ctx, testRun("run-1", "m", 0.6)); err == nil {
		t.Fatalf("duplicate id should fail")
	}
}

func TestListRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := testRun(id, "m", 0.5)
		run.CreatedAt = time.Unix(int64(1000+i), 0).UTC()
		if err := st.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := st.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len: got %d, want 2", len(runs))
	}
	// Newest first.
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("order: got %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestLeaderboard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, testRun("run-1", "model-a", 0.6)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(ctx, testRun("run-2", "model-a", 0.8)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(ctx, testRun("run-3", "model-b", 0.7)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	entries, err := st.Leaderboard(ctx, "acc", 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len: got %d, want 2 (best per model/task)", len(entries))
	}
	if entries[0].Model != "model-a" || entries[0].Value != 0.8 {
		t.Fatalf("first entry: got %+v", entries[0])
	}
	if entries[1].Model != "model-b" || entries[1].Value != 0.7 {
		t.Fatalf("second entry: got %+v", entries[1])
	}

	none, err := st.Leaderboard(ctx, "bleu", 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("unknown metric: got %v", none)
	}
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "memory"
	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Close()

	cfg.Storage.Type = "postgres"
	if _, err := Open(cfg); err == nil {
		t.Fatalf("Open: unsupported type should fail")
	}
}
