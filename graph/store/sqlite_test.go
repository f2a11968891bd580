package store

import (
	"context"
	"testing"
)

func newTestSQLiteIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndexByTaskAndDecision(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	must(idx.Upsert(ctx, RunSummary{RunID: "r1", ProjectSlug: "p", TaskSlug: "t1", Decision: "done", CreatedAtUnix: 1}))
	must(idx.Upsert(ctx, RunSummary{RunID: "r2", ProjectSlug: "p", TaskSlug: "t1", Decision: "blocked", CreatedAtUnix: 2}))
	must(idx.Upsert(ctx, RunSummary{RunID: "r3", ProjectSlug: "p", TaskSlug: "t2", Decision: "blocked", CreatedAtUnix: 3}))

	byTask, err := idx.ByTask(ctx, "p", "t1")
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(byTask) != 2 {
		t.Fatalf("expected 2 runs for t1, got %d", len(byTask))
	}

	blocked, err := idx.ByDecision(ctx, "blocked", 10)
	if err != nil {
		t.Fatalf("ByDecision: %v", err)
	}
	if len(blocked) != 2 {
		t.Fatalf("expected 2 blocked runs, got %d", len(blocked))
	}
	if blocked[0].RunID != "r3" {
		t.Fatalf("expected most recent first, got %+v", blocked)
	}
}

func TestSQLiteIndexUpsertUpdatesExistingRow(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, RunSummary{
		RunID: "r1", ProjectSlug: "p", TaskSlug: "t1",
		Stage: "execute", CreatedAtUnix: 1,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Upsert(ctx, RunSummary{
		RunID: "r1", ProjectSlug: "p", TaskSlug: "t1",
		Stage: "execute", Decision: "done", GraphID: "g1", GraphVersion: 4,
		Finalized: true, CreatedAtUnix: 2,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := idx.ByTask(ctx, "p", "t1")
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the upsert to update in place, got %d rows", len(rows))
	}
	got := rows[0]
	if got.Decision != "done" || !got.Finalized || got.CreatedAtUnix != 2 {
		t.Fatalf("expected updated row, got %+v", got)
	}
}

func TestSQLiteIndexRoundTripsAllColumns(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	want := RunSummary{
		RunID:         "20260101-120000-abcd1234",
		ProjectSlug:   "proj",
		TaskSlug:      "task",
		Stage:         "verify",
		Decision:      "blocked",
		GraphID:       "g-77",
		GraphVersion:  9,
		Finalized:     true,
		CreatedAtUnix: 1767268800,
	}
	if err := idx.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rows, err := idx.ByTask(ctx, "proj", "task")
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0] != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", rows[0], want)
	}
}

func TestSQLiteIndexByDecisionRespectsLimit(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	for i, id := range []string{"r1", "r2", "r3"} {
		if err := idx.Upsert(ctx, RunSummary{
			RunID: id, ProjectSlug: "p", TaskSlug: "t",
			Decision: "failed", CreatedAtUnix: int64(i + 1),
		}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	rows, err := idx.ByDecision(ctx, "failed", 2)
	if err != nil {
		t.Fatalf("ByDecision: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(rows))
	}
	if rows[0].RunID != "r3" || rows[1].RunID != "r2" {
		t.Fatalf("expected newest-first ordering, got %+v", rows)
	}
}
