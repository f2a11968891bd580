package store

import (
	"testing"
	"time"
)

func TestValidSlug(t *testing.T) {
	cases := map[string]bool{
		"my-task":      true,
		"a1-b2-c3":     true,
		"":             false,
		"Has-Caps":     false,
		"has/slash":    false,
		"has..dots":    false,
		"trailing-":    false,
	}
	for slug, want := range cases {
		if got := ValidSlug(slug); got != want {
			t.Errorf("ValidSlug(%q) = %v, want %v", slug, got, want)
		}
	}
}

func TestNewRunIDIsSortableAndValid(t *testing.T) {
	t1 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(time.Second)

	id1, err := NewRunID(t1)
	if err != nil {
		t.Fatalf("NewRunID: %v", err)
	}
	id2, err := NewRunID(t2)
	if err != nil {
		t.Fatalf("NewRunID: %v", err)
	}

	if !ValidRunID(id1) || !ValidRunID(id2) {
		t.Fatalf("expected valid run ids, got %q and %q", id1, id2)
	}
	if id1 >= id2 {
		t.Fatalf("expected id1 < id2 lexicographically: %q vs %q", id1, id2)
	}
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/home/u/.agx")
	runDir := l.RunDir("proj", "task", "20260101-000000-abcd", StageExecute)
	want := "/home/u/.agx/projects/proj/task/20260101-000000-abcd/execute"
	if runDir != want {
		t.Fatalf("RunDir = %q, want %q", runDir, want)
	}
	if l.DecisionJSON(runDir) != runDir+"/decision.json" {
		t.Fatalf("DecisionJSON = %q", l.DecisionJSON(runDir))
	}
}
