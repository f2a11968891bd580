package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendEventAndReadEventsPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	for i := 0; i < 3; i++ {
		if err := AppendEvent(path, NewEvent(EventStateUpdated, map[string]interface{}{"i": i})); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, e := range events {
		if int(e["i"].(float64)) != i {
			t.Fatalf("event %d out of order: %+v", i, e)
		}
		if e["t"] != EventStateUpdated {
			t.Fatalf("event %d missing tag: %+v", i, e)
		}
		if _, ok := e["at"]; !ok {
			t.Fatalf("event %d missing at timestamp", i)
		}
	}
}

func TestAppendEventRejectsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	if err := AppendEvent(path, nil); err != ErrNotAnObject {
		t.Fatalf("expected ErrNotAnObject, got %v", err)
	}
}

func TestReadEventsSkipsUnparsableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	if err := AppendEvent(path, NewEvent(EventRunStarted, nil)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("not json at all\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	if err := AppendEvent(path, NewEvent(EventRunFinished, nil)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 well-formed events, got %d", len(events))
	}
}

func TestReadEventsMissingFile(t *testing.T) {
	events, err := ReadEvents(filepath.Join(t.TempDir(), "missing.ndjson"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if events != nil {
		t.Fatalf("expected nil events, got %v", events)
	}
}
