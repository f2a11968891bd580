package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONAtomicThenReadJSONSafe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "value.json")

	type payload struct {
		Name string `json:"name"`
	}
	want := payload{Name: "graph-runtime"}

	if err := WriteJSONAtomic(path, want); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}

	var got payload
	ok, err := ReadJSONSafe(path, &got)
	if err != nil {
		t.Fatalf("ReadJSONSafe: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for existing file")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestWriteJSONAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "value.json")

	for i := 0; i < 5; i++ {
		if err := WriteJSONAtomic(path, map[string]int{"i": i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 file in dir, got %d: %v", len(entries), entries)
	}
}

func TestReadJSONSafeMissing(t *testing.T) {
	dir := t.TempDir()
	var v map[string]int
	ok, err := ReadJSONSafe(filepath.Join(dir, "missing.json"), &v)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing file")
	}
}
