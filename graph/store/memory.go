package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process RunIndex: used for tests and
// single-process runs with no SQL driver configured.
type MemoryIndex struct {
	mu   sync.RWMutex
	rows map[string]RunSummary // keyed by run_id
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{rows: make(map[string]RunSummary)}
}

func (m *MemoryIndex) Upsert(_ context.Context, s RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.RunID] = s
	return nil
}

func (m *MemoryIndex) ByTask(_ context.Context, projectSlug, taskSlug string) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RunSummary
	for _, s := range m.rows {
		if s.ProjectSlug == projectSlug && s.TaskSlug == taskSlug {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

func (m *MemoryIndex) ByDecision(_ context.Context, decision string, limit int) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RunSummary
	for _, s := range m.rows {
		if s.Decision == decision {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtUnix > out[j].CreatedAtUnix })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryIndex) Close() error { return nil }
