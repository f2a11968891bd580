package store

import "context"

// RunSummary is a denormalized, queryable projection of one run, kept in a
// secondary index for fast task/run lookups. The authoritative record is
// always the run directory on disk (meta.json/decision.json); RunIndex
// implementations are a cache that can be rebuilt from FindIncompleteRuns
// and finalized decisions, never the source of truth.
type RunSummary struct {
	RunID        string `json:"run_id"`
	ProjectSlug  string `json:"project_slug"`
	TaskSlug     string `json:"task_slug"`
	Stage        string `json:"stage"`
	Decision     string `json:"decision,omitempty"`
	GraphID      string `json:"graph_id,omitempty"`
	GraphVersion int    `json:"graph_version,omitempty"`
	Finalized    bool   `json:"finalized"`
	CreatedAtUnix int64 `json:"created_at_unix"`
}

// RunIndex is a secondary, non-authoritative index over run summaries.
// Implementations back it with SQLite (single host) or MySQL (shared
// across hosts reading one project's runs), supplementing FindIncompleteRuns'
// directory walk with indexed lookups by task or by decision.
type RunIndex interface {
	Upsert(ctx context.Context, s RunSummary) error
	ByTask(ctx context.Context, projectSlug, taskSlug string) ([]RunSummary, error)
	ByDecision(ctx context.Context, decision string, limit int) ([]RunSummary, error)
	Close() error
}
