package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteIndex is a SQLite-backed RunIndex: single-file database, WAL
// mode for concurrent readers, one writer. Suited to a single runtime instance indexing its own task runs
// for fast "list runs for this task" / "list all blocked runs" queries.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (and migrates) a SQLite-backed RunIndex at path.
// Use ":memory:" for an ephemeral index.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite run index: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite run index: %w", err)
		}
	}

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteIndex) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_index (
			run_id TEXT PRIMARY KEY,
			project_slug TEXT NOT NULL,
			task_slug TEXT NOT NULL,
			stage TEXT NOT NULL,
			decision TEXT NOT NULL DEFAULT '',
			graph_id TEXT NOT NULL DEFAULT '',
			graph_version INTEGER NOT NULL DEFAULT 0,
			finalized INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create run_index table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_run_index_task ON run_index(project_slug, task_slug)"); err != nil {
		return fmt.Errorf("create task index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_run_index_decision ON run_index(decision, created_at_unix)"); err != nil {
		return fmt.Errorf("create decision index: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, r RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_index (run_id, project_slug, task_slug, stage, decision, graph_id, graph_version, finalized, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			stage = excluded.stage,
			decision = excluded.decision,
			graph_id = excluded.graph_id,
			graph_version = excluded.graph_version,
			finalized = excluded.finalized,
			created_at_unix = excluded.created_at_unix
	`, r.RunID, r.ProjectSlug, r.TaskSlug, r.Stage, r.Decision, r.GraphID, r.GraphVersion, boolToInt(r.Finalized), r.CreatedAtUnix)
	if err != nil {
		return fmt.Errorf("upsert run index row: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ByTask(ctx context.Context, projectSlug, taskSlug string) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, project_slug, task_slug, stage, decision, graph_id, graph_version, finalized, created_at_unix
		FROM run_index WHERE project_slug = ? AND task_slug = ? ORDER BY run_id
	`, projectSlug, taskSlug)
	if err != nil {
		return nil, fmt.Errorf("query run index by task: %w", err)
	}
	defer rows.Close()
	return scanRunSummaries(rows)
}

func (s *SQLiteIndex) ByDecision(ctx context.Context, decision string, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, project_slug, task_slug, stage, decision, graph_id, graph_version, finalized, created_at_unix
		FROM run_index WHERE decision = ? ORDER BY created_at_unix DESC LIMIT ?
	`, decision, limit)
	if err != nil {
		return nil, fmt.Errorf("query run index by decision: %w", err)
	}
	defer rows.Close()
	return scanRunSummaries(rows)
}

func (s *SQLiteIndex) Close() error { return s.db.Close() }

func scanRunSummaries(rows *sql.Rows) ([]RunSummary, error) {
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var finalized int
		if err := rows.Scan(&r.RunID, &r.ProjectSlug, &r.TaskSlug, &r.Stage, &r.Decision, &r.GraphID, &r.GraphVersion, &finalized, &r.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan run index row: %w", err)
		}
		r.Finalized = finalized != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
