package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLIndex is a MySQL-backed RunIndex. Suited to deployments where
// multiple runtime instances (each locked to a different task) share one
// index for cross-task run queries that a single host's SQLite file
// can't answer, e.g. "list every blocked run across the fleet".
type MySQLIndex struct {
	db *sql.DB
}

// NewMySQLIndex opens (and migrates) a MySQL-backed RunIndex using dsn
// (a standard go-sql-driver/mysql DSN, e.g.
// "user:pass@tcp(host:3306)/agx?parseTime=true").
func NewMySQLIndex(dsn string) (*MySQLIndex, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql run index: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql run index: %w", err)
	}

	idx := &MySQLIndex{db: db}
	if err := idx.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (m *MySQLIndex) migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_index (
			run_id VARCHAR(64) PRIMARY KEY,
			project_slug VARCHAR(128) NOT NULL,
			task_slug VARCHAR(128) NOT NULL,
			stage VARCHAR(16) NOT NULL,
			decision VARCHAR(16) NOT NULL DEFAULT '',
			graph_id VARCHAR(128) NOT NULL DEFAULT '',
			graph_version INT NOT NULL DEFAULT 0,
			finalized TINYINT NOT NULL DEFAULT 0,
			created_at_unix BIGINT NOT NULL DEFAULT 0,
			INDEX idx_run_index_task (project_slug, task_slug),
			INDEX idx_run_index_decision (decision, created_at_unix)
		) ENGINE=InnoDB
	`)
	if err != nil {
		return fmt.Errorf("create run_index table: %w", err)
	}
	return nil
}

func (m *MySQLIndex) Upsert(ctx context.Context, r RunSummary) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO run_index (run_id, project_slug, task_slug, stage, decision, graph_id, graph_version, finalized, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			stage = VALUES(stage),
			decision = VALUES(decision),
			graph_id = VALUES(graph_id),
			graph_version = VALUES(graph_version),
			finalized = VALUES(finalized),
			created_at_unix = VALUES(created_at_unix)
	`, r.RunID, r.ProjectSlug, r.TaskSlug, r.Stage, r.Decision, r.GraphID, r.GraphVersion, boolToInt(r.Finalized), r.CreatedAtUnix)
	if err != nil {
		return fmt.Errorf("upsert run index row: %w", err)
	}
	return nil
}

func (m *MySQLIndex) ByTask(ctx context.Context, projectSlug, taskSlug string) ([]RunSummary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT run_id, project_slug, task_slug, stage, decision, graph_id, graph_version, finalized, created_at_unix
		FROM run_index WHERE project_slug = ? AND task_slug = ? ORDER BY run_id
	`, projectSlug, taskSlug)
	if err != nil {
		return nil, fmt.Errorf("query run index by task: %w", err)
	}
	defer rows.Close()
	return scanRunSummaries(rows)
}

func (m *MySQLIndex) ByDecision(ctx context.Context, decision string, limit int) ([]RunSummary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT run_id, project_slug, task_slug, stage, decision, graph_id, graph_version, finalized, created_at_unix
		FROM run_index WHERE decision = ? ORDER BY created_at_unix DESC LIMIT ?
	`, decision, limit)
	if err != nil {
		return nil, fmt.Errorf("query run index by decision: %w", err)
	}
	defer rows.Close()
	return scanRunSummaries(rows)
}

func (m *MySQLIndex) Close() error { return m.db.Close() }
