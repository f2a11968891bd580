package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Stage is the closed set of run stages.
type Stage string

const (
	StagePlan    Stage = "plan"
	StageExecute Stage = "execute"
	StageVerify  Stage = "verify"
	StageResume  Stage = "resume"
)

var validStages = map[Stage]bool{StagePlan: true, StageExecute: true, StageVerify: true, StageResume: true}

// ValidStage reports whether s is one of the closed set of stages.
func ValidStage(s Stage) bool { return validStages[s] }

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a well-formed kebab-case slug: matches
// [a-z0-9]+(-[a-z0-9]+)*, at most 128 characters, and contains neither ".."
// nor a path separator.
func ValidSlug(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	if strings.Contains(s, "..") || strings.ContainsAny(s, "/\\") {
		return false
	}
	return slugPattern.MatchString(s)
}

// NewRunID generates a sortable run id: YYYYMMDD-HHMMSS-<hex8>. now is
// injected for deterministic tests.
func NewRunID(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(buf)), nil
}

var runIDPattern = regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{4}([0-9a-f]{4})?$`)

// ValidRunID reports whether id matches the closed run-id format.
func ValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// Layout computes paths under root for a given project/task/run/stage.
type Layout struct {
	Root string
}

// NewLayout builds a Layout rooted at root (normally Config.Home).
func NewLayout(root string) Layout { return Layout{Root: root} }

// ProjectDir is <root>/projects/<project>.
func (l Layout) ProjectDir(project string) string {
	return filepath.Join(l.Root, "projects", project)
}

// TaskDir is <root>/projects/<project>/<task>.
func (l Layout) TaskDir(project, task string) string {
	return filepath.Join(l.ProjectDir(project), task)
}

// RunDir is <root>/projects/<project>/<task>/<run_id>/<stage>.
func (l Layout) RunDir(project, task, runID string, stage Stage) string {
	return filepath.Join(l.TaskDir(project, task), runID, string(stage))
}

// LegacyRunDir is the older <task>/<stage>/<run_id> layout, accepted for
// discovery and GC of runs created before the current layout.
func (l Layout) LegacyRunDir(project, task string, stage Stage, runID string) string {
	return filepath.Join(l.TaskDir(project, task), string(stage), runID)
}

func (l Layout) TaskJSON(project, task string) string       { return filepath.Join(l.TaskDir(project, task), "task.json") }
func (l Layout) WorkingSetMD(project, task string) string   { return filepath.Join(l.TaskDir(project, task), "working_set.md") }
func (l Layout) ApprovalsJSON(project, task string) string  { return filepath.Join(l.TaskDir(project, task), "approvals.json") }
func (l Layout) LastRunJSON(project, task string) string    { return filepath.Join(l.TaskDir(project, task), "last_run.json") }
func (l Layout) GraphJSON(project, task string) string      { return filepath.Join(l.TaskDir(project, task), "graph.json") }
func (l Layout) LockFile(project, task string) string       { return filepath.Join(l.TaskDir(project, task), ".lock") }
func (l Layout) IndexJSON(project string) string            { return filepath.Join(l.ProjectDir(project), "index.json") }

func (l Layout) MetaJSON(runDir string) string     { return filepath.Join(runDir, "meta.json") }
func (l Layout) PromptMD(runDir string) string     { return filepath.Join(runDir, "prompt.md") }
func (l Layout) OutputMD(runDir string) string      { return filepath.Join(runDir, "output.md") }
func (l Layout) DecisionJSON(runDir string) string { return filepath.Join(runDir, "decision.json") }
func (l Layout) EventsNDJSON(runDir string) string { return filepath.Join(runDir, "events.ndjson") }
func (l Layout) ArtifactsDir(runDir string) string { return filepath.Join(runDir, "artifacts") }
func (l Layout) Artifact(runDir, name string) string {
	return filepath.Join(l.ArtifactsDir(runDir), name)
}
