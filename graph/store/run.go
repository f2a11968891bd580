package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Meta is the run's meta.json stub.
type Meta struct {
	RunID       string     `json:"run_id"`
	ProjectSlug string     `json:"project_slug"`
	TaskSlug    string     `json:"task_slug"`
	Stage       Stage      `json:"stage"`
	Engine      string     `json:"engine"`
	Model       string     `json:"model,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	GitSHA      string     `json:"git_sha,omitempty"`
	PromptBytes int        `json:"prompt_bytes"`
	OutputBytes int        `json:"output_bytes"`
	Finalized   bool       `json:"finalized"`
}

// Decision is the run's terminal outcome, written last to decision.json.
type Decision struct {
	Done          bool     `json:"done"`
	Decision      string   `json:"decision"` // done|blocked|failed|crashed
	Explanation   string   `json:"explanation,omitempty"`
	FinalResult   string   `json:"final_result,omitempty"`
	NextPrompt    string   `json:"next_prompt,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	GraphID       string   `json:"graph_id,omitempty"`
	GraphVersion  int      `json:"graph_version,omitempty"`
	StartNodeID   string   `json:"start_node_id,omitempty"`
	StartNodeStat string   `json:"start_node_status,omitempty"`
	BlockerIDs    []string `json:"blocker_ids,omitempty"`
	ErrorCode     string   `json:"error_code,omitempty"`
}

// Run is a handle to one created run directory.
type Run struct {
	layout Layout
	dir    string
	meta   Meta
}

// CreateRun materializes the run directory, writes meta.json, and appends
// RUN_STARTED. now and runID are supplied by the caller so tests are
// deterministic.
func CreateRun(layout Layout, project, task, runID string, stage Stage, engine, model string, now time.Time) (*Run, error) {
	dir := layout.RunDir(project, task, runID, stage)
	if err := MkdirAll(layout.ArtifactsDir(dir)); err != nil {
		return nil, err
	}
	meta := Meta{
		RunID:       runID,
		ProjectSlug: project,
		TaskSlug:    task,
		Stage:       stage,
		Engine:      engine,
		Model:       model,
		CreatedAt:   now,
	}
	if err := WriteJSONAtomic(layout.MetaJSON(dir), meta); err != nil {
		return nil, err
	}
	r := &Run{layout: layout, dir: dir, meta: meta}
	if err := r.appendEvent(NewEvent(EventRunStarted, map[string]interface{}{"run_id": runID, "stage": string(stage)})); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the run's directory.
func (r *Run) Dir() string { return r.dir }

// Finalized reports whether FinalizeRun or FailRun has already completed
// for this run.
func (r *Run) Finalized() bool { return r.meta.Finalized }

func (r *Run) appendEvent(obj map[string]interface{}) error {
	return AppendEvent(r.layout.EventsNDJSON(r.dir), obj)
}

// WritePrompt writes prompt.md and updates meta's prompt_bytes. It refuses
// to write to a finalized run.
func (r *Run) WritePrompt(prompt string) error {
	if r.meta.Finalized {
		return fmt.Errorf("run %s is finalized: cannot write prompt", r.meta.RunID)
	}
	if err := WriteFileAtomic(r.layout.PromptMD(r.dir), []byte(prompt)); err != nil {
		return err
	}
	r.meta.PromptBytes = len(prompt)
	return WriteJSONAtomic(r.layout.MetaJSON(r.dir), r.meta)
}

// WriteOutput writes output.md and updates meta's output_bytes.
func (r *Run) WriteOutput(output string) error {
	if r.meta.Finalized {
		return fmt.Errorf("run %s is finalized: cannot write output", r.meta.RunID)
	}
	if err := WriteFileAtomic(r.layout.OutputMD(r.dir), []byte(output)); err != nil {
		return err
	}
	r.meta.OutputBytes = len(output)
	return WriteJSONAtomic(r.layout.MetaJSON(r.dir), r.meta)
}

// WriteArtifact writes name under the run's artifacts/ directory.
func (r *Run) WriteArtifact(name string, data []byte) error {
	return WriteFileAtomic(r.layout.Artifact(r.dir, name), data)
}

// FinalizeRun appends RUN_FINISHED then writes decision.json last; that
// order is the crash-safety contract. It is an error to finalize twice.
func (r *Run) FinalizeRun(decision Decision) error {
	if r.meta.Finalized {
		return fmt.Errorf("run %s already finalized", r.meta.RunID)
	}
	if err := r.appendEvent(NewEvent(EventRunFinished, map[string]interface{}{"decision": decision.Decision})); err != nil {
		return err
	}
	if err := WriteJSONAtomic(r.layout.DecisionJSON(r.dir), decision); err != nil {
		return err
	}
	r.meta.Finalized = true
	return WriteJSONAtomic(r.layout.MetaJSON(r.dir), r.meta)
}

// FailRun writes a synthetic status=failed decision carrying errorCode.
func (r *Run) FailRun(errorCode, explanation string) error {
	if r.meta.Finalized {
		return nil
	}
	if err := r.appendEvent(NewEvent(EventRunFailed, map[string]interface{}{"error_code": errorCode})); err != nil {
		return err
	}
	return r.FinalizeRun(Decision{
		Done:        false,
		Decision:    "failed",
		Explanation: explanation,
		ErrorCode:   errorCode,
	})
}

// FindIncompleteRuns lists run directories under taskDir that have
// meta.json but no decision.json. It walks both the current
// <run_id>/<stage> layout and the legacy <stage>/<run_id> layout.
func FindIncompleteRuns(layout Layout, project, task string) ([]string, error) {
	taskDir := layout.TaskDir(project, task)
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if ValidRunID(name) {
			stageEntries, err := os.ReadDir(filepath.Join(taskDir, name))
			if err != nil {
				continue
			}
			for _, se := range stageEntries {
				if !se.IsDir() {
					continue
				}
				dir := filepath.Join(taskDir, name, se.Name())
				if incompleteRunDir(layout, dir) {
					out = append(out, dir)
				}
			}
			continue
		}
		if ValidStage(Stage(name)) {
			runEntries, err := os.ReadDir(filepath.Join(taskDir, name))
			if err != nil {
				continue
			}
			for _, re := range runEntries {
				if !re.IsDir() {
					continue
				}
				dir := filepath.Join(taskDir, name, re.Name())
				if incompleteRunDir(layout, dir) {
					out = append(out, dir)
				}
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func incompleteRunDir(layout Layout, dir string) bool {
	return Exists(layout.MetaJSON(dir)) && !Exists(layout.DecisionJSON(dir))
}

// CreateRecoveryRun closes the incomplete run with a crashed decision and
// opens a new resume-stage run emitting RECOVERY_DETECTED.
func CreateRecoveryRun(layout Layout, incompleteDir, project, task, newRunID, engine string, now time.Time) (*Run, error) {
	var meta Meta
	if ok, err := ReadJSONSafe(layout.MetaJSON(incompleteDir), &meta); err != nil {
		return nil, err
	} else if ok {
		if err := AppendEvent(layout.EventsNDJSON(incompleteDir), NewEvent(EventRunFailed, map[string]interface{}{"error_code": "crashed"})); err != nil {
			return nil, err
		}
		if err := WriteJSONAtomic(layout.DecisionJSON(incompleteDir), Decision{Done: false, Decision: "crashed", ErrorCode: "crashed"}); err != nil {
			return nil, err
		}
	}

	r, err := CreateRun(layout, project, task, newRunID, StageResume, engine, "", now)
	if err != nil {
		return nil, err
	}
	if err := r.appendEvent(NewEvent(EventRecoveryDetected, map[string]interface{}{"recovered_from": incompleteDir})); err != nil {
		return nil, err
	}
	return r, nil
}

// GCRuns keeps the newest N runs per stage unless taskStatus is blocked
// or failed, in which case every run is preserved. runDirs must already be sorted oldest-first (run ids sort
// lexicographically by time); it returns the directories to delete.
func GCRuns(runDirs []string, stageOf func(string) Stage, keepN int, taskStatus string) []string {
	if taskStatus == "blocked" || taskStatus == "failed" {
		return nil
	}
	byStage := make(map[Stage][]string)
	for _, d := range runDirs {
		s := stageOf(d)
		byStage[s] = append(byStage[s], d)
	}
	var toDelete []string
	for _, dirs := range byStage {
		sort.Strings(dirs)
		if len(dirs) <= keepN {
			continue
		}
		toDelete = append(toDelete, dirs[:len(dirs)-keepN]...)
	}
	sort.Strings(toDelete)
	return toDelete
}
