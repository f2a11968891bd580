package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TaskState is task.json: user_request/task_slug/created_at are
// immutable once written; the rest merge-updates.
type TaskState struct {
	UserRequest string                 `json:"user_request"`
	TaskSlug    string                 `json:"task_slug"`
	CreatedAt   time.Time              `json:"created_at"`
	Status      string                 `json:"status,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// ReadTaskState reads task.json, returning (false, nil, nil) if absent.
func ReadTaskState(layout Layout, project, task string) (bool, TaskState, error) {
	var ts TaskState
	ok, err := ReadJSONSafe(layout.TaskJSON(project, task), &ts)
	return ok, ts, err
}

// WriteTaskState merge-updates task.json: immutable fields are preserved
// from the existing file if present.
func WriteTaskState(layout Layout, project, task string, update TaskState) error {
	if ok, existing, err := ReadTaskState(layout, project, task); err != nil {
		return err
	} else if ok {
		update.UserRequest = existing.UserRequest
		update.TaskSlug = existing.TaskSlug
		update.CreatedAt = existing.CreatedAt
	}
	return WriteJSONAtomic(layout.TaskJSON(project, task), update)
}

// WorkingSetMaxChars is the hard character cap on working_set.md.
const WorkingSetMaxChars = 32000

const truncationMarker = "\n\n[...truncated...]\n"

// WriteWorkingSet writes content to working_set.md, truncating with a
// marker if it exceeds WorkingSetMaxChars. summarize, if non-nil, is tried
// first.
func WriteWorkingSet(layout Layout, project, task, content string, summarize func(string) (string, error)) error {
	if len(content) > WorkingSetMaxChars && summarize != nil {
		summarized, err := summarize(content)
		if err != nil {
			return err
		}
		content = summarized
	}
	if len(content) > WorkingSetMaxChars {
		cut := WorkingSetMaxChars - len(truncationMarker)
		if cut < 0 {
			cut = 0
		}
		content = content[:cut] + truncationMarker
	}
	if err := MkdirAll(layout.TaskDir(project, task)); err != nil {
		return err
	}
	return WriteFileAtomic(layout.WorkingSetMD(project, task), []byte(content))
}

// ApprovalStatus is the closed set of approval states in approvals.json.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is one entry in approvals.json.
type Approval struct {
	ID        string         `json:"id"`
	NodeID    string         `json:"node_id"`
	Status    ApprovalStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Approvals is the full approvals.json document.
type Approvals struct {
	Items []Approval `json:"items"`
}

func newApprovalID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "appr_" + hex.EncodeToString(buf), nil
}

// ReadApprovals reads approvals.json, returning an empty document if
// absent.
func ReadApprovals(layout Layout, project, task string) (Approvals, error) {
	var a Approvals
	if _, err := ReadJSONSafe(layout.ApprovalsJSON(project, task), &a); err != nil {
		return Approvals{}, err
	}
	return a, nil
}

// AddApproval appends a new pending approval for nodeID and persists it.
func AddApproval(layout Layout, project, task, nodeID string, now time.Time) (Approval, error) {
	id, err := newApprovalID()
	if err != nil {
		return Approval{}, err
	}
	a, err := ReadApprovals(layout, project, task)
	if err != nil {
		return Approval{}, err
	}
	entry := Approval{ID: id, NodeID: nodeID, Status: ApprovalPending, CreatedAt: now, UpdatedAt: now}
	a.Items = append(a.Items, entry)
	if err := WriteJSONAtomic(layout.ApprovalsJSON(project, task), a); err != nil {
		return Approval{}, err
	}
	return entry, nil
}

// MoveApproval transitions an approval between lists (pending -> approved
// or rejected).
func MoveApproval(layout Layout, project, task, approvalID string, status ApprovalStatus, now time.Time) error {
	a, err := ReadApprovals(layout, project, task)
	if err != nil {
		return err
	}
	found := false
	for i, item := range a.Items {
		if item.ID == approvalID {
			a.Items[i].Status = status
			a.Items[i].UpdatedAt = now
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("approval %s not found", approvalID)
	}
	return WriteJSONAtomic(layout.ApprovalsJSON(project, task), a)
}

// LastRun is last_run.json: the overall last run plus one per stage.
type LastRun struct {
	Overall   string           `json:"overall,omitempty"`
	PerStage  map[Stage]string `json:"per_stage,omitempty"`
}

// ReadLastRun reads last_run.json.
func ReadLastRun(layout Layout, project, task string) (LastRun, error) {
	var lr LastRun
	if _, err := ReadJSONSafe(layout.LastRunJSON(project, task), &lr); err != nil {
		return LastRun{}, err
	}
	if lr.PerStage == nil {
		lr.PerStage = map[Stage]string{}
	}
	return lr, nil
}

// WriteLastRun records runID as the new overall and per-stage last run.
func WriteLastRun(layout Layout, project, task, runID string, stage Stage) error {
	lr, err := ReadLastRun(layout, project, task)
	if err != nil {
		return err
	}
	lr.Overall = runID
	lr.PerStage[stage] = runID
	return WriteJSONAtomic(layout.LastRunJSON(project, task), lr)
}

// ProjectIndexEntry tracks one task's status in a project's index.json.
type ProjectIndexEntry struct {
	TaskSlug  string    `json:"task_slug"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectIndex is index.json: an idempotent upsert keyed by task slug.
type ProjectIndex struct {
	Tasks map[string]ProjectIndexEntry `json:"tasks"`
}

// ReadProjectIndex reads index.json, returning an empty index if absent.
func ReadProjectIndex(layout Layout, project string) (ProjectIndex, error) {
	var idx ProjectIndex
	if _, err := ReadJSONSafe(layout.IndexJSON(project), &idx); err != nil {
		return ProjectIndex{}, err
	}
	if idx.Tasks == nil {
		idx.Tasks = map[string]ProjectIndexEntry{}
	}
	return idx, nil
}

// UpsertProjectIndex idempotently updates a task's status in the project
// index.
func UpsertProjectIndex(layout Layout, project, taskSlug, status string, now time.Time) error {
	idx, err := ReadProjectIndex(layout, project)
	if err != nil {
		return err
	}
	idx.Tasks[taskSlug] = ProjectIndexEntry{TaskSlug: taskSlug, Status: status, UpdatedAt: now}
	return WriteJSONAtomic(layout.IndexJSON(project), idx)
}
