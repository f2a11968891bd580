package graph

import "strings"

// Task is the unit of work the execution loop drives.
type Task struct {
	ID          string
	Title       string
	Description string
	Content     string
	Graph       *Graph
	StartNodeID string

	// ApprovalMode, when set, is consulted after AutoApprove and before
	// Approval and the frontmatter. Empty means "not set on the task struct
	// directly"; ResolveApprovalMode falls through to frontmatter.
	ApprovalMode string
	Approval     string
	AutoApprove  *bool

	Frontmatter map[string]string
}

// ParseFrontmatter extracts a leading "---\nkey: value\n---\n" block from
// content as additional task attributes. Returns an empty map if content
// has no frontmatter fence.
func ParseFrontmatter(content string) map[string]string {
	out := map[string]string{}
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return out
	}
	rest := strings.TrimPrefix(content, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return out
	}
	block := rest[:end]
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}

// ApprovalAuto and ApprovalManual are the two normalized approval modes.
const (
	ApprovalAuto   = "auto"
	ApprovalManual = "manual"
)

// ResolveApprovalMode resolves the task's approval mode from, in order:
// the auto_approve boolean, task.approval_mode | task.approvalMode |
// task.approval, then frontmatter.approval_mode | frontmatter.approval,
// normalizing synonyms and defaulting to manual.
func ResolveApprovalMode(t *Task) string {
	if t.AutoApprove != nil {
		if *t.AutoApprove {
			return ApprovalAuto
		}
		return ApprovalManual
	}
	if mode := normalizeApprovalValue(t.ApprovalMode); mode != "" {
		return mode
	}
	if mode := normalizeApprovalValue(t.Approval); mode != "" {
		return mode
	}
	fm := t.Frontmatter
	if fm == nil {
		fm = ParseFrontmatter(t.Content)
	}
	if mode := normalizeApprovalValue(fm["approval_mode"]); mode != "" {
		return mode
	}
	if mode := normalizeApprovalValue(fm["approval"]); mode != "" {
		return mode
	}
	if v, ok := fm["auto_approve"]; ok {
		if normalizeApprovalValue(v) == ApprovalAuto || strings.EqualFold(v, "true") {
			return ApprovalAuto
		}
	}
	return ApprovalManual
}

func normalizeApprovalValue(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "auto", "auto_approve", "true", "yes":
		return ApprovalAuto
	case "manual", "false", "no":
		return ApprovalManual
	default:
		return ""
	}
}
