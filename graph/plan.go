package graph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PlanAnchorID is the gate every planner-emitted subtree attaches to.
const PlanAnchorID = "plan-approval"

var planTitlePattern = regexp.MustCompile(`(?i)generate.*execution.*plan`)

// IsPlanNode reports whether n is a plan node: its id is "plan" or its title
// matches the planner title pattern.
func IsPlanNode(n Node) bool {
	if n.ID == "plan" {
		return true
	}
	return planTitlePattern.MatchString(n.Title)
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParsePlanOutput parses a planner response into a PlanGraph. It tolerates
// markdown-fenced JSON, normalizes node/gate shapes, and never panics or
// errors out loud: any parse failure returns nil so the caller can retry
// with diagnostics appended to the prompt.
func ParsePlanOutput(raw string) *PlanGraph {
	body := strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil
	}

	var pg PlanGraph
	if err := json.Unmarshal([]byte(body), &pg); err != nil {
		return nil
	}

	for i := range pg.Nodes {
		normalizePlanNode(&pg.Nodes[i])
	}
	return &pg
}

func normalizePlanNode(n *Node) {
	n.Type = NodeType(strings.ToLower(strings.TrimSpace(string(n.Type))))
	if n.Type == "spike" {
		n.Type = NodeWork
		if n.WorkType == "" {
			n.WorkType = "spike"
		}
	}
	if n.Type == "" {
		n.Type = NodeWork
	}
	n.Status = StatusPending

	if n.Where == nil {
		n.Where = []string{}
	}
	if n.WhatChanges == nil {
		n.WhatChanges = []string{}
	}
	if n.AcceptanceCriteria == nil {
		n.AcceptanceCriteria = []string{}
	}
	if n.Todos == nil {
		n.Todos = []string{}
	}
	if n.Verification == nil {
		n.Verification = []string{}
	}
	if n.Deps == nil {
		n.Deps = []string{}
	}

	if n.Type == NodeWork {
		if n.MaxAttempts == 0 {
			n.MaxAttempts = 2
		}
		if n.RetryPolicy.BackoffMs == 0 && n.RetryPolicy.OnExhaust == "" {
			n.RetryPolicy = DefaultRetryPolicy()
		}
	}

	if n.Type == NodeGate {
		n.GateType = GateType(strings.ToLower(strings.TrimSpace(string(n.GateType))))
		if n.GateType == "" {
			n.GateType = GateProgress
		}
		n.VerificationStrategy.Type = VerificationType(strings.ToLower(strings.TrimSpace(string(n.VerificationStrategy.Type))))
		if n.VerificationStrategy.Type == "" {
			if n.GateType == GateHandoff {
				n.VerificationStrategy.Type = VerifyHuman
			} else {
				n.VerificationStrategy.Type = VerifyAuto
			}
		}
		if n.VerificationStrategy.Checks == nil {
			n.VerificationStrategy.Checks = []string{}
		}
	}
}

// ValidationResult carries the reasons a proposed plan graph failed
// validation, capped at maxValidationReasons.
type ValidationResult struct {
	Reasons []string
}

func (v ValidationResult) OK() bool { return len(v.Reasons) == 0 }

const maxValidationReasons = 12

// ValidatePlan checks a proposed plan graph. taskText is the task's
// title/description/content, used for the UI/UX and architecture domain
// heuristics. locked is the set of locked-past node ids already present
// in the live graph, keyed by id, with the live node for structural
// comparison.
func ValidatePlan(pg *PlanGraph, taskText string, locked map[string]Node) ValidationResult {
	var reasons []string
	add := func(format string, args ...interface{}) {
		if len(reasons) >= maxValidationReasons {
			return
		}
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	byID := make(map[string]Node, len(pg.Nodes))
	for _, n := range pg.Nodes {
		byID[n.ID] = n
	}

	hasQualityGate, hasHandoffGate := false, false
	workCount := 0

	for _, n := range pg.Nodes {
		if n.Type == NodeWork {
			workCount++
			if len(n.Where) == 0 {
				add("node %q: where must be non-empty", n.ID)
			}
			if len(n.WhatChanges) == 0 {
				add("node %q: whatChanges must be non-empty", n.ID)
			}
			if len(n.AcceptanceCriteria) == 0 {
				add("node %q: acceptanceCriteria must be non-empty", n.ID)
			}
			if len(n.Todos) == 0 {
				add("node %q: todos must be non-empty", n.ID)
			}
			if len(n.Verification) == 0 {
				add("node %q: checks must be non-empty", n.ID)
			}
		}
		if n.Type == NodeGate {
			if len(n.VerificationStrategy.Checks) == 0 && n.VerificationStrategy.Type == VerifyAuto {
				add("gate %q: checks must be non-empty", n.ID)
			}
			switch n.GateType {
			case GateQuality:
				hasQualityGate = true
			case GateHandoff:
				hasHandoffGate = true
			}
		}
	}

	if !hasQualityGate {
		add("plan must include at least one quality_gate")
	}
	if !hasHandoffGate {
		add("plan must include at least one handoff_gate")
	}

	lower := strings.ToLower(taskText)
	if looksLikeUIUX(lower) {
		if !coversUIAndUX(pg.Nodes) {
			add("UI/UX task must cover both UI and UX states across work nodes")
		}
	}
	if looksLikeArchitecture(lower) {
		if workCount < 5 {
			add("architecture task must include at least 5 work nodes")
		}
		if !coversTouchpoints(pg.Nodes) {
			add("architecture task must touch backend, frontend, and data layers")
		}
	}

	for id, lockedNode := range locked {
		proposed, ok := byID[id]
		if !ok {
			continue
		}
		if !canonicalEqual(lockedNode, proposed) {
			add("node %q collides with a locked node and is not structurally identical", id)
		}
	}

	return ValidationResult{Reasons: reasons}
}

func looksLikeUIUX(lowerText string) bool {
	return strings.Contains(lowerText, "ui/ux") || strings.Contains(lowerText, "ui ") ||
		strings.Contains(lowerText, "ux ") || strings.Contains(lowerText, "frontend design")
}

func coversUIAndUX(nodes []Node) bool {
	ui, ux := false, false
	for _, n := range nodes {
		joined := strings.ToLower(strings.Join(append(append([]string{n.Title, n.Description}, n.Where...), n.WhatChanges...), " "))
		if strings.Contains(joined, "ui") {
			ui = true
		}
		if strings.Contains(joined, "ux") {
			ux = true
		}
	}
	return ui && ux
}

func looksLikeArchitecture(lowerText string) bool {
	return strings.Contains(lowerText, "architecture") || strings.Contains(lowerText, "redesign") ||
		strings.Contains(lowerText, "migrat")
}

func coversTouchpoints(nodes []Node) bool {
	backend, frontend, data := false, false, false
	for _, n := range nodes {
		joined := strings.ToLower(strings.Join(append([]string{n.Title, n.Description, n.WorkType}, n.Where...), " "))
		if strings.Contains(joined, "backend") || strings.Contains(joined, "api") || strings.Contains(joined, "service") {
			backend = true
		}
		if strings.Contains(joined, "frontend") || strings.Contains(joined, "ui") || strings.Contains(joined, "client") {
			frontend = true
		}
		if strings.Contains(joined, "data") || strings.Contains(joined, "schema") || strings.Contains(joined, "migration") || strings.Contains(joined, "database") {
			data = true
		}
	}
	return backend && frontend && data
}

// canonicalEqual compares two nodes structurally: it strips the approval
// anchor from deps, counter fields (attempts), and transient run fields
// (startedAt, completedAt, status), then compares the rest.
func canonicalEqual(a, b Node) bool {
	return canonicalize(a) == canonicalize(b)
}

func canonicalize(n Node) string {
	deps := make([]string, 0, len(n.Deps))
	for _, d := range n.Deps {
		if d != PlanAnchorID {
			deps = append(deps, d)
		}
	}
	sort.Strings(deps)

	c := n
	c.Deps = deps
	c.Attempts = 0
	c.StartedAt = nil
	c.CompletedAt = nil
	c.Status = ""
	c.ActualMinutes = 0

	b, _ := json.Marshal(c)
	return string(b)
}
