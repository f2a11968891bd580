package graph

import (
	"context"
	"strings"
	"time"
)

// AgentRunner is the external work/plan executor.
// It is a black-box RPC to an agent; the loop never inspects its internals
// beyond the returned string.
type AgentRunner interface {
	RunWork(ctx context.Context, taskID string, provider, model, prompt string) (string, error)
	RunPlan(ctx context.Context, taskID string, provider, model, prompt string) (string, error)
}

const maxOutputSummaryBytes = 8000

// DispatchDeps bundles the collaborators the dispatcher invokes for a node
// transitioned into running this tick.
type DispatchDeps struct {
	Agent      AgentRunner
	GateRunner GateRunner
	Provider   string
	Model      string
	TaskID     string
	TaskText   string // objective text used in work/plan prompts
	ApprovalMode string
	GateCWD    string
}

// DispatchOutcome reports whether a node's dispatch produced forward
// progress, for the loop's stall-detection bookkeeping.
type DispatchOutcome struct {
	NodeID   string
	Progress bool
}

// DispatchRunning invokes the dispatcher for every node
// currently in status running, mutating g in place. Unlike Tick, the
// dispatcher is not pure: it performs I/O (agent calls, gate checks) and
// its results are applied directly to the graph the loop already holds,
// because each node's outcome must be visible to the next node's prompt
// within the same tick.
func DispatchRunning(ctx context.Context, g *Graph, deps DispatchDeps) ([]DispatchOutcome, error) {
	ids := make([]string, 0)
	for id, n := range g.Nodes {
		if n.Status == StatusRunning {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)

	var outcomes []DispatchOutcome
	for _, id := range ids {
		n := g.Nodes[id]
		progress, err := dispatchNode(ctx, g, &n, deps)
		if err != nil {
			return outcomes, err
		}
		stampCompletion(&n)
		g.Nodes[id] = n
		outcomes = append(outcomes, DispatchOutcome{NodeID: id, Progress: progress})
	}
	return outcomes, nil
}

func dispatchNode(ctx context.Context, g *Graph, n *Node, deps DispatchDeps) (bool, error) {
	switch {
	case IsPlanNode(*n):
		return dispatchPlan(ctx, g, n, deps)
	case n.Type == NodeWork:
		return dispatchWork(ctx, n, deps)
	case n.Type == NodeGate:
		return dispatchGate(ctx, n, deps)
	default:
		n.Status = StatusDone
		return true, nil
	}
}

func dispatchWork(ctx context.Context, n *Node, deps DispatchDeps) (bool, error) {
	prompt := buildWorkPrompt(deps.TaskText, *n)
	out, err := deps.Agent.RunWork(ctx, deps.TaskID, deps.Provider, deps.Model, prompt)
	if err != nil {
		return retryOrFail(n, err.Error()), nil
	}
	n.Status = StatusDone
	n.Output = &NodeOutput{Summary: truncate(out, maxOutputSummaryBytes)}
	return true, nil
}

func dispatchPlan(ctx context.Context, g *Graph, n *Node, deps DispatchDeps) (bool, error) {
	locked := lockedNodesForPlan(g, n.ID)
	prompt := buildPlanPrompt(deps.TaskText, g, n.ID, locked)

	out, err := deps.Agent.RunPlan(ctx, deps.TaskID, deps.Provider, deps.Model, prompt)
	if err != nil {
		return retryOrFail(n, err.Error()), nil
	}

	pg, valid := parseAndValidatePlan(out, deps.TaskText, locked)
	if !valid {
		prompt = augmentPlanPrompt(prompt, pg.reasons)
		out, err = deps.Agent.RunPlan(ctx, deps.TaskID, deps.Provider, deps.Model, prompt)
		if err != nil {
			return retryOrFail(n, err.Error()), nil
		}
		pg, valid = parseAndValidatePlan(out, deps.TaskText, locked)
		if !valid {
			return retryOrFail(n, "plan validation failed after retry: "+strings.Join(pg.reasons, "; ")), nil
		}
	}

	result := MergePlan(g, n.ID, pg.graph)
	*g = *result.Graph

	var draftIDs, draftSinks []string
	for _, id := range result.IDMap {
		draftIDs = append(draftIDs, id)
	}
	draftSinks = append(draftSinks, g.DoneCriteria.CompletionSinkNodeIDs...)
	sortStrings(draftIDs)

	refreshed := g.Nodes[n.ID]
	refreshed.Status = StatusDone
	refreshed.Output = &NodeOutput{
		Summary:          truncate(out, maxOutputSummaryBytes),
		ProposedGraph:    pg.graph,
		DraftNodeIDs:     draftIDs,
		DraftSinkNodeIDs: draftSinks,
	}
	g.Nodes[n.ID] = refreshed
	*n = refreshed

	if root, ok := g.Nodes["root"]; ok && root.Type == NodeRoot && !root.GraphCreated {
		root.GraphCreated = true
		g.Nodes["root"] = root
	}

	return true, nil
}

type planParseResult struct {
	graph   *PlanGraph
	reasons []string
}

func parseAndValidatePlan(raw, taskText string, locked map[string]Node) (planParseResult, bool) {
	pg := ParsePlanOutput(raw)
	if pg == nil {
		return planParseResult{reasons: []string{"plan output was not valid JSON"}}, false
	}
	v := ValidatePlan(pg, taskText, locked)
	if !v.OK() {
		return planParseResult{graph: pg, reasons: v.Reasons}, false
	}
	return planParseResult{graph: pg}, true
}

func lockedNodesForPlan(g *Graph, planNodeID string) map[string]Node {
	previousDraft := PreviousDraftNodeIDs(g, planNodeID)
	lockedIDs := LockedNodeIDs(g, previousDraft)
	out := make(map[string]Node, len(lockedIDs))
	for id := range lockedIDs {
		out[id] = g.Nodes[id]
	}
	return out
}

func dispatchGate(ctx context.Context, n *Node, deps DispatchDeps) (bool, error) {
	now := time.Now()

	if deps.ApprovalMode == ApprovalAuto && n.GateType == GateApproval {
		n.Status = StatusPassed
		n.VerificationResult = &VerificationResult{Passed: true, VerifiedBy: "auto_approval", VerifiedAt: &now}
		return true, nil
	}

	if n.VerificationStrategy.Type == VerifyHuman {
		n.Status = StatusAwaitingHuman
		n.VerificationResult = &VerificationResult{Passed: false, VerifiedBy: "human", VerifiedAt: &now}
		return true, nil
	}

	if deps.GateRunner == nil {
		n.Status = StatusAwaitingHuman
		n.VerificationResult = &VerificationResult{Passed: false, VerifiedBy: "human", VerifiedAt: &now}
		return true, nil
	}

	out, err := deps.GateRunner.Run(ctx, n.VerificationStrategy.Checks, deps.GateCWD, n.VerifyFailures, nil)
	if err != nil {
		return retryOrFail(n, err.Error()), nil
	}
	n.VerifyFailures = out.VerifyFailures

	verdict := interpretVerdict(out)
	n.Status = verdict.status
	verdict.verified.VerifiedAt = &now
	verdict.verified.VerifiedBy = "auto"
	n.VerificationResult = &verdict.verified
	return true, nil
}

// retryOrFail applies the shared work/plan/gate failure policy:
// increment attempts; if still under maxAttempts, revert
// to pending (to be retried by a future tick); otherwise fail terminally.
func retryOrFail(n *Node, errText string) bool {
	n.Attempts++
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = 2
	}
	if n.Attempts < n.MaxAttempts {
		n.Status = StatusPending
		n.Error = errText
		return false
	}
	n.Status = StatusFailed
	n.Error = errText
	return true
}

// stampCompletion closes out a dispatched node: once it reaches a
// terminal status, stamp completedAt (if absent) and compute
// actualMinutes from startedAt.
func stampCompletion(n *Node) {
	if !IsTerminalStatus(n.Status) {
		return
	}
	now := time.Now()
	if n.CompletedAt == nil {
		n.CompletedAt = &now
	}
	if n.StartedAt != nil {
		minutes := int(n.CompletedAt.Sub(*n.StartedAt).Round(time.Minute) / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		n.ActualMinutes = minutes
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func buildWorkPrompt(objective string, n Node) string {
	var b strings.Builder
	b.WriteString(objective)
	b.WriteString("\n\nTitle: ")
	b.WriteString(n.Title)
	b.WriteString("\nWhere:\n")
	for _, w := range n.Where {
		b.WriteString("- " + w + "\n")
	}
	b.WriteString("Planned Changes:\n")
	for _, w := range n.WhatChanges {
		b.WriteString("- " + w + "\n")
	}
	b.WriteString("Acceptance Criteria:\n")
	for _, w := range n.AcceptanceCriteria {
		b.WriteString("- " + w + "\n")
	}
	b.WriteString("To Dos:\n")
	for _, w := range n.Todos {
		b.WriteString("- " + w + "\n")
	}
	b.WriteString("Validation Expectations:\n")
	for _, w := range n.Verification {
		b.WriteString("- " + w + "\n")
	}
	return b.String()
}

func buildPlanPrompt(objective string, g *Graph, planNodeID string, locked map[string]Node) string {
	var b strings.Builder
	b.WriteString(objective)
	if draft := PreviousDraftNodeIDs(g, planNodeID); len(draft) > 0 {
		b.WriteString("\n\nCurrent plan nodes:\n")
		ids := make([]string, 0, len(draft))
		for id := range draft {
			ids = append(ids, id)
		}
		sortStrings(ids)
		for _, id := range ids {
			n := g.Nodes[id]
			b.WriteString("- " + id + " (" + string(n.Type) + ", " + string(n.Status) + "): " + n.Title + "\n")
		}
	}
	if len(locked) > 0 {
		b.WriteString("\n\nThe following nodes are locked and must not be structurally altered:\n")
		ids := make([]string, 0, len(locked))
		for id := range locked {
			ids = append(ids, id)
		}
		sortStrings(ids)
		for _, id := range ids {
			b.WriteString("- " + id + "\n")
		}
	}
	return b.String()
}

func augmentPlanPrompt(prompt string, reasons []string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nThe previous plan was rejected for these reasons:\n")
	for _, r := range reasons {
		b.WriteString("- " + r + "\n")
	}
	return b.String()
}
