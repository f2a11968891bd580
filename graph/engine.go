package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ramarlina/agx-go/graph/emit"
	"github.com/ramarlina/agx-go/graph/store"
)

// ErrCancelled is returned when CancellationWatcher reports a cancellation
// request mid-loop.
var ErrCancelled = errors.New("execution loop cancelled")

// GraphLoader fetches a task's graph when it is not embedded on the Task.
// The default production loader wraps graph/cloud.Load; tests can
// substitute anything.
type GraphLoader interface {
	Load(ctx context.Context, taskID string, retries int) (*Graph, error)
}

// GraphSaver persists the graph to the cloud. The
// default production saver wraps graph/cloud.Save.
type GraphSaver interface {
	Save(ctx context.Context, taskID string, g *Graph) (*Graph, error)
}

// LoopInput bundles every collaborator and parameter the execution loop
// needs for one task.
type LoopInput struct {
	Task     *Task
	Provider string
	Model    string

	// Project and Stage locate the run directory.
	// Project defaults to "default" and Stage to store.StageExecute if
	// unset, matching a single-task, single-stage invocation.
	Project string
	Stage   store.Stage
	Engine  string

	Layout store.Layout

	Loader GraphLoader // nil is only valid when Task.Graph is embedded
	Saver  GraphSaver  // nil disables cloud persistence entirely

	Agent      AgentRunner
	GateRunner GateRunner
	GateCWD    string

	// CancellationWatcher, if non-nil, is polled at each tick boundary.
	// A true return aborts the loop with ErrCancelled.
	CancellationWatcher func() bool

	Emitter     emit.Emitter
	Metrics     *Metrics
	CostTracker *CostTracker

	Config Config

	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// LoopResult is the in-process routine's return value.
type LoopResult struct {
	Code          int
	Decision      store.Decision
	LastRun       store.LastRun
	RunIndexEntry store.RunSummary
}

// engineState is the mutable working state threaded through one Run call.
// Kept as a struct (rather than a long parameter list) purely for
// readability; it is never shared across goroutines.
type engineState struct {
	in          LoopInput
	run         *store.Run
	g           *Graph
	approvalMode string
	startNodeID string
	stalledTicks int
	prevFingerprint string
}

// Run drives in.Task's graph to completion. It creates a run,
// loads and normalizes the graph, resolves approval mode and any
// single-node rerun, then repeatedly ticks the scheduler and dispatches
// running nodes until a terminal decision is reached or the tick cap is
// hit. Fatal errors propagate after the in-flight run is recorded as
// failed.
func Run(ctx context.Context, in LoopInput) (LoopResult, error) {
	if in.Project == "" {
		in.Project = "default"
	}
	if in.Stage == "" {
		in.Stage = store.StageExecute
	}
	if in.Now == nil {
		in.Now = time.Now
	}
	cfg := in.Config
	if cfg.MaxTicks == 0 {
		var err error
		cfg, err = NewConfig()
		if err != nil {
			return LoopResult{}, err
		}
	}
	in.Config = cfg

	taskSlug := in.Task.ID
	lock, err := store.AcquireTaskLock(in.Layout, in.Project, taskSlug, in.Now(), in.Config.LockStaleMs)
	if err != nil {
		return LoopResult{}, err
	}
	defer func() { _ = lock.Release() }()

	runID, err := store.NewRunID(in.Now())
	if err != nil {
		return LoopResult{}, err
	}
	run, err := store.CreateRun(in.Layout, in.Project, taskSlug, runID, in.Stage, in.Engine, in.Model, in.Now())
	if err != nil {
		return LoopResult{}, err
	}

	st := &engineState{in: in, run: run}
	decision, err := st.drive(ctx)
	if err != nil {
		_ = run.WriteArtifact("error.txt", []byte(err.Error()))
		if !run.Finalized() {
			_ = run.FailRun(errorCode(err), err.Error())
		}
		return LoopResult{Code: 1}, err
	}

	code := 0
	if decision.Decision != "done" {
		code = 1
	}
	_ = store.WriteLastRun(in.Layout, in.Project, taskSlug, runID, in.Stage)
	lastRun, _ := store.ReadLastRun(in.Layout, in.Project, taskSlug)
	summary := store.RunSummary{
		RunID: runID, ProjectSlug: in.Project, TaskSlug: taskSlug,
		Stage: string(in.Stage), Decision: decision.Decision,
		GraphID: decision.GraphID, GraphVersion: decision.GraphVersion,
		Finalized: true, CreatedAtUnix: in.Now().Unix(),
	}
	return LoopResult{Code: code, Decision: decision, LastRun: lastRun, RunIndexEntry: summary}, nil
}

func errorCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return "error"
}

// drive runs the loop body once the run has already been created: load,
// normalize, reset a rerun start node, then tick/dispatch/persist until a
// terminal decision.
func (st *engineState) drive(ctx context.Context) (store.Decision, error) {
	in := st.in
	_ = st.run.WritePrompt(taskObjective(in.Task))

	g, err := st.loadGraph(ctx)
	if err != nil {
		return store.Decision{}, err
	}
	g = Normalize(g)
	if err := assertGraphShape(g); err != nil {
		return store.Decision{}, err
	}
	st.g = g

	st.approvalMode = ResolveApprovalMode(in.Task)
	st.startNodeID = resolveActiveStartNodeID(in.Task)
	if st.startNodeID != "" {
		resetStartNode(st.g, st.startNodeID)
	}

	if err := st.persist(ctx); err != nil {
		return store.Decision{}, err
	}

	var allowed map[string]bool
	if st.startNodeID != "" {
		allowed = map[string]bool{st.startNodeID: true}
	}

	for tick := 0; tick < in.Config.MaxTicks; tick++ {
		if in.CancellationWatcher != nil && in.CancellationWatcher() {
			return store.Decision{}, ErrCancelled
		}
		in.Metrics.recordTick()

		result := Tick(st.g, allowed)
		st.g = result.Graph
		in.Metrics.observeGraph(st.g)
		for _, ev := range result.Events {
			st.emit(tick, ev.NodeID, "node_status", map[string]interface{}{
				"from": ev.FromStatus, "to": ev.ToStatus, "reason": ev.Reason,
			})
		}
		if len(result.Events) > 0 {
			if err := st.persist(ctx); err != nil {
				return store.Decision{}, err
			}
		}

		dispatchStart := in.Now()
		outcomes, err := DispatchRunning(ctx, st.g, DispatchDeps{
			Agent: in.Agent, GateRunner: in.GateRunner, Provider: in.Provider,
			Model: in.Model, TaskID: in.Task.ID, TaskText: taskObjective(in.Task),
			ApprovalMode: st.approvalMode, GateCWD: in.GateCWD,
		})
		if err != nil {
			return store.Decision{}, err
		}
		dispatchElapsed := in.Now().Sub(dispatchStart)
		progress := len(result.Events) > 0
		for _, o := range outcomes {
			progress = progress || o.Progress
			outcome := "failed"
			if o.Progress {
				outcome = "progressed"
			} else {
				in.Metrics.recordRetry(st.g.Nodes[o.NodeID].Type)
			}
			in.Metrics.recordDispatch(st.g.Nodes[o.NodeID].Type, outcome, dispatchElapsed)
			meta := map[string]interface{}{
				"progress":   o.Progress,
				"latency_ms": dispatchElapsed.Milliseconds(),
			}
			if call, ok := st.recordCost(o.NodeID); ok {
				meta["model"] = call.Model
				meta["tokens_in"] = call.InputTokens
				meta["tokens_out"] = call.OutputTokens
				meta["cost_usd"] = call.CostUSD
			}
			st.emit(tick, o.NodeID, "node_dispatched", meta)
		}

		if err := st.persist(ctx); err != nil {
			return store.Decision{}, err
		}

		if st.startNodeID != "" {
			n := st.g.Nodes[st.startNodeID]
			if IsTerminalStatus(n.Status) {
				decision := "failed"
				if n.Status == StatusDone || n.Status == StatusPassed || n.Status == StatusSkipped {
					decision = "done"
				}
				return st.finalize(decision, fmt.Sprintf("start node %s reached terminal status %s", st.startNodeID, n.Status), nil, st.startNodeID, string(n.Status))
			}
		}

		fingerprint := StatusFingerprint(st.g)
		if !progress && fingerprint == st.prevFingerprint {
			st.stalledTicks++
			in.Metrics.recordStall()
		} else {
			st.stalledTicks = 0
		}
		st.prevFingerprint = fingerprint

		if !HasIncomplete(st.g) {
			if CompletionDone(st.g) {
				st.g.Status = "done"
				return st.finalize("done", "", nil, "", "")
			}
			st.g.Status = "failed"
			return st.finalize("failed", "one or more completion-sink nodes failed", nil, "", "")
		}

		if awaiting := AwaitingHumanIDs(st.g); len(awaiting) > 0 {
			return st.finalize("blocked", "requires human verification: "+joinIDs(awaiting), awaiting, "", "")
		}

		if st.stalledTicks >= 3 {
			blockers := BlockerIDs(st.g)
			return st.finalize("blocked", "no progress for 3 consecutive ticks, blocked on: "+joinIDs(blockers), blockers, "", "")
		}
	}

	return st.finalize("failed", fmt.Sprintf("exceeded tick cap (%d)", in.Config.MaxTicks), nil, "", "")
}

func (st *engineState) loadGraph(ctx context.Context) (*Graph, error) {
	if st.in.Task.Graph != nil {
		return st.in.Task.Graph, nil
	}
	if st.in.Loader == nil {
		return nil, ErrTaskMissingGraph
	}
	return st.in.Loader.Load(ctx, st.in.Task.ID, st.in.Config.GraphLoadRetries)
}

// persist writes the graph locally then to the cloud, in that order, so
// observers see in-flight transitions before dispatch outcomes land.
func (st *engineState) persist(ctx context.Context) error {
	if err := store.WriteJSONAtomic(st.in.Layout.GraphJSON(st.in.Project, st.in.Task.ID), st.g); err != nil {
		return err
	}
	if st.in.Saver != nil {
		saved, err := st.in.Saver.Save(ctx, st.in.Task.ID, st.g)
		if err != nil {
			return err
		}
		st.g = saved
	}
	// A task-embedded graph is the task's own state: keep it pointing at
	// the latest persisted copy so callers holding the Task see the
	// outcome.
	if st.in.Task.Graph != nil {
		st.in.Task.Graph = st.g
	}
	return nil
}

// recordCost attributes the agent's most recently reported token usage to
// nodeID, if in.Agent opts into TokenUsageReporter, and returns the
// recorded call so the dispatch event can carry it. This is an
// approximation when multiple nodes dispatch within one tick, since the
// reporter only exposes the single most recent call; it never feeds back
// into scheduling.
func (st *engineState) recordCost(nodeID string) (LLMCall, bool) {
	if st.in.CostTracker == nil {
		return LLMCall{}, false
	}
	reporter, ok := st.in.Agent.(TokenUsageReporter)
	if !ok {
		return LLMCall{}, false
	}
	model, inTok, outTok := reporter.LastTokenUsage()
	if model == "" {
		return LLMCall{}, false
	}
	return st.in.CostTracker.RecordCall(nodeID, model, inTok, outTok, st.in.Now()), true
}

func (st *engineState) emit(tick int, nodeID, msg string, meta map[string]interface{}) {
	if st.in.Emitter == nil {
		return
	}
	st.in.Emitter.Emit(emit.Event{RunID: st.run.Dir(), Tick: tick, NodeID: nodeID, Msg: msg, Meta: meta})
}

// finalize writes the run's terminal decision and returns it. blockerIDs, startNodeID, and
// startNodeStatus are only set for the decision kinds that carry them.
func (st *engineState) finalize(decisionKind, explanation string, blockerIDs []string, startNodeID, startNodeStatus string) (store.Decision, error) {
	d := store.Decision{
		Done:          decisionKind == "done",
		Decision:      decisionKind,
		Explanation:   explanation,
		NextPrompt:    nextPrompt(decisionKind, explanation),
		GraphID:       st.g.ID,
		GraphVersion:  st.g.GraphVersion,
		StartNodeID:   startNodeID,
		StartNodeStat: startNodeStatus,
		BlockerIDs:    blockerIDs,
	}
	if st.in.CostTracker != nil {
		if data, err := json.MarshalIndent(st.in.CostTracker.GetCallHistory(), "", "  "); err == nil {
			_ = st.run.WriteArtifact("cost.json", data)
		}
	}
	if err := st.run.FinalizeRun(d); err != nil {
		return store.Decision{}, err
	}
	return d, nil
}

func nextPrompt(decisionKind, explanation string) string {
	switch decisionKind {
	case "done":
		return "The graph completed successfully; no further action is needed."
	case "blocked":
		return "Resolve the blockers (" + explanation + ") then rerun."
	default:
		return "The run failed: " + explanation + ". Inspect the graph and rerun."
	}
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}

func taskObjective(t *Task) string {
	if t.Description != "" {
		return t.Title + "\n\n" + t.Description
	}
	return t.Title
}

// assertGraphShape checks the fatal load-time shape errors. In Go, Nodes
// and Edges are already statically typed as map[string]Node and []Edge, so
// the only runtime-checkable shape failure left is a missing id.
func assertGraphShape(g *Graph) error {
	if g.ID == "" {
		return ErrGraphMissingID
	}
	if g.Nodes == nil {
		return ErrNodesNotObject
	}
	return nil
}

// resolveActiveStartNodeID returns the start node id when the task asks
// for a single-node rerun.
func resolveActiveStartNodeID(t *Task) string {
	return t.StartNodeID
}

// resetStartNode prepares a single-node rerun: if the selected node is a
// work node already in a terminal/awaiting/blocked status, reset it to
// pending and reset every downstream gate reachable by forward traversal
// so approvals re-verify against the new output. The reset only triggers
// for work-type start nodes; a gate start node is left untouched.
func resetStartNode(g *Graph, startNodeID string) {
	n, ok := g.Nodes[startNodeID]
	if !ok || n.Type != NodeWork {
		return
	}
	if !IsTerminalStatus(n.Status) && n.Status != StatusAwaitingHuman && n.Status != StatusBlocked {
		return
	}

	n.Status = StatusPending
	n.Output = nil
	n.CompletedAt = nil
	n.StartedAt = nil
	n.Error = ""
	n.Attempts = 0
	g.Nodes[startNodeID] = n

	for _, id := range forwardDescendants(g, startNodeID) {
		d := g.Nodes[id]
		if d.Type != NodeGate {
			continue
		}
		d.Status = StatusPending
		d.VerificationResult = nil
		d.CompletedAt = nil
		g.Nodes[id] = d
	}
}

// forwardDescendants returns every node reachable from root by following
// edges forward (root -> ... ), excluding root itself.
func forwardDescendants(g *Graph, root string) []string {
	adj := make(map[string][]string, len(g.Edges))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	seen := map[string]bool{root: true}
	queue := []string{root}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}
