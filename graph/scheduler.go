package graph

import "time"

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// TickResult is what one scheduler tick returns: the (possibly mutated, but
// always a fresh copy, see Tick) graph plus the runtime events it produced.
type TickResult struct {
	Graph  *Graph
	Events []RuntimeEvent
}

// Tick runs one scheduler pass. It is a pure function over a deep copy of
// g: callers get back a new *Graph and the set of events the transition
// produced; g itself is never mutated.
//
// allowedNodeIDs, when non-nil, restricts which pending non-gate nodes may
// be considered runnable, used when a task requests a single-node rerun.
// Gates are exempt from the restriction (a rerun still has to drive its
// downstream approvals) and from maxConcurrent; only work nodes count
// against concurrency.
func Tick(g *Graph, allowedNodeIDs map[string]bool) TickResult {
	out := g.Clone()
	now := nowFunc()

	runningWork := 0
	for _, n := range out.Nodes {
		if n.Type == NodeWork && n.Status == StatusRunning {
			runningWork++
		}
	}

	var runnableGates, runnableWork []string
	ids := make([]string, 0, len(out.Nodes))
	for id := range out.Nodes {
		ids = append(ids, id)
	}
	sortStrings(ids)

	for _, id := range ids {
		n := out.Nodes[id]
		if n.Status != StatusPending {
			continue
		}
		if n.Type != NodeGate && allowedNodeIDs != nil && !allowedNodeIDs[id] {
			continue
		}
		if !CanRun(out, id) {
			continue
		}
		if n.Type == NodeGate {
			runnableGates = append(runnableGates, id)
		} else {
			runnableWork = append(runnableWork, id)
		}
	}

	var events []RuntimeEvent

	for _, id := range runnableGates {
		events = append(events, transitionToRunning(out, id, now))
	}

	slots := out.Policy.MaxConcurrent - runningWork
	for _, id := range runnableWork {
		if slots <= 0 {
			break
		}
		events = append(events, transitionToRunning(out, id, now))
		slots--
	}

	out.RuntimeEvents = append(out.RuntimeEvents, events...)
	return TickResult{Graph: out, Events: events}
}

func transitionToRunning(g *Graph, id string, now time.Time) RuntimeEvent {
	n := g.Nodes[id]
	from := string(n.Status)
	n.Status = StatusRunning
	if n.StartedAt == nil {
		t := now
		n.StartedAt = &t
	}
	g.Nodes[id] = n
	return RuntimeEvent{
		NodeID:     id,
		FromStatus: from,
		ToStatus:   string(StatusRunning),
		Timestamp:  now,
		Reason:     "deps_satisfied",
	}
}
