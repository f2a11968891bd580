package graph

import (
	"sort"
	"strconv"
)

// MergeResult is what MergePlan returns: the updated graph plus the id
// mapping from proposed-node id to the id it was actually inserted under.
type MergeResult struct {
	Graph *Graph
	IDMap map[string]string
}

// PreviousDraftNodeIDs collects the previously planned subtree: nodes whose
// generatedByPlanNodeId matches planNodeID, unioned with the topological
// descendants of the anchor excluding the plan node and the anchor itself.
func PreviousDraftNodeIDs(g *Graph, planNodeID string) map[string]bool {
	out := make(map[string]bool)
	for id, n := range g.Nodes {
		if n.GeneratedByPlanNodeID == planNodeID {
			out[id] = true
		}
	}
	for id := range descendantsOf(g, PlanAnchorID) {
		if id == planNodeID || id == PlanAnchorID {
			continue
		}
		out[id] = true
	}
	return out
}

// descendantsOf returns every node reachable by forward edge traversal from
// root, excluding root itself.
func descendantsOf(g *Graph, root string) map[string]bool {
	children := make(map[string][]string)
	for _, e := range g.Edges {
		children[e.From] = append(children[e.From], e.To)
	}
	out := make(map[string]bool)
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if out[c] {
				continue
			}
			out[c] = true
			queue = append(queue, c)
		}
	}
	return out
}

// LockedNodeIDs returns the previous draft nodes whose status is in the
// locked-past set.
func LockedNodeIDs(g *Graph, previousDraft map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for id := range previousDraft {
		n, ok := g.Nodes[id]
		if !ok {
			continue
		}
		if n.Status == StatusDone || n.Status == StatusPassed || n.Status == StatusSkipped {
			out[id] = true
		}
	}
	return out
}

// MergePlan replaces the previously planned subtree with proposed: unlocked
// draft nodes are deleted, locked ids are stripped from the proposal, the
// remainder is merged under collision-renamed ids, edges are rewritten
// through the id map, every inserted node is anchored to plan-approval, and
// the completion sinks are rebuilt. planNodeID is the plan node whose
// output is being merged; proposed is its parsed output (already
// validated).
func MergePlan(g *Graph, planNodeID string, proposed *PlanGraph) MergeResult {
	out := g.Clone()

	previousDraft := PreviousDraftNodeIDs(out, planNodeID)
	locked := LockedNodeIDs(out, previousDraft)

	// Step 1: delete all previous draft nodes not locked; delete edges
	// touching them; strip those ids from remaining deps.
	toDelete := make(map[string]bool)
	for id := range previousDraft {
		if !locked[id] {
			toDelete[id] = true
		}
	}
	for id := range toDelete {
		delete(out.Nodes, id)
	}
	out.Edges = filterEdges(out.Edges, func(e Edge) bool {
		return !toDelete[e.From] && !toDelete[e.To]
	})
	for id, n := range out.Nodes {
		n.Deps = removeAll(n.Deps, toDelete)
		out.Nodes[id] = n
	}

	// Step 2: strip locked ids from the proposed graph.
	proposedNodes := make([]Node, 0, len(proposed.Nodes))
	for _, n := range proposed.Nodes {
		if locked[n.ID] {
			continue
		}
		proposedNodes = append(proposedNodes, n)
	}

	// Step 3: merge remaining proposed nodes with id-collision renaming.
	idMap := make(map[string]string, len(proposedNodes))
	for _, n := range proposedNodes {
		srcID := n.ID
		finalID := resolveCollision(srcID, out.Nodes)
		idMap[srcID] = finalID
		n.ID = finalID
		n.GeneratedByPlanNodeID = planNodeID
		if n.PlanNodeKey == "" {
			n.PlanNodeKey = srcID
		}
		out.Nodes[finalID] = n
	}

	// Step 4: rewrite proposed edges via idMap, normalize, de-duplicate.
	seen := make(map[string]bool)
	var newEdges []Edge
	for _, e := range proposed.Edges {
		from, to := rewriteID(e.From, idMap), rewriteID(e.To, idMap)
		if _, ok := out.Nodes[from]; !ok {
			continue
		}
		if _, ok := out.Nodes[to]; !ok {
			continue
		}
		e.From, e.To = from, to
		if e.Type == "" {
			e.Type = EdgeHard
		}
		if e.Condition == "" {
			e.Condition = OnSuccess
		}
		fp := e.fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		newEdges = append(newEdges, e)
	}
	for _, id := range idMap {
		n := out.Nodes[id]
		n.Deps = rewriteDeps(n.Deps, idMap)
		out.Nodes[id] = n
	}
	out.Edges = append(out.Edges, newEdges...)

	// Step 5: anchor edges + deps for every inserted node.
	insertedIDs := make([]string, 0, len(idMap))
	for _, finalID := range idMap {
		insertedIDs = append(insertedIDs, finalID)
	}
	sort.Strings(insertedIDs)

	if _, hasAnchor := out.Nodes[PlanAnchorID]; hasAnchor {
		for _, id := range insertedIDs {
			fp := Edge{From: PlanAnchorID, To: id, Type: EdgeHard, Condition: OnSuccess}.fingerprint()
			if !seen[fp] {
				seen[fp] = true
				out.Edges = append(out.Edges, Edge{From: PlanAnchorID, To: id, Type: EdgeHard, Condition: OnSuccess})
			}
			n := out.Nodes[id]
			if !containsString(n.Deps, PlanAnchorID) {
				n.Deps = append(n.Deps, PlanAnchorID)
			}
			out.Nodes[id] = n
		}
	}

	// Step 6: recompute sinks among the inserted set and merge into
	// doneCriteria, excluding the anchor and previous-plan ids.
	hasOutgoingWithinInserted := make(map[string]bool)
	insertedSet := make(map[string]bool, len(insertedIDs))
	for _, id := range insertedIDs {
		insertedSet[id] = true
	}
	for _, e := range out.Edges {
		if insertedSet[e.From] && insertedSet[e.To] {
			hasOutgoingWithinInserted[e.From] = true
		}
	}
	var sinks []string
	for _, id := range insertedIDs {
		if !hasOutgoingWithinInserted[id] {
			sinks = append(sinks, id)
		}
	}

	merged := make([]string, 0, len(out.DoneCriteria.CompletionSinkNodeIDs)+len(sinks))
	for _, id := range out.DoneCriteria.CompletionSinkNodeIDs {
		if id == PlanAnchorID || previousDraft[id] {
			continue
		}
		merged = append(merged, id)
	}
	seenSink := make(map[string]bool)
	for _, id := range merged {
		seenSink[id] = true
	}
	for _, id := range sinks {
		if !seenSink[id] {
			merged = append(merged, id)
			seenSink[id] = true
		}
	}
	out.DoneCriteria.CompletionSinkNodeIDs = merged

	return MergeResult{Graph: out, IDMap: idMap}
}

func filterEdges(edges []Edge, keep func(Edge) bool) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func removeAll(deps []string, remove map[string]bool) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if !remove[d] {
			out = append(out, d)
		}
	}
	return out
}

// resolveCollision walks the renaming ladder: base, then draft-<base>,
// then <base>-2, <base>-3, ...
func resolveCollision(base string, existing map[string]Node) string {
	if _, ok := existing[base]; !ok {
		return base
	}
	candidate := "draft-" + base
	if _, ok := existing[candidate]; !ok {
		return candidate
	}
	for i := 2; ; i++ {
		candidate = base + "-" + strconv.Itoa(i)
		if _, ok := existing[candidate]; !ok {
			return candidate
		}
	}
}

func rewriteID(id string, idMap map[string]string) string {
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}

func rewriteDeps(deps []string, idMap map[string]string) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, rewriteID(d, idMap))
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
