package graph

import "strings"

// Normalize canonicalizes g and returns a new graph. g is never mutated in
// place (see Graph.Clone).
//
// Normalize is idempotent: Normalize(Normalize(g)) == Normalize(g),
// because every step below only lowercases already-lowercase
// values, de-duplicates already-deduplicated sets, or drops references that,
// once dropped, stay dropped.
func Normalize(g *Graph) *Graph {
	out := g.Clone()

	if out.Policy.MaxConcurrent < 1 {
		def := DefaultPolicy()
		out.Policy = def
	}
	if out.GraphVersion < 1 {
		out.GraphVersion = 1
	}

	for id, n := range out.Nodes {
		n.ID = id
		n.Type = NodeType(strings.ToLower(strings.TrimSpace(string(n.Type))))
		n.Status = NodeStatus(strings.ToLower(strings.TrimSpace(string(n.Status))))

		// spike folds into work with workType=spike.
		if n.Type == "spike" {
			n.Type = NodeWork
			if n.WorkType == "" {
				n.WorkType = "spike"
			}
		}

		n.GateType = GateType(strings.ToLower(strings.TrimSpace(string(n.GateType))))
		n.VerificationStrategy.Type = VerificationType(strings.ToLower(strings.TrimSpace(string(n.VerificationStrategy.Type))))

		n.Deps = normalizeDeps(id, n.Deps, out.Nodes)
		out.Nodes[id] = n
	}

	out.Edges = normalizeEdges(out.Edges, out.Nodes)
	out.DoneCriteria.CompletionSinkNodeIDs = pruneUnknownIDs(out.DoneCriteria.CompletionSinkNodeIDs, out.Nodes)

	return out
}

// normalizeDeps de-duplicates deps, strips self-references, and drops
// references to unknown nodes.
func normalizeDeps(selfID string, deps []string, nodes map[string]Node) []string {
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == "" || d == selfID || seen[d] {
			continue
		}
		if _, ok := nodes[d]; !ok {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// normalizeEdges lowercases type/condition, defaults them, and drops edges
// whose endpoints do not resolve to known nodes.
func normalizeEdges(edges []Edge, nodes map[string]Node) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if _, ok := nodes[e.From]; !ok {
			continue
		}
		if _, ok := nodes[e.To]; !ok {
			continue
		}
		e.Type = EdgeType(strings.ToLower(strings.TrimSpace(string(e.Type))))
		if e.Type == "" {
			e.Type = EdgeHard
		}
		e.Condition = EdgeCondition(strings.ToLower(strings.TrimSpace(string(e.Condition))))
		if e.Condition == "" {
			e.Condition = OnSuccess
		}
		out = append(out, e)
	}
	return out
}

func pruneUnknownIDs(ids []string, nodes map[string]Node) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
