package graph

import "testing"

func TestCloneIsDeepForNodesAndSlices(t *testing.T) {
	g := &Graph{
		Nodes: map[string]Node{"a": {ID: "a", Deps: []string{"x"}, Where: []string{"file.go"}}},
		Edges: []Edge{{From: "a", To: "a"}},
		DoneCriteria: DoneCriteria{CompletionSinkNodeIDs: []string{"a"}},
	}
	clone := g.Clone()

	clone.Nodes["a"].Deps[0] = "mutated"
	if g.Nodes["a"].Deps[0] != "x" {
		t.Fatal("expected mutating the clone's dep slice to not affect the original")
	}

	clone.Edges[0].To = "mutated"
	if g.Edges[0].To != "a" {
		t.Fatal("expected mutating the clone's edges to not affect the original")
	}

	clone.DoneCriteria.CompletionSinkNodeIDs[0] = "mutated"
	if g.DoneCriteria.CompletionSinkNodeIDs[0] != "a" {
		t.Fatal("expected mutating the clone's sinks to not affect the original")
	}

	delete(clone.Nodes, "a")
	if _, ok := g.Nodes["a"]; !ok {
		t.Fatal("expected deleting from the clone's node map to not affect the original")
	}
}

func TestCloneNilReceiver(t *testing.T) {
	var g *Graph
	if g.Clone() != nil {
		t.Fatal("expected Clone of a nil graph to return nil")
	}
}

func TestDefaultPolicy(t *testing.T) {
	if DefaultPolicy().MaxConcurrent != 1 {
		t.Fatalf("expected default maxConcurrent=1, got %d", DefaultPolicy().MaxConcurrent)
	}
}
