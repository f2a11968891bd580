// Package cloud implements the execution-graph runtime's cloud persistence
// and reconciliation layer: a bounded-retry GET and a two-payload-shape
// PATCH, both built over a generic Request transport.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ramarlina/agx-go/graph"
)

// Request is the external transport the core calls against. The core never
// constructs an *http.Client directly: it is handed one RPC-shaped
// function and is agnostic to what carries it (HTTP, gRPC, an in-process
// fake for tests).
type Request interface {
	Do(ctx context.Context, method, endpoint string, payload interface{}) (map[string]interface{}, error)
}

// GraphEndpoint builds the one graph endpoint the runtime ever calls
// (GET and PATCH both go here).
func GraphEndpoint(taskID string) string {
	return fmt.Sprintf("/api/tasks/%s/graph", taskID)
}

const (
	loadBackoffBase = 250 * time.Millisecond
	loadBackoffCap  = 2000 * time.Millisecond
)

// backoff is a package variable so tests can substitute a no-op sleep.
var backoff = func(d time.Duration) { time.Sleep(d) }

// Load GETs the graph with up to retries attempts, exponential backoff
// capped at 2s (base 250ms, power-of-two, no jitter). On final failure it
// returns a diagnostic naming the endpoint and attempt count.
func Load(ctx context.Context, req Request, taskID string, retries int) (*graph.Graph, error) {
	endpoint := GraphEndpoint(taskID)
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		resp, err := req.Do(ctx, "GET", endpoint, nil)
		if err == nil {
			g, perr := extractGraph(resp)
			if perr != nil {
				return nil, perr
			}
			return g, nil
		}
		lastErr = err
		if attempt < retries {
			backoff(computeLoadBackoff(attempt - 1))
		}
	}
	return nil, fmt.Errorf("Failed to load graph for task %s via GET %s after %d attempt(s): %w", taskID, endpoint, retries, lastErr)
}

func computeLoadBackoff(attempt int) time.Duration {
	delay := loadBackoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= loadBackoffCap {
			return loadBackoffCap
		}
	}
	if delay > loadBackoffCap {
		return loadBackoffCap
	}
	return delay
}

// extractGraph pattern-matches a GET response for the graph payload under
// any of graph, execution_graph, executionGraph, or the root itself.
func extractGraph(resp map[string]interface{}) (*graph.Graph, error) {
	for _, key := range []string{"graph", "execution_graph", "executionGraph"} {
		if v, ok := resp[key]; ok {
			return decodeGraph(v)
		}
	}
	return decodeGraph(resp)
}

func decodeGraph(v interface{}) (*graph.Graph, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Save PATCHes the graph with two payload shapes tried in order, the
// first to succeed wins. On success the response is normalized
// as the new canonical graph and merge-preserve applies locally
// authoritative fields the server may have omitted. On total failure
// (both shapes failed) it returns an error.
func Save(ctx context.Context, req Request, taskID string, g *graph.Graph) (*graph.Graph, error) {
	endpoint := GraphEndpoint(taskID)
	flat := flatPayload(g)

	resp, err := req.Do(ctx, "PATCH", endpoint, flat)
	if err != nil {
		wrapped := map[string]interface{}{"graph": flat, "ifMatchGraphVersion": g.GraphVersion}
		resp, err = req.Do(ctx, "PATCH", endpoint, wrapped)
		if err != nil {
			return nil, fmt.Errorf("failed to persist graph for task %s via PATCH %s: %w", taskID, endpoint, err)
		}
	}

	serverGraph, err := extractGraph(resp)
	if err != nil {
		return nil, err
	}
	return mergePreserve(g, graph.Normalize(serverGraph)), nil
}

func flatPayload(g *graph.Graph) map[string]interface{} {
	return map[string]interface{}{
		"graphId":             g.ID,
		"mode":                g.Mode,
		"nodes":               g.Nodes,
		"edges":               g.Edges,
		"policy":              g.Policy,
		"doneCriteria":        g.DoneCriteria,
		"ifMatchGraphVersion": g.GraphVersion,
	}
}

// mergePreserve applies the merge-preserve rule: status, startedAt,
// completedAt, timedOutAt, and runtimeEvents fall back to the prior local
// value when the server's response omits them. graphVersion always comes
// from the server. A server-set explicit null is indistinguishable from an
// absent field once decoded into Go zero values, so both fall back to the
// local value; Graph's Status/RuntimeEvents fields are not pointers, and
// this is the closest a non-raw-JSON representation can get to "field
// absent".
func mergePreserve(local, server *graph.Graph) *graph.Graph {
	out := *server
	if out.Status == "" {
		out.Status = local.Status
	}
	if out.StartedAt == nil {
		out.StartedAt = local.StartedAt
	}
	if out.CompletedAt == nil {
		out.CompletedAt = local.CompletedAt
	}
	if out.TimedOutAt == nil {
		out.TimedOutAt = local.TimedOutAt
	}
	if len(out.RuntimeEvents) == 0 {
		out.RuntimeEvents = local.RuntimeEvents
	}
	return &out
}
