package graph

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegistersWithGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected metrics registered on the given registry")
	}
	m.recordTick()
	m.recordStall()
	m.recordRetry(NodeWork)
	m.recordDispatch(NodeWork, "done", 10*time.Millisecond)
	m.observeGraph(&Graph{Nodes: map[string]Node{
		"a": {Status: StatusRunning, Type: NodeWork},
		"b": {Status: StatusPending},
	}})
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.observeGraph(&Graph{Nodes: map[string]Node{"a": {Status: StatusRunning, Type: NodeWork}}})
	m.recordDispatch(NodeWork, "done", time.Millisecond)
	m.recordRetry(NodeWork)
	m.recordStall()
	m.recordTick()
}
