package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics wraps the Prometheus gauges/counters/histogram the execution loop
// updates at tick and dispatch boundaries. All metrics are namespaced
// "agx_graph_". A nil *Metrics is valid and every method is a no-op on it,
// so callers that don't want metrics can leave LoopInput.Metrics nil.
type Metrics struct {
	runningWork     prometheus.Gauge
	pendingNodes    prometheus.Gauge
	dispatchLatency *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	stalls          prometheus.Counter
	ticks           prometheus.Counter
}

// NewMetrics registers the loop's metrics with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// *prometheus.Registry for test isolation).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		runningWork: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agx_graph",
			Name:      "running_work_nodes",
			Help:      "Work nodes currently in status running for the active task.",
		}),
		pendingNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agx_graph",
			Name:      "pending_nodes",
			Help:      "Nodes currently in status pending for the active task.",
		}),
		dispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agx_graph",
			Name:      "dispatch_latency_ms",
			Help:      "Per-node dispatch duration in milliseconds.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000},
		}, []string{"node_type", "outcome"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agx_graph",
			Name:      "retries_total",
			Help:      "Node dispatch retries (attempts < maxAttempts revert to pending).",
		}, []string{"node_type"}),
		stalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agx_graph",
			Name:      "stalls_total",
			Help:      "Times the loop observed an unchanged status fingerprint with no progress.",
		}),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agx_graph",
			Name:      "ticks_total",
			Help:      "Scheduler ticks executed across all runs.",
		}),
	}
}

func (m *Metrics) observeGraph(g *Graph) {
	if m == nil {
		return
	}
	var running, pending int
	for _, n := range g.Nodes {
		switch n.Status {
		case StatusRunning:
			if n.Type == NodeWork {
				running++
			}
		case StatusPending:
			pending++
		}
	}
	m.runningWork.Set(float64(running))
	m.pendingNodes.Set(float64(pending))
}

func (m *Metrics) recordDispatch(nodeType NodeType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.WithLabelValues(string(nodeType), outcome).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) recordRetry(nodeType NodeType) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(nodeType)).Inc()
}

func (m *Metrics) recordStall() {
	if m == nil {
		return
	}
	m.stalls.Inc()
}

func (m *Metrics) recordTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}
