// Package metrics exposes Prometheus collectors fed by engine and runner
// lifecycle hooks.
package metrics

import (
	"context"
	"net/http"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors.
type Metrics struct {
	registry *prometheus.Registry

	nodeVisits         *prometheus.CounterVec
	nodeDuration       *prometheus.HistogramVec
	toolDuration       *prometheus.HistogramVec
	batchSize          prometheus.Histogram
	cacheEntries       prometheus.Gauge
	checkpointFailures *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errand_node_visits_total",
			Help: "Total number of node visits.",
		}, []string{"node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "errand_node_duration_seconds",
			Help:    "Time spent inside a node transform.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "errand_tool_duration_seconds",
			Help:    "Duration of tool executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool", "status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "errand_batch_size",
			Help:    "Number of steps run concurrently per batch.",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "errand_graph_cache_entries",
			Help: "Compiled machines held by the graph cache.",
		}),
		checkpointFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errand_checkpoint_failures_total",
			Help: "Checkpoint operations that failed.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.nodeVisits, m.nodeDuration, m.toolDuration,
		m.batchSize, m.cacheEntries, m.checkpointFailures,
	)
	return m
}

// Hooks records node and tool events.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.Node.String()).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.Node.String()).Observe(e.Duration.Seconds())
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			status := "ok"
			if e.IsError {
				status = "error"
			}
			m.toolDuration.WithLabelValues(e.ToolName, status).Observe(e.Duration.Seconds())
		},
	}
}

// ObserveBatch records the size of a concurrent batch.
func (m *Metrics) ObserveBatch(size int) {
	m.batchSize.Observe(float64(size))
}

// SetCacheEntries records the graph cache size.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// CheckpointFailed counts a failed checkpoint operation ("save", "load").
func (m *Metrics) CheckpointFailed(op string) {
	m.checkpointFailures.WithLabelValues(op).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
