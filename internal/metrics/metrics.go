// Package metrics exposes nanoflow's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coffersTech/nanoflow/internal/engine"
)

// Registry holds every metric nanoflow records. Each Registry owns its own
// prometheus.Registry so tests and multiple servers do not collide.
type Registry struct {
	registry *prometheus.Registry

	TransformsTotal    *prometheus.CounterVec
	TransformDuration  prometheus.Histogram
	RowsIngestedTotal  prometheus.Counter
	RowsExcludedTotal  prometheus.Counter
	GraphNodes         prometheus.Gauge
	GraphEdges         prometheus.Gauge
	SnapshotLoadsTotal *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.TransformsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoflow_transforms_total",
			Help: "Graph builds by result",
		},
		[]string{"result"},
	)
	r.TransformDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nanoflow_transform_duration_seconds",
			Help:    "Time spent turning log rows into a graph",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
	r.RowsIngestedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "nanoflow_rows_ingested_total",
			Help: "Log rows read by graph builds",
		},
	)
	r.RowsExcludedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "nanoflow_rows_excluded_total",
			Help: "Statement rows dropped by an excluded phrase",
		},
	)
	r.GraphNodes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanoflow_graph_nodes",
			Help: "Nodes in the current graph",
		},
	)
	r.GraphEdges = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanoflow_graph_edges",
			Help: "Edges in the current graph",
		},
	)
	r.SnapshotLoadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoflow_snapshot_loads_total",
			Help: "Snapshot imports by result",
		},
		[]string{"result"},
	)
	r.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoflow_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	return r
}

// RecordTransform records a successful build.
func (r *Registry) RecordTransform(stats engine.Stats, duration time.Duration) {
	r.TransformsTotal.WithLabelValues("success").Inc()
	r.TransformDuration.Observe(duration.Seconds())
	r.RowsIngestedTotal.Add(float64(stats.Rows))
	r.RowsExcludedTotal.Add(float64(stats.Excluded))
	r.GraphNodes.Set(float64(stats.Nodes))
	r.GraphEdges.Set(float64(stats.Edges))
}

// RecordTransformFailure records a build that never reached the transform,
// such as one whose input failed to parse.
func (r *Registry) RecordTransformFailure() {
	r.TransformsTotal.WithLabelValues("failure").Inc()
}

// SetGraph updates the current graph gauges.
func (r *Registry) SetGraph(nodes, edges int) {
	r.GraphNodes.Set(float64(nodes))
	r.GraphEdges.Set(float64(edges))
}

func (r *Registry) RecordSnapshotLoad(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.SnapshotLoadsTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RecordHTTPRequest(method, route, status string) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
