// Package metrics exposes Prometheus instrumentation for change detection,
// impact analysis, validation and the graph store breaker.
//
// A nil *Collector is valid and records nothing, so services can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/ekaya-inc/ontology-impact/pkg/models"
)

// Namespace prefixes every metric name.
const Namespace = "ontology_impact"

// Collector holds all Prometheus metrics for the engine.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	DiffDuration   prometheus.Histogram
	ChangesTotal   *prometheus.CounterVec
	KindConflicts  prometheus.Counter
	ImpactSize     prometheus.Histogram
	Incomplete     *prometheus.CounterVec
	Validations    *prometheus.CounterVec
	TrackedSaves   *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	EdgesExtracted prometheus.Histogram

	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
}

// NewCollector creates a collector backed by its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DiffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "diff_duration_seconds",
			Help:      "Time spent extracting snapshots and diffing an ontology save",
			Buckets:   prometheus.DefBuckets,
		}),
		ChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "ontology_changes_total",
				Help:      "Ontology element changes detected, by change kind",
			},
			[]string{"kind"},
		),
		KindConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "kind_conflicts_total",
			Help:      "Elements asserted with conflicting types in saved ontology documents",
		}),
		ImpactSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "impact_set_size",
			Help:      "Number of artifacts affected per impact query",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		Incomplete: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "incomplete_results_total",
				Help:      "Operations that hit their deadline and returned partial results",
			},
			[]string{"operation"},
		),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "validated_edges_total",
				Help:      "Dependency edges checked by validation, by outcome",
			},
			[]string{"outcome"},
		),
		TrackedSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "artifact_saves_total",
				Help:      "Artifact saves seen by dependency tracking, by result",
			},
			[]string{"result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"breaker"},
		),
		EdgesExtracted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "artifact_dependencies",
			Help:      "Number of ontology elements referenced per saved artifact",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "mcp_tool_calls_total",
				Help:      "MCP tool calls, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "mcp_tool_duration_seconds",
				Help:      "MCP tool call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.DiffDuration,
		c.ChangesTotal,
		c.KindConflicts,
		c.ImpactSize,
		c.Incomplete,
		c.Validations,
		c.TrackedSaves,
		c.BreakerState,
		c.EdgesExtracted,
		c.ToolCalls,
		c.ToolDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDiff records the outcome of one ontology diff.
func (c *Collector) RecordDiff(summary models.ChangeSummary, conflicts int, duration time.Duration) {
	if c == nil {
		return
	}
	c.DiffDuration.Observe(duration.Seconds())
	c.ChangesTotal.WithLabelValues(string(models.ChangeKindAdded)).Add(float64(summary.Added))
	c.ChangesTotal.WithLabelValues(string(models.ChangeKindDeleted)).Add(float64(summary.Deleted))
	c.ChangesTotal.WithLabelValues(string(models.ChangeKindModified)).Add(float64(summary.Modified))
	c.KindConflicts.Add(float64(conflicts))
}

// RecordImpact records the size of a computed impact set.
func (c *Collector) RecordImpact(size int, incomplete bool) {
	if c == nil {
		return
	}
	c.ImpactSize.Observe(float64(size))
	if incomplete {
		c.Incomplete.WithLabelValues("impact").Inc()
	}
}

// RecordValidation records the outcome of one validation run.
func (c *Collector) RecordValidation(report *models.ValidationReport) {
	if c == nil || report == nil {
		return
	}
	c.Validations.WithLabelValues("valid").Add(float64(report.Valid))
	c.Validations.WithLabelValues("invalid").Add(float64(report.Invalid))
	c.Validations.WithLabelValues("reclassified").Add(float64(report.Reclassified))
	if report.Incomplete {
		c.Incomplete.WithLabelValues("validation").Inc()
	}
}

// RecordTracking records whether an artifact save had its dependencies tracked.
func (c *Collector) RecordTracking(tracked bool, edges int) {
	if c == nil {
		return
	}
	if !tracked {
		c.TrackedSaves.WithLabelValues("untracked").Inc()
		return
	}
	c.TrackedSaves.WithLabelValues("tracked").Inc()
	c.EdgesExtracted.Observe(float64(edges))
}

// BreakerStateChanged records a circuit breaker transition. Its signature
// matches graphstore.StateListener.
func (c *Collector) BreakerStateChanged(name string, _, to gobreaker.State) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(float64(to))
}

// RecordToolCall records one MCP tool call. outcome is "success",
// "tool_error" for calls answered with an error result, or "error".
func (c *Collector) RecordToolCall(tool, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.ToolCalls.WithLabelValues(tool, outcome).Inc()
	c.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
