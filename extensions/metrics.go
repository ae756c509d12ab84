package extensions

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	traced "github.com/traced-fn/traced-go"
)

// MetricsExtension exposes a graph's activity counters and operation
// latencies as Prometheus metrics. It implements prometheus.Collector for
// the counters, scraping Graph.Stats on collect, and observes a histogram
// around every wrapped operation.
type MetricsExtension struct {
	traced.BaseExtension

	graph     *traced.Graph
	reg       prometheus.Registerer
	durations *prometheus.HistogramVec

	readsDesc           *prometheus.Desc
	cacheHitsDesc       *prometheus.Desc
	recomputesDesc      *prometheus.Desc
	computeFailuresDesc *prometheus.Desc
	writesDesc          *prometheus.Desc
	invalidationsDesc   *prometheus.Desc
}

// NewMetricsExtension creates a metrics extension. Register it to exactly one
// graph; it registers itself with reg on Init and unregisters on Dispose.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"graph"}
	return &MetricsExtension{
		BaseExtension: traced.NewBaseExtension("metrics"),
		reg:           reg,
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traced_operation_duration_seconds",
			Help:    "Latency of top-level graph operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph", "operation", "outcome"}),
		readsDesc: prometheus.NewDesc(
			"traced_reads_total",
			"Attribute reads, including reads performed by compute functions.",
			labels, nil),
		cacheHitsDesc: prometheus.NewDesc(
			"traced_cache_hits_total",
			"Reads satisfied from a clean cached value.",
			labels, nil),
		recomputesDesc: prometheus.NewDesc(
			"traced_recomputes_total",
			"Successful compute function invocations.",
			labels, nil),
		computeFailuresDesc: prometheus.NewDesc(
			"traced_compute_failures_total",
			"Compute function invocations that failed or were cut by a cycle.",
			labels, nil),
		writesDesc: prometheus.NewDesc(
			"traced_writes_total",
			"Effective source writes and derived overrides.",
			labels, nil),
		invalidationsDesc: prometheus.NewDesc(
			"traced_invalidations_total",
			"Nodes marked stale by invalidation walks.",
			labels, nil),
	}
}

// Init registers the collector. The extension serves one graph at a time.
func (e *MetricsExtension) Init(g *traced.Graph) error {
	if e.graph != nil {
		return fmt.Errorf("metrics extension already attached to graph %s", e.graph.ID())
	}
	e.graph = g

	if err := e.reg.Register(e); err != nil {
		return fmt.Errorf("registering graph collector: %w", err)
	}
	if err := e.reg.Register(e.durations); err != nil {
		return fmt.Errorf("registering duration histogram: %w", err)
	}
	return nil
}

func (e *MetricsExtension) Wrap(ctx context.Context, next func() (any, error), op *traced.Operation) (any, error) {
	start := time.Now()
	result, err := next()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.durations.WithLabelValues(op.Graph.ID(), string(op.Kind), outcome).
		Observe(time.Since(start).Seconds())

	return result, err
}

func (e *MetricsExtension) Dispose(g *traced.Graph) error {
	e.reg.Unregister(e)
	e.reg.Unregister(e.durations)
	return nil
}

// Describe implements prometheus.Collector
func (e *MetricsExtension) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.readsDesc
	ch <- e.cacheHitsDesc
	ch <- e.recomputesDesc
	ch <- e.computeFailuresDesc
	ch <- e.writesDesc
	ch <- e.invalidationsDesc
}

// Collect implements prometheus.Collector
func (e *MetricsExtension) Collect(ch chan<- prometheus.Metric) {
	if e.graph == nil {
		return
	}

	stats := e.graph.Stats()
	id := e.graph.ID()

	ch <- prometheus.MustNewConstMetric(e.readsDesc, prometheus.CounterValue, float64(stats.Reads), id)
	ch <- prometheus.MustNewConstMetric(e.cacheHitsDesc, prometheus.CounterValue, float64(stats.CacheHits), id)
	ch <- prometheus.MustNewConstMetric(e.recomputesDesc, prometheus.CounterValue, float64(stats.Recomputes), id)
	ch <- prometheus.MustNewConstMetric(e.computeFailuresDesc, prometheus.CounterValue, float64(stats.ComputeFailures), id)
	ch <- prometheus.MustNewConstMetric(e.writesDesc, prometheus.CounterValue, float64(stats.Writes), id)
	ch <- prometheus.MustNewConstMetric(e.invalidationsDesc, prometheus.CounterValue, float64(stats.Invalidations), id)
}
