// Package metrics implements the Metrics Collector (C12, §4.12) with
// the prometheus/client_golang registry, replacing the teacher's
// hand-rolled text-exposition Metrics type (internal/observability)
// with real Prometheus collectors wired through an http.Handler.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome is the terminal classification recorded at RecordComplete.
type Outcome string

const (
	OutcomeImmediate Outcome = "immediate"
	OutcomeQueued    Outcome = "queued"
	OutcomeFallback  Outcome = "fallback"
	OutcomeFailed    Outcome = "failed"
)

// Collector wraps the Prometheus registry with the aggregations named
// in §4.12: success/failure counts, latency, queue depth, cost,
// per-error-category counts, per-project counts, completeness and
// freshness scores.
type Collector struct {
	registry *prometheus.Registry

	reportsTotal     *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	errorsByCategory *prometheus.CounterVec
	costTotal        prometheus.Counter
	completeness     *prometheus.GaugeVec
	freshness        *prometheus.GaugeVec

	mu         sync.Mutex
	startTimes map[string]time.Time
}

// New builds a Collector and registers all of its metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		reportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corewatch_reports_total",
			Help: "Total report generation attempts by outcome.",
		}, []string{"outcome", "project_id"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corewatch_report_duration_seconds",
			Help:    "Report generation latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corewatch_queue_depth",
			Help: "Current durable queue depth.",
		}),
		errorsByCategory: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corewatch_errors_total",
			Help: "Errors by taxonomy kind.",
		}, []string{"kind"}),
		costTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corewatch_llm_cost_total",
			Help: "Estimated cumulative LLM cost.",
		}),
		completeness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corewatch_data_completeness_score",
			Help: "Most recent data-completeness score per project.",
		}, []string{"project_id"}),
		freshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corewatch_freshness_score",
			Help: "Most recent freshness score per project (1=fresh..0=very_stale).",
		}, []string{"project_id"}),
		startTimes: make(map[string]time.Time),
	}

	reg.MustRegister(
		c.reportsTotal, c.reportDuration, c.queueDepth,
		c.errorsByCategory, c.costTotal, c.completeness, c.freshness,
	)
	return c
}

// RecordStart marks the beginning of a pipeline run identified by
// correlationID, so RecordComplete can compute its duration.
func (c *Collector) RecordStart(ctx context.Context, correlationID string) {
	c.mu.Lock()
	c.startTimes[correlationID] = time.Now()
	c.mu.Unlock()
}

// RecordComplete records a terminal outcome for a previously started run.
func (c *Collector) RecordComplete(ctx context.Context, correlationID, projectID string, outcome Outcome) {
	c.reportsTotal.WithLabelValues(string(outcome), projectID).Inc()

	c.mu.Lock()
	start, ok := c.startTimes[correlationID]
	if ok {
		delete(c.startTimes, correlationID)
	}
	c.mu.Unlock()

	if ok {
		c.reportDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
	}
}

// RecordError increments the per-taxonomy-kind error counter.
func (c *Collector) RecordError(kind string) {
	c.errorsByCategory.WithLabelValues(kind).Inc()
}

// SetQueueDepth reports the durable queue's current depth.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// AddCost accumulates an estimated LLM cost.
func (c *Collector) AddCost(v float64) {
	c.costTotal.Add(v)
}

// SetCompleteness records a project's latest completeness score.
func (c *Collector) SetCompleteness(projectID string, score float64) {
	c.completeness.WithLabelValues(projectID).Set(score)
}

// SetFreshness records a project's latest freshness score (normalized
// 0..1, freshest=1).
func (c *Collector) SetFreshness(projectID string, score float64) {
	c.freshness.WithLabelValues(projectID).Set(score)
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
