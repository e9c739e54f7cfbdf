// Package metrics provides Prometheus metrics for indexing and retrieval.
// All methods are safe on a nil *Metrics, so callers never need to check.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch outcomes.
const (
	BatchApplied   = "applied"
	BatchFailed    = "failed"
	BatchDiscarded = "discarded"
)

// Metrics holds the docindex collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Batches        *prometheus.CounterVec
	ChunksEmbedded prometheus.Counter
	ChunksSkipped  prometheus.Counter
	BatchDuration  prometheus.Histogram
	EmbedRetries   prometheus.Counter
	IndexRuns      *prometheus.CounterVec

	Searches       prometheus.Counter
	SearchDuration prometheus.Histogram
	IndexRecords   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docindex_embed_batches_total",
			Help: "Embedding batches by outcome",
		}, []string{"outcome"}),
		ChunksEmbedded: f.NewCounter(prometheus.CounterOpts{
			Name: "docindex_chunks_embedded_total",
			Help: "Chunks embedded and added to an index",
		}),
		ChunksSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "docindex_chunks_skipped_total",
			Help: "Chunks skipped because id and content hash were unchanged",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docindex_embed_batch_duration_seconds",
			Help:    "Wall time of one embedding batch including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		EmbedRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "docindex_embed_retries_total",
			Help: "Retried embedding attempts after transient failures",
		}),
		IndexRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docindex_index_runs_total",
			Help: "Document indexing runs by final status",
		}, []string{"status"}),
		Searches: f.NewCounter(prometheus.CounterOpts{
			Name: "docindex_searches_total",
			Help: "Similarity searches served",
		}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docindex_search_duration_seconds",
			Help:    "Duration of query embedding plus search",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		IndexRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "docindex_index_records",
			Help: "Records held by the served index",
		}),
	}
}

// ObserveBatch records one batch outcome.
func (m *Metrics) ObserveBatch(outcome string, chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(outcome).Inc()
	m.BatchDuration.Observe(d.Seconds())
	if outcome == BatchApplied {
		m.ChunksEmbedded.Add(float64(chunks))
	}
}

// ObserveSkipped records chunks served by skip-if-unchanged.
func (m *Metrics) ObserveSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksSkipped.Add(float64(n))
}

// ObserveRetry records one retried embedding attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.EmbedRetries.Inc()
}

// ObserveRun records the final status of an indexing run.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.IndexRuns.WithLabelValues(status).Inc()
}

// ObserveSearch records one query.
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.Searches.Inc()
	m.SearchDuration.Observe(d.Seconds())
}

// SetIndexRecords sets the served index size.
func (m *Metrics) SetIndexRecords(n int) {
	if m == nil {
		return
	}
	m.IndexRecords.Set(float64(n))
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
