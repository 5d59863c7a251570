package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Extraction metrics.
var (
	ExtractionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_requests_total",
			Help:      "Total number of embedding extractions",
		},
		[]string{"backend", "model", "status"},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Embedding extraction duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend", "model"},
	)

	ExtractionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors_total",
			Help:      "Total extraction errors by kind",
		},
		[]string{"backend", "model", "error_type"},
	)
)

// Store metrics.
var (
	ParseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_parse_total",
			Help:      "Stored embeddings parsed, by recovered format",
		},
		[]string{"backend", "format"},
	)

	VectorCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_cache_total",
			Help:      "Parsed vector cache hits and misses",
		},
		[]string{"result"},
	)
)

// Grouping metrics.
var (
	GroupingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grouping_duration_seconds",
			Help:      "Matrix build plus grouping duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	GroupingScopeSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grouping_scope_size",
			Help:      "Number of embeddings in a grouping scope",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	GroupsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_emitted_total",
			Help:      "Total number of groups returned",
		},
		[]string{"mode"},
	)
)

// Backfill metrics.
var (
	BackfillItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_items_total",
			Help:      "Backfill items by outcome",
		},
		[]string{"model", "outcome"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			ExtractionRequestsTotal,
			ExtractionDuration,
			ExtractionErrorsTotal,
			ParseTotal,
			VectorCacheTotal,
			GroupingDuration,
			GroupingScopeSize,
			GroupsEmittedTotal,
			BackfillItemsTotal,
		)
	})
}
