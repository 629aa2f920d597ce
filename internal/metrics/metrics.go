// Package metrics exposes Prometheus collectors for the imagepack service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rowsTotal                  *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	imageBytesTotal            prometheus.Counter
	archiveEntries             prometheus.Histogram
	artifactsServedTotal       prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers all collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagepack_rows_total",
				Help: "Rows processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagepack_batches_total",
				Help: "Batches processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagepack_candidates_total",
				Help: "Candidate URLs extracted from the search surface, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		imageBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "imagepack_image_bytes_total",
				Help: "Total bytes of viable images downloaded.",
			},
		)

		archiveEntries = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imagepack_archive_entries",
				Help:    "Entries per finished archive.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)

		artifactsServedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "imagepack_artifacts_served_total",
				Help: "Archives successfully claimed by a download request.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RowProcessed records one row reaching a terminal status.
func RowProcessed(status string) {
	if rowsTotal != nil {
		rowsTotal.WithLabelValues(status).Inc()
	}
}

// BatchFinished records a finished batch with the given outcome.
func BatchFinished(outcome string) {
	if batchesTotal != nil {
		batchesTotal.WithLabelValues(outcome).Inc()
	}
}

// CandidatesExtracted records how many locators a strategy produced.
func CandidatesExtracted(strategy string, n int) {
	if candidatesTotal != nil && n > 0 {
		candidatesTotal.WithLabelValues(strategy).Add(float64(n))
	}
}

// ImageBytes accumulates downloaded image payload sizes.
func ImageBytes(n int) {
	if imageBytesTotal != nil {
		imageBytesTotal.Add(float64(n))
	}
}

// ArchiveBuilt observes the entry count of a finished archive.
func ArchiveBuilt(entries int) {
	if archiveEntries != nil {
		archiveEntries.Observe(float64(entries))
	}
}

// ArtifactServed counts one successful read-once retrieval.
func ArtifactServed() {
	if artifactsServedTotal != nil {
		artifactsServedTotal.Inc()
	}
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	if httpRequestDurationSeconds != nil {
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
	}
}
