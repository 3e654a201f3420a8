package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	documentReadsTotal    *prometheus.CounterVec
	documentWritesTotal   *prometheus.CounterVec
	changesPublishedTotal *prometheus.CounterVec
	changeSubscribers     prometheus.Gauge

	syncRoundsTotal    *prometheus.CounterVec
	syncLatencySeconds *prometheus.HistogramVec
	syncRollbacksTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors of the store server
// and the sync client.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP error responses.",
		}, []string{"method", "route", "status"})

		documentReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_document_reads_total",
			Help: "Document reads by backend and outcome.",
		}, []string{"backend", "outcome"})

		documentWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_document_writes_total",
			Help: "Document writes by backend and outcome.",
		}, []string{"backend", "outcome"})

		changesPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_changes_published_total",
			Help: "Change notifications fanned out to subscribers.",
		}, []string{"source"})

		changeSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "store_change_subscribers",
			Help: "Currently connected change feed subscribers.",
		})

		syncRoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_rounds_total",
			Help: "Client sync rounds by kind and outcome.",
		}, []string{"kind", "outcome"})

		syncLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_latency_seconds",
			Help:    "Latency distribution of client sync rounds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"kind"})

		syncRollbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_rollbacks_total",
			Help: "Optimistic mutations rolled back after a failed push.",
		}, []string{"mutation"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			documentReadsTotal, documentWritesTotal, changesPublishedTotal, changeSubscribers,
			syncRoundsTotal, syncLatencySeconds, syncRollbacksTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// DocumentReads exposes the document read counter.
func DocumentReads() *prometheus.CounterVec {
	RegisterMetrics()
	return documentReadsTotal
}

// DocumentWrites exposes the document write counter.
func DocumentWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return documentWritesTotal
}

// ChangesPublished exposes the change fan-out counter.
func ChangesPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return changesPublishedTotal
}

// ChangeSubscribers exposes the connected subscriber gauge.
func ChangeSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return changeSubscribers
}

// SyncRounds exposes the client sync round counter.
func SyncRounds() *prometheus.CounterVec {
	RegisterMetrics()
	return syncRoundsTotal
}

// SyncLatency exposes the client sync latency histogram.
func SyncLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return syncLatencySeconds
}

// SyncRollbacks exposes the rollback counter.
func SyncRollbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return syncRollbacksTotal
}
