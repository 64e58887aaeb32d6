// Package metrics provides Prometheus metrics for repstore.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for a repstore process.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Trail Metrics
	TrailAttemptsTotal *prometheus.CounterVec
	TrailRetriesTotal  prometheus.Counter
	TrailDuration      *prometheus.HistogramVec

	// Range Read Metrics
	RangeReadsTotal   *prometheus.CounterVec
	RangeReadDuration prometheus.Histogram
	RangeReadChunks   prometheus.Histogram
	RangeReadBytes    prometheus.Counter

	// Composition Metrics
	ChainLength    prometheus.Histogram
	ComposeOpsDone *prometheus.CounterVec

	// Deltify/Undeltify Metrics
	DeltifyTotal        *prometheus.CounterVec
	DeltifySavingsRatio prometheus.Histogram
	UndeltifyTotal      *prometheus.CounterVec

	// Cache Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Lock Metrics
	LockAcquireTotal *prometheus.CounterVec
	LockWaitDuration prometheus.Histogram

	// Database Metrics
	DBConnectionsTotal *prometheus.GaugeVec
	DBQueryDuration    *prometheus.HistogramVec

	// Compaction Metrics
	CompactionRunsTotal  prometheus.Counter
	CompactionRepsTotal  prometheus.Counter
	CompactionBytesSaved prometheus.Counter
	CompactionDuration   prometheus.Histogram
}

// namespace for all repstore metrics.
const namespace = "repstore"

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served.",
			},
		),

		TrailAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trail",
				Name:      "attempts_total",
				Help:      "Total number of trail attempts by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		TrailRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trail",
				Name:      "retries_total",
				Help:      "Total number of trail retries triggered by a retryable error.",
			},
		),
		TrailDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "trail",
				Name:      "duration_seconds",
				Help:      "Trail attempt duration in seconds.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		RangeReadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rangeread",
				Name:      "total",
				Help:      "Total number of range reads by rep kind.",
			},
			[]string{"kind"},
		),
		RangeReadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rangeread",
				Name:      "duration_seconds",
				Help:      "Range read latency in seconds.",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		RangeReadChunks: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rangeread",
				Name:      "chunks_touched",
				Help:      "Number of delta chunks a single range read touched.",
				Buckets:   prometheus.LinearBuckets(1, 1, 16),
			},
		),
		RangeReadBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rangeread",
				Name:      "bytes_total",
				Help:      "Total bytes returned by range reads.",
			},
		),

		ChainLength: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "composer",
				Name:      "chain_length",
				Help:      "Number of delta chunks folded to answer one range read.",
				Buckets:   prometheus.LinearBuckets(1, 1, 32),
			},
		),
		ComposeOpsDone: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "composer",
				Name:      "folds_total",
				Help:      "Total number of window composition folds by outcome.",
			},
			[]string{"outcome"},
		),

		DeltifyTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "deltify",
				Name:      "total",
				Help:      "Total number of deltify operations by outcome.",
			},
			[]string{"outcome"},
		),
		DeltifySavingsRatio: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "deltify",
				Name:      "savings_ratio",
				Help:      "Fraction of the prior fulltext size saved by a successful deltify.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		UndeltifyTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "undeltify",
				Name:      "total",
				Help:      "Total number of undeltify operations by outcome.",
			},
			[]string{"outcome"},
		),

		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits.",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses.",
			},
			[]string{"cache"},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lock",
				Name:      "acquire_total",
				Help:      "Total number of lock acquisition attempts by outcome.",
			},
			[]string{"outcome"},
		),
		LockWaitDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "lock",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting to acquire a mutable-rep lock.",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),

		DBConnectionsTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "connections",
				Help:      "Number of database connections by state.",
			},
			[]string{"state"},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "Database query duration in seconds.",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query"},
		),

		CompactionRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compaction",
				Name:      "runs_total",
				Help:      "Total number of background compaction sweeps.",
			},
		),
		CompactionRepsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compaction",
				Name:      "reps_deltified_total",
				Help:      "Total number of reps deltified by background compaction.",
			},
		),
		CompactionBytesSaved: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compaction",
				Name:      "bytes_saved_total",
				Help:      "Total bytes saved by background compaction.",
			},
		),
		CompactionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "compaction",
				Name:      "duration_seconds",
				Help:      "Compaction sweep duration in seconds.",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120},
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// IncHTTPInFlight marks the start of an in-progress HTTP request.
func (m *Metrics) IncHTTPInFlight() { m.HTTPRequestsInFlight.Inc() }

// DecHTTPInFlight marks the end of an in-progress HTTP request.
func (m *Metrics) DecHTTPInFlight() { m.HTTPRequestsInFlight.Dec() }

// RecordTrail records one trail attempt's outcome and duration.
func (m *Metrics) RecordTrail(operation, outcome string, duration float64, retried bool) {
	m.TrailAttemptsTotal.WithLabelValues(operation, outcome).Inc()
	m.TrailDuration.WithLabelValues(operation).Observe(duration)
	if retried {
		m.TrailRetriesTotal.Inc()
	}
}

// RecordRangeRead records one ReadRange call: the rep kind served, how
// long it took, how many chunks it folded, and bytes returned.
func (m *Metrics) RecordRangeRead(kind string, duration float64, chunks int, bytes int) {
	m.RangeReadsTotal.WithLabelValues(kind).Inc()
	m.RangeReadDuration.Observe(duration)
	m.RangeReadChunks.Observe(float64(chunks))
	m.RangeReadBytes.Add(float64(bytes))
	if chunks > 0 {
		m.ChainLength.Observe(float64(chunks))
	}
}

// RecordCompose records the outcome of one composer.State.Feed fold.
func (m *Metrics) RecordCompose(outcome string) {
	m.ComposeOpsDone.WithLabelValues(outcome).Inc()
}

// RecordDeltify records a deltify attempt. savingsRatio is only
// meaningful when outcome is "applied".
func (m *Metrics) RecordDeltify(outcome string, savingsRatio float64) {
	m.DeltifyTotal.WithLabelValues(outcome).Inc()
	if outcome == "applied" {
		m.DeltifySavingsRatio.Observe(savingsRatio)
	}
}

// RecordUndeltify records an undeltify attempt.
func (m *Metrics) RecordUndeltify(outcome string) {
	m.UndeltifyTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheAccess records a cache access.
func (m *Metrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordLockAcquire records a lock acquisition attempt and how long the
// caller waited for it.
func (m *Metrics) RecordLockAcquire(outcome string, waitSeconds float64) {
	m.LockAcquireTotal.WithLabelValues(outcome).Inc()
	m.LockWaitDuration.Observe(waitSeconds)
}

// RecordCompaction records one background compaction sweep.
func (m *Metrics) RecordCompaction(duration float64, repsDeltified int, bytesSaved int64) {
	m.CompactionRunsTotal.Inc()
	m.CompactionDuration.Observe(duration)
	m.CompactionRepsTotal.Add(float64(repsDeltified))
	m.CompactionBytesSaved.Add(float64(bytesSaved))
}
