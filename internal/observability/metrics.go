// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// OpenDART metrics
	APICallLatency *prometheus.HistogramVec
	FeedDegraded   *prometheus.CounterVec
	RateLimitWaits *prometheus.CounterVec

	// Normalization metrics
	EventsNormalized *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	FactorFallbacks  *prometheus.CounterVec

	// Recompute metrics
	EntitiesProcessed *prometheus.CounterVec
	RecordsAdjusted   prometheus.Counter
	RecordsSkipped    *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram
	WorkersBusy       prometheus.Gauge

	// Ingestion metrics
	DividendsIngested prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRecompute prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dividend_screener"
	}

	return &Metrics{
		APICallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "opendart",
			Name:      "call_latency_seconds",
			Help:      "OpenDART API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		FeedDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "opendart",
			Name:      "feed_degraded_total",
			Help:      "Feed calls that fell back to an empty result",
		}, []string{"feed"}),
		RateLimitWaits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "opendart",
			Name:      "rate_limit_waits_total",
			Help:      "Retries caused by OpenDART rate limiting",
		}, []string{"feed"}),

		EventsNormalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "events_total",
			Help:      "Corporate action events produced by kind",
		}, []string{"kind"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "events_dropped_total",
			Help:      "Feed rows dropped because their type could not be classified",
		}, []string{"feed"}),
		FactorFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adjustment",
			Name:      "factor_fallbacks_total",
			Help:      "Factors replaced by the neutral value or the floor",
		}, []string{"kind", "reason"}),

		EntitiesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "entities_total",
			Help:      "Entities processed by outcome",
		}, []string{"status"}),
		RecordsAdjusted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "records_adjusted_total",
			Help:      "Dividend records written with an adjusted value",
		}),
		RecordsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "records_skipped_total",
			Help:      "Dividend records left untouched by reason",
		}, []string{"reason"}),
		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "duration_seconds",
			Help:      "Recompute pass duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		WorkersBusy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "workers_busy",
			Help:      "Workers currently processing an entity",
		}),

		DividendsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "dividends_ingested_total",
			Help:      "Raw dividend records upserted",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRecompute: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_recompute_timestamp",
			Help:      "Unix timestamp of last recompute pass without entity failures",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAPILatency records an OpenDART call latency.
func RecordAPILatency(endpoint string, seconds float64) {
	DefaultMetrics.APICallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordFeedDegraded counts a feed that fell back to empty.
func RecordFeedDegraded(feed string) {
	DefaultMetrics.FeedDegraded.WithLabelValues(feed).Inc()
}

// RecordRateLimitWait counts a rate limit retry.
func RecordRateLimitWait(feed string) {
	DefaultMetrics.RateLimitWaits.WithLabelValues(feed).Inc()
}

// RecordEventNormalized counts a normalized event.
func RecordEventNormalized(kind string) {
	DefaultMetrics.EventsNormalized.WithLabelValues(kind).Inc()
}

// RecordEventDropped counts an unclassifiable feed row.
func RecordEventDropped(feed string) {
	DefaultMetrics.EventsDropped.WithLabelValues(feed).Inc()
}

// RecordFactorFallback counts a neutral or floored factor.
func RecordFactorFallback(kind, reason string) {
	DefaultMetrics.FactorFallbacks.WithLabelValues(kind, reason).Inc()
}

// RecordEntity records the outcome of one entity.
func RecordEntity(status string) {
	DefaultMetrics.EntitiesProcessed.WithLabelValues(status).Inc()
}

// RecordRecordsAdjusted adds n adjusted records.
func RecordRecordsAdjusted(n int) {
	DefaultMetrics.RecordsAdjusted.Add(float64(n))
}

// RecordRecordSkipped counts a record left untouched.
func RecordRecordSkipped(reason string) {
	DefaultMetrics.RecordsSkipped.WithLabelValues(reason).Inc()
}

// RecordRecompute records a recompute pass.
func RecordRecompute(durationSeconds float64, failed int, finishedAt int64) {
	DefaultMetrics.RecomputeDuration.Observe(durationSeconds)
	if failed == 0 {
		DefaultMetrics.LastSuccessfulRecompute.Set(float64(finishedAt))
	}
}

// RecordDividendIngested counts an upserted dividend.
func RecordDividendIngested() {
	DefaultMetrics.DividendsIngested.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
