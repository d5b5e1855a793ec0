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
	// Quote metrics
	QuoteRequests *prometheus.CounterVec
	QuoteExpiries prometheus.Counter
	ActiveQuotes  prometheus.Gauge

	// Order metrics
	OrderSubmissions *prometheus.CounterVec
	OrderCancels     *prometheus.CounterVec

	// Transfer metrics
	Withdrawals      *prometheus.CounterVec
	StatusPolls      *prometheus.CounterVec
	ActiveTrackers   prometheus.Gauge
	TerminalStatuses *prometheus.CounterVec

	// Ledger metrics
	LedgerExports *prometheus.CounterVec

	// Upstream metrics
	UpstreamLatency *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec

	// Cache metrics
	CacheEvents *prometheus.CounterVec

	// Price feed metrics
	PriceUpdates   prometheus.Counter
	FeedReconnects prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "custody_workbench"
	}

	return &Metrics{
		QuoteRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of quote requests by result",
		}, []string{"result"}),
		QuoteExpiries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "expiries_total",
			Help:      "Total number of quotes cleared by expiry",
		}),
		ActiveQuotes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "active",
			Help:      "Number of quotes currently held with a running countdown",
		}),

		OrderSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "submissions_total",
			Help:      "Total number of order submissions by mode and result",
		}, []string{"mode", "result"}),
		OrderCancels: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "cancels_total",
			Help:      "Total number of order cancels by result",
		}, []string{"result"}),

		Withdrawals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "withdrawals_total",
			Help:      "Total number of withdrawal submissions by kind and result",
		}, []string{"kind", "result"}),
		StatusPolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "status_polls_total",
			Help:      "Total number of transfer status polls by result",
		}, []string{"result"}),
		ActiveTrackers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "active_trackers",
			Help:      "Number of transfers currently being polled",
		}),
		TerminalStatuses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "terminal_statuses_total",
			Help:      "Total number of tracked transfers reaching a terminal status",
		}, []string{"status"}),

		LedgerExports: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "exports_total",
			Help:      "Total number of CSV exports by result",
		}, []string{"result"}),

		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_latency_seconds",
			Help:      "Upstream API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_errors_total",
			Help:      "Total number of failed upstream requests",
		}, []string{"method", "path"}),

		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collections",
			Name:      "cache_events_total",
			Help:      "Collection cache hits, misses and invalidations by kind",
		}, []string{"kind", "event"}),

		PriceUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "updates_total",
			Help:      "Total number of last-traded-price updates received",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "reconnects_total",
			Help:      "Total number of price feed reconnect attempts",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordQuoteRequest records a quote fetch outcome.
func RecordQuoteRequest(err error) {
	DefaultMetrics.QuoteRequests.WithLabelValues(resultLabel(err)).Inc()
}

// RecordQuoteExpired records a quote cleared by its countdown.
func RecordQuoteExpired() {
	DefaultMetrics.QuoteExpiries.Inc()
}

// QuoteCountdownStarted increments the active quote gauge.
func QuoteCountdownStarted() {
	DefaultMetrics.ActiveQuotes.Inc()
}

// QuoteCountdownStopped decrements the active quote gauge.
func QuoteCountdownStopped() {
	DefaultMetrics.ActiveQuotes.Dec()
}

// RecordOrderSubmission records an order submission outcome.
func RecordOrderSubmission(mode string, err error) {
	DefaultMetrics.OrderSubmissions.WithLabelValues(mode, resultLabel(err)).Inc()
}

// RecordOrderCancel records an order cancel outcome.
func RecordOrderCancel(err error) {
	DefaultMetrics.OrderCancels.WithLabelValues(resultLabel(err)).Inc()
}

// RecordWithdrawal records a withdrawal submission outcome.
func RecordWithdrawal(kind string, err error) {
	DefaultMetrics.Withdrawals.WithLabelValues(kind, resultLabel(err)).Inc()
}

// RecordStatusPoll records a status poll outcome.
func RecordStatusPoll(err error) {
	DefaultMetrics.StatusPolls.WithLabelValues(resultLabel(err)).Inc()
}

// TrackerStarted increments the active tracker gauge.
func TrackerStarted() {
	DefaultMetrics.ActiveTrackers.Inc()
}

// TrackerStopped decrements the active tracker gauge.
func TrackerStopped() {
	DefaultMetrics.ActiveTrackers.Dec()
}

// RecordTerminalStatus records a tracked transfer reaching a terminal status.
func RecordTerminalStatus(status string) {
	DefaultMetrics.TerminalStatuses.WithLabelValues(status).Inc()
}

// RecordLedgerExport records a CSV export outcome.
func RecordLedgerExport(err error) {
	DefaultMetrics.LedgerExports.WithLabelValues(resultLabel(err)).Inc()
}

// RecordUpstreamRequest records upstream call latency and failures.
func RecordUpstreamRequest(method, path string, seconds float64, err error) {
	DefaultMetrics.UpstreamLatency.WithLabelValues(method, path).Observe(seconds)
	if err != nil {
		DefaultMetrics.UpstreamErrors.WithLabelValues(method, path).Inc()
	}
}

// RecordCacheEvent records a collection cache hit, miss or invalidation.
func RecordCacheEvent(kind, event string) {
	DefaultMetrics.CacheEvents.WithLabelValues(kind, event).Inc()
}

// RecordPriceUpdate increments the price update counter.
func RecordPriceUpdate() {
	DefaultMetrics.PriceUpdates.Inc()
}

// RecordFeedReconnect increments the price feed reconnect counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
