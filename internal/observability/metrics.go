// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Database metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBQueryErrors    *prometheus.CounterVec
	DBConnections    *prometheus.GaugeVec
	DBRetries        *prometheus.CounterVec
	DBPoolExhausted  *prometheus.CounterVec
	DBRecoveries     *prometheus.CounterVec
	DBAcquireLatency *prometheus.HistogramVec

	// Price metrics
	PriceValidations *prometheus.CounterVec
	PriceFallbacks   prometheus.Counter
	FeedCallLatency  *prometheus.HistogramVec
	FeedErrors       *prometheus.CounterVec

	// Trading metrics
	PaperTrades     *prometheus.CounterVec
	PaperBalanceSOL prometheus.Gauge
	SellSignals     *prometheus.CounterVec
	TrackedHoldings prometheus.Gauge
	WalletSOL       prometheus.Gauge

	// Health metrics
	LastSuccessfulTrackerRun prometheus.Gauge
	UptimeSeconds            prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_trade_tracker"
	}

	return &Metrics{
		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database operation attempt duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of failed database operation attempts by error kind",
		}, []string{"database", "kind"}),
		DBConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of pooled database connections by state",
		}, []string{"database", "state"}),
		DBRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "retries_total",
			Help:      "Total number of retried database operations",
		}, []string{"database"}),
		DBPoolExhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "pool_exhausted_total",
			Help:      "Total number of connection requests that found the pool exhausted",
		}, []string{"database"}),
		DBRecoveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connection_recoveries_total",
			Help:      "Total number of connection replacements by status",
		}, []string{"database", "status"}),
		DBAcquireLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "acquire_latency_seconds",
			Help:      "Time spent waiting for a pooled connection",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		}, []string{"database"}),

		// Price metrics
		PriceValidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "validations_total",
			Help:      "Total number of price validations by source and outcome",
		}, []string{"source", "outcome"}),
		PriceFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "source_fallbacks_total",
			Help:      "Total number of quotes served from the secondary source",
		}),
		FeedCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "call_latency_seconds",
			Help:      "Price feed call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		FeedErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Total number of failed price feed calls",
		}, []string{"source"}),

		// Trading metrics
		PaperTrades: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paper",
			Name:      "trades_total",
			Help:      "Total number of simulated trades by type",
		}, []string{"type"}),
		PaperBalanceSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "paper",
			Name:      "balance_sol",
			Help:      "Current virtual balance in SOL",
		}),
		SellSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "sell_signals_total",
			Help:      "Total number of sell signals by reason",
		}, []string{"reason"}),
		TrackedHoldings: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "holdings",
			Help:      "Number of holdings seen in the last tracker pass",
		}),
		WalletSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_sol",
			Help:      "Last observed on-chain SOL balance of the configured wallet",
		}),

		// Health metrics
		LastSuccessfulTrackerRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tracker_run_timestamp",
			Help:      "Unix timestamp of last successful tracker pass",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDBQuery records one database operation attempt.
func RecordDBQuery(database, kind string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, "attempt").Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, kind).Inc()
	}
}

// UpdatePoolConnections updates the pooled connection gauges.
func UpdatePoolConnections(database string, total, inUse int) {
	DefaultMetrics.DBConnections.WithLabelValues(database, "in_use").Set(float64(inUse))
	DefaultMetrics.DBConnections.WithLabelValues(database, "idle").Set(float64(total - inUse))
}

// RecordDBRetry increments the retry counter.
func RecordDBRetry(database string) {
	DefaultMetrics.DBRetries.WithLabelValues(database).Inc()
}

// RecordPoolAcquire records how long a connection request waited.
func RecordPoolAcquire(database string, seconds float64, exhausted bool) {
	DefaultMetrics.DBAcquireLatency.WithLabelValues(database).Observe(seconds)
	if exhausted {
		DefaultMetrics.DBPoolExhausted.WithLabelValues(database).Inc()
	}
}

// RecordConnectionRecovery records a connection replacement.
func RecordConnectionRecovery(database string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	DefaultMetrics.DBRecoveries.WithLabelValues(database, status).Inc()
}

// RecordPriceValidation records a validator decision.
func RecordPriceValidation(source string, valid bool) {
	outcome := "rejected"
	if valid {
		outcome = "accepted"
	}
	DefaultMetrics.PriceValidations.WithLabelValues(source, outcome).Inc()
}

// RecordPriceFallback increments the source fallback counter.
func RecordPriceFallback() {
	DefaultMetrics.PriceFallbacks.Inc()
}

// RecordFeedCall records a price feed call.
func RecordFeedCall(source string, seconds float64, err error) {
	DefaultMetrics.FeedCallLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		DefaultMetrics.FeedErrors.WithLabelValues(source).Inc()
	}
}

// RecordPaperTrade records a simulated trade and the resulting balance.
func RecordPaperTrade(tradeType string, balanceSOL float64) {
	DefaultMetrics.PaperTrades.WithLabelValues(tradeType).Inc()
	DefaultMetrics.PaperBalanceSOL.Set(balanceSOL)
}

// RecordSellSignal records an auto-sell trigger.
func RecordSellSignal(reason string) {
	DefaultMetrics.SellSignals.WithLabelValues(reason).Inc()
}

// RecordTrackerRun records a completed tracker pass.
func RecordTrackerRun(holdings int) {
	DefaultMetrics.TrackedHoldings.Set(float64(holdings))
	DefaultMetrics.LastSuccessfulTrackerRun.Set(float64(time.Now().Unix()))
}

// SetPaperBalance sets the virtual balance gauge.
func SetPaperBalance(balanceSOL float64) {
	DefaultMetrics.PaperBalanceSOL.Set(balanceSOL)
}

// AddUptime adds elapsed seconds to the uptime counter.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}

// SetWalletBalance sets the on-chain wallet balance gauge.
func SetWalletBalance(balanceSOL float64) {
	DefaultMetrics.WalletSOL.Set(balanceSOL)
}
