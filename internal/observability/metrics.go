// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Ingestion metrics
	SignaturesSeen  *prometheus.CounterVec
	SwapsParsed     *prometheus.CounterVec
	WebhookRejected prometheus.Counter

	// Pipeline metrics
	Outcomes     *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
	PendingBuys  prometheus.Gauge
	SellBuffered prometheus.Counter

	// Latency metrics
	RiskLatency  prometheus.Histogram
	ExecLatency  prometheus.Histogram
	TotalLatency prometheus.Histogram

	// Breaker metrics
	BreakerOpen  prometheus.Gauge
	BreakerTrips *prometheus.CounterVec

	// Book metrics
	OpenPositions prometheus.Gauge
	VirtualCash   prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers all metrics on the given registerer. Tests pass a
// fresh registry to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "copy_trader"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SignaturesSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "signatures_seen_total",
			Help:      "Total signatures observed by source before deduplication",
		}, []string{"source"}),
		SwapsParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "swaps_parsed_total",
			Help:      "Total swap descriptors produced by source",
		}, []string{"source"}),
		WebhookRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "webhook_rate_limited_total",
			Help:      "Total webhook batches dropped by the rate limiter",
		}),

		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Total trade dispositions by outcome and reason",
		}, []string{"outcome", "reason"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Descriptors waiting for the decision stage",
		}),
		PendingBuys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pending_buys",
			Help:      "Mints with a buy detected but not yet processed",
		}),
		SellBuffered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "sells_buffered_total",
			Help:      "Total sells delayed by the sell-before-buy buffer",
		}),

		RiskLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "risk_latency_seconds",
			Help:      "Risk stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ExecLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "exec_latency_seconds",
			Help:      "Execution stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TotalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "total_latency_seconds",
			Help:      "End-to-end stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "open",
			Help:      "1 when the circuit breaker is open",
		}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total breaker openings by reason",
		}, []string{"reason"}),

		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "open_positions",
			Help:      "Current number of open positions",
		}),
		VirtualCash: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "virtual_cash_lamports",
			Help:      "Simulated wallet cash in lamports",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
