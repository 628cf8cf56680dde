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
	// Ingestion metrics
	CandidatesIngested *prometheus.CounterVec
	NormalizeErrors    *prometheus.CounterVec
	SourceRestarts     *prometheus.CounterVec

	// Dedup metrics
	DedupDecisions *prometheus.CounterVec
	DedupEntries   prometheus.Gauge

	// Scan metrics
	ScanQueueDepth  prometheus.Gauge
	ScanBackpressed prometheus.Counter
	ScanDegraded    *prometheus.CounterVec

	// Analysis metrics
	CacheHits        prometheus.Counter
	BackendCalls     prometheus.Counter
	BackendErrors    prometheus.Counter
	CostUnitsSpent   prometheus.Counter
	CostDeferrals    prometheus.Counter
	AnalysisDuration prometheus.Histogram

	// Alerting metrics
	AlertsDelivered  prometheus.Counter
	AlertsSuppressed *prometheus.CounterVec
	DeliveryErrors   prometheus.Counter
	CooldownEntries  prometheus.Gauge

	// Health metrics
	PipelineState prometheus.Gauge
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on the given registerer.
// A nil registerer uses the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_sentinel"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "candidates_total",
			Help:      "Total number of raw candidates ingested by source",
		}, []string{"source"}),
		NormalizeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "normalize_errors_total",
			Help:      "Total number of payloads rejected during normalization",
		}, []string{"source"}),
		SourceRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "source_restarts_total",
			Help:      "Total number of source adapter restarts",
		}, []string{"adapter"}),

		DedupDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "decisions_total",
			Help:      "Total dedup decisions by outcome",
		}, []string{"decision"}),
		DedupEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "entries",
			Help:      "Current number of tracked addresses in the dedup window",
		}),

		ScanQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "queue_depth",
			Help:      "Current number of candidates waiting for metadata scan",
		}),
		ScanBackpressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "backpressured_total",
			Help:      "Total number of candidates dropped due to a full scan queue",
		}),
		ScanDegraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "degraded_total",
			Help:      "Total number of scans with a failed field group",
		}, []string{"field_group"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyze",
			Name:      "cache_hits_total",
			Help:      "Total number of score cache hits",
		}),
		BackendCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyze",
			Name:      "backend_calls_total",
			Help:      "Total number of scoring backend invocations",
		}),
		BackendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyze",
			Name:      "backend_errors_total",
			Help:      "Total number of failed scoring backend invocations",
		}),
		CostUnitsSpent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyze",
			Name:      "cost_units_total",
			Help:      "Total backend cost units spent",
		}),
		CostDeferrals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyze",
			Name:      "cost_deferrals_total",
			Help:      "Total number of analyses deferred by the cost ceiling",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyze",
			Name:      "duration_seconds",
			Help:      "End-to-end analysis duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		AlertsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "delivered_total",
			Help:      "Total number of alerts delivered",
		}),
		AlertsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "suppressed_total",
			Help:      "Total number of suppressed alerts by reason",
		}, []string{"reason"}),
		DeliveryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "delivery_errors_total",
			Help:      "Total number of failed alert deliveries",
		}),
		CooldownEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "cooldown_entries",
			Help:      "Current number of addresses under alert cooldown",
		}),

		PipelineState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "pipeline_state",
			Help:      "Current pipeline state (0=stopped 1=starting 2=running 3=draining)",
		}),
		UptimeSeconds: factory.NewCounter(prometheus.CounterOpts{
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
