package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors exposed by the service.
type Metrics struct {
	DecisionsTotal        *prometheus.CounterVec
	RiskScore             prometheus.Histogram
	AnomaliesTotal        *prometheus.CounterVec
	FallbacksTotal        *prometheus.CounterVec
	PipelineDuration      *prometheus.HistogramVec
	AuditFailuresTotal    *prometheus.CounterVec
	GatewayAttemptsTotal  *prometheus.CounterVec
	GatewayAttemptLatency *prometheus.HistogramVec
	GatewayRetriesTotal   *prometheus.CounterVec
	CacheAccessTotal      *prometheus.CounterVec
	PrivilegeBypassTotal  prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Passing nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_decisions_total",
			Help: "Authentication decisions by action and reason",
		}, []string{"action", "reason"}),
		RiskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_risk_score",
			Help:    "Distribution of clamped risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		AnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_anomalies_total",
			Help: "Detected anomalies by type",
		}, []string{"type"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_fallbacks_total",
			Help: "Components degrading to a fallback strategy",
		}, []string{"component", "strategy"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_pipeline_duration_seconds",
			Help:    "End-to-end latency of one authentication event",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"action"}),
		AuditFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_audit_failures_total",
			Help: "Audit events that fell back to local logging",
		}, []string{"event_type", "mode"}),
		GatewayAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_gateway_attempts_total",
			Help: "Attempts made by the service gateway",
		}, []string{"operation", "outcome"}),
		GatewayAttemptLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_gateway_attempt_duration_seconds",
			Help:    "Latency of a single gateway attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		GatewayRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_gateway_retries_total",
			Help: "Retries scheduled by the service gateway",
		}, []string{"operation"}),
		CacheAccessTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_cache_access_total",
			Help: "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		PrivilegeBypassTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aegis_privilege_bypass_total",
			Help: "Authorization checks short-circuited by the bypass permission",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_http_active_requests",
			Help: "In-flight HTTP requests",
		}),
	}
}

// ObserveHTTPRequest records a finished HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
