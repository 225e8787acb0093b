package monitoring

import (
	"time"

	"github.com/turtacn/aegis/internal/domain/service"
)

// MetricsAdapter adapts the Prometheus collectors to the domain service.Metrics interface.
type MetricsAdapter struct {
	metrics *Metrics
}

var _ service.Metrics = (*MetricsAdapter)(nil)

// NewMetricsAdapter creates a new metrics adapter.
func NewMetricsAdapter(m *Metrics) *MetricsAdapter {
	return &MetricsAdapter{metrics: m}
}

func (a *MetricsAdapter) RecordDecision(action, reason string) {
	a.metrics.DecisionsTotal.WithLabelValues(action, reason).Inc()
}

func (a *MetricsAdapter) RecordRiskScore(score int) {
	a.metrics.RiskScore.Observe(float64(score))
}

func (a *MetricsAdapter) RecordAnomaly(anomalyType string) {
	a.metrics.AnomaliesTotal.WithLabelValues(anomalyType).Inc()
}

func (a *MetricsAdapter) RecordFallback(component, strategy string) {
	a.metrics.FallbacksTotal.WithLabelValues(component, strategy).Inc()
}

func (a *MetricsAdapter) RecordPipelineDuration(action string, duration time.Duration) {
	a.metrics.PipelineDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (a *MetricsAdapter) RecordAuditFailure(eventType string, synchronous bool) {
	mode := "async"
	if synchronous {
		mode = "sync"
	}
	a.metrics.AuditFailuresTotal.WithLabelValues(eventType, mode).Inc()
}

func (a *MetricsAdapter) RecordGatewayAttempt(operation, outcome string, duration time.Duration) {
	a.metrics.GatewayAttemptsTotal.WithLabelValues(operation, outcome).Inc()
	a.metrics.GatewayAttemptLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (a *MetricsAdapter) RecordGatewayRetry(operation string) {
	a.metrics.GatewayRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordCacheAccess records a cache hit or miss.
func (a *MetricsAdapter) RecordCacheAccess(cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	a.metrics.CacheAccessTotal.WithLabelValues(cacheType, result).Inc()
}

func (a *MetricsAdapter) RecordPrivilegeBypass() {
	a.metrics.PrivilegeBypassTotal.Inc()
}
