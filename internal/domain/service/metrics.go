// Package service holds the domain logic of the authentication decision pipeline.
package service

import (
	"time"
)

// Metrics defines the interface for collecting pipeline metrics.
type Metrics interface {
	// RecordDecision records the terminal action of an authentication event.
	RecordDecision(action, reason string)

	// RecordRiskScore observes a clamped risk score.
	RecordRiskScore(score int)

	// RecordAnomaly counts a detected anomaly by type.
	RecordAnomaly(anomalyType string)

	// RecordFallback counts a component degrading to a fallback strategy.
	RecordFallback(component, strategy string)

	// RecordPipelineDuration records the end-to-end latency of one event.
	RecordPipelineDuration(action string, duration time.Duration)

	// RecordAuditFailure counts an audit event that fell back to local logging.
	RecordAuditFailure(eventType string, synchronous bool)

	// RecordGatewayAttempt records one attempt made by the service gateway.
	RecordGatewayAttempt(operation, outcome string, duration time.Duration)

	// RecordGatewayRetry counts a retry scheduled by the service gateway.
	RecordGatewayRetry(operation string)

	// RecordCacheAccess records a cache hit or miss.
	RecordCacheAccess(cacheType string, hit bool)

	// RecordPrivilegeBypass counts authorization checks short-circuited by the bypass permission.
	RecordPrivilegeBypass()
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordDecision(action, reason string)                                   {}
func (NoopMetrics) RecordRiskScore(score int)                                              {}
func (NoopMetrics) RecordAnomaly(anomalyType string)                                       {}
func (NoopMetrics) RecordFallback(component, strategy string)                              {}
func (NoopMetrics) RecordPipelineDuration(action string, duration time.Duration)           {}
func (NoopMetrics) RecordAuditFailure(eventType string, synchronous bool)                  {}
func (NoopMetrics) RecordGatewayAttempt(operation, outcome string, duration time.Duration) {}
func (NoopMetrics) RecordGatewayRetry(operation string)                                    {}
func (NoopMetrics) RecordCacheAccess(cacheType string, hit bool)                           {}
func (NoopMetrics) RecordPrivilegeBypass()                                                 {}

var _ Metrics = NoopMetrics{}
