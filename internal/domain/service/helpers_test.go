package service

import (
	"context"
	"sync"

	"github.com/turtacn/aegis/internal/domain/models"
)

type recordingEmitter struct {
	mu          sync.Mutex
	syncEvents  []models.AuditEvent
	asyncEvents []models.AuditEvent
}

func (r *recordingEmitter) EmitAsync(event models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asyncEvents = append(r.asyncEvents, event)
}

func (r *recordingEmitter) EmitSync(_ context.Context, event models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncEvents = append(r.syncEvents, event)
}

type stubPermissionService struct {
	perms []string
	err   error
	calls int
	last  PermissionRequest
}

func (s *stubPermissionService) Resolve(_ context.Context, req PermissionRequest) ([]string, error) {
	s.calls++
	s.last = req
	return s.perms, s.err
}

type panickingStrategy struct{}

func (panickingStrategy) Name() string { return "broken" }

func (panickingStrategy) Resolve(context.Context, PermissionRequest, []models.TeamMembership) ([]string, error) {
	panic("boom")
}

type countingMetrics struct {
	NoopMetrics
	mu        sync.Mutex
	fallbacks map[string]int
	bypasses  int
	failures  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{fallbacks: map[string]int{}}
}

func (m *countingMetrics) RecordFallback(component, strategy string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[component+"/"+strategy]++
}

func (m *countingMetrics) RecordPrivilegeBypass() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bypasses++
}

func (m *countingMetrics) RecordAuditFailure(string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *countingMetrics) auditFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}
