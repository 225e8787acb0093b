// Package mocks holds testify mocks of the domain service ports.
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
)

// MockProfileStore is a mock implementation of service.ProfileStore.
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) Get(ctx context.Context, identityID string) (*models.SecurityProfile, error) {
	args := m.Called(ctx, identityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SecurityProfile), args.Error(1)
}

func (m *MockProfileStore) Append(ctx context.Context, identityID string, update models.ProfileUpdate) error {
	args := m.Called(ctx, identityID, update)
	return args.Error(0)
}

func (m *MockProfileStore) RecordFailure(ctx context.Context, identityID string) error {
	args := m.Called(ctx, identityID)
	return args.Error(0)
}

func (m *MockProfileStore) EnrollFactor(ctx context.Context, identityID, factor string) error {
	args := m.Called(ctx, identityID, factor)
	return args.Error(0)
}

// MockDirectoryService is a mock implementation of service.DirectoryService.
type MockDirectoryService struct {
	mock.Mock
}

func (m *MockDirectoryService) GetTeams(ctx context.Context, identityID, organizationID string) ([]models.TeamMembership, error) {
	args := m.Called(ctx, identityID, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TeamMembership), args.Error(1)
}

func (m *MockDirectoryService) GetDepartment(ctx context.Context, identityID, organizationID string) (*models.DepartmentInfo, error) {
	args := m.Called(ctx, identityID, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DepartmentInfo), args.Error(1)
}

// MockPermissionService is a mock implementation of service.PermissionService.
type MockPermissionService struct {
	mock.Mock
}

func (m *MockPermissionService) Resolve(ctx context.Context, req service.PermissionRequest) ([]string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockAuditSink is a mock implementation of service.AuditSink.
type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Publish(ctx context.Context, event models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// RecordingEmitter is a service.AuditEmitter that keeps every event in memory.
type RecordingEmitter struct {
	mu    sync.Mutex
	Sync  []models.AuditEvent
	Async []models.AuditEvent
}

var _ service.AuditEmitter = (*RecordingEmitter)(nil)

func (r *RecordingEmitter) EmitAsync(event models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Async = append(r.Async, event)
}

func (r *RecordingEmitter) EmitSync(_ context.Context, event models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sync = append(r.Sync, event)
}

// Events returns every recorded event, synchronous ones first.
func (r *RecordingEmitter) Events() []models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditEvent, 0, len(r.Sync)+len(r.Async))
	out = append(out, r.Sync...)
	return append(out, r.Async...)
}
