package service

import (
	"context"

	"github.com/turtacn/aegis/internal/domain/models"
)

// ProfileStore is the source of truth for an identity's behavioural history.
type ProfileStore interface {
	// Get returns the stored profile, or a not-found AppError when the identity has none.
	Get(ctx context.Context, identityID string) (*models.SecurityProfile, error)

	// Append applies update to the stored profile with append-and-trim semantics.
	Append(ctx context.Context, identityID string, update models.ProfileUpdate) error

	// RecordFailure increments the failed-attempt counter, creating the profile if needed.
	RecordFailure(ctx context.Context, identityID string) error

	// EnrollFactor adds a second factor to the identity's enrolled set.
	EnrollFactor(ctx context.Context, identityID, factor string) error
}

// DirectoryService looks up team and department data for an identity.
type DirectoryService interface {
	GetTeams(ctx context.Context, identityID, organizationID string) ([]models.TeamMembership, error)

	// GetDepartment returns nil without error when the identity has no department.
	GetDepartment(ctx context.Context, identityID, organizationID string) (*models.DepartmentInfo, error)
}

// TeamCache is implemented by directory services that can answer a team
// lookup from memory without a network call.
type TeamCache interface {
	CachedTeams(identityID, organizationID string) ([]models.TeamMembership, bool)
}

// PermissionRequest is the input of an external permission resolution.
type PermissionRequest struct {
	IdentityID     string                 `json:"identity_id"`
	OrganizationID string                 `json:"organization_id"`
	Roles          []string               `json:"roles"`
	TeamIDs        []string               `json:"team_ids"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// PermissionService resolves permissions through an external RBAC/ABAC service.
type PermissionService interface {
	Resolve(ctx context.Context, req PermissionRequest) ([]string, error)
}

// AuditSink is a transport for audit events (Kafka, relational store, ...).
type AuditSink interface {
	Publish(ctx context.Context, event models.AuditEvent) error
}

// AuditEmitter is the single entry point every component uses to record audit events.
// Neither method reports failure to the caller.
type AuditEmitter interface {
	// EmitAsync publishes off the critical path.
	EmitAsync(event models.AuditEvent)

	// EmitSync publishes before returning; used for compliance-critical events.
	EmitSync(ctx context.Context, event models.AuditEvent)
}
