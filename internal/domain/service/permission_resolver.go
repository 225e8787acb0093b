package service

import (
	"context"
	"fmt"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// RoleTable maps an identity role to the permissions it grants by default.
type RoleTable map[string][]string

// DefaultRoleTable is the built-in role table used when no override file is configured.
func DefaultRoleTable() RoleTable {
	all := []string{
		constants.PermReadUsers, constants.PermWriteUsers, constants.PermDeleteUsers,
		constants.PermManageUserRoles, constants.PermManageUserMFA,
		constants.PermReadTeams, constants.PermWriteTeams, constants.PermDeleteTeams, constants.PermManageTeamMembers,
		constants.PermReadOrganizations, constants.PermWriteOrganizations, constants.PermManageOrgSettings,
		constants.PermReadAuditLogs, constants.PermExportAuditLogs, constants.PermReadCompliance,
		constants.PermGenerateReports, constants.PermExportReports,
		constants.PermAdminAccess,
	}
	return RoleTable{
		"super_admin": append(append([]string{}, all...), constants.PermSystemAdmin),
		"admin":       all,
		"manager": {
			constants.PermReadUsers, constants.PermReadTeams, constants.PermWriteTeams,
			constants.PermManageTeamMembers, constants.PermReadOrganizations, constants.PermGenerateReports,
		},
		"auditor": {
			constants.PermReadAuditLogs, constants.PermExportAuditLogs, constants.PermReadCompliance,
			constants.PermGenerateReports, constants.PermExportReports,
		},
		"member": {constants.PermReadUsers, constants.PermReadTeams, constants.PermReadOrganizations},
		"viewer": {constants.PermReadOrganizations},
	}
}

// TeamPermissions derives the permissions granted by team memberships.
// Owners, leads and admins can manage and invite; every member can read and
// write; custom team permissions are added as declared.
func TeamPermissions(teams []models.TeamMembership) []string {
	var perms []string
	for _, t := range teams {
		if t.TeamID == "" {
			continue
		}
		switch t.Role {
		case constants.TeamRoleOwner, constants.TeamRoleLead, constants.TeamRoleAdmin:
			perms = append(perms, "manage:team:"+t.TeamID, "invite:team:"+t.TeamID)
		}
		perms = append(perms, "read:team:"+t.TeamID, "write:team:"+t.TeamID)
		perms = append(perms, t.Permissions...)
	}
	return perms
}

// PermissionStrategy is one named way of resolving permissions.
type PermissionStrategy interface {
	Name() string
	Resolve(ctx context.Context, req PermissionRequest, teams []models.TeamMembership) ([]string, error)
}

type externalPermissionStrategy struct {
	svc PermissionService
}

// NewExternalPermissionStrategy resolves through the external permission service.
// A nil service makes the strategy report itself as not configured.
func NewExternalPermissionStrategy(svc PermissionService) PermissionStrategy {
	return &externalPermissionStrategy{svc: svc}
}

func (s *externalPermissionStrategy) Name() string { return models.StrategyExternalService }

func (s *externalPermissionStrategy) Resolve(ctx context.Context, req PermissionRequest, _ []models.TeamMembership) ([]string, error) {
	if s.svc == nil {
		return nil, errors.ErrConfiguration("permissions.service_url", "external permission service not configured")
	}
	return s.svc.Resolve(ctx, req)
}

type localPermissionStrategy struct {
	table RoleTable
}

// NewLocalPermissionStrategy resolves from the role table and team memberships. It never fails.
func NewLocalPermissionStrategy(table RoleTable) PermissionStrategy {
	if table == nil {
		table = DefaultRoleTable()
	}
	return &localPermissionStrategy{table: table}
}

func (s *localPermissionStrategy) Name() string { return models.StrategyLocalDefaults }

func (s *localPermissionStrategy) Resolve(_ context.Context, req PermissionRequest, teams []models.TeamMembership) ([]string, error) {
	var perms []string
	for _, role := range req.Roles {
		perms = append(perms, s.table[role]...)
	}
	return append(perms, TeamPermissions(teams)...), nil
}

// PermissionResolver tries its strategies in order and keeps the first
// successful result, deduplicated and capped.
type PermissionResolver struct {
	strategies     []PermissionStrategy
	maxPermissions int
	log            logger.Logger
	metrics        Metrics
}

// NewPermissionResolver creates a resolver over the given strategies.
func NewPermissionResolver(maxPermissions int, log logger.Logger, metrics Metrics, strategies ...PermissionStrategy) *PermissionResolver {
	if maxPermissions < 1 {
		maxPermissions = constants.DefaultMaxPermissions
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &PermissionResolver{
		strategies:     strategies,
		maxPermissions: maxPermissions,
		log:            log.WithComponent("PermissionResolver"),
		metrics:        metrics,
	}
}

// Resolve returns the permission set of the session's identity. It never fails:
// when every strategy errors the result is empty.
func (r *PermissionResolver) Resolve(ctx context.Context, s models.SessionContext, teams []models.TeamMembership) models.ResolvedPermissions {
	req := PermissionRequest{
		IdentityID:     s.IdentityID,
		OrganizationID: s.OrganizationID,
		Roles:          s.Roles,
		TeamIDs:        models.TeamIDs(teams),
		Context: map[string]interface{}{
			"source_ip":   s.SourceIP,
			"country":     s.Geo.Country,
			"ip_class":    string(s.Geo.IPClass),
			"auth_method": s.AuthMethod,
		},
	}

	for i, strategy := range r.strategies {
		perms, err := r.try(ctx, strategy, req, teams)
		if err != nil {
			r.log.Warn(ctx, "permission strategy failed",
				logger.String("strategy", strategy.Name()),
				logger.Err(err))
			continue
		}
		if i > 0 {
			r.metrics.RecordFallback("permissions", strategy.Name())
		}
		result := r.bound(perms)
		result.Strategy = strategy.Name()
		r.log.Info(ctx, "permission strategy selected",
			logger.String("strategy", strategy.Name()),
			logger.Int("permissions", len(result.Permissions)),
			logger.Bool("truncated", result.Truncated))
		return result
	}

	r.log.Error(ctx, "no permission strategy succeeded", nil)
	return models.ResolvedPermissions{Permissions: []string{}}
}

// try isolates a strategy so a panic inside it counts as a failure.
func (r *PermissionResolver) try(ctx context.Context, strategy PermissionStrategy, req PermissionRequest, teams []models.TeamMembership) (perms []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.ErrInternal(fmt.Sprintf("strategy %s panicked: %v", strategy.Name(), rec), nil)
		}
	}()
	return strategy.Resolve(ctx, req, teams)
}

func (r *PermissionResolver) bound(perms []string) models.ResolvedPermissions {
	unique := utils.RemoveDuplicates(perms)
	if len(unique) > r.maxPermissions {
		return models.ResolvedPermissions{Permissions: unique[:r.maxPermissions], Truncated: true}
	}
	return models.ResolvedPermissions{Permissions: unique}
}

// Primary returns the name of the preferred strategy, or "" when none is configured.
func (r *PermissionResolver) Primary() string {
	if len(r.strategies) == 0 {
		return ""
	}
	return r.strategies[0].Name()
}

// MergeTeams adds team-derived permissions to a set resolved from local
// defaults without teams. Sets resolved by any other strategy are returned as is.
func (r *PermissionResolver) MergeTeams(res models.ResolvedPermissions, teams []models.TeamMembership) models.ResolvedPermissions {
	if res.Strategy != models.StrategyLocalDefaults || len(teams) == 0 {
		return res
	}
	merged := r.bound(append(append([]string{}, res.Permissions...), TeamPermissions(teams)...))
	merged.Truncated = merged.Truncated || res.Truncated
	merged.Strategy = res.Strategy
	return merged
}
