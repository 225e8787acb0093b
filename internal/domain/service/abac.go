package service

import (
	"context"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// Subject is the authenticated identity an authorization check is made for.
type Subject struct {
	IdentityID     string
	Email          string
	SourceIP       string
	OrganizationID string
	Roles          []string
	Permissions    models.ResolvedPermissions
	Attributes     map[string]interface{}
	RiskScore      int
}

// Resource is the object being accessed.
type Resource struct {
	Type           string
	ID             string
	OrganizationID string
	OwnerID        string
	Attributes     map[string]interface{}
}

// Predicate is a single attribute-based condition.
type Predicate func(sub Subject, res Resource) bool

// All is true when every predicate is true. It stops at the first false.
func All(preds ...Predicate) Predicate {
	return func(sub Subject, res Resource) bool {
		for _, p := range preds {
			if !p(sub, res) {
				return false
			}
		}
		return true
	}
}

// Any is true when at least one predicate is true. It stops at the first true.
func Any(preds ...Predicate) Predicate {
	return func(sub Subject, res Resource) bool {
		for _, p := range preds {
			if p(sub, res) {
				return true
			}
		}
		return false
	}
}

// SameOrganization passes when the resource has no organization or shares the subject's.
func SameOrganization(sub Subject, res Resource) bool {
	if res.OrganizationID == "" {
		return true
	}
	return sub.OrganizationID == res.OrganizationID
}

// OwnedBy passes when the subject owns the resource.
func OwnedBy(sub Subject, res Resource) bool {
	return res.OwnerID != "" && res.OwnerID == sub.IdentityID
}

// HasPermission passes when the subject was granted perm.
func HasPermission(perm string) Predicate {
	return func(sub Subject, _ Resource) bool {
		return sub.Permissions.Has(perm)
	}
}

// HasRole passes when the subject holds role.
func HasRole(role string) Predicate {
	return func(sub Subject, _ Resource) bool {
		return utils.ContainsString(sub.Roles, role)
	}
}

// HasAttribute passes when the subject attribute name equals value.
func HasAttribute(name string, value interface{}) Predicate {
	return func(sub Subject, _ Resource) bool {
		v, ok := sub.Attributes[name]
		return ok && v == value
	}
}

// RiskBelow passes when the subject's current risk score is under ceiling.
func RiskBelow(ceiling int) Predicate {
	return func(sub Subject, _ Resource) bool {
		return sub.RiskScore < ceiling
	}
}

// NamedPolicies returns the predicates addressable by name from the HTTP interface.
func NamedPolicies(riskCeiling int) map[string]Predicate {
	return map[string]Predicate{
		"same_organization": SameOrganization,
		"owned_by":          OwnedBy,
		"low_risk":          RiskBelow(riskCeiling),
		"owner_or_admin":    Any(OwnedBy, HasPermission(constants.PermAdminAccess)),
	}
}

// AccessRequirement is what a subject needs for one access.
type AccessRequirement struct {
	Action      string
	Permissions []string
	RequireAll  bool
	Roles       []string
	Policies    []Predicate
}

// Authorizer combines RBAC and ABAC checks. Subjects holding the bypass
// permission pass every check, and each bypass is audited synchronously.
type Authorizer struct {
	bypass  string
	audit   AuditEmitter
	metrics Metrics
	log     logger.Logger
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(bypassPermission string, audit AuditEmitter, metrics Metrics, log logger.Logger) *Authorizer {
	if bypassPermission == "" {
		bypassPermission = constants.PermSystemAdmin
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Authorizer{bypass: bypassPermission, audit: audit, metrics: metrics, log: log.WithComponent("Authorizer")}
}

// Check reports whether sub may access res under req.
func (a *Authorizer) Check(ctx context.Context, sub Subject, res Resource, req AccessRequirement) bool {
	if sub.Permissions.Has(a.bypass) {
		a.metrics.RecordPrivilegeBypass()
		a.log.Warn(ctx, "authorization bypassed by privileged permission",
			logger.String("identity_id", sub.IdentityID),
			logger.String("resource_type", res.Type),
			logger.String("resource_id", res.ID))
		event := models.NewAuditEvent(constants.AuditEventAdminOverride, constants.OutcomeSuccess).
			WithActor(sub.IdentityID, sub.Email, sub.SourceIP).
			WithOrganization(sub.OrganizationID).
			WithTarget(res.Type, res.ID).
			WithDetails(map[string]interface{}{"bypass_permission": a.bypass, "action": req.Action})
		a.audit.EmitSync(ctx, *event)
		return true
	}

	if !a.checkRBAC(sub, req) || !All(req.Policies...)(sub, res) {
		a.log.Info(ctx, "access denied",
			logger.String("identity_id", sub.IdentityID),
			logger.String("resource_type", res.Type),
			logger.String("action", req.Action))
		event := models.NewAuditEvent(constants.AuditEventAccessDenied, constants.OutcomeFailure).
			WithActor(sub.IdentityID, sub.Email, sub.SourceIP).
			WithOrganization(sub.OrganizationID).
			WithTarget(res.Type, res.ID).
			WithDetails(map[string]interface{}{"action": req.Action})
		a.audit.EmitAsync(*event)
		return false
	}
	return true
}

func (a *Authorizer) checkRBAC(sub Subject, req AccessRequirement) bool {
	if len(req.Permissions) > 0 {
		perms := make([]Predicate, 0, len(req.Permissions))
		for _, p := range req.Permissions {
			perms = append(perms, HasPermission(p))
		}
		combine := Any
		if req.RequireAll {
			combine = All
		}
		if !combine(perms...)(sub, Resource{}) {
			return false
		}
	}
	for _, role := range req.Roles {
		if !utils.ContainsString(sub.Roles, role) {
			return false
		}
	}
	return true
}
