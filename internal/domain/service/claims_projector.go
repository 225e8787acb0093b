package service

import (
	"context"
	"reflect"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// alwaysIncluded claims survive scope filtering.
var alwaysIncluded = []string{constants.ClaimOrgID, constants.ClaimRoles, constants.ClaimPartialEnrichment}

// ProjectionInput is everything the projector reads for one event.
type ProjectionInput struct {
	Session           models.SessionContext
	Risk              models.RiskAssessment
	Decision          models.Decision
	Directory         models.DirectoryData
	Permissions       models.ResolvedPermissions
	GeoRestricted     bool
	PartialEnrichment bool
}

// ClaimsProjector builds the identity-token and access-token claim maps.
type ClaimsProjector struct {
	namespace   string
	maxTeams    int
	scopeClaims map[string][]string
}

// NewClaimsProjector creates a ClaimsProjector. An invalid namespace is
// replaced by the default rather than failing.
func NewClaimsProjector(cfg config.ClaimsConfig, log logger.Logger) *ClaimsProjector {
	ns := cfg.Namespace
	if !utils.IsValidNamespace(ns) {
		log.Warn(context.Background(), "invalid claims namespace, using default",
			logger.String("namespace", ns),
			logger.String("default", constants.DefaultClaimsNamespace))
		ns = constants.DefaultClaimsNamespace
	}
	maxTeams := cfg.MaxTeams
	if maxTeams < 1 {
		maxTeams = constants.DefaultMaxTeams
	}
	scopeClaims := cfg.ScopeClaims
	if len(scopeClaims) == 0 {
		scopeClaims = config.DefaultScopeClaims()
	}
	return &ClaimsProjector{namespace: ns, maxTeams: maxTeams, scopeClaims: scopeClaims}
}

// Namespace returns the effective claims namespace.
func (p *ClaimsProjector) Namespace() string {
	return p.namespace
}

// Project assembles both claim maps and filters them by the requested scopes.
func (p *ClaimsProjector) Project(in ProjectionInput) *models.ClaimSet {
	cs := models.NewClaimSet(p.namespace)
	s := in.Session

	teams := in.Directory.Teams
	teamsTruncated := false
	if len(teams) > p.maxTeams {
		teams = teams[:p.maxTeams]
		teamsTruncated = true
	}
	teamSummaries := make([]map[string]interface{}, 0, len(teams))
	for _, t := range teams {
		teamSummaries = append(teamSummaries, map[string]interface{}{"id": t.TeamID, "name": t.Name, "role": t.Role})
	}

	var department map[string]interface{}
	var departmentID string
	if d := in.Directory.Department; d != nil {
		department = map[string]interface{}{"id": d.ID, "name": d.Name}
		departmentID = d.ID
	}

	var geo map[string]interface{}
	if s.Geo.Country != "" || s.Geo.City != "" {
		geo = map[string]interface{}{}
		put(geo, "country", s.Geo.Country)
		put(geo, "city", s.Geo.City)
	}

	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}

	put(cs.IDToken, cs.Key(constants.ClaimOrgID), s.OrganizationID)
	put(cs.IDToken, cs.Key(constants.ClaimOrgName), s.OrganizationName)
	put(cs.IDToken, cs.Key(constants.ClaimRoles), roles)
	put(cs.IDToken, cs.Key(constants.ClaimTeams), teamSummaries)
	put(cs.IDToken, cs.Key(constants.ClaimDepartment), department)
	put(cs.IDToken, cs.Key(constants.ClaimRiskLevel), string(in.Risk.Level))
	put(cs.IDToken, cs.Key(constants.ClaimGeo), geo)

	put(cs.AccessToken, cs.Key(constants.ClaimOrgID), s.OrganizationID)
	put(cs.AccessToken, cs.Key(constants.ClaimPermissions), in.Permissions.Permissions)
	put(cs.AccessToken, cs.Key(constants.ClaimPermissionsTruncated), in.Permissions.Truncated)
	put(cs.AccessToken, cs.Key(constants.ClaimRoles), roles)
	put(cs.AccessToken, cs.Key(constants.ClaimTeamIDs), models.TeamIDs(teams))
	put(cs.AccessToken, cs.Key(constants.ClaimTeamsTruncated), teamsTruncated)
	put(cs.AccessToken, cs.Key(constants.ClaimDepartmentID), departmentID)
	put(cs.AccessToken, cs.Key(constants.ClaimRiskScore), in.Risk.Score)
	put(cs.AccessToken, cs.Key(constants.ClaimRiskLevel), string(in.Risk.Level))
	put(cs.AccessToken, cs.Key(constants.ClaimGeoRestricted), in.GeoRestricted)
	put(cs.AccessToken, cs.Key(constants.ClaimGeoCountry), s.Geo.Country)
	put(cs.AccessToken, cs.Key(constants.ClaimSession), sessionSummary(s, in.Decision))
	if in.PartialEnrichment {
		put(cs.IDToken, cs.Key(constants.ClaimPartialEnrichment), true)
		put(cs.AccessToken, cs.Key(constants.ClaimPartialEnrichment), true)
	}

	p.filter(cs, s.RequestedScopes)
	return cs
}

// Minimal returns the degraded claim set used when enrichment failed:
// organization id, base roles and the partial-enrichment flag.
func (p *ClaimsProjector) Minimal(s models.SessionContext) *models.ClaimSet {
	cs := models.NewClaimSet(p.namespace)
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	for _, m := range []map[string]interface{}{cs.IDToken, cs.AccessToken} {
		put(m, cs.Key(constants.ClaimOrgID), s.OrganizationID)
		put(m, cs.Key(constants.ClaimRoles), roles)
		put(m, cs.Key(constants.ClaimPartialEnrichment), true)
	}
	return cs
}

// AllowedClaims returns the claim names released by scopes, base claims included.
func (p *ClaimsProjector) AllowedClaims(scopes []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(alwaysIncluded))
	for _, name := range alwaysIncluded {
		allowed[name] = struct{}{}
	}
	for _, scope := range scopes {
		for _, name := range p.scopeClaims[scope] {
			allowed[name] = struct{}{}
		}
	}
	return allowed
}

func (p *ClaimsProjector) filter(cs *models.ClaimSet, scopes []string) {
	allowed := make(map[string]struct{})
	for name := range p.AllowedClaims(scopes) {
		allowed[cs.Key(name)] = struct{}{}
	}
	for _, m := range []map[string]interface{}{cs.IDToken, cs.AccessToken} {
		for key := range m {
			if _, ok := allowed[key]; !ok {
				delete(m, key)
			}
		}
	}
}

func sessionSummary(s models.SessionContext, d models.Decision) map[string]interface{} {
	summary := map[string]interface{}{"challenged": d.Action == constants.ActionChallenge}
	put(summary, "auth_method", s.AuthMethod)
	put(summary, "ip_class", string(s.Geo.IPClass))
	return summary
}

// put stores value unless it is nil, an empty string or a nil map/slice.
func put(m map[string]interface{}, key string, value interface{}) {
	if value == nil {
		return
	}
	if str, ok := value.(string); ok && str == "" {
		return
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return
		}
	}
	m[key] = value
}
