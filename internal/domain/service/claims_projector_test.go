package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

const testNamespace = "https://claims.example.com/"

func newTestProjector() *ClaimsProjector {
	cfg := config.DefaultConfig().Claims
	cfg.Namespace = testNamespace
	return NewClaimsProjector(cfg, logger.NewNoopLogger())
}

func projectionInput(scopes ...string) ProjectionInput {
	s := baseSession(businessHour)
	s.OrganizationName = "Acme"
	s.Roles = []string{"member"}
	s.RequestedScopes = scopes
	return ProjectionInput{
		Session:  s,
		Risk:     scored(15),
		Decision: models.Decision{Action: constants.ActionAllow},
		Directory: models.DirectoryData{
			Teams:      sampleTeams(),
			Department: &models.DepartmentInfo{ID: "d1", Name: "Engineering"},
		},
		Permissions: models.ResolvedPermissions{Permissions: []string{constants.PermReadUsers}},
	}
}

func keysOf(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, strings.TrimPrefix(k, testNamespace))
	}
	return keys
}

func TestClaimsProjector_AllScopes(t *testing.T) {
	p := newTestProjector()
	cs := p.Project(projectionInput("openid", "profile", "permissions", "teams", "risk", "geo", "department"))

	assert.ElementsMatch(t, []string{"org_id", "org_name", "roles", "teams", "department", "risk_level", "geo"}, keysOf(cs.IDToken))
	assert.ElementsMatch(t, []string{
		"org_id", "permissions", "permissions_truncated", "roles", "team_ids", "teams_truncated",
		"department_id", "risk_score", "risk_level", "geo_restricted", "geo_country", "session",
	}, keysOf(cs.AccessToken))

	v, ok := cs.AccessClaim(constants.ClaimTeamIDs)
	require.True(t, ok)
	assert.Equal(t, []string{"t1", "t2"}, v)
	v, _ = cs.AccessClaim(constants.ClaimRiskScore)
	assert.Equal(t, 15, v)
	v, _ = cs.AccessClaim(constants.ClaimSession)
	assert.Equal(t, map[string]interface{}{"challenged": false, "auth_method": "password", "ip_class": "residential"}, v)
}

func TestClaimsProjector_ProfileScopeOnly(t *testing.T) {
	p := newTestProjector()
	cs := p.Project(projectionInput("profile"))

	allowed := []string{"org_id", "roles", "org_name", "teams", "department", "geo"}
	for _, k := range keysOf(cs.AccessToken) {
		assert.Contains(t, allowed, k)
	}
	assert.ElementsMatch(t, []string{"org_id", "roles"}, keysOf(cs.AccessToken))
	assert.ElementsMatch(t, []string{"org_id", "roles", "org_name", "teams", "department", "geo"}, keysOf(cs.IDToken))
}

func TestClaimsProjector_OmitsNullValues(t *testing.T) {
	p := newTestProjector()
	in := projectionInput("profile", "department", "geo")
	in.Directory.Department = nil
	in.Session.OrganizationName = ""
	in.Session.Geo = models.GeoLocation{}

	cs := p.Project(in)
	for _, m := range []map[string]interface{}{cs.IDToken, cs.AccessToken} {
		for k, v := range m {
			assert.NotNil(t, v, k)
		}
	}
	_, ok := cs.IDClaim(constants.ClaimDepartment)
	assert.False(t, ok)
	_, ok = cs.AccessClaim(constants.ClaimDepartmentID)
	assert.False(t, ok)
	_, ok = cs.IDClaim(constants.ClaimGeo)
	assert.False(t, ok)
	_, ok = cs.IDClaim(constants.ClaimOrgName)
	assert.False(t, ok)
}

func TestClaimsProjector_TeamsCappedAndFlagged(t *testing.T) {
	cfg := config.DefaultConfig().Claims
	cfg.MaxTeams = 3
	p := NewClaimsProjector(cfg, logger.NewNoopLogger())
	in := projectionInput("teams")
	in.Directory.Teams = nil
	for i := 0; i < 5; i++ {
		in.Directory.Teams = append(in.Directory.Teams, models.TeamMembership{TeamID: fmt.Sprintf("t%d", i), Role: constants.TeamRoleMember})
	}

	cs := p.Project(in)
	v, _ := cs.AccessClaim(constants.ClaimTeamIDs)
	assert.Equal(t, []string{"t0", "t1", "t2"}, v)
	v, _ = cs.AccessClaim(constants.ClaimTeamsTruncated)
	assert.Equal(t, true, v)
}

func TestClaimsProjector_InvalidNamespaceFallsBack(t *testing.T) {
	for _, ns := range []string{"", "http://claims.example.com/", "https://claims.example.com", "claims/", "https:///"} {
		rec := logger.NewRecorder()
		cfg := config.DefaultConfig().Claims
		cfg.Namespace = ns
		p := NewClaimsProjector(cfg, rec)
		assert.Equal(t, constants.DefaultClaimsNamespace, p.Namespace(), ns)
		assert.Len(t, rec.Messages("invalid claims namespace, using default"), 1)
	}
}

func TestClaimsProjector_PartialEnrichmentSurvivesFiltering(t *testing.T) {
	p := newTestProjector()
	in := projectionInput()
	in.PartialEnrichment = true
	cs := p.Project(in)

	v, ok := cs.AccessClaim(constants.ClaimPartialEnrichment)
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.ElementsMatch(t, []string{"org_id", "roles", "partial_enrichment"}, keysOf(cs.AccessToken))
}

func TestClaimsProjector_Minimal(t *testing.T) {
	p := newTestProjector()
	s := baseSession(businessHour)
	s.Roles = []string{"member", "auditor"}

	cs := p.Minimal(s)
	assert.Equal(t, map[string]interface{}{
		testNamespace + "org_id":             "org-1",
		testNamespace + "roles":              []string{"member", "auditor"},
		testNamespace + "partial_enrichment": true,
	}, cs.AccessToken)
	assert.Equal(t, cs.AccessToken, cs.IDToken)
}
