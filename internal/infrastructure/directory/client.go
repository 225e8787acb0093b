// Package directory implements the team/department directory service over HTTP.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

type teamDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	ParentTeamID *string  `json:"parent_team_id,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

type teamsResponse struct {
	Teams []teamDTO `json:"teams"`
}

type departmentResponse struct {
	Department *struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		CostCenter string `json:"cost_center,omitempty"`
		ManagerID  string `json:"manager_id,omitempty"`
	} `json:"department"`
}

// Client reads team memberships and departments from the directory service.
// Successful lookups are cached in memory for a short TTL.
type Client struct {
	baseURL string
	http    *http.Client
	gw      *gateway.Gateway
	cache   *cache.Cache
	log     logger.Logger
	metrics service.Metrics
}

var (
	_ service.DirectoryService = (*Client)(nil)
	_ service.TeamCache        = (*Client)(nil)
)

// NewClient creates a directory Client. An empty base URL is a configuration error.
func NewClient(cfg config.DirectoryConfig, httpClient *http.Client, gw *gateway.Gateway, log logger.Logger, metrics service.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.ErrConfiguration("directory.base_url", "must not be empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		gw:      gw,
		cache:   cache.New(ttl, cleanup),
		log:     log.WithComponent("DirectoryClient"),
		metrics: metrics,
	}, nil
}

// GetTeams returns the teams identityID belongs to within orgID.
func (c *Client) GetTeams(ctx context.Context, identityID, orgID string) ([]models.TeamMembership, error) {
	if teams, ok := c.CachedTeams(identityID, orgID); ok {
		c.metrics.RecordCacheAccess("directory_teams", true)
		return teams, nil
	}
	c.metrics.RecordCacheAccess("directory_teams", false)
	key := teamsKey(identityID, orgID)

	var resp teamsResponse
	op := gateway.HTTPOperation(c.http, "directory.get_teams",
		gateway.JSONRequest(http.MethodGet, c.memberURL(identityID, orgID, "teams"), nil, nil))
	if err := c.gw.InvokeJSON(ctx, op, &resp); err != nil {
		return nil, err
	}

	teams := make([]models.TeamMembership, 0, len(resp.Teams))
	for _, t := range resp.Teams {
		if t.ID == "" {
			continue
		}
		teams = append(teams, models.TeamMembership{
			TeamID:       t.ID,
			Name:         t.Name,
			Role:         t.Role,
			ParentTeamID: t.ParentTeamID,
			Permissions:  t.Permissions,
		})
	}
	c.cache.SetDefault(key, teams)
	return teams, nil
}

// CachedTeams returns the teams of identityID if a previous lookup is still cached.
func (c *Client) CachedTeams(identityID, orgID string) ([]models.TeamMembership, bool) {
	v, found := c.cache.Get(teamsKey(identityID, orgID))
	if !found {
		return nil, false
	}
	teams, ok := v.([]models.TeamMembership)
	return teams, ok
}

// GetDepartment returns the department of identityID, or nil when the
// directory has none on record.
func (c *Client) GetDepartment(ctx context.Context, identityID, orgID string) (*models.DepartmentInfo, error) {
	key := fmt.Sprintf("department:%s:%s", orgID, identityID)
	if v, found := c.cache.Get(key); found {
		if dept, ok := v.(*models.DepartmentInfo); ok {
			c.metrics.RecordCacheAccess("directory_department", true)
			return dept, nil
		}
	}
	c.metrics.RecordCacheAccess("directory_department", false)

	var resp departmentResponse
	op := gateway.HTTPOperation(c.http, "directory.get_department",
		gateway.JSONRequest(http.MethodGet, c.memberURL(identityID, orgID, "department"), nil, nil))
	err := c.gw.InvokeJSON(ctx, op, &resp)
	if isStatus(err, http.StatusNotFound) {
		c.log.Debug(ctx, "no department on record", logger.String("identity_id", identityID))
		c.cache.SetDefault(key, (*models.DepartmentInfo)(nil))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dept *models.DepartmentInfo
	if d := resp.Department; d != nil && d.ID != "" {
		dept = &models.DepartmentInfo{ID: d.ID, Name: d.Name, CostCenter: d.CostCenter, ManagerID: d.ManagerID}
	}
	c.cache.SetDefault(key, dept)
	return dept, nil
}

// Flush drops every cached entry.
func (c *Client) Flush() {
	c.cache.Flush()
}

func teamsKey(identityID, orgID string) string {
	return fmt.Sprintf("teams:%s:%s", orgID, identityID)
}

func (c *Client) memberURL(identityID, orgID, resource string) string {
	return fmt.Sprintf("%s/organizations/%s/members/%s/%s",
		c.baseURL, url.PathEscape(orgID), url.PathEscape(identityID), resource)
}

func isStatus(err error, status int) bool {
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code() != errors.CodeUpstreamRejected {
		return false
	}
	s, _ := appErr.Metadata()["status"].(int)
	return s == status
}
