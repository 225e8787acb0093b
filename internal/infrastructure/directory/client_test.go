package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	gw := gateway.New(gateway.NoDelayPolicy(3), logger.NewNoopLogger())
	c, err := NewClient(config.DirectoryConfig{BaseURL: srv.URL + "/"}, srv.Client(), gw, logger.NewNoopLogger(), nil)
	require.NoError(t, err)
	return c
}

func TestGetTeams_DecodesAndCaches(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/organizations/org-1/members/user-1/teams", r.URL.Path)
		_, _ = w.Write([]byte(`{"teams":[
			{"id":"t1","name":"Platform","role":"lead","permissions":["deploy:prod"]},
			{"id":"t2","name":"Infra","role":"member","parent_team_id":"t1"},
			{"id":"","name":"ghost"}]}`))
	})

	teams, err := c.GetTeams(context.Background(), "user-1", "org-1")
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "lead", teams[0].Role)
	assert.Equal(t, []string{"deploy:prod"}, teams[0].Permissions)
	require.NotNil(t, teams[1].ParentTeamID)
	assert.Equal(t, "t1", *teams[1].ParentTeamID)

	_, err = c.GetTeams(context.Background(), "user-1", "org-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits)
}

func TestCachedTeams_OnlyAfterLookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"teams":[{"id":"t1","name":"Platform","role":"member"}]}`))
	})

	_, ok := c.CachedTeams("user-1", "org-1")
	assert.False(t, ok)

	_, err := c.GetTeams(context.Background(), "user-1", "org-1")
	require.NoError(t, err)

	teams, ok := c.CachedTeams("user-1", "org-1")
	require.True(t, ok)
	require.Len(t, teams, 1)
	assert.Equal(t, "t1", teams[0].TeamID)

	_, ok = c.CachedTeams("user-1", "org-2")
	assert.False(t, ok)
}

func TestGetTeams_FailureIsNotCached(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"teams":[]}`))
	})

	_, err := c.GetTeams(context.Background(), "user-1", "org-1")
	require.Error(t, err)
	assert.Equal(t, errors.KindTerminal, errors.KindOf(err))

	teams, err := c.GetTeams(context.Background(), "user-1", "org-1")
	require.NoError(t, err)
	assert.Empty(t, teams)
	assert.EqualValues(t, 4, hits)
}

func TestGetDepartment_NotFoundIsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	dept, err := c.GetDepartment(context.Background(), "user-1", "org-1")
	require.NoError(t, err)
	assert.Nil(t, dept)
}

func TestGetDepartment_Decodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/org-1/members/user-1/department", r.URL.Path)
		_, _ = w.Write([]byte(`{"department":{"id":"d1","name":"Engineering","cost_center":"CC-7"}}`))
	})

	dept, err := c.GetDepartment(context.Background(), "user-1", "org-1")
	require.NoError(t, err)
	require.NotNil(t, dept)
	assert.Equal(t, "Engineering", dept.Name)
	assert.Equal(t, "CC-7", dept.CostCenter)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.DirectoryConfig{}, nil, gateway.New(gateway.NoDelayPolicy(1), logger.NewNoopLogger()), logger.NewNoopLogger(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
}
