package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPipeline struct{ mock.Mock }

func (m *mockPipeline) Evaluate(ctx context.Context, req *dto.AuthenticationRequest) *dto.AuthenticationResult {
	return m.Called(ctx, req).Get(0).(*dto.AuthenticationResult)
}

type mockAuthz struct{ mock.Mock }

func (m *mockAuthz) Authorize(ctx context.Context, req *dto.AuthorizeRequest) (*dto.AuthorizeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AuthorizeResponse), args.Error(1)
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) RecordFailure(ctx context.Context, req *dto.RecordFailureRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockProfiles) EnrollFactor(ctx context.Context, req *dto.EnrollFactorRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockAuditQuery struct{ mock.Mock }

func (m *mockAuditQuery) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEvent, error) {
	args := m.Called(ctx, actorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AuditEvent), args.Error(1)
}

func doJSON(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func validSession() map[string]interface{} {
	return map[string]interface{}{
		"identity_id":     "user-1",
		"organization_id": "org-1",
		"source_ip":       "10.1.2.3",
		"geo":             map[string]interface{}{"country": "US"},
		"timestamp":       time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestAuthHandler_Evaluate(t *testing.T) {
	pipeline := new(mockPipeline)
	h := NewAuthHandler(pipeline)
	r := gin.New()
	r.POST("/evaluate", h.Evaluate)

	result := &dto.AuthenticationResult{
		EventID:  "evt-9",
		Decision: models.Decision{Action: constants.ActionAllow},
	}
	pipeline.On("Evaluate", mock.Anything, mock.MatchedBy(func(req *dto.AuthenticationRequest) bool {
		return req.EventID == "evt-9" && req.Session.IdentityID == "user-1"
	})).Return(result).Once()

	w := doJSON(r, http.MethodPost, "/evaluate", map[string]interface{}{"session": validSession()},
		map[string]string{constants.HeaderEventID: "evt-9"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "evt-9", data["event_id"])
	pipeline.AssertExpectations(t)
}

func TestAuthHandler_Evaluate_BodyEventIDWins(t *testing.T) {
	pipeline := new(mockPipeline)
	r := gin.New()
	r.POST("/evaluate", NewAuthHandler(pipeline).Evaluate)

	pipeline.On("Evaluate", mock.Anything, mock.MatchedBy(func(req *dto.AuthenticationRequest) bool {
		return req.EventID == "from-body"
	})).Return(&dto.AuthenticationResult{EventID: "from-body"}).Once()

	w := doJSON(r, http.MethodPost, "/evaluate",
		map[string]interface{}{"event_id": "from-body", "session": validSession()},
		map[string]string{constants.HeaderEventID: "from-header"})
	assert.Equal(t, http.StatusOK, w.Code)
	pipeline.AssertExpectations(t)
}

func TestAuthHandler_Evaluate_Invalid(t *testing.T) {
	pipeline := new(mockPipeline)
	r := gin.New()
	r.POST("/evaluate", NewAuthHandler(pipeline).Evaluate)

	missingIP := validSession()
	delete(missingIP, "source_ip")

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing source ip", map[string]interface{}{"session": missingIP}},
		{"empty body", nil},
		{"wrong type", map[string]interface{}{"session": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/evaluate", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, errors.CodeInvalidRequest, body["error"].(map[string]interface{})["error"])
		})
	}
	pipeline.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestAuthorizeHandler(t *testing.T) {
	authz := new(mockAuthz)
	r := gin.New()
	r.POST("/authorize", NewAuthorizeHandler(authz).Authorize)

	authz.On("Authorize", mock.Anything, mock.MatchedBy(func(req *dto.AuthorizeRequest) bool {
		return req.Action == "read"
	})).Return(&dto.AuthorizeResponse{Allowed: true, Action: "read"}, nil).Once()
	authz.On("Authorize", mock.Anything, mock.MatchedBy(func(req *dto.AuthorizeRequest) bool {
		return req.Action == "bogus"
	})).Return(nil, errors.ErrValidation("unknown policy", nil)).Once()

	w := doJSON(r, http.MethodPost, "/authorize", map[string]interface{}{"action": "read"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["allowed"])

	w = doJSON(r, http.MethodPost, "/authorize", map[string]interface{}{"action": "bogus"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	authz.AssertExpectations(t)
}

func TestProfileHandler(t *testing.T) {
	profiles := new(mockProfiles)
	h := NewProfileHandler(profiles)
	r := gin.New()
	r.POST("/profiles/:identity_id/failures", h.RecordFailure)
	r.POST("/profiles/:identity_id/factors", h.EnrollFactor)

	profiles.On("RecordFailure", mock.Anything, mock.MatchedBy(func(req *dto.RecordFailureRequest) bool {
		return req.IdentityID == "user-1" && req.Reason == "bad_password" && req.SourceIP == "10.0.0.1"
	})).Return(nil).Once()
	profiles.On("EnrollFactor", mock.Anything, mock.MatchedBy(func(req *dto.EnrollFactorRequest) bool {
		return req.IdentityID == "user-1" && req.Factor == "totp"
	})).Return(nil).Once()
	profiles.On("EnrollFactor", mock.Anything, mock.MatchedBy(func(req *dto.EnrollFactorRequest) bool {
		return req.IdentityID == "user-2"
	})).Return(errors.ErrTransient("profile.enroll", 503)).Once()

	w := doJSON(r, http.MethodPost, "/profiles/user-1/failures",
		map[string]interface{}{"reason": "bad_password", "source_ip": "10.0.0.1"}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodPost, "/profiles/user-1/factors", map[string]interface{}{"factor": "totp"}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodPost, "/profiles/user-2/factors", map[string]interface{}{"factor": "totp"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	profiles.AssertExpectations(t)
}

func TestAuditHandler(t *testing.T) {
	q := new(mockAuditQuery)
	r := gin.New()
	r.GET("/audit/events", NewAuditHandler(q).ListEvents)

	q.On("ListByActor", mock.Anything, "user-1", maxAuditLimit).Return([]models.AuditEvent{{ID: "a1", ActorID: "user-1"}}, nil).Once()
	q.On("ListByActor", mock.Anything, "user-2", defaultAuditLimit).Return(nil, nil).Once()

	w := doJSON(r, http.MethodGet, "/audit/events?actor_id=user-1&limit=9999", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])

	w = doJSON(r, http.MethodGet, "/audit/events?actor_id=user-2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Empty(t, data["events"])

	w = doJSON(r, http.MethodGet, "/audit/events", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodGet, "/audit/events?actor_id=x&limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q.AssertExpectations(t)
}

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.ErrTransient("redis.ping", 0) })

	r := gin.New()
	healthy := NewHealthHandler(map[string]Pinger{"redis": ok, "vault": nil}, logger.NewNoopLogger())
	r.GET("/live", healthy.Liveness)
	r.GET("/ready", healthy.Readiness)
	unhealthy := NewHealthHandler(map[string]Pinger{"redis": ok, "database": down}, logger.NewNoopLogger())
	r.GET("/ready-bad", unhealthy.Readiness)

	w := doJSON(r, http.MethodGet, "/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	checks := decode(t, w)["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["redis"])
	assert.NotContains(t, checks, "vault")

	w = doJSON(r, http.MethodGet, "/ready-bad", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Contains(t, body["checks"].(map[string]interface{})["database"], "error: ")
}
