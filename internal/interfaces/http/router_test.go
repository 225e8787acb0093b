package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/internal/interfaces/http/handlers"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPipeline struct{ calls int }

func (s *stubPipeline) Evaluate(_ context.Context, req *dto.AuthenticationRequest) *dto.AuthenticationResult {
	s.calls++
	return &dto.AuthenticationResult{EventID: req.EventID, Decision: models.Decision{Action: constants.ActionAllow}}
}

type stubAuthz struct{}

func (stubAuthz) Authorize(_ context.Context, req *dto.AuthorizeRequest) (*dto.AuthorizeResponse, error) {
	return &dto.AuthorizeResponse{Allowed: true, Action: req.Action}, nil
}

type stubProfiles struct{}

func (stubProfiles) RecordFailure(context.Context, *dto.RecordFailureRequest) error { return nil }
func (stubProfiles) EnrollFactor(context.Context, *dto.EnrollFactorRequest) error  { return nil }

const evaluateBody = `{"session":{"identity_id":"u1","organization_id":"o1","source_ip":"10.0.0.1","geo":{"country":"US"}}}`

func newTestRouter(t *testing.T, mutate func(*config.Config)) (*Router, *stubPipeline) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServiceAuth = config.ServiceAuthConfig{Enabled: true, Secret: "shared"}
	if mutate != nil {
		mutate(cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := prometheus.NewRegistry()
	log := logger.NewNoopLogger()
	pipeline := &stubPipeline{}
	deps := RouterDeps{
		Health:    handlers.NewHealthHandler(map[string]handlers.Pinger{"redis": handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})}, log),
		Auth:      handlers.NewAuthHandler(pipeline),
		Authorize: handlers.NewAuthorizeHandler(stubAuthz{}),
		Profiles:  handlers.NewProfileHandler(stubProfiles{}),
		Metrics:   monitoring.NewMetrics(reg),
		Gatherer:  reg,
		Tracer:    noop.NewTracerProvider().Tracer("test"),
		Redis:     rdb,
	}
	return NewRouter(cfg, deps, log), pipeline
}

func bearer(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "host",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("shared"))
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r *Router, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	return w
}

func TestRouter_EvaluateRequiresServiceToken(t *testing.T) {
	r, pipeline := newTestRouter(t, nil)

	w := serve(r, http.MethodPost, "/api/v1/auth/evaluate", evaluateBody, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, pipeline.calls)

	w = serve(r, http.MethodPost, "/api/v1/auth/evaluate", evaluateBody, map[string]string{"Authorization": bearer(t)})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, pipeline.calls)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderRequestID))
}

func TestRouter_EvaluateReplayRejected(t *testing.T) {
	r, pipeline := newTestRouter(t, nil)
	headers := map[string]string{"Authorization": bearer(t), constants.HeaderEventID: "evt-1"}

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/auth/evaluate", evaluateBody, headers).Code)
	assert.Equal(t, http.StatusConflict, serve(r, http.MethodPost, "/api/v1/auth/evaluate", evaluateBody, headers).Code)
	assert.Equal(t, 1, pipeline.calls)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health/ready", "", nil).Code)

	// generate one observation so the http collectors are exported
	serve(r, http.MethodGet, "/health/live", "", nil)
	w := serve(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aegis_http_requests_total")

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/nope", "", nil).Code)
}

func TestRouter_OptionalRoutes(t *testing.T) {
	r, _ := newTestRouter(t, func(c *config.Config) { c.ServiceAuth.Enabled = false })

	// audit query is only mounted with a queryable sink
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/audit/events?actor_id=u1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/debug/pprof/", "", nil).Code)

	w := serve(r, http.MethodPost, "/api/v1/profiles/u1/factors", `{"factor":"totp"}`, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = serve(r, http.MethodPost, "/api/v1/authorize", `{"action":"read"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	withPprof, _ := newTestRouter(t, func(c *config.Config) { c.Server.EnablePprof = true })
	assert.Equal(t, http.StatusOK, serve(withPprof, http.MethodGet, "/debug/pprof/", "", nil).Code)
}
