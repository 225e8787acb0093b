package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/internal/interfaces/http/handlers"
	"github.com/turtacn/aegis/internal/interfaces/http/middleware"
	"github.com/turtacn/aegis/pkg/logger"
)

// RouterDeps are the collaborators the HTTP surface is built from.
// Audit may be nil when the audit sink cannot be queried; Redis may be nil
// to disable the event replay guard.
// RouterDeps 汇总构建 HTTP 接口所需的依赖。
type RouterDeps struct {
	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Authorize *handlers.AuthorizeHandler
	Profiles  *handlers.ProfileHandler
	Audit     *handlers.AuditHandler

	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	Tracer   trace.Tracer
	Redis    redis.UniversalClient
}

// Router owns the Gin engine and the HTTP server.
// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger logger.Logger
	deps   RouterDeps
	server *http.Server
}

// NewRouter creates the router and registers every route.
// NewRouter 创建路由器并注册全部路由
func NewRouter(cfg *config.Config, deps RouterDeps, log logger.Logger) *Router {
	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: log.WithComponent("HTTPServer"),
		deps:   deps,
	}
	r.setupRoutes()
	return r
}

// Handler exposes the engine, mainly for tests.
// Handler 返回底层 Gin 引擎。
func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	// global middleware
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.LoggingMiddleware(r.logger))
	if r.deps.Metrics != nil && r.deps.Tracer != nil {
		r.engine.Use(middleware.ObservabilityMiddleware(r.deps.Tracer, r.deps.Metrics))
	}

	// health checks need no service token
	r.engine.GET("/health/live", r.deps.Health.Liveness)
	r.engine.GET("/health/ready", r.deps.Health.Readiness)

	// Prometheus metrics
	metricsHandler := promhttp.Handler()
	if r.deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})
	}
	r.engine.GET("/metrics", gin.WrapH(metricsHandler))

	if r.config.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/api/v1")
	v1.Use(middleware.RequireServiceToken(r.config.ServiceAuth, r.logger))
	{
		v1.POST("/auth/evaluate", middleware.EventReplayGuard(r.deps.Redis, r.config.Pipeline.ReplayWindow, r.logger), r.deps.Auth.Evaluate)
		v1.POST("/authorize", r.deps.Authorize.Authorize)

		profiles := v1.Group("/profiles/:identity_id")
		{
			profiles.POST("/failures", r.deps.Profiles.RecordFailure)
			profiles.POST("/factors", r.deps.Profiles.EnrollFactor)
		}

		if r.deps.Audit != nil {
			v1.GET("/audit/events", r.deps.Audit.ListEvents)
		}
	}

	// 404
	r.engine.NoRoute(handlers.NotFound)
}

// Start runs the HTTP server and blocks until it is stopped.
// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    r.config.Server.ReadTimeout,
		WriteTimeout:   r.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", addr))
	if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
// Stop 优雅停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

//Personal.AI order the ending
