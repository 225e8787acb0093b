package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	appservice "github.com/turtacn/aegis/internal/application/service"
	"github.com/turtacn/aegis/internal/config"
	domainservice "github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/audit"
	"github.com/turtacn/aegis/internal/infrastructure/consumers"
	"github.com/turtacn/aegis/internal/infrastructure/directory"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/internal/infrastructure/permission"
	"github.com/turtacn/aegis/internal/infrastructure/persistence/database"
	redisconn "github.com/turtacn/aegis/internal/infrastructure/persistence/redis"
	"github.com/turtacn/aegis/internal/infrastructure/policy"
	profilestore "github.com/turtacn/aegis/internal/infrastructure/redis"
	"github.com/turtacn/aegis/internal/infrastructure/secrets"
	httpapi "github.com/turtacn/aegis/internal/interfaces/http"
	"github.com/turtacn/aegis/internal/interfaces/http/handlers"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

var version = "dev"

// app holds everything that needs an orderly shutdown.
type app struct {
	router   *httpapi.Router
	pipeline *appservice.AuthPipeline
	log      logger.Logger

	emitter  *domainservice.QueuedAuditEmitter
	tracing  *monitoring.TracingManager
	consumer *consumers.FailureConsumer
	closers  []func() error
}

func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger) (a *app, err error) {
	a = &app{log: log}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Observability
	a.tracing, err = monitoring.NewTracingManager(cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)
	metricsAdapter := monitoring.NewMetricsAdapter(metrics)

	gw := gateway.New(gateway.PolicyFromConfig(cfg.Gateway), log,
		gateway.WithMetrics(metricsAdapter),
		gateway.WithTracer(a.tracing.Tracer()),
	)
	httpClient := &http.Client{}

	// Profile store
	redisConn := redisconn.NewRedisConnection(cfg.Redis, log)
	if err = redisConn.Connect(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, redisConn.Close)
	profiles := profilestore.NewRedisProfileStore(redisConn.GetClient(), gw, cfg.Redis.KeyPrefix, cfg.Redis.ProfileTTL, log)

	checks := map[string]handlers.Pinger{"redis": redisConn}

	// Enrichment
	deps := appservice.PipelineDeps{
		Profiles: profiles,
		Metrics:  metricsAdapter,
		Tracer:   a.tracing.Tracer(),
	}
	if cfg.Directory.BaseURL != "" {
		dir, derr := directory.NewClient(cfg.Directory, httpClient, gw, log, metricsAdapter)
		if derr != nil {
			return nil, derr
		}
		deps.Directory = dir
	} else {
		log.Warn(ctx, "Directory service not configured, teams and department stay empty")
	}

	roleTable, err := policy.LoadRoleTable(cfg.Permissions.RoleTableFile)
	if err != nil {
		return nil, errors.ErrConfiguration("permissions.role_table_file", "unreadable").WithCause(err)
	}
	var strategies []domainservice.PermissionStrategy
	if cfg.Permissions.ServiceURL != "" {
		permClient, perr := permission.NewClient(cfg.Permissions.ServiceURL, httpClient, gw, log)
		if perr != nil {
			return nil, perr
		}
		strategies = append(strategies, domainservice.NewExternalPermissionStrategy(permClient))
	}
	strategies = append(strategies, domainservice.NewLocalPermissionStrategy(roleTable))
	deps.Permissions = domainservice.NewPermissionResolver(cfg.Permissions.MaxPermissions, log, metricsAdapter, strategies...)

	// Audit trail
	var vault *secrets.VaultClient
	if cfg.Vault.Enabled {
		vault, err = secrets.NewVaultClient(cfg.Vault, log)
		if err != nil {
			return nil, err
		}
		checks["vault"] = vault
	}
	signer, err := buildSigner(ctx, cfg, vault, log)
	if err != nil {
		return nil, err
	}

	sink, query, err := a.buildSink(ctx, cfg, gw, log, checks)
	if err != nil {
		return nil, err
	}
	a.emitter = domainservice.NewAuditEmitter(sink, signer, domainservice.AuditEmitterOptions{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
		Timeout:   cfg.Audit.Timeout,
	}, log, metricsAdapter)
	deps.Audit = a.emitter

	// Application services
	a.pipeline = appservice.NewAuthPipeline(cfg, deps, log)
	authorizer := domainservice.NewAuthorizer(cfg.Permissions.BypassPermission, a.emitter, metricsAdapter, log)
	authz := appservice.NewAuthorizationService(authorizer, domainservice.NamedPolicies(cfg.Decision.ChallengeThreshold), log)
	profileSvc := appservice.NewProfileService(profiles, a.emitter, log)
	if cfg.Kafka.FailureTopic != "" {
		a.consumer = consumers.NewFailureConsumer(consumers.NewKafkaReader(cfg.Kafka), profileSvc, log)
		a.closers = append(a.closers, a.consumer.Close)
	}

	routerDeps := httpapi.RouterDeps{
		Health:    handlers.NewHealthHandler(checks, log),
		Auth:      handlers.NewAuthHandler(a.pipeline),
		Authorize: handlers.NewAuthorizeHandler(authz),
		Profiles:  handlers.NewProfileHandler(profileSvc),
		Metrics:   metrics,
		Gatherer:  registry,
		Tracer:    a.tracing.Tracer(),
		Redis:     redisConn.GetClient(),
	}
	if query != nil {
		routerDeps.Audit = handlers.NewAuditHandler(query)
	}
	a.router = httpapi.NewRouter(cfg, routerDeps, log)
	return a, nil
}

// buildSigner prefers the Vault-held key and falls back to audit.signing_key.
// Without either, events are emitted unsigned.
func buildSigner(ctx context.Context, cfg *config.Config, vault *secrets.VaultClient, log logger.Logger) (domainservice.EventSigner, error) {
	var key []byte
	if vault != nil {
		k, err := vault.AuditSigningKey(ctx, cfg.Vault.AuditKeyPath, cfg.Vault.AuditKeyField)
		if err != nil {
			return nil, err
		}
		key = k
	} else if cfg.Audit.SigningKey != "" {
		key = []byte(cfg.Audit.SigningKey)
	}
	if len(key) == 0 {
		log.Warn(ctx, "No audit signing key configured, audit events are unsigned")
		return nil, nil
	}
	signer, err := audit.NewHMACSigner(key)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

func (a *app) buildSink(ctx context.Context, cfg *config.Config, gw *gateway.Gateway, log logger.Logger, checks map[string]handlers.Pinger) (domainservice.AuditSink, handlers.AuditQuery, error) {
	switch cfg.Audit.Sink {
	case "kafka":
		writer, err := audit.NewKafkaWriter(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		sink := audit.NewKafkaSink(writer, gw, log)
		a.closers = append(a.closers, sink.Close)
		return sink, nil, nil
	case "database":
		db, err := database.NewDBConnection(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db
		sink := audit.NewGormSink(db.DB(), gw)
		if err := sink.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return sink, sink, nil
	default:
		return audit.NewLogSink(log), nil, nil
	}
}

// start launches background workers; they stop when ctx is cancelled.
func (a *app) start(ctx context.Context) {
	if a.consumer != nil {
		go a.consumer.Start(ctx)
	}
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.router.Stop(ctx); err != nil {
		a.log.Error(ctx, "HTTP server forced to shutdown", err)
	}
	if a.emitter != nil {
		if err := a.emitter.Close(ctx); err != nil {
			a.log.Error(ctx, "Audit queue not fully drained", err)
		}
	}
	a.closeResources()
	if a.tracing != nil {
		_ = a.tracing.Shutdown(ctx)
	}
}

func (a *app) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error(context.Background(), "Failed to close resource", err)
		}
	}
	a.closers = nil
}
