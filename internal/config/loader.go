package config

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// Loader reads configuration from file and environment and keeps the last
// valid result for hot reload.
type Loader struct {
	v       *viper.Viper
	log     logger.Logger
	mu      sync.RWMutex
	current *Config
}

// NewLoader creates a Loader. An empty configFile searches /etc/aegis/ and the working directory.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/aegis/")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log.WithComponent("ConfigLoader")}
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(configFile string, log logger.Logger) (*Config, error) {
	return NewLoader(configFile, log).Load()
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.ErrConfiguration("config_file", "unreadable").WithCause(err)
		}
		l.log.Info(context.Background(), "no config file found, using defaults and environment")
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch reloads the configuration when the file changes. An invalid
// configuration is logged and ignored; the previous one stays current.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		cfg, err := l.decode()
		if err != nil {
			l.log.Error(ctx, "config reload rejected", err, logger.String("file", e.Name))
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		l.log.Info(ctx, "config reloaded", logger.String("file", e.Name), logger.String("op", e.Op.String()))
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrConfiguration("config", "failed to unmarshal").WithCause(err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		l.log.Warn(context.Background(), "invalid setting replaced by default", logger.String("detail", w))
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.enable_pprof", d.Server.EnablePprof)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_path", d.Log.OutputPath)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.jaeger_endpoint", d.Tracing.JaegerEndpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("redis.addresses", d.Redis.Addresses)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.profile_ttl", d.Redis.ProfileTTL)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.audit_topic", d.Kafka.AuditTopic)
	v.SetDefault("kafka.write_timeout", d.Kafka.WriteTimeout)
	v.SetDefault("kafka.read_timeout", d.Kafka.ReadTimeout)
	v.SetDefault("kafka.required_acks", d.Kafka.RequiredAcks)
	v.SetDefault("kafka.batch_size", d.Kafka.BatchSize)
	v.SetDefault("kafka.batch_timeout", d.Kafka.BatchTimeout)
	v.SetDefault("kafka.failure_topic", d.Kafka.FailureTopic)
	v.SetDefault("kafka.consumer_group", d.Kafka.ConsumerGroup)

	v.SetDefault("vault.enabled", d.Vault.Enabled)
	v.SetDefault("vault.address", d.Vault.Address)
	v.SetDefault("vault.token", d.Vault.Token)
	v.SetDefault("vault.mount_path", d.Vault.MountPath)
	v.SetDefault("vault.audit_key_path", d.Vault.AuditKeyPath)
	v.SetDefault("vault.audit_key_field", d.Vault.AuditKeyField)

	v.SetDefault("service_auth.enabled", d.ServiceAuth.Enabled)
	v.SetDefault("service_auth.secret", d.ServiceAuth.Secret)
	v.SetDefault("service_auth.issuer", d.ServiceAuth.Issuer)
	v.SetDefault("service_auth.audience", d.ServiceAuth.Audience)

	v.SetDefault("gateway.max_attempts", d.Gateway.MaxAttempts)
	v.SetDefault("gateway.base_delay", d.Gateway.BaseDelay)
	v.SetDefault("gateway.max_delay", d.Gateway.MaxDelay)
	v.SetDefault("gateway.jitter_max", d.Gateway.JitterMax)
	v.SetDefault("gateway.per_call_timeout", d.Gateway.PerCallTimeout)

	v.SetDefault("directory.base_url", d.Directory.BaseURL)
	v.SetDefault("directory.cache_ttl", d.Directory.CacheTTL)
	v.SetDefault("directory.cleanup_interval", d.Directory.CleanupInterval)

	v.SetDefault("permissions.service_url", d.Permissions.ServiceURL)
	v.SetDefault("permissions.max_permissions", d.Permissions.MaxPermissions)
	v.SetDefault("permissions.role_table_file", d.Permissions.RoleTableFile)
	v.SetDefault("permissions.bypass_permission", d.Permissions.BypassPermission)

	v.SetDefault("risk.weights.new_device", d.Risk.Weights.NewDevice)
	v.SetDefault("risk.weights.new_country", d.Risk.Weights.NewCountry)
	v.SetDefault("risk.weights.known_country_change", d.Risk.Weights.KnownCountryChange)
	v.SetDefault("risk.weights.high_risk_country", d.Risk.Weights.HighRiskCountry)
	v.SetDefault("risk.weights.impossible_travel", d.Risk.Weights.ImpossibleTravel)
	v.SetDefault("risk.weights.off_hours", d.Risk.Weights.OffHours)
	v.SetDefault("risk.weights.excessive_failures", d.Risk.Weights.ExcessiveFailures)
	v.SetDefault("risk.weights.per_failed_attempt", d.Risk.Weights.PerFailedAttempt)
	v.SetDefault("risk.weights.anonymizing_network", d.Risk.Weights.AnonymizingNetwork)
	v.SetDefault("risk.weights.login_velocity", d.Risk.Weights.LoginVelocity)
	v.SetDefault("risk.high_risk_countries", d.Risk.HighRiskCountries)
	v.SetDefault("risk.business_hours_start", d.Risk.BusinessHoursStart)
	v.SetDefault("risk.business_hours_end", d.Risk.BusinessHoursEnd)
	v.SetDefault("risk.max_failed_attempts", d.Risk.MaxFailedAttempts)
	v.SetDefault("risk.velocity_window", d.Risk.VelocityWindow)
	v.SetDefault("risk.velocity_threshold", d.Risk.VelocityThreshold)
	v.SetDefault("risk.impossible_travel_window", d.Risk.ImpossibleTravelWindow)

	v.SetDefault("decision.block_threshold", d.Decision.BlockThreshold)
	v.SetDefault("decision.challenge_threshold", d.Decision.ChallengeThreshold)
	v.SetDefault("decision.allowed_countries", d.Decision.AllowedCountries)
	v.SetDefault("decision.challenge_factors", d.Decision.ChallengeFactors)
	v.SetDefault("decision.default_factor", d.Decision.DefaultFactor)
	v.SetDefault("decision.deny_message", d.Decision.DenyMessage)

	v.SetDefault("claims.namespace", d.Claims.Namespace)
	v.SetDefault("claims.max_teams", d.Claims.MaxTeams)
	v.SetDefault("claims.scope_claims", d.Claims.ScopeClaims)

	v.SetDefault("audit.sink", d.Audit.Sink)
	v.SetDefault("audit.queue_size", d.Audit.QueueSize)
	v.SetDefault("audit.workers", d.Audit.Workers)
	v.SetDefault("audit.timeout", d.Audit.Timeout)
	v.SetDefault("audit.signing_key", d.Audit.SigningKey)

	v.SetDefault("pipeline.event_budget", d.Pipeline.EventBudget)
	v.SetDefault("pipeline.replay_window", d.Pipeline.ReplayWindow)
}
//Personal.AI order the ending
