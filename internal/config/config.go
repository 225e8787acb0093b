package config

import (
	"fmt"
	"time"

	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/utils"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Vault       VaultConfig       `mapstructure:"vault"`
	ServiceAuth ServiceAuthConfig `mapstructure:"service_auth"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Permissions PermissionConfig  `mapstructure:"permissions"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Decision    DecisionConfig    `mapstructure:"decision"`
	Claims      ClaimsConfig      `mapstructure:"claims"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnablePprof     bool          `mapstructure:"enable_pprof"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	ProfileTTL   time.Duration `mapstructure:"profile_ttl"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// FailureTopic carries failed primary logins published by hosts; empty disables the consumer.
	FailureTopic  string `mapstructure:"failure_topic"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type VaultConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Address       string `mapstructure:"address"`
	Token         string `mapstructure:"token"`
	MountPath     string `mapstructure:"mount_path"`
	AuditKeyPath  string `mapstructure:"audit_key_path"`
	AuditKeyField string `mapstructure:"audit_key_field"`
}

// ServiceAuthConfig protects the evaluate endpoint with HS256 bearer tokens
// issued to calling authentication hosts.
type ServiceAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

type GatewayConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	JitterMax      time.Duration `mapstructure:"jitter_max"`
	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
}

type DirectoryConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type PermissionConfig struct {
	ServiceURL       string `mapstructure:"service_url"`
	MaxPermissions   int    `mapstructure:"max_permissions"`
	RoleTableFile    string `mapstructure:"role_table_file"`
	BypassPermission string `mapstructure:"bypass_permission"`
}

// RiskWeights are the additive contributions of each risk factor.
type RiskWeights struct {
	NewDevice          int `mapstructure:"new_device"`
	NewCountry         int `mapstructure:"new_country"`
	KnownCountryChange int `mapstructure:"known_country_change"`
	HighRiskCountry    int `mapstructure:"high_risk_country"`
	ImpossibleTravel   int `mapstructure:"impossible_travel"`
	OffHours           int `mapstructure:"off_hours"`
	ExcessiveFailures  int `mapstructure:"excessive_failures"`
	PerFailedAttempt   int `mapstructure:"per_failed_attempt"`
	AnonymizingNetwork int `mapstructure:"anonymizing_network"`
	LoginVelocity      int `mapstructure:"login_velocity"`
}

type RiskConfig struct {
	Weights                RiskWeights   `mapstructure:"weights"`
	HighRiskCountries      []string      `mapstructure:"high_risk_countries"`
	BusinessHoursStart     int           `mapstructure:"business_hours_start"`
	BusinessHoursEnd       int           `mapstructure:"business_hours_end"`
	MaxFailedAttempts      int           `mapstructure:"max_failed_attempts"`
	VelocityWindow         time.Duration `mapstructure:"velocity_window"`
	VelocityThreshold      int           `mapstructure:"velocity_threshold"`
	ImpossibleTravelWindow time.Duration `mapstructure:"impossible_travel_window"`
}

type DecisionConfig struct {
	BlockThreshold     int      `mapstructure:"block_threshold"`
	ChallengeThreshold int      `mapstructure:"challenge_threshold"`
	AllowedCountries   []string `mapstructure:"allowed_countries"`
	ChallengeFactors   []string `mapstructure:"challenge_factors"`
	DefaultFactor      string   `mapstructure:"default_factor"`
	DenyMessage        string   `mapstructure:"deny_message"`
}

type ClaimsConfig struct {
	Namespace   string              `mapstructure:"namespace"`
	MaxTeams    int                 `mapstructure:"max_teams"`
	ScopeClaims map[string][]string `mapstructure:"scope_claims"`
}

type AuditConfig struct {
	Sink       string        `mapstructure:"sink"` // log, kafka or database
	QueueSize  int           `mapstructure:"queue_size"`
	Workers    int           `mapstructure:"workers"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SigningKey string        `mapstructure:"signing_key"`
}

type PipelineConfig struct {
	EventBudget time.Duration `mapstructure:"event_budget"`
	// ReplayWindow rejects a repeated X-Event-ID within the window; 0 disables the guard.
	ReplayWindow time.Duration `mapstructure:"replay_window"`
}

// DefaultScopeClaims maps OAuth scopes to the claim names they release.
func DefaultScopeClaims() map[string][]string {
	return map[string][]string{
		"openid":      {},
		"email":       {},
		"profile":     {constants.ClaimOrgName, constants.ClaimTeams, constants.ClaimDepartment, constants.ClaimGeo},
		"permissions": {constants.ClaimPermissions, constants.ClaimPermissionsTruncated},
		"teams":       {constants.ClaimTeams, constants.ClaimTeamIDs, constants.ClaimTeamsTruncated},
		"risk":        {constants.ClaimRiskScore, constants.ClaimRiskLevel, constants.ClaimSession},
		"geo":         {constants.ClaimGeo, constants.ClaimGeoCountry, constants.ClaimGeoRestricted},
		"department":  {constants.ClaimDepartment, constants.ClaimDepartmentID},
	}
}

// DefaultRiskWeights returns the stock factor weights.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		NewDevice:          15,
		NewCountry:         25,
		KnownCountryChange: 10,
		HighRiskCountry:    30,
		ImpossibleTravel:   35,
		OffHours:           10,
		ExcessiveFailures:  20,
		PerFailedAttempt:   3,
		AnonymizingNetwork: 15,
		LoginVelocity:      15,
	}
}

// DefaultConfig returns a configuration with every setting at its default.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: constants.DefaultShutdownTimeout,
		},
		Log:     LogConfig{Level: string(constants.LogLevelInfo), Format: "json", OutputPath: "stdout"},
		Tracing: TracingConfig{ServiceName: "aegis", SampleRate: 1.0},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "aegis",
			Database:        "aegis",
			SSLMode:         "disable",
			SQLitePath:      "aegis.db",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses:  []string{"localhost:6379"},
			PoolSize:   20,
			KeyPrefix:  "aegis:profile:",
			ProfileTTL: 90 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			AuditTopic:    "aegis.audit",
			WriteTimeout:  2 * time.Second,
			ReadTimeout:   2 * time.Second,
			RequiredAcks:  1,
			BatchSize:     1,
			BatchTimeout:  10 * time.Millisecond,
			ConsumerGroup: "aegis-failure-consumers",
		},
		Vault: VaultConfig{
			MountPath:     "secret",
			AuditKeyPath:  "aegis/audit",
			AuditKeyField: "hmac_key",
		},
		ServiceAuth: ServiceAuthConfig{Issuer: "aegis-hosts", Audience: "aegis"},
		Gateway: GatewayConfig{
			MaxAttempts:    constants.DefaultRetryMaxAttempts,
			BaseDelay:      constants.DefaultRetryBaseDelay,
			MaxDelay:       constants.DefaultRetryMaxDelay,
			JitterMax:      constants.DefaultRetryJitter,
			PerCallTimeout: constants.DefaultPerCallTimeout,
		},
		Directory: DirectoryConfig{CacheTTL: time.Minute, CleanupInterval: 5 * time.Minute},
		Permissions: PermissionConfig{
			MaxPermissions:   constants.DefaultMaxPermissions,
			BypassPermission: constants.PermSystemAdmin,
		},
		Risk: RiskConfig{
			Weights:                DefaultRiskWeights(),
			BusinessHoursStart:     constants.DefaultBusinessHoursStart,
			BusinessHoursEnd:       constants.DefaultBusinessHoursEnd,
			MaxFailedAttempts:      constants.DefaultMaxFailedAttempts,
			VelocityWindow:         constants.DefaultVelocityWindow,
			VelocityThreshold:      constants.DefaultVelocityThreshold,
			ImpossibleTravelWindow: constants.ImpossibleTravelWindow,
		},
		Decision: DecisionConfig{
			BlockThreshold:     constants.DefaultBlockThreshold,
			ChallengeThreshold: constants.DefaultChallengeThreshold,
			ChallengeFactors:   append([]string(nil), constants.DefaultChallengeFactors...),
			DefaultFactor:      constants.DefaultChallengeFactor,
			DenyMessage:        constants.DefaultDenyMessage,
		},
		Claims: ClaimsConfig{
			Namespace:   constants.DefaultClaimsNamespace,
			MaxTeams:    constants.DefaultMaxTeams,
			ScopeClaims: DefaultScopeClaims(),
		},
		Audit: AuditConfig{
			Sink:      "log",
			QueueSize: 1024,
			Workers:   2,
			Timeout:   constants.DefaultAuditTimeout,
		},
		Pipeline: PipelineConfig{EventBudget: constants.DefaultEventBudget, ReplayWindow: 10 * time.Minute},
	}
}

// Validate checks infrastructure settings and normalises pipeline settings.
// Invalid pipeline values never fail the load: they are reset to their
// defaults and reported as warnings.
func (c *Config) Validate() ([]string, error) {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return nil, errors.ErrConfiguration("server.port", fmt.Sprintf("%d is not a valid port", c.Server.Port))
	}
	switch c.Audit.Sink {
	case "log", "kafka", "database":
	default:
		return nil, errors.ErrConfiguration("audit.sink", fmt.Sprintf("unknown sink %q", c.Audit.Sink))
	}
	if c.ServiceAuth.Enabled && c.ServiceAuth.Secret == "" {
		return nil, errors.ErrConfiguration("service_auth.secret", "required when service_auth is enabled")
	}

	d := DefaultConfig()
	var warnings []string
	warn := func(setting string, format string, args ...interface{}) {
		warnings = append(warnings, setting+": "+fmt.Sprintf(format, args...))
	}

	if c.Gateway.MaxAttempts < 1 {
		warn("gateway.max_attempts", "%d < 1, using %d", c.Gateway.MaxAttempts, d.Gateway.MaxAttempts)
		c.Gateway.MaxAttempts = d.Gateway.MaxAttempts
	}
	if c.Gateway.BaseDelay < 0 || c.Gateway.MaxDelay < 0 || c.Gateway.JitterMax < 0 {
		warn("gateway", "negative delay, using defaults")
		c.Gateway.BaseDelay, c.Gateway.MaxDelay, c.Gateway.JitterMax = d.Gateway.BaseDelay, d.Gateway.MaxDelay, d.Gateway.JitterMax
	}
	if c.Gateway.JitterMax > c.Gateway.BaseDelay {
		warn("gateway.jitter_max", "%s exceeds base_delay %s, clamping", c.Gateway.JitterMax, c.Gateway.BaseDelay)
		c.Gateway.JitterMax = c.Gateway.BaseDelay
	}
	if c.Gateway.PerCallTimeout <= 0 {
		c.Gateway.PerCallTimeout = d.Gateway.PerCallTimeout
	}

	if !validWeights(c.Risk.Weights) {
		warn("risk.weights", "negative weight, using defaults")
		c.Risk.Weights = d.Risk.Weights
	}
	if c.Risk.BusinessHoursStart < 0 || c.Risk.BusinessHoursEnd > 24 || c.Risk.BusinessHoursStart >= c.Risk.BusinessHoursEnd {
		warn("risk.business_hours", "[%d,%d) is not a valid window, using defaults", c.Risk.BusinessHoursStart, c.Risk.BusinessHoursEnd)
		c.Risk.BusinessHoursStart, c.Risk.BusinessHoursEnd = d.Risk.BusinessHoursStart, d.Risk.BusinessHoursEnd
	}
	if c.Risk.MaxFailedAttempts < 1 {
		c.Risk.MaxFailedAttempts = d.Risk.MaxFailedAttempts
	}
	if c.Risk.VelocityWindow <= 0 {
		c.Risk.VelocityWindow = d.Risk.VelocityWindow
	}
	if c.Risk.VelocityThreshold < 1 {
		c.Risk.VelocityThreshold = d.Risk.VelocityThreshold
	}
	if c.Risk.ImpossibleTravelWindow <= 0 {
		c.Risk.ImpossibleTravelWindow = d.Risk.ImpossibleTravelWindow
	}

	if !validThresholds(c.Decision.ChallengeThreshold, c.Decision.BlockThreshold) {
		warn("decision.thresholds", "challenge=%d block=%d invalid, using %d/%d",
			c.Decision.ChallengeThreshold, c.Decision.BlockThreshold, d.Decision.ChallengeThreshold, d.Decision.BlockThreshold)
		c.Decision.ChallengeThreshold, c.Decision.BlockThreshold = d.Decision.ChallengeThreshold, d.Decision.BlockThreshold
	}
	if len(c.Decision.ChallengeFactors) == 0 {
		c.Decision.ChallengeFactors = d.Decision.ChallengeFactors
	}
	if c.Decision.DefaultFactor == "" {
		c.Decision.DefaultFactor = d.Decision.DefaultFactor
	}
	if c.Decision.DenyMessage == "" {
		c.Decision.DenyMessage = d.Decision.DenyMessage
	}

	if !utils.IsValidNamespace(c.Claims.Namespace) {
		warn("claims.namespace", "%q is not an https URL ending in '/', using %s", c.Claims.Namespace, d.Claims.Namespace)
		c.Claims.Namespace = d.Claims.Namespace
	}
	if c.Claims.MaxTeams < 1 {
		c.Claims.MaxTeams = d.Claims.MaxTeams
	}
	if len(c.Claims.ScopeClaims) == 0 {
		c.Claims.ScopeClaims = d.Claims.ScopeClaims
	}

	if c.Permissions.MaxPermissions < 1 {
		warn("permissions.max_permissions", "%d < 1, using %d", c.Permissions.MaxPermissions, d.Permissions.MaxPermissions)
		c.Permissions.MaxPermissions = d.Permissions.MaxPermissions
	}
	if c.Permissions.BypassPermission == "" {
		c.Permissions.BypassPermission = d.Permissions.BypassPermission
	}

	if c.Audit.QueueSize < 1 {
		c.Audit.QueueSize = d.Audit.QueueSize
	}
	if c.Audit.Workers < 1 {
		c.Audit.Workers = d.Audit.Workers
	}
	if c.Audit.Timeout <= 0 {
		c.Audit.Timeout = d.Audit.Timeout
	}
	if c.Pipeline.EventBudget <= 0 {
		warn("pipeline.event_budget", "must be positive, using %s", d.Pipeline.EventBudget)
		c.Pipeline.EventBudget = d.Pipeline.EventBudget
	}

	return warnings, nil
}

func validWeights(w RiskWeights) bool {
	for _, v := range []int{w.NewDevice, w.NewCountry, w.KnownCountryChange, w.HighRiskCountry, w.ImpossibleTravel,
		w.OffHours, w.ExcessiveFailures, w.PerFailedAttempt, w.AnonymizingNetwork, w.LoginVelocity} {
		if v < 0 {
			return false
		}
	}
	return true
}

func validThresholds(challenge, block int) bool {
	return challenge > constants.MinRiskScore && block <= constants.MaxRiskScore && challenge < block
}

//Personal.AI order the ending
