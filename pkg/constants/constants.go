// Package constants defines system-wide constants for the Aegis adaptive authentication service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Decision Constants
// ================================================================================

// DecisionAction is the terminal outcome of an authentication event.
type DecisionAction string

const (
	// ActionAllow lets the session proceed with claims attached.
	ActionAllow DecisionAction = "allow"

	// ActionChallenge requires a step-up verification; claims are still attached.
	ActionChallenge DecisionAction = "challenge"

	// ActionBlock denies the session.
	ActionBlock DecisionAction = "block"
)

// DecisionState is a state of the per-event decision machine.
type DecisionState string

const (
	StateEvaluating DecisionState = "evaluating"
	StateAllowed    DecisionState = "allowed"
	StateChallenged DecisionState = "challenged"
	StateBlocked    DecisionState = "blocked"
)

// ChallengeMode tells the host which step-up mechanism to present.
type ChallengeMode string

const (
	// ChallengeModeVerify asks the user to verify one of their enrolled factors.
	ChallengeModeVerify ChallengeMode = "challenge"

	// ChallengeModeEnroll forces enrollment in the default factor.
	ChallengeModeEnroll ChallengeMode = "enroll"
)

const (
	// DefaultBlockThreshold is the risk score at or above which a session is blocked
	DefaultBlockThreshold = 80

	// DefaultChallengeThreshold is the risk score at or above which a session is challenged
	DefaultChallengeThreshold = 50

	// DefaultChallengeFactor is the factor users without any enrolled factor must enroll in
	DefaultChallengeFactor = "otp"

	// DefaultDenyMessage is returned to the end user on a block
	DefaultDenyMessage = "Access denied. Please contact your administrator."

	// GeoRestrictedDenyMessage is returned when the login country is not allowed
	GeoRestrictedDenyMessage = "Access from your current location is not permitted."
)

// DefaultChallengeFactors is the factor set a challenge may be issued against.
var DefaultChallengeFactors = []string{"otp", "webauthn-roaming", "webauthn-platform", "push-notification"}

// ================================================================================
// Risk Constants
// ================================================================================

// RiskLevel is the coarse classification of a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskFactor names a contribution to the risk score.
type RiskFactor string

const (
	FactorNewDevice          RiskFactor = "new_device"
	FactorNewCountry         RiskFactor = "new_country"
	FactorKnownCountryChange RiskFactor = "known_country_change"
	FactorHighRiskCountry    RiskFactor = "high_risk_country"
	FactorImpossibleTravel   RiskFactor = "impossible_travel"
	FactorOffHours           RiskFactor = "off_hours"
	FactorFailedAttempts     RiskFactor = "failed_attempts"
	FactorExcessiveFailures  RiskFactor = "excessive_failed_attempts"
	FactorAnonymizingNetwork RiskFactor = "anonymizing_network"
	FactorLoginVelocity      RiskFactor = "login_velocity"
)

const (
	// MaxRiskScore is the upper clamp of every risk score
	MaxRiskScore = 100

	// MinRiskScore is the lower clamp of every risk score
	MinRiskScore = 0

	// ImpossibleTravelWindow is the elapsed time under which a city change is considered impossible travel
	ImpossibleTravelWindow = time.Hour

	// DefaultVelocityWindow is the rolling window used for the login velocity factor
	DefaultVelocityWindow = 5 * time.Minute

	// DefaultVelocityThreshold is the number of logins in the window above which velocity triggers
	DefaultVelocityThreshold = 3

	// DefaultMaxFailedAttempts is the failed-attempt count that triggers the flat penalty
	DefaultMaxFailedAttempts = 5

	// DefaultBusinessHoursStart is the first hour (inclusive, UTC) of the business window
	DefaultBusinessHoursStart = 8

	// DefaultBusinessHoursEnd is the last hour (exclusive, UTC) of the business window
	DefaultBusinessHoursEnd = 18
)

// IPClassification is the network classification of the source IP.
type IPClassification string

const (
	IPResidential IPClassification = "residential"
	IPBusiness    IPClassification = "business"
	IPHosting     IPClassification = "hosting"
	IPVPN         IPClassification = "vpn"
	IPProxy       IPClassification = "proxy"
	IPTor         IPClassification = "tor"
)

// IsAnonymizing reports whether the classification hides the real origin.
func (c IPClassification) IsAnonymizing() bool {
	return c == IPVPN || c == IPProxy || c == IPTor
}

// StrongAuthMethods are authentication methods that already prove possession of a second factor.
var StrongAuthMethods = []string{"mfa", "otp", "webauthn", "webauthn-roaming", "webauthn-platform", "push-notification", "sms", "hwk"}

// ================================================================================
// Anomaly Constants
// ================================================================================

// AnomalyType tags a detected behavioural deviation.
type AnomalyType string

const (
	AnomalyUnknownUserAgent  AnomalyType = "unknown_user_agent"
	AnomalyUnknownIPRange    AnomalyType = "unknown_ip_range"
	AnomalyAuthMethodChange  AnomalyType = "auth_method_change"
	AnomalyLoginFrequency    AnomalyType = "unusual_login_frequency"
)

// LoginFrequencyMultiplier is how far above the daily average today's login count must be to flag
const LoginFrequencyMultiplier = 3

// Severity is the severity of an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ================================================================================
// Profile Constants
// ================================================================================

const (
	// MaxKnownCountries bounds SecurityProfile.KnownCountries
	MaxKnownCountries = 10

	// MaxKnownIPRanges bounds SecurityProfile.KnownIPRanges
	MaxKnownIPRanges = 20

	// MaxKnownDevices bounds SecurityProfile.KnownDevices
	MaxKnownDevices = 10

	// MaxRecentLogins bounds SecurityProfile.RecentLogins
	MaxRecentLogins = 50

	// MaxUserAgentPrefix is the length of the stored user-agent prefix
	MaxUserAgentPrefix = 50
)

// ================================================================================
// Permission Constants
// ================================================================================

// Standard permission strings.
const (
	PermReadUsers          = "read:users"
	PermWriteUsers         = "write:users"
	PermDeleteUsers        = "delete:users"
	PermManageUserRoles    = "manage:user_roles"
	PermManageUserMFA      = "manage:user_mfa"
	PermReadTeams          = "read:teams"
	PermWriteTeams         = "write:teams"
	PermDeleteTeams        = "delete:teams"
	PermManageTeamMembers  = "manage:team_members"
	PermReadOrganizations  = "read:organizations"
	PermWriteOrganizations = "write:organizations"
	PermManageOrgSettings  = "manage:org_settings"
	PermReadAuditLogs      = "read:audit_logs"
	PermExportAuditLogs    = "export:audit_logs"
	PermReadCompliance     = "read:compliance"
	PermGenerateReports    = "generate:reports"
	PermExportReports      = "export:reports"
	PermAdminAccess        = "admin:access"
	PermSystemAdmin        = "system:admin"
)

const (
	// DefaultMaxPermissions caps the resolved permission set
	DefaultMaxPermissions = 150

	// DefaultMaxTeams caps the number of teams projected into claims
	DefaultMaxTeams = 25
)

// Team roles
const (
	TeamRoleOwner  = "owner"
	TeamRoleLead   = "lead"
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
	TeamRoleGuest  = "guest"
)

// ================================================================================
// Audit Constants
// ================================================================================

// AuditEventType represents types of audit events
type AuditEventType string

const (
	AuditEventLoginSuccess  AuditEventType = "auth.login.success"
	AuditEventLoginFailed   AuditEventType = "auth.login.failed"
	AuditEventLoginBlocked  AuditEventType = "auth.login.blocked"
	AuditEventMFAChallenge  AuditEventType = "auth.mfa.challenge"
	AuditEventMFAEnrollment AuditEventType = "auth.mfa.enrollment_required"
	AuditEventMFAEnrolled   AuditEventType = "auth.mfa.enrolled"
	AuditEventAccessGranted AuditEventType = "access.granted"
	AuditEventAccessDenied  AuditEventType = "access.denied"
	AuditEventAdminOverride AuditEventType = "admin.override"
	AuditEventSystemError   AuditEventType = "system.error"
)

// AuditOutcome is the outcome of the audited action
type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeFailure AuditOutcome = "failure"
	OutcomeUnknown AuditOutcome = "unknown"
)

// AuditSeverity is the severity of an audit record
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityNotice   AuditSeverity = "notice"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityCritical AuditSeverity = "critical"
)

// ================================================================================
// Claims Constants
// ================================================================================

// DefaultClaimsNamespace is used when the configured namespace is invalid
const DefaultClaimsNamespace = "https://claims.aegis.local/"

// Claim names (without namespace).
const (
	ClaimOrgID                = "org_id"
	ClaimOrgName              = "org_name"
	ClaimRoles                = "roles"
	ClaimTeams                = "teams"
	ClaimTeamIDs              = "team_ids"
	ClaimDepartment           = "department"
	ClaimDepartmentID         = "department_id"
	ClaimPermissions          = "permissions"
	ClaimPermissionsTruncated = "permissions_truncated"
	ClaimTeamsTruncated       = "teams_truncated"
	ClaimRiskScore            = "risk_score"
	ClaimRiskLevel            = "risk_level"
	ClaimGeo                  = "geo"
	ClaimGeoCountry           = "geo_country"
	ClaimGeoRestricted        = "geo_restricted"
	ClaimSession              = "session"
	ClaimPartialEnrichment    = "partial_enrichment"
)

// ================================================================================
// Gateway Constants
// ================================================================================

const (
	// DefaultRetryMaxAttempts is the default number of attempts per gateway call
	DefaultRetryMaxAttempts = 3

	// DefaultRetryBaseDelay is the base delay of the exponential backoff
	DefaultRetryBaseDelay = time.Second

	// DefaultRetryMaxDelay caps any single backoff delay
	DefaultRetryMaxDelay = 10 * time.Second

	// DefaultRetryJitter bounds the random jitter added to each delay
	DefaultRetryJitter = 250 * time.Millisecond

	// DefaultPerCallTimeout bounds one gateway attempt
	DefaultPerCallTimeout = 2 * time.Second

	// DefaultEventBudget bounds one authentication event end to end
	DefaultEventBudget = 5 * time.Second

	// DefaultAuditTimeout bounds one detached audit publication
	DefaultAuditTimeout = 3 * time.Second

	// DefaultProfileWriteTimeout bounds the detached profile history append
	DefaultProfileWriteTimeout = 2 * time.Second
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyEventID is the key for the authentication event ID in context
	ContextKeyEventID ContextKey = "event_id"

	// ContextKeyIdentityID is the key for the authenticating identity in context
	ContextKeyIdentityID ContextKey = "identity_id"

	// ContextKeyCaller is the key for the authenticated calling host in context
	ContextKeyCaller ContextKey = "caller"
)

// ================================================================================
// HTTP Constants
// ================================================================================

const (
	// HeaderRequestID is the header carrying the request ID
	HeaderRequestID = "X-Request-ID"

	// HeaderEventID carries the host's authentication event ID
	HeaderEventID = "X-Event-ID"

	// HeaderRetryAfter is the server delay hint honoured by the gateway
	HeaderRetryAfter = "Retry-After"

	// DefaultShutdownTimeout is the graceful shutdown timeout
	DefaultShutdownTimeout = 15 * time.Second
)
