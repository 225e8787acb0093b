package models

import (
	"time"

	"github.com/turtacn/aegis/pkg/constants"
)

// GeoLocation is the resolved location of the source IP.
type GeoLocation struct {
	Country string                     `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	City    string                     `json:"city,omitempty"`
	IPClass constants.IPClassification `json:"ip_class,omitempty" validate:"omitempty,oneof=residential business hosting vpn proxy tor"`
}

// SessionContext describes one authentication event. It is built once per
// event and treated as read-only by every stage of the pipeline.
type SessionContext struct {
	IdentityID        string      `json:"identity_id" validate:"required,max=255"`
	Email             string      `json:"email,omitempty"`
	OrganizationID    string      `json:"organization_id" validate:"required,max=255"`
	OrganizationName  string      `json:"organization_name,omitempty"`
	Roles             []string    `json:"roles,omitempty"`
	SourceIP          string      `json:"source_ip" validate:"required,ip"`
	Geo               GeoLocation `json:"geo"`
	UserAgent         string      `json:"user_agent,omitempty"`
	DeviceFingerprint string      `json:"device_fingerprint,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
	AuthMethod        string      `json:"auth_method,omitempty"`
	RequestedScopes   []string    `json:"requested_scopes,omitempty"`
}

// UsedStrongFactor reports whether the event was already authenticated with a second factor.
func (s SessionContext) UsedStrongFactor() bool {
	for _, m := range constants.StrongAuthMethods {
		if s.AuthMethod == m {
			return true
		}
	}
	return false
}

// IPRange returns the /16 prefix of the source IP.
func (s SessionContext) IPRange() string {
	return IPRange16(s.SourceIP)
}

// UserAgentPrefix returns the stored form of the user agent.
func (s SessionContext) UserAgentPrefix() string {
	if len(s.UserAgent) > constants.MaxUserAgentPrefix {
		return s.UserAgent[:constants.MaxUserAgentPrefix]
	}
	return s.UserAgent
}
