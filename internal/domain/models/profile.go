package models

import (
	"bytes"
	"encoding/json"
	"net"
	"time"

	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/utils"
)

// SecurityProfile is the per-identity behavioural history used by scoring
// and anomaly detection. Every list is bounded; appends evict the oldest
// entries first.
type SecurityProfile struct {
	IdentityID           string      `json:"identity_id"`
	KnownDevices         []string    `json:"known_devices,omitempty"`
	KnownUserAgents      []string    `json:"known_user_agents,omitempty"`
	KnownCountries       []string    `json:"known_countries,omitempty"`
	KnownIPRanges        []string    `json:"known_ip_ranges,omitempty"`
	TypicalLoginHours    []int       `json:"typical_login_hours,omitempty"`
	RecentLogins         []time.Time `json:"recent_logins,omitempty"`
	RecentFailedAttempts int         `json:"recent_failed_attempts"`
	LastLoginAt          *time.Time  `json:"last_login_at,omitempty"`
	LastLoginCountry     string      `json:"last_login_country,omitempty"`
	LastLoginCity        string      `json:"last_login_city,omitempty"`
	LastRiskScore        *int        `json:"last_risk_score,omitempty"`
	PreferredAuthMethod  string      `json:"preferred_auth_method,omitempty"`
	EnrolledFactors      []string    `json:"enrolled_factors,omitempty"`
	LoginsCount          int         `json:"logins_count"`
	CreatedAt            *time.Time  `json:"created_at,omitempty"`
}

// NewSecurityProfile returns an empty profile for an identity with no history.
func NewSecurityProfile(identityID string) *SecurityProfile {
	return &SecurityProfile{IdentityID: identityID}
}

// DecodeSecurityProfile parses a stored profile, rejecting fields it does not know.
func DecodeSecurityProfile(data []byte) (*SecurityProfile, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p SecurityProfile
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// HasLoginHistory reports whether at least one successful login was recorded.
func (p *SecurityProfile) HasLoginHistory() bool {
	return p != nil && (p.LastLoginAt != nil || len(p.RecentLogins) > 0 || p.LoginsCount > 0)
}

// IsTypicalHour reports whether hour is in the identity's typical login hours.
func (p *SecurityProfile) IsTypicalHour(hour int) bool {
	if p == nil {
		return false
	}
	for _, h := range p.TypicalLoginHours {
		if h == hour {
			return true
		}
	}
	return false
}

// LoginsWithin counts recorded logins in the window ending at now.
func (p *SecurityProfile) LoginsWithin(now time.Time, window time.Duration) int {
	if p == nil {
		return 0
	}
	n := 0
	from := now.Add(-window)
	for _, t := range p.RecentLogins {
		if !t.Before(from) && !t.After(now) {
			n++
		}
	}
	return n
}

// LoginsOnDay counts recorded logins on the same UTC calendar day as now.
func (p *SecurityProfile) LoginsOnDay(now time.Time) int {
	if p == nil {
		return 0
	}
	y, m, d := now.UTC().Date()
	n := 0
	for _, t := range p.RecentLogins {
		ty, tm, td := t.UTC().Date()
		if ty == y && tm == m && td == d {
			n++
		}
	}
	return n
}

// AverageDailyLogins is LoginsCount spread over the profile's lifetime in days.
// It returns 0 when the profile lacks the data to compute an average.
func (p *SecurityProfile) AverageDailyLogins(now time.Time) float64 {
	if p == nil || p.CreatedAt == nil || p.LoginsCount == 0 {
		return 0
	}
	days := now.Sub(*p.CreatedAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(p.LoginsCount) / days
}

// ProfileUpdate is the partial update appended to a profile after an allowed
// or challenged decision.
type ProfileUpdate struct {
	Timestamp         time.Time `json:"timestamp"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	UserAgentPrefix   string    `json:"user_agent_prefix,omitempty"`
	Country           string    `json:"country,omitempty"`
	City              string    `json:"city,omitempty"`
	IPRange           string    `json:"ip_range,omitempty"`
	AuthMethod        string    `json:"auth_method,omitempty"`
	RiskScore         int       `json:"risk_score"`
	ResetFailures     bool      `json:"reset_failures"`
}

// NewProfileUpdate captures the parts of a session that feed the history.
func NewProfileUpdate(s SessionContext, score int, action constants.DecisionAction) ProfileUpdate {
	return ProfileUpdate{
		Timestamp:         s.Timestamp,
		DeviceFingerprint: s.DeviceFingerprint,
		UserAgentPrefix:   s.UserAgentPrefix(),
		Country:           s.Geo.Country,
		City:              s.Geo.City,
		IPRange:           s.IPRange(),
		AuthMethod:        s.AuthMethod,
		RiskScore:         score,
		ResetFailures:     action == constants.ActionAllow,
	}
}

// Apply appends u to the profile and trims every bounded list.
func (p *SecurityProfile) Apply(u ProfileUpdate) {
	p.KnownDevices = utils.AppendBounded(p.KnownDevices, u.DeviceFingerprint, constants.MaxKnownDevices, true)
	p.KnownUserAgents = utils.AppendBounded(p.KnownUserAgents, u.UserAgentPrefix, constants.MaxKnownDevices, true)
	p.KnownCountries = utils.AppendBounded(p.KnownCountries, u.Country, constants.MaxKnownCountries, true)
	p.KnownIPRanges = utils.AppendBounded(p.KnownIPRanges, u.IPRange, constants.MaxKnownIPRanges, true)

	ts := u.Timestamp.UTC()
	if !p.IsTypicalHour(ts.Hour()) {
		p.TypicalLoginHours = append(p.TypicalLoginHours, ts.Hour())
	}
	p.RecentLogins = append(p.RecentLogins, ts)
	if len(p.RecentLogins) > constants.MaxRecentLogins {
		p.RecentLogins = p.RecentLogins[len(p.RecentLogins)-constants.MaxRecentLogins:]
	}

	p.LastLoginAt = &ts
	if u.Country != "" {
		p.LastLoginCountry = u.Country
	}
	if u.City != "" {
		p.LastLoginCity = u.City
	}
	score := u.RiskScore
	p.LastRiskScore = &score
	if p.PreferredAuthMethod == "" {
		p.PreferredAuthMethod = u.AuthMethod
	}
	if u.ResetFailures {
		p.RecentFailedAttempts = 0
	}
	if p.CreatedAt == nil {
		p.CreatedAt = &ts
	}
	p.LoginsCount++
}

// IPRange16 returns the /16 network of ip in CIDR form, or "" when ip does not parse.
// IPv6 addresses are reduced to their /32 prefix, the closest provider-level equivalent.
func IPRange16(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return (&net.IPNet{IP: v4.Mask(net.CIDRMask(16, 32)), Mask: net.CIDRMask(16, 32)}).String()
	}
	return (&net.IPNet{IP: parsed.Mask(net.CIDRMask(32, 128)), Mask: net.CIDRMask(32, 128)}).String()
}

// RecordFailure counts one failed primary authentication.
func (p *SecurityProfile) RecordFailure() {
	p.RecentFailedAttempts++
}

// EnrollFactor adds factor to the enrolled set. It reports whether the set changed.
func (p *SecurityProfile) EnrollFactor(factor string) bool {
	if factor == "" || utils.ContainsString(p.EnrolledFactors, factor) {
		return false
	}
	p.EnrolledFactors = append(p.EnrolledFactors, factor)
	return true
}
