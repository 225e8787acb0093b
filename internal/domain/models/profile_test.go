package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/aegis/pkg/constants"
)

func TestSecurityProfile_Apply_KnownCountriesBounded(t *testing.T) {
	p := NewSecurityProfile("user-1")
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	countries := []string{"US", "CA", "MX", "GB", "FR", "DE", "ES", "IT", "NL", "BE", "SE", "NO", "FI"}
	for i, c := range countries {
		s := SessionContext{IdentityID: "user-1", SourceIP: "10.0.0.1", Geo: GeoLocation{Country: c}, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		p.Apply(NewProfileUpdate(s, 0, constants.ActionAllow))
		assert.LessOrEqual(t, len(p.KnownCountries), constants.MaxKnownCountries)
	}

	assert.Equal(t, countries[len(countries)-constants.MaxKnownCountries:], p.KnownCountries)
	assert.Equal(t, "FI", p.LastLoginCountry)
	assert.Equal(t, len(countries), p.LoginsCount)
}

func TestSecurityProfile_Apply_RevisitedCountryMovesToNewest(t *testing.T) {
	p := NewSecurityProfile("user-1")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for _, c := range []string{"US", "CA", "US"} {
		p.Apply(ProfileUpdate{Timestamp: now, Country: c})
	}
	assert.Equal(t, []string{"CA", "US"}, p.KnownCountries)
}

func TestSecurityProfile_Apply_BoundsEveryList(t *testing.T) {
	p := NewSecurityProfile("user-1")
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		p.Apply(ProfileUpdate{
			Timestamp:         now.Add(time.Duration(i) * time.Minute),
			DeviceFingerprint: fmt.Sprintf("dev-%d", i),
			IPRange:           fmt.Sprintf("10.%d.0.0/16", i),
			UserAgentPrefix:   fmt.Sprintf("agent-%d", i),
		})
	}
	assert.Len(t, p.KnownDevices, constants.MaxKnownDevices)
	assert.Len(t, p.KnownIPRanges, constants.MaxKnownIPRanges)
	assert.Len(t, p.RecentLogins, constants.MaxRecentLogins)
	assert.Equal(t, "10.119.0.0/16", p.KnownIPRanges[len(p.KnownIPRanges)-1])
	assert.Equal(t, now.Add(119*time.Minute), p.RecentLogins[len(p.RecentLogins)-1])
}

func TestSecurityProfile_Apply_ResetsFailuresOnlyOnAllow(t *testing.T) {
	now := time.Now().UTC()
	p := &SecurityProfile{RecentFailedAttempts: 4}
	p.Apply(NewProfileUpdate(SessionContext{Timestamp: now}, 55, constants.ActionChallenge))
	assert.Equal(t, 4, p.RecentFailedAttempts)
	require.NotNil(t, p.LastRiskScore)
	assert.Equal(t, 55, *p.LastRiskScore)

	p.Apply(NewProfileUpdate(SessionContext{Timestamp: now}, 10, constants.ActionAllow))
	assert.Zero(t, p.RecentFailedAttempts)
}

func TestDecodeSecurityProfile_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeSecurityProfile([]byte(`{"identity_id":"u","favourite_color":"blue"}`))
	assert.Error(t, err)

	p, err := DecodeSecurityProfile([]byte(`{"identity_id":"u","known_countries":["US"],"recent_failed_attempts":2}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"US"}, p.KnownCountries)
	assert.Equal(t, 2, p.RecentFailedAttempts)
}

func TestSecurityProfile_LoginCounters(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	created := now.Add(-10 * 24 * time.Hour)
	p := &SecurityProfile{
		LoginsCount: 20,
		CreatedAt:   &created,
		RecentLogins: []time.Time{
			now.Add(-30 * time.Hour),
			now.Add(-4 * time.Hour),
			now.Add(-2 * time.Minute),
			now.Add(-1 * time.Minute),
		},
	}
	assert.InDelta(t, 2.0, p.AverageDailyLogins(now), 0.001)
	assert.Equal(t, 3, p.LoginsOnDay(now))
	assert.Equal(t, 2, p.LoginsWithin(now, 5*time.Minute))

	var empty *SecurityProfile
	assert.Zero(t, empty.AverageDailyLogins(now))
	assert.False(t, empty.HasLoginHistory())
}

func TestIPRange16(t *testing.T) {
	assert.Equal(t, "203.0.0.0/16", IPRange16("203.0.113.7"))
	assert.Equal(t, "2001:db8::/32", IPRange16("2001:db8:1:2::1"))
	assert.Equal(t, "", IPRange16("not-an-ip"))
}
