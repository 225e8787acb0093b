package service

import (
	"strings"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/utils"
)

// AnomalyDetector compares a session against the identity's profile. Its
// output feeds observability only; it never changes the risk score.
type AnomalyDetector struct{}

// NewAnomalyDetector creates an AnomalyDetector.
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{}
}

// Detect returns the anomalies found in s. A check whose inputs are missing
// on either side is skipped.
func (d *AnomalyDetector) Detect(s models.SessionContext, p *models.SecurityProfile) []models.Anomaly {
	anomalies := []models.Anomaly{}
	if p == nil {
		return anomalies
	}

	if s.UserAgent != "" && len(p.KnownUserAgents) > 0 && !matchesKnownAgent(s.UserAgent, p.KnownUserAgents) {
		anomalies = append(anomalies, models.Anomaly{
			Type:     constants.AnomalyUnknownUserAgent,
			Severity: constants.SeverityLow,
			Detail:   map[string]interface{}{"user_agent": s.UserAgentPrefix()},
		})
	}

	if ipRange := s.IPRange(); ipRange != "" && len(p.KnownIPRanges) > 0 && !utils.ContainsString(p.KnownIPRanges, ipRange) {
		anomalies = append(anomalies, models.Anomaly{
			Type:     constants.AnomalyUnknownIPRange,
			Severity: constants.SeverityMedium,
			Detail:   map[string]interface{}{"ip_range": ipRange, "known_ranges": len(p.KnownIPRanges)},
		})
	}

	if s.AuthMethod != "" && p.PreferredAuthMethod != "" && s.AuthMethod != p.PreferredAuthMethod {
		anomalies = append(anomalies, models.Anomaly{
			Type:     constants.AnomalyAuthMethodChange,
			Severity: constants.SeverityLow,
			Detail:   map[string]interface{}{"preferred": p.PreferredAuthMethod, "used": s.AuthMethod},
		})
	}

	if avg := p.AverageDailyLogins(s.Timestamp); avg > 0 {
		today := p.LoginsOnDay(s.Timestamp) + 1
		if float64(today) > constants.LoginFrequencyMultiplier*avg {
			anomalies = append(anomalies, models.Anomaly{
				Type:     constants.AnomalyLoginFrequency,
				Severity: constants.SeverityMedium,
				Detail:   map[string]interface{}{"today": today, "daily_average": avg},
			})
		}
	}

	return anomalies
}

func matchesKnownAgent(ua string, known []string) bool {
	for _, prefix := range known {
		if prefix != "" && strings.HasPrefix(ua, prefix) {
			return true
		}
	}
	return false
}
