package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/utils"
)

// RiskEngine scores a session against the identity's history. It has no
// state beyond its configuration and is safe for concurrent use.
type RiskEngine struct {
	cfg       config.RiskConfig
	highRisk  map[string]struct{}
	factorFns []factorFunc
}

type factorFunc func(s models.SessionContext, p *models.SecurityProfile) *models.Factor

// NewRiskEngine creates a RiskEngine with the given configuration.
func NewRiskEngine(cfg config.RiskConfig) *RiskEngine {
	e := &RiskEngine{cfg: cfg, highRisk: make(map[string]struct{}, len(cfg.HighRiskCountries))}
	for _, c := range cfg.HighRiskCountries {
		e.highRisk[strings.ToUpper(c)] = struct{}{}
	}
	e.factorFns = []factorFunc{
		e.newDevice,
		e.geoChange,
		e.highRiskCountry,
		e.impossibleTravel,
		e.offHours,
		e.failedAttempts,
		e.anonymizingNetwork,
		e.loginVelocity,
	}
	return e
}

// Score computes the additive risk score of s. A nil profile is treated as
// an identity with no history. The factor list is never nil.
func (e *RiskEngine) Score(s models.SessionContext, p *models.SecurityProfile) models.RiskAssessment {
	if p == nil {
		p = models.NewSecurityProfile(s.IdentityID)
	}
	factors := make([]models.Factor, 0, len(e.factorFns))
	for _, fn := range e.factorFns {
		if f := fn(s, p); f != nil && f.Weight > 0 {
			factors = append(factors, *f)
		}
	}

	assessment := models.RiskAssessment{Factors: factors}
	score := assessment.RawScore()
	if score > constants.MaxRiskScore {
		score = constants.MaxRiskScore
	}
	if score < constants.MinRiskScore {
		score = constants.MinRiskScore
	}
	assessment.Score = score
	assessment.Level = models.LevelForScore(score)
	return assessment
}

func (e *RiskEngine) newDevice(s models.SessionContext, p *models.SecurityProfile) *models.Factor {
	if s.UsedStrongFactor() {
		return nil
	}
	if len(p.KnownDevices) > 0 && s.DeviceFingerprint != "" && utils.ContainsString(p.KnownDevices, s.DeviceFingerprint) {
		return nil
	}
	return &models.Factor{Name: constants.FactorNewDevice, Weight: e.cfg.Weights.NewDevice}
}

func (e *RiskEngine) geoChange(s models.SessionContext, p *models.SecurityProfile) *models.Factor {
	country := s.Geo.Country
	if country == "" || p.LastLoginCountry == "" || strings.EqualFold(country, p.LastLoginCountry) {
		return nil
	}
	detail := fmt.Sprintf("%s -> %s", p.LastLoginCountry, country)
	if utils.ContainsFold(p.KnownCountries, country) {
		return &models.Factor{Name: constants.FactorKnownCountryChange, Weight: e.cfg.Weights.KnownCountryChange, Detail: detail}
	}
	return &models.Factor{Name: constants.FactorNewCountry, Weight: e.cfg.Weights.NewCountry, Detail: detail}
}

func (e *RiskEngine) highRiskCountry(s models.SessionContext, _ *models.SecurityProfile) *models.Factor {
	if _, ok := e.highRisk[strings.ToUpper(s.Geo.Country)]; !ok || s.Geo.Country == "" {
		return nil
	}
	return &models.Factor{Name: constants.FactorHighRiskCountry, Weight: e.cfg.Weights.HighRiskCountry, Detail: s.Geo.Country}
}

func (e *RiskEngine) impossibleTravel(s models.SessionContext, p *models.SecurityProfile) *models.Factor {
	if p.LastLoginAt == nil || p.LastLoginCity == "" || s.Geo.City == "" || strings.EqualFold(s.Geo.City, p.LastLoginCity) {
		return nil
	}
	elapsed := s.Timestamp.Sub(*p.LastLoginAt)
	if elapsed >= e.cfg.ImpossibleTravelWindow {
		return nil
	}
	return &models.Factor{
		Name:   constants.FactorImpossibleTravel,
		Weight: e.cfg.Weights.ImpossibleTravel,
		Detail: fmt.Sprintf("%s -> %s in %s", p.LastLoginCity, s.Geo.City, elapsed.Round(time.Second)),
	}
}

func (e *RiskEngine) offHours(s models.SessionContext, p *models.SecurityProfile) *models.Factor {
	hour := s.Timestamp.UTC().Hour()
	if hour >= e.cfg.BusinessHoursStart && hour < e.cfg.BusinessHoursEnd {
		return nil
	}
	if p.IsTypicalHour(hour) {
		return nil
	}
	return &models.Factor{Name: constants.FactorOffHours, Weight: e.cfg.Weights.OffHours, Detail: fmt.Sprintf("hour %02d UTC", hour)}
}

func (e *RiskEngine) failedAttempts(_ models.SessionContext, p *models.SecurityProfile) *models.Factor {
	n := p.RecentFailedAttempts
	if n <= 0 {
		return nil
	}
	detail := fmt.Sprintf("%d recent failed attempts", n)
	if n >= e.cfg.MaxFailedAttempts {
		return &models.Factor{Name: constants.FactorExcessiveFailures, Weight: e.cfg.Weights.ExcessiveFailures, Detail: detail}
	}
	if !p.HasLoginHistory() {
		return nil
	}
	return &models.Factor{Name: constants.FactorFailedAttempts, Weight: e.cfg.Weights.PerFailedAttempt * n, Detail: detail}
}

func (e *RiskEngine) anonymizingNetwork(s models.SessionContext, _ *models.SecurityProfile) *models.Factor {
	if !s.Geo.IPClass.IsAnonymizing() {
		return nil
	}
	return &models.Factor{Name: constants.FactorAnonymizingNetwork, Weight: e.cfg.Weights.AnonymizingNetwork, Detail: string(s.Geo.IPClass)}
}

func (e *RiskEngine) loginVelocity(s models.SessionContext, p *models.SecurityProfile) *models.Factor {
	n := p.LoginsWithin(s.Timestamp, e.cfg.VelocityWindow)
	if n <= e.cfg.VelocityThreshold {
		return nil
	}
	return &models.Factor{
		Name:   constants.FactorLoginVelocity,
		Weight: e.cfg.Weights.LoginVelocity,
		Detail: fmt.Sprintf("%d logins in %s", n, e.cfg.VelocityWindow),
	}
}
