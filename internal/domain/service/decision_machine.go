package service

import (
	"context"
	"strings"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
	"github.com/turtacn/aegis/pkg/utils"
)

// DecisionMachine moves an event out of Evaluating into exactly one terminal
// state. Rules are evaluated in order and the first match wins:
//
//  1. current country outside a configured allow-list -> Blocked
//  2. score >= block threshold                          -> Blocked
//  3. score >= challenge threshold                      -> Challenged
//  4. otherwise                                         -> Allowed
type DecisionMachine struct {
	cfg     config.DecisionConfig
	allowed map[string]struct{}
}

// NewDecisionMachine creates a DecisionMachine. Thresholds that are out of
// range or inverted are replaced by the defaults.
func NewDecisionMachine(cfg config.DecisionConfig, log logger.Logger) *DecisionMachine {
	if cfg.ChallengeThreshold <= constants.MinRiskScore || cfg.BlockThreshold > constants.MaxRiskScore ||
		cfg.ChallengeThreshold >= cfg.BlockThreshold {
		log.Warn(context.Background(), "invalid decision thresholds, using defaults",
			logger.Int("challenge_threshold", cfg.ChallengeThreshold),
			logger.Int("block_threshold", cfg.BlockThreshold))
		cfg.ChallengeThreshold = constants.DefaultChallengeThreshold
		cfg.BlockThreshold = constants.DefaultBlockThreshold
	}
	if len(cfg.ChallengeFactors) == 0 {
		cfg.ChallengeFactors = constants.DefaultChallengeFactors
	}
	if cfg.DefaultFactor == "" {
		cfg.DefaultFactor = constants.DefaultChallengeFactor
	}
	if cfg.DenyMessage == "" {
		cfg.DenyMessage = constants.DefaultDenyMessage
	}

	m := &DecisionMachine{cfg: cfg}
	if len(cfg.AllowedCountries) > 0 {
		m.allowed = make(map[string]struct{}, len(cfg.AllowedCountries))
		for _, c := range cfg.AllowedCountries {
			m.allowed[strings.ToUpper(c)] = struct{}{}
		}
	}
	return m
}

// Thresholds returns the effective challenge and block thresholds.
func (m *DecisionMachine) Thresholds() (challenge, block int) {
	return m.cfg.ChallengeThreshold, m.cfg.BlockThreshold
}

// GeoRestricted reports whether the session's country fails the allow-list.
func (m *DecisionMachine) GeoRestricted(s models.SessionContext) bool {
	if m.allowed == nil {
		return false
	}
	_, ok := m.allowed[strings.ToUpper(s.Geo.Country)]
	return !ok
}

// Decide returns the terminal decision for the event.
func (m *DecisionMachine) Decide(s models.SessionContext, risk models.RiskAssessment, p *models.SecurityProfile) models.Decision {
	d := models.Decision{From: constants.StateEvaluating}

	switch {
	case m.GeoRestricted(s):
		d.Action, d.To, d.Reason = constants.ActionBlock, constants.StateBlocked, models.ReasonGeoRestricted
		d.Message = constants.GeoRestrictedDenyMessage
	case risk.Score >= m.cfg.BlockThreshold:
		d.Action, d.To, d.Reason = constants.ActionBlock, constants.StateBlocked, models.ReasonRiskThreshold
		d.Message = m.cfg.DenyMessage
	case risk.Score >= m.cfg.ChallengeThreshold:
		d.Action, d.To, d.Reason = constants.ActionChallenge, constants.StateChallenged, models.ReasonStepUpRequired
		d.Challenge = m.challengeFor(p)
	default:
		d.Action, d.To, d.Reason = constants.ActionAllow, constants.StateAllowed, models.ReasonWithinPolicy
	}
	return d
}

// challengeFor picks the step-up directive: verify one of the enrolled
// factors the policy accepts, or enroll in the default factor.
func (m *DecisionMachine) challengeFor(p *models.SecurityProfile) *models.ChallengeDirective {
	var enrolled []string
	if p != nil {
		enrolled = utils.RemoveDuplicates(p.EnrolledFactors)
	}
	if len(enrolled) == 0 {
		return &models.ChallengeDirective{Mode: constants.ChallengeModeEnroll, Factors: []string{m.cfg.DefaultFactor}}
	}

	factors := make([]string, 0, len(enrolled))
	for _, f := range enrolled {
		if utils.ContainsString(m.cfg.ChallengeFactors, f) {
			factors = append(factors, f)
		}
	}
	if len(factors) == 0 {
		factors = append(factors, m.cfg.ChallengeFactors...)
	}
	return &models.ChallengeDirective{Mode: constants.ChallengeModeVerify, Factors: factors}
}
