package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

func newTestDecisionMachine(mutate func(*config.DecisionConfig)) *DecisionMachine {
	cfg := config.DefaultConfig().Decision
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDecisionMachine(cfg, logger.NewNoopLogger())
}

func scored(score int) models.RiskAssessment {
	return models.RiskAssessment{Score: score, Level: models.LevelForScore(score), Factors: []models.Factor{}}
}

func TestDecisionMachine_Thresholds(t *testing.T) {
	m := newTestDecisionMachine(nil)
	s := baseSession(businessHour)
	p := &models.SecurityProfile{EnrolledFactors: []string{"otp"}}

	tests := []struct {
		score  int
		action constants.DecisionAction
		state  constants.DecisionState
	}{
		{0, constants.ActionAllow, constants.StateAllowed},
		{15, constants.ActionAllow, constants.StateAllowed},
		{49, constants.ActionAllow, constants.StateAllowed},
		{50, constants.ActionChallenge, constants.StateChallenged},
		{65, constants.ActionChallenge, constants.StateChallenged},
		{79, constants.ActionChallenge, constants.StateChallenged},
		{80, constants.ActionBlock, constants.StateBlocked},
		{100, constants.ActionBlock, constants.StateBlocked},
	}
	for _, tt := range tests {
		d := m.Decide(s, scored(tt.score), p)
		assert.Equal(t, tt.action, d.Action, "score %d", tt.score)
		assert.Equal(t, tt.state, d.To, "score %d", tt.score)
		assert.Equal(t, constants.StateEvaluating, d.From)
	}
}

func TestDecisionMachine_GeoRestrictionWinsAtZeroScore(t *testing.T) {
	m := newTestDecisionMachine(func(c *config.DecisionConfig) { c.AllowedCountries = []string{"us", "CA"} })
	s := baseSession(businessHour)
	s.Geo.Country = "FR"

	d := m.Decide(s, scored(0), nil)
	assert.True(t, d.IsBlocked())
	assert.Equal(t, models.ReasonGeoRestricted, d.Reason)
	assert.Equal(t, constants.GeoRestrictedDenyMessage, d.Message)

	s.Geo.Country = "US"
	assert.Equal(t, constants.ActionAllow, m.Decide(s, scored(0), nil).Action)

	s.Geo.Country = ""
	assert.True(t, m.Decide(s, scored(0), nil).IsBlocked())
}

func TestDecisionMachine_RiskBlockCarriesDenyMessage(t *testing.T) {
	m := newTestDecisionMachine(nil)
	d := m.Decide(baseSession(businessHour), scored(85), nil)
	assert.Equal(t, models.ReasonRiskThreshold, d.Reason)
	assert.Equal(t, constants.DefaultDenyMessage, d.Message)
	assert.Nil(t, d.Challenge)
}

func TestDecisionMachine_ChallengeDirective(t *testing.T) {
	m := newTestDecisionMachine(nil)
	s := baseSession(businessHour)

	d := m.Decide(s, scored(60), &models.SecurityProfile{EnrolledFactors: []string{"push-notification", "otp", "otp"}})
	require.NotNil(t, d.Challenge)
	assert.Equal(t, constants.ChallengeModeVerify, d.Challenge.Mode)
	assert.Equal(t, []string{"push-notification", "otp"}, d.Challenge.Factors)

	d = m.Decide(s, scored(60), &models.SecurityProfile{EnrolledFactors: []string{"carrier-pigeon"}})
	require.NotNil(t, d.Challenge)
	assert.Equal(t, constants.ChallengeModeVerify, d.Challenge.Mode)
	assert.Equal(t, constants.DefaultChallengeFactors, d.Challenge.Factors)

	d = m.Decide(s, scored(60), &models.SecurityProfile{})
	require.NotNil(t, d.Challenge)
	assert.Equal(t, constants.ChallengeModeEnroll, d.Challenge.Mode)
	assert.Equal(t, []string{constants.DefaultChallengeFactor}, d.Challenge.Factors)
}

func TestDecisionMachine_InvalidThresholdsFallBack(t *testing.T) {
	rec := logger.NewRecorder()
	cfg := config.DefaultConfig().Decision
	cfg.ChallengeThreshold = 90
	cfg.BlockThreshold = 60

	m := NewDecisionMachine(cfg, rec)
	challenge, block := m.Thresholds()
	assert.Equal(t, constants.DefaultChallengeThreshold, challenge)
	assert.Equal(t, constants.DefaultBlockThreshold, block)
	assert.Len(t, rec.Messages("invalid decision thresholds, using defaults"), 1)
}
