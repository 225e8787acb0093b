package models

import "github.com/turtacn/aegis/pkg/constants"

// Factor is one triggered contribution to a risk score.
type Factor struct {
	Name   constants.RiskFactor `json:"name"`
	Weight int                  `json:"weight"`
	Detail string               `json:"detail,omitempty"`
}

// RiskAssessment is the outcome of scoring one session.
type RiskAssessment struct {
	Score   int                 `json:"score"`
	Level   constants.RiskLevel `json:"level"`
	Factors []Factor            `json:"factors"`
}

// RawScore is the sum of factor weights before clamping.
func (r RiskAssessment) RawScore() int {
	total := 0
	for _, f := range r.Factors {
		total += f.Weight
	}
	return total
}

// HasFactor reports whether the named factor was triggered.
func (r RiskAssessment) HasFactor(name constants.RiskFactor) bool {
	for _, f := range r.Factors {
		if f.Name == name {
			return true
		}
	}
	return false
}

// LevelForScore maps a clamped score onto a coarse risk level.
func LevelForScore(score int) constants.RiskLevel {
	switch {
	case score >= 80:
		return constants.RiskLevelCritical
	case score >= 60:
		return constants.RiskLevelHigh
	case score >= 30:
		return constants.RiskLevelMedium
	default:
		return constants.RiskLevelLow
	}
}
