package models

import "github.com/turtacn/aegis/pkg/constants"

// Decision reasons recorded on the transition out of Evaluating.
const (
	ReasonGeoRestricted  = "geo_restricted"
	ReasonRiskThreshold  = "risk_threshold"
	ReasonStepUpRequired = "step_up_required"
	ReasonWithinPolicy   = "within_policy"
	ReasonInternalError  = "internal_error"
)

// ChallengeDirective tells the host how to step up a challenged session.
type ChallengeDirective struct {
	Mode    constants.ChallengeMode `json:"mode"`
	Factors []string                `json:"factors"`
}

// Decision is the terminal outcome of one authentication event.
type Decision struct {
	Action    constants.DecisionAction `json:"action"`
	From      constants.DecisionState  `json:"from"`
	To        constants.DecisionState  `json:"to"`
	Reason    string                   `json:"reason"`
	Message   string                   `json:"message,omitempty"`
	Challenge *ChallengeDirective      `json:"challenge,omitempty"`
}

// IsBlocked reports whether the event must be denied.
func (d Decision) IsBlocked() bool {
	return d.Action == constants.ActionBlock
}
