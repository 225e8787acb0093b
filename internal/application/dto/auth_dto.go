package dto

import (
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

// AuthenticationRequest is one authentication event submitted by the host.
type AuthenticationRequest struct {
	EventID string                `json:"event_id,omitempty" validate:"omitempty,max=64"`
	Session models.SessionContext `json:"session"`
}

// AuthenticationResult is what the pipeline returns to the host for one event.
type AuthenticationResult struct {
	EventID           string                      `json:"event_id"`
	Decision          models.Decision             `json:"decision"`
	Risk              models.RiskAssessment       `json:"risk"`
	Anomalies         []models.Anomaly            `json:"anomalies"`
	Claims            *models.ClaimSet            `json:"claims,omitempty"`
	Permissions       *models.ResolvedPermissions `json:"permissions,omitempty"`
	PartialEnrichment bool                        `json:"partial_enrichment"`
	DurationMillis    int64                       `json:"duration_ms"`
}

// Denied reports whether the host must reject the login.
func (r *AuthenticationResult) Denied() bool {
	return r.Decision.Action == constants.ActionBlock
}
