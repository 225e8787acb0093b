package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/aegis/pkg/constants"
)

// AuditEvent is a write-once audit record. Builders are used only while the
// event is being assembled; once handed to the emitter it is copied by value
// and never changed.
type AuditEvent struct {
	ID             string                   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EventType      constants.AuditEventType `json:"event_type" gorm:"type:varchar(64);index"`
	Outcome        constants.AuditOutcome   `json:"outcome" gorm:"type:varchar(16)"`
	Severity       constants.AuditSeverity  `json:"severity" gorm:"type:varchar(16)"`
	ActorID        string                   `json:"actor_id,omitempty" gorm:"type:varchar(255);index"`
	ActorEmail     string                   `json:"actor_email,omitempty" gorm:"type:varchar(255)"`
	ActorIP        string                   `json:"actor_ip,omitempty" gorm:"type:varchar(64)"`
	OrganizationID string                   `json:"organization_id,omitempty" gorm:"type:varchar(255);index"`
	TargetType     string                   `json:"target_type,omitempty" gorm:"type:varchar(64)"`
	TargetID       string                   `json:"target_id,omitempty" gorm:"type:varchar(255)"`
	Details        json.RawMessage          `json:"details,omitempty" gorm:"type:text"`
	Timestamp      time.Time                `json:"timestamp" gorm:"index"`
	Signature      string                   `json:"signature,omitempty" gorm:"type:varchar(128)"`
}

// TableName pins the table used by the relational sink.
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent creates a new audit event.
func NewAuditEvent(eventType constants.AuditEventType, outcome constants.AuditOutcome) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Outcome:   outcome,
		Severity:  SeverityFor(eventType),
		Timestamp: time.Now().UTC(),
	}
}

// WithActor sets who performed the action.
func (e *AuditEvent) WithActor(id, email, ip string) *AuditEvent {
	e.ActorID = id
	e.ActorEmail = email
	e.ActorIP = ip
	return e
}

// WithOrganization sets the organization the actor belongs to.
func (e *AuditEvent) WithOrganization(orgID string) *AuditEvent {
	e.OrganizationID = orgID
	return e
}

// WithTarget sets the object acted upon.
func (e *AuditEvent) WithTarget(targetType, targetID string) *AuditEvent {
	e.TargetType = targetType
	e.TargetID = targetID
	return e
}

// WithDetails sets the structured detail payload.
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	data, err := json.Marshal(details)
	if err == nil {
		e.Details = data
	}
	return e
}

// WithSeverity overrides the default severity of the event type.
func (e *AuditEvent) WithSeverity(severity constants.AuditSeverity) *AuditEvent {
	e.Severity = severity
	return e
}

// SigningPayload is the canonical form of the event covered by Signature.
func (e AuditEvent) SigningPayload() ([]byte, error) {
	e.Signature = ""
	return json.Marshal(e)
}

// SeverityFor returns the default severity of an event type.
func SeverityFor(eventType constants.AuditEventType) constants.AuditSeverity {
	switch eventType {
	case constants.AuditEventLoginBlocked, constants.AuditEventAdminOverride:
		return constants.AuditSeverityCritical
	case constants.AuditEventLoginFailed, constants.AuditEventAccessDenied, constants.AuditEventSystemError:
		return constants.AuditSeverityWarning
	case constants.AuditEventMFAChallenge, constants.AuditEventMFAEnrollment, constants.AuditEventMFAEnrolled:
		return constants.AuditSeverityNotice
	default:
		return constants.AuditSeverityInfo
	}
}
