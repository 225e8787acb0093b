package audit

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
)

// GormSink stores audit events in the audit_events table. Rows are only ever
// inserted; a replayed event with a known id is ignored.
type GormSink struct {
	db *gorm.DB
	gw *gateway.Gateway
}

var _ service.AuditSink = (*GormSink)(nil)

// NewGormSink creates and configures a new GormSink.
func NewGormSink(db *gorm.DB, gw *gateway.Gateway) *GormSink {
	return &GormSink{db: db, gw: gw}
}

// Migrate creates or updates the audit_events table.
func (s *GormSink) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.AuditEvent{})
}

// Publish saves an AuditEvent to the database.
func (s *GormSink) Publish(ctx context.Context, event models.AuditEvent) error {
	_, err := s.gw.Invoke(ctx, gateway.Operation{
		Name: "audit.db.insert",
		Do: func(ctx context.Context) (*gateway.Result, error) {
			err := s.db.WithContext(ctx).
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
				Create(&event).Error
			if err != nil {
				return nil, err
			}
			return &gateway.Result{StatusCode: 201}, nil
		},
	})
	return err
}

// ListByActor returns the most recent events of an actor, newest first.
func (s *GormSink) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
