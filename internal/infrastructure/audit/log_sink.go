package audit

import (
	"context"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/logger"
)

// LogSink writes audit events to the structured log. It is the sink used when
// no broker or database is configured.
type LogSink struct {
	logger logger.Logger
}

var _ service.AuditSink = (*LogSink)(nil)

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithComponent("audit")}
}

func (s *LogSink) Publish(ctx context.Context, event models.AuditEvent) error {
	s.logger.Info(ctx, "audit event",
		logger.String("event_id", event.ID),
		logger.String("event_type", string(event.EventType)),
		logger.String("outcome", string(event.Outcome)),
		logger.String("severity", string(event.Severity)),
		logger.String("actor_id", event.ActorID),
		logger.String("actor_ip", event.ActorIP),
		logger.String("organization_id", event.OrganizationID),
		logger.String("target_type", event.TargetType),
		logger.String("target_id", event.TargetID),
		logger.String("details", string(event.Details)),
		logger.Time("timestamp", event.Timestamp),
		logger.String("signature", event.Signature),
	)
	return nil
}
