// Package audit implements audit sinks over Kafka, a relational store and the local log.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes audit events as JSON messages keyed by organization.
type KafkaSink struct {
	writer MessageWriter
	gw     *gateway.Gateway
	logger logger.Logger
}

var _ service.AuditSink = (*KafkaSink)(nil)

// NewKafkaWriter builds the kafka-go writer for the audit topic.
func NewKafkaWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 || cfg.AuditTopic == "" {
		return nil, errors.ErrConfiguration("kafka", "brokers and audit_topic are required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, nil
}

// NewKafkaSink creates a KafkaSink writing through writer.
func NewKafkaSink(writer MessageWriter, gw *gateway.Gateway, log logger.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		gw:     gw,
		logger: log.WithComponent("KafkaAuditSink"),
	}
}

// Publish sends event to the audit topic.
func (s *KafkaSink) Publish(ctx context.Context, event models.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.ErrInternal("failed to marshal audit event", err)
	}
	key := event.OrganizationID
	if key == "" {
		key = event.ActorID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}

	_, err = s.gw.Invoke(ctx, gateway.Operation{
		Name: "audit.kafka.write",
		Do: func(ctx context.Context) (*gateway.Result, error) {
			if err := s.writer.WriteMessages(ctx, msg); err != nil {
				return nil, err
			}
			return &gateway.Result{StatusCode: 202}, nil
		},
	})
	if err != nil {
		s.logger.Error(ctx, "failed to write audit event to Kafka", err, logger.String("event_id", event.ID))
	}
	return err
}

// Close closes the underlying Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
