// Package consumers contains Kafka consumers for background profile maintenance.
package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

const (
	fetchErrorBackoff = time.Second
	maxRetryBackoff   = 30 * time.Second
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FailureRecorder applies one failed primary authentication to a security profile.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, req *dto.RecordFailureRequest) error
}

// FailureEvent is the message hosts publish after a failed primary authentication.
type FailureEvent struct {
	IdentityID     string    `json:"identity_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	SourceIP       string    `json:"source_ip,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at,omitempty"`
}

// FailureConsumer feeds failed logins published on Kafka into the profile store,
// so hosts that already stream login events need not call the HTTP endpoint.
type FailureConsumer struct {
	reader     MessageReader
	recorder   FailureRecorder
	logger     logger.Logger
	retryDelay time.Duration
}

// NewKafkaReader builds the consumer-group reader for the failure topic.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.FailureTopic,
		GroupID:        cfg.ConsumerGroup, // all instances share the group
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})
}

// NewFailureConsumer creates a consumer reading from reader.
func NewFailureConsumer(reader MessageReader, recorder FailureRecorder, log logger.Logger) *FailureConsumer {
	return &FailureConsumer{
		reader:     reader,
		recorder:   recorder,
		logger:     log.WithComponent("FailureConsumer"),
		retryDelay: fetchErrorBackoff,
	}
}

// Start runs the consumer loop until ctx is cancelled. It's a blocking call and should be run in a goroutine.
func (c *FailureConsumer) Start(ctx context.Context) {
	c.logger.Info(ctx, "starting failed login consumer...")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info(context.Background(), "stopping failed login consumer...")
				return
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		// A group commit covers every earlier offset, so a message is never
		// skipped: it is retried here until it is done or ctx ends.
		if !c.handleMessage(ctx, msg) {
			c.logger.Info(context.Background(), "stopping failed login consumer with an unfinished message",
				logger.Int64("offset", msg.Offset))
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error(ctx, "failed to commit kafka message", err, logger.Int64("offset", msg.Offset))
		}
	}
}

// handleMessage applies msg, retrying store failures with a capped backoff.
// It returns false only when ctx ends before msg is finished with.
func (c *FailureConsumer) handleMessage(ctx context.Context, msg kafka.Message) bool {
	var event FailureEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// poison pill
		c.logger.Error(ctx, "failed to unmarshal failure event", err, logger.Int64("offset", msg.Offset))
		return true
	}
	req := &dto.RecordFailureRequest{
		IdentityID:     event.IdentityID,
		OrganizationID: event.OrganizationID,
		SourceIP:       event.SourceIP,
		Reason:         event.Reason,
	}

	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := c.recorder.RecordFailure(ctx, req)
		switch {
		case err == nil:
			return true
		case errors.KindOf(err) == errors.KindValidation:
			c.logger.Warn(ctx, "dropping invalid failure event", logger.Err(err), logger.Int64("offset", msg.Offset))
			return true
		}
		c.logger.Error(ctx, "failed to record failure event, retrying", err,
			logger.String("identity_id", event.IdentityID),
			logger.Int64("offset", msg.Offset),
			logger.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}

// Close shuts down the reader.
func (c *FailureConsumer) Close() error {
	return c.reader.Close()
}
