package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// EventSigner produces the integrity signature stored on an audit event.
type EventSigner interface {
	Sign(event models.AuditEvent) (string, error)
}

// AuditEmitterOptions sizes the asynchronous delivery path.
type AuditEmitterOptions struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// QueuedAuditEmitter delivers informational events through a bounded queue
// drained by a fixed set of workers, and compliance-critical events inline.
// Delivery failures are written to the local audit log and never returned.
type QueuedAuditEmitter struct {
	sink     AuditSink
	signer   EventSigner
	fallback *logger.AuditLogger
	log      logger.Logger
	metrics  Metrics
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan models.AuditEvent
	wg     sync.WaitGroup
}

var _ AuditEmitter = (*QueuedAuditEmitter)(nil)

// NewAuditEmitter creates the emitter and starts its workers. signer may be nil.
func NewAuditEmitter(sink AuditSink, signer EventSigner, opts AuditEmitterOptions, log logger.Logger, metrics Metrics) *QueuedAuditEmitter {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultAuditTimeout
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	e := &QueuedAuditEmitter{
		sink:     sink,
		signer:   signer,
		fallback: logger.NewAuditLogger(log),
		log:      log.WithComponent("AuditEmitter"),
		metrics:  metrics,
		timeout:  opts.Timeout,
		queue:    make(chan models.AuditEvent, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// EmitAsync queues event for delivery. When the queue is full or the emitter
// is closed the event goes straight to the local fallback log.
func (e *QueuedAuditEmitter) EmitAsync(event models.AuditEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.fail(context.Background(), event, "emitter closed", nil, false)
		return
	}
	select {
	case e.queue <- event:
	default:
		e.fail(context.Background(), event, "queue full", nil, false)
	}
}

// EmitSync delivers event before returning. The attempt is not cut short by
// cancellation of ctx, only by the emitter's own timeout.
func (e *QueuedAuditEmitter) EmitSync(ctx context.Context, event models.AuditEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	e.publish(pubCtx, event, true)
}

// Close stops accepting events and waits for queued ones to drain, or for ctx to end.
func (e *QueuedAuditEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.ErrTimeout("audit.drain", ctx.Err())
	}
}

func (e *QueuedAuditEmitter) worker() {
	defer e.wg.Done()
	for event := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		e.publish(ctx, event, false)
		cancel()
	}
}

func (e *QueuedAuditEmitter) publish(ctx context.Context, event models.AuditEvent, synchronous bool) {
	if e.signer != nil {
		sig, err := e.signer.Sign(event)
		if err != nil {
			e.log.Warn(ctx, "audit event left unsigned", logger.String("event_id", event.ID), logger.Err(err))
		} else {
			event.Signature = sig
		}
	}

	if err := e.send(ctx, event); err != nil {
		e.fail(ctx, event, "sink unavailable", err, synchronous)
	}
}

func (e *QueuedAuditEmitter) send(ctx context.Context, event models.AuditEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.ErrInternal(fmt.Sprintf("audit sink panicked: %v", r), nil)
		}
	}()
	if e.sink == nil {
		return errors.ErrConfiguration("audit.sink", "no sink configured")
	}
	return e.sink.Publish(ctx, event)
}

func (e *QueuedAuditEmitter) fail(ctx context.Context, event models.AuditEvent, reason string, err error, synchronous bool) {
	e.metrics.RecordAuditFailure(string(event.EventType), synchronous)
	fields := []logger.Field{
		logger.String("event_id", event.ID),
		logger.String("outcome", string(event.Outcome)),
		logger.String("severity", string(event.Severity)),
		logger.String("actor_id", event.ActorID),
		logger.String("actor_ip", event.ActorIP),
		logger.String("organization_id", event.OrganizationID),
		logger.String("target_type", event.TargetType),
		logger.String("target_id", event.TargetID),
		logger.String("details", string(event.Details)),
		logger.Time("timestamp", event.Timestamp),
		logger.Bool("synchronous", synchronous),
	}
	if err != nil {
		fields = append(fields, logger.Err(err))
	}
	e.fallback.LogAuditEvent(ctx, event.EventType, reason, fields...)
}
