// Package gateway is the single retrying client every external call goes through.
package gateway

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// Result is the response of an external call.
type Result struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Operation is one idempotent external call. Do is invoked once per attempt
// with a context bounded by the per-call timeout.
type Operation struct {
	Name string
	Do   func(ctx context.Context) (*Result, error)
}

// RetryPolicy controls how many times and how far apart an operation is attempted.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterMax      time.Duration
	PerCallTimeout time.Duration
}

// DefaultRetryPolicy is 3 attempts, 1s base delay doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    constants.DefaultRetryMaxAttempts,
		BaseDelay:      constants.DefaultRetryBaseDelay,
		MaxDelay:       constants.DefaultRetryMaxDelay,
		JitterMax:      constants.DefaultRetryJitter,
		PerCallTimeout: constants.DefaultPerCallTimeout,
	}
}

// PolicyFromConfig builds a RetryPolicy from configuration.
func PolicyFromConfig(cfg config.GatewayConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		JitterMax:      cfg.JitterMax,
		PerCallTimeout: cfg.PerCallTimeout,
	}
}

// NoDelayPolicy retries immediately; intended for tests.
func NoDelayPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, PerCallTimeout: constants.DefaultPerCallTimeout}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a Gateway.
type Option func(*Gateway)

// WithSleeper replaces the real-time sleeper.
func WithSleeper(s Sleeper) Option { return func(g *Gateway) { g.sleep = s } }

// WithJitter replaces the random jitter source. fn receives JitterMax.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(g *Gateway) { g.jitter = fn }
}

// WithMetrics records attempts and retries.
func WithMetrics(m service.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// WithTracer sets the tracer used for the per-invocation span.
func WithTracer(t trace.Tracer) Option { return func(g *Gateway) { g.tracer = t } }

// WithClock replaces time.Now, used to resolve HTTP-date Retry-After hints.
func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

// Gateway retries operations that fail with 429, 5xx or transport errors.
type Gateway struct {
	policy  RetryPolicy
	log     logger.Logger
	metrics service.Metrics
	tracer  trace.Tracer
	sleep   Sleeper
	jitter  func(max time.Duration) time.Duration
	now     func() time.Time
}

// New creates a Gateway. Missing policy values are filled with defaults.
func New(policy RetryPolicy, log logger.Logger, opts ...Option) *Gateway {
	d := DefaultRetryPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = d.MaxAttempts
	}
	if policy.PerCallTimeout <= 0 {
		policy.PerCallTimeout = d.PerCallTimeout
	}
	if policy.MaxDelay <= 0 && policy.BaseDelay > 0 {
		policy.MaxDelay = d.MaxDelay
	}
	// Jitter up to BaseDelay keeps consecutive delays non-decreasing.
	if policy.JitterMax > policy.BaseDelay {
		policy.JitterMax = policy.BaseDelay
	}
	g := &Gateway{
		policy:  policy,
		log:     log.WithComponent("Gateway"),
		metrics: service.NoopMetrics{},
		tracer:  otel.Tracer("aegis/gateway"),
		sleep:   sleepContext,
		jitter:  randomJitter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the effective retry policy.
func (g *Gateway) Policy() RetryPolicy {
	return g.policy
}

// Invoke runs op, retrying retryable failures. Non-retryable failures are
// returned at once; exhausting the attempts returns a terminal error that
// wraps the last failure.
func (g *Gateway) Invoke(ctx context.Context, op Operation) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op.Name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < g.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, g.abort(span, errors.ErrTimeout(op.Name, err))
		}

		start := time.Now()
		res, err := g.attempt(ctx, op)
		elapsed := time.Since(start)

		var hint time.Duration
		switch {
		case err == nil && res.StatusCode < http.StatusBadRequest:
			g.metrics.RecordGatewayAttempt(op.Name, "success", elapsed)
			span.SetAttributes(attribute.Int("gateway.attempts", attempt+1), attribute.Int("http.status_code", res.StatusCode))
			return res, nil
		case err == nil && errors.IsRetryableStatus(res.StatusCode):
			g.metrics.RecordGatewayAttempt(op.Name, "retryable_status", elapsed)
			lastErr = errors.ErrTransient(op.Name, res.StatusCode)
			hint = g.retryAfter(res.Header)
		case err == nil:
			g.metrics.RecordGatewayAttempt(op.Name, "rejected", elapsed)
			return nil, g.abort(span, errors.ErrRejected(op.Name, res.StatusCode))
		case ctx.Err() != nil:
			g.metrics.RecordGatewayAttempt(op.Name, "cancelled", elapsed)
			return nil, g.abort(span, errors.ErrTimeout(op.Name, ctx.Err()))
		case !retryableKind(errors.KindOf(err)):
			g.metrics.RecordGatewayAttempt(op.Name, "terminal", elapsed)
			return nil, g.abort(span, err)
		default:
			g.metrics.RecordGatewayAttempt(op.Name, "transport_error", elapsed)
			lastErr = err
		}

		if attempt == g.policy.MaxAttempts-1 {
			break
		}

		delay := g.backoff(attempt, hint)
		g.metrics.RecordGatewayRetry(op.Name)
		g.log.Warn(ctx, "retrying external call",
			logger.String("operation", op.Name),
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Err(lastErr))
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt+1),
			attribute.Int64("delay_ms", delay.Milliseconds())))

		if err := g.sleep(ctx, delay); err != nil {
			return nil, g.abort(span, errors.ErrTimeout(op.Name, err))
		}
	}

	err := errors.ErrRetriesExhausted(op.Name, g.policy.MaxAttempts, lastErr)
	g.log.Error(ctx, "external call failed after retries", err,
		logger.String("operation", op.Name),
		logger.Int("attempts", g.policy.MaxAttempts))
	return nil, g.abort(span, err)
}

func (g *Gateway) attempt(ctx context.Context, op Operation) (res *Result, err error) {
	callCtx, cancel := context.WithTimeout(ctx, g.policy.PerCallTimeout)
	defer cancel()
	res, err = op.Do(callCtx)
	if err == nil && res == nil {
		err = errors.ErrMalformedResponse(op.Name, nil)
	}
	return res, err
}

// backoff returns the delay before the next attempt. A server hint wins;
// otherwise the delay is BaseDelay*2^attempt plus jitter. Both are capped at MaxDelay.
func (g *Gateway) backoff(attempt int, hint time.Duration) time.Duration {
	var d time.Duration
	if hint > 0 {
		d = hint
	} else {
		d = g.policy.BaseDelay
		for i := 0; i < attempt; i++ {
			if g.policy.MaxDelay > 0 && d >= g.policy.MaxDelay {
				break
			}
			d *= 2
		}
		if g.policy.JitterMax > 0 {
			d += g.jitter(g.policy.JitterMax)
		}
	}
	if g.policy.MaxDelay > 0 && d > g.policy.MaxDelay {
		d = g.policy.MaxDelay
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func (g *Gateway) retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get(constants.HeaderRetryAfter))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(g.now()); d > 0 {
			return d
		}
	}
	return 0
}

// retryableKind reports whether an error returned by an operation may be retried.
// Plain errors classify as internal and count as transport failures.
func retryableKind(k errors.Kind) bool {
	switch k {
	case errors.KindTerminal, errors.KindValidation, errors.KindNotFound, errors.KindConfiguration:
		return false
	}
	return true
}

func (g *Gateway) abort(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
