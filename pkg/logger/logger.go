// Package logger provides structured logging capabilities for the Aegis service.
// Implementations are context-first so trace and event identifiers flow into every entry.
package logger

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/aegis/pkg/constants"
	"go.opentelemetry.io/otel/trace"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(ctx context.Context, message string, fields ...Field)
	Info(ctx context.Context, message string, fields ...Field)
	Warn(ctx context.Context, message string, fields ...Field)
	Error(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional base fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger tagged with a component name
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key string, value string) Field { return Field{Key: key, Value: value} }

// Strings creates a string slice field
func Strings(key string, value []string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.UTC().Format(time.RFC3339Nano)}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// ContextFields extracts request-scoped identifiers from ctx.
func ContextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var fields []Field
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			String("trace_id", sc.TraceID().String()),
			String("span_id", sc.SpanID().String()))
	}
	for _, key := range []constants.ContextKey{
		constants.ContextKeyRequestID,
		constants.ContextKeyEventID,
		constants.ContextKeyIdentityID,
	} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, String(string(key), v))
		}
	}
	return fields
}

// ================================================================================
// Sanitizing
// ================================================================================

var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"private_key",
	"signing_key",
}

// SanitizeValue masks values whose key looks sensitive.
func SanitizeValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			if str, ok := value.(string); ok && len(str) > 8 {
				return str[:4] + "***" + str[len(str)-4:]
			}
			return "***REDACTED***"
		}
	}
	return value
}

// ================================================================================
// Audit Logging
// ================================================================================

// AuditLogger writes audit records to the local log stream. It is the fallback
// used when the audit sink cannot be reached, so audit loss stays observable.
type AuditLogger struct {
	logger Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(l Logger) *AuditLogger {
	return &AuditLogger{logger: l.WithComponent("audit")}
}

// LogAuditEvent logs an audit record that could not be delivered
func (a *AuditLogger) LogAuditEvent(ctx context.Context, eventType constants.AuditEventType, reason string, fields ...Field) {
	auditFields := append([]Field{
		String("event_type", string(eventType)),
		String("event_category", "audit"),
		String("delivery", "local_fallback"),
		String("fallback_reason", reason),
	}, fields...)

	a.logger.Warn(ctx, "audit event written to local fallback", auditFields...)
}
