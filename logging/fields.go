package logging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Standard field keys
const (
	// Tracing fields
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"

	// Messaging fields
	FieldDestination   = "destination"
	FieldExchange      = "exchange"
	FieldRoutingKey    = "routing_key"
	FieldQueue         = "queue"
	FieldMessageID     = "message_id"
	FieldCorrelationID = "correlation_id"

	// HTTP fields
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldHost       = "host"
	FieldStatusCode = "status_code"
	FieldLatencyMS  = "latency_ms"

	// Error fields
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Service fields
	FieldService     = "service"
	FieldVersion     = "version"
	FieldEnvironment = "environment"
	FieldComponent   = "component"
)

// TraceFields returns trace correlation fields for the span recorded in ctx.
// The returned trace_id and span_id use the W3C hex encodings, so log lines
// can be joined with exported spans. Returns nil when ctx carries no valid
// span context.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String(FieldTraceID, sc.TraceID().String()),
		zap.String(FieldSpanID, sc.SpanID().String()),
	}
}

// Standard field constructors

// TraceID creates a trace ID field.
func TraceID(id string) zap.Field {
	return zap.String(FieldTraceID, id)
}

// SpanID creates a span ID field.
func SpanID(id string) zap.Field {
	return zap.String(FieldSpanID, id)
}

// Destination creates a destination field.
func Destination(name string) zap.Field {
	return zap.String(FieldDestination, name)
}

// Exchange creates an exchange field.
func Exchange(name string) zap.Field {
	return zap.String(FieldExchange, name)
}

// RoutingKey creates a routing key field.
func RoutingKey(key string) zap.Field {
	return zap.String(FieldRoutingKey, key)
}

// Queue creates a queue field.
func Queue(name string) zap.Field {
	return zap.String(FieldQueue, name)
}

// MessageID creates a message ID field.
func MessageID(id string) zap.Field {
	return zap.String(FieldMessageID, id)
}

// CorrelationID creates a correlation ID field.
func CorrelationID(id string) zap.Field {
	return zap.String(FieldCorrelationID, id)
}

// Method creates an HTTP method field.
func Method(method string) zap.Field {
	return zap.String(FieldMethod, method)
}

// Path creates a path field.
func Path(path string) zap.Field {
	return zap.String(FieldPath, path)
}

// Host creates a host field.
func Host(host string) zap.Field {
	return zap.String(FieldHost, host)
}

// StatusCode creates a status code field.
func StatusCode(code int) zap.Field {
	return zap.Int(FieldStatusCode, code)
}

// LatencyMS creates a latency field in milliseconds.
func LatencyMS(d time.Duration) zap.Field {
	return zap.Float64(FieldLatencyMS, float64(d.Milliseconds()))
}

// Err creates an error field.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// ErrorType creates an error type field.
func ErrorType(errType string) zap.Field {
	return zap.String(FieldErrorType, errType)
}

// Service creates a service field.
func Service(name string) zap.Field {
	return zap.String(FieldService, name)
}

// Version creates a version field.
func Version(version string) zap.Field {
	return zap.String(FieldVersion, version)
}

// Environment creates an environment field.
func Environment(env string) zap.Field {
	return zap.String(FieldEnvironment, env)
}

// Component creates a component field.
func Component(name string) zap.Field {
	return zap.String(FieldComponent, name)
}

// String creates a string field.
func String(key, value string) zap.Field {
	return zap.String(key, value)
}

// Int creates an int field.
func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Int64 creates an int64 field.
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// Float64 creates a float64 field.
func Float64(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// Bool creates a bool field.
func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

// Any creates a field with any value.
func Any(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}
