// Package propagation implements the wire codec for trace context and
// baggage crossing process boundaries over HTTP headers, AMQP message
// headers, and gRPC metadata.
package propagation

import (
	"context"

	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	otelpropagation "go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Carrier is the key-value view of a wire carrier the codec reads and
// writes. http.Header, AMQP tables and gRPC metadata all adapt to it.
type Carrier = otelpropagation.TextMapCarrier

// Format defines a wire format for trace context propagation.
type Format string

const (
	// FormatW3C uses W3C Trace Context propagation.
	FormatW3C Format = "w3c"
	// FormatB3 uses B3 single-header propagation (Zipkin style).
	FormatB3 Format = "b3"
	// FormatB3Multi uses B3 multi-header propagation.
	FormatB3Multi Format = "b3-multi"
	// FormatJaeger uses Jaeger propagation.
	FormatJaeger Format = "jaeger"
)

// Config holds configuration for the codec.
type Config struct {
	// Formats is the list of wire formats to encode and decode. Injection
	// writes all of them; extraction accepts any.
	Formats []Format

	// EnableBaggage enables W3C baggage propagation alongside trace context.
	EnableBaggage bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Formats:       []Format{FormatW3C},
		EnableBaggage: true,
	}
}

// Codec encodes the active trace context into carriers and decodes incoming
// carriers back into a context. Decoding never fails: absent or malformed
// entries yield a context without a remote parent, so spans started from it
// begin a fresh trace.
type Codec struct {
	propagator otelpropagation.TextMapPropagator
	logger     *zap.Logger
}

// NewCodec creates a Codec for the configured wire formats.
func NewCodec(config *Config, logger *zap.Logger) *Codec {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	propagators := make([]otelpropagation.TextMapPropagator, 0, len(config.Formats)+1)
	for _, f := range config.Formats {
		switch f {
		case FormatB3:
			propagators = append(propagators, b3.New(b3.WithInjectEncoding(b3.B3SingleHeader)))
		case FormatB3Multi:
			propagators = append(propagators, b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)))
		case FormatJaeger:
			propagators = append(propagators, jaeger.Jaeger{})
		default:
			propagators = append(propagators, otelpropagation.TraceContext{})
		}
	}
	if len(propagators) == 0 {
		propagators = append(propagators, otelpropagation.TraceContext{})
	}
	if config.EnableBaggage {
		propagators = append(propagators, otelpropagation.Baggage{})
	}

	return &Codec{
		propagator: otelpropagation.NewCompositeTextMapPropagator(propagators...),
		logger:     logger,
	}
}

// Inject writes the context's trace identity and baggage into the carrier.
// Existing propagation keys are overwritten; unrelated keys are left alone.
// Injecting the same context twice is a no-op beyond the overwrite.
func (c *Codec) Inject(ctx context.Context, carrier Carrier) {
	c.propagator.Inject(ctx, carrier)
}

// Extract reads trace identity and baggage from the carrier into a new
// context. Malformed entries are discarded with a debug log; the caller
// always gets a usable context back.
func (c *Codec) Extract(ctx context.Context, carrier Carrier) context.Context {
	out := c.propagator.Extract(ctx, carrier)

	if !trace.SpanContextFromContext(out).IsValid() && c.carrierHasFields(carrier) {
		c.logger.Debug("discarding malformed trace context",
			zap.Strings("keys", carrier.Keys()),
		)
	}

	return out
}

// Fields returns the carrier keys the codec reads and writes.
func (c *Codec) Fields() []string {
	return c.propagator.Fields()
}

// Propagator exposes the underlying composite propagator, for callers that
// integrate with OpenTelemetry APIs directly.
func (c *Codec) Propagator() otelpropagation.TextMapPropagator {
	return c.propagator
}

// SetGlobal installs the codec as the process-wide propagator. Components
// take an explicit *Codec; the global is a fallback for code that reaches
// for otel.GetTextMapPropagator.
func (c *Codec) SetGlobal() {
	otel.SetTextMapPropagator(c.propagator)
}

// carrierHasFields reports whether the carrier holds any key the codec
// understands, meaning a decode was attempted and failed rather than the
// carrier being empty.
func (c *Codec) carrierHasFields(carrier Carrier) bool {
	for _, f := range c.propagator.Fields() {
		if carrier.Get(f) != "" {
			return true
		}
	}
	return false
}

// SpanContextFromContext returns the span context recorded in ctx. The zero
// value is returned when ctx carries none.
func SpanContextFromContext(ctx context.Context) trace.SpanContext {
	return trace.SpanContextFromContext(ctx)
}

// SetBaggageMember returns a context whose baggage carries the given member.
func SetBaggageMember(ctx context.Context, key, value string) (context.Context, error) {
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx, err
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx, err
	}
	return baggage.ContextWithBaggage(ctx, bag), nil
}

// BaggageMember returns the value of the named baggage member, or the empty
// string when it is absent.
func BaggageMember(ctx context.Context, key string) string {
	return baggage.FromContext(ctx).Member(key).Value()
}
