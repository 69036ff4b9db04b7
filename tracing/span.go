package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTracerName is the default tracer name.
	DefaultTracerName = "amqptel"
)

// SpanOption is a function that configures a span.
type SpanOption func(*spanOptions)

type spanOptions struct {
	tracer     trace.Tracer
	kind       trace.SpanKind
	attributes []attribute.KeyValue
	links      []trace.Link
}

// WithTracer sets the tracer used to start the span. Without it the global
// tracer provider is consulted.
func WithTracer(tracer trace.Tracer) SpanOption {
	return func(o *spanOptions) {
		o.tracer = tracer
	}
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(o *spanOptions) {
		o.kind = kind
	}
}

// WithAttributes sets span attributes.
func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, attrs...)
	}
}

// WithLinks sets span links.
func WithLinks(links ...trace.Link) SpanOption {
	return func(o *spanOptions) {
		o.links = append(o.links, links...)
	}
}

// StartSpan starts a new span with the given name.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	options := &spanOptions{
		kind: trace.SpanKindInternal,
	}
	for _, opt := range opts {
		opt(options)
	}

	tracer := options.tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(DefaultTracerName)
	}

	spanOpts := []trace.SpanStartOption{
		trace.WithSpanKind(options.kind),
	}
	if len(options.attributes) > 0 {
		spanOpts = append(spanOpts, trace.WithAttributes(options.attributes...))
	}
	if len(options.links) > 0 {
		spanOpts = append(spanOpts, trace.WithLinks(options.links...))
	}

	return tracer.Start(ctx, name, spanOpts...)
}

// StartServerSpan starts a new server span.
func StartServerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindServer), WithAttributes(attrs...))
}

// StartClientSpan starts a new client span.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindClient), WithAttributes(attrs...))
}

// StartInternalSpan starts a new internal span.
func StartInternalSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindInternal), WithAttributes(attrs...))
}

// StartProducerSpan starts a new producer span.
func StartProducerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindProducer), WithAttributes(attrs...))
}

// StartConsumerSpan starts a new consumer span.
func StartConsumerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindConsumer), WithAttributes(attrs...))
}

// WithSpan runs fn inside a span and guarantees the span ends on every exit
// path. An error return marks the span failed; a panic marks it failed and
// then propagates.
func WithSpan(ctx context.Context, name string, fn func(context.Context) error, opts ...SpanOption) error {
	ctx, span := StartSpan(ctx, name, opts...)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			SetSpanError(span, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		SetSpanError(span, err)
		return err
	}
	SetSpanOK(span)
	return nil
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan returns a new context with the given span.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}

// SetSpanOK sets the span status to OK.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetSpanError sets the span status to Error and records the error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

// EndSpan maps err onto the span status and ends the span. A nil err ends
// the span as OK.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanOK(span)
	}
	span.End()
}

// AddEvent adds an event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the span.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// Attribute helpers

// StringAttr creates a string attribute.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// IntAttr creates an int attribute.
func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}

// Int64Attr creates an int64 attribute.
func Int64Attr(key string, value int64) attribute.KeyValue {
	return attribute.Int64(key, value)
}

// Float64Attr creates a float64 attribute.
func Float64Attr(key string, value float64) attribute.KeyValue {
	return attribute.Float64(key, value)
}

// BoolAttr creates a bool attribute.
func BoolAttr(key string, value bool) attribute.KeyValue {
	return attribute.Bool(key, value)
}

// Messaging semantic convention attributes

// MessagingSystemAttr creates a messaging system attribute.
func MessagingSystemAttr(system string) attribute.KeyValue {
	return attribute.String("messaging.system", system)
}

// MessagingDestinationAttr creates a messaging destination attribute.
func MessagingDestinationAttr(destination string) attribute.KeyValue {
	return attribute.String("messaging.destination", destination)
}

// MessagingDestinationKindAttr creates a messaging destination kind attribute.
func MessagingDestinationKindAttr(kind string) attribute.KeyValue {
	return attribute.String("messaging.destination_kind", kind)
}

// MessagingProtocolAttr creates a messaging protocol attribute.
func MessagingProtocolAttr(protocol string) attribute.KeyValue {
	return attribute.String("messaging.protocol", protocol)
}

// MessagingMessageIDAttr creates a message ID attribute.
func MessagingMessageIDAttr(id string) attribute.KeyValue {
	return attribute.String("messaging.message_id", id)
}

// MessagingCorrelationIDAttr creates a correlation ID attribute.
func MessagingCorrelationIDAttr(id string) attribute.KeyValue {
	return attribute.String("messaging.correlation_id", id)
}

// HTTP semantic convention attributes

// HTTPMethodAttr creates an HTTP method attribute.
func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String("http.method", method)
}

// HTTPURLAttr creates an HTTP URL attribute.
func HTTPURLAttr(url string) attribute.KeyValue {
	return attribute.String("http.url", url)
}

// HTTPTargetAttr creates an HTTP target attribute.
func HTTPTargetAttr(target string) attribute.KeyValue {
	return attribute.String("http.target", target)
}

// HTTPHostAttr creates an HTTP host attribute.
func HTTPHostAttr(host string) attribute.KeyValue {
	return attribute.String("http.host", host)
}

// HTTPStatusCodeAttr creates an HTTP status code attribute.
func HTTPStatusCodeAttr(code int) attribute.KeyValue {
	return attribute.Int("http.status_code", code)
}

// gRPC semantic convention attributes

// RPCSystemAttr creates an RPC system attribute.
func RPCSystemAttr(system string) attribute.KeyValue {
	return attribute.String("rpc.system", system)
}

// RPCServiceAttr creates an RPC service attribute.
func RPCServiceAttr(service string) attribute.KeyValue {
	return attribute.String("rpc.service", service)
}

// RPCMethodAttr creates an RPC method attribute.
func RPCMethodAttr(method string) attribute.KeyValue {
	return attribute.String("rpc.method", method)
}

// RPCGRPCStatusCodeAttr creates a gRPC status code attribute.
func RPCGRPCStatusCodeAttr(code int) attribute.KeyValue {
	return attribute.Int("rpc.grpc.status_code", code)
}

// ErrorTypeAttr creates an error type attribute.
func ErrorTypeAttr(errType string) attribute.KeyValue {
	return attribute.String("error.type", errType)
}

// TraceIDFromContext returns the trace ID from the context.
func TraceIDFromContext(ctx context.Context) string {
	return trace.SpanFromContext(ctx).SpanContext().TraceID().String()
}

// SpanIDFromContext returns the span ID from the context.
func SpanIDFromContext(ctx context.Context) string {
	return trace.SpanFromContext(ctx).SpanContext().SpanID().String()
}

// IsSampled returns true if the span context is valid and sampled.
func IsSampled(ctx context.Context) bool {
	return trace.SpanFromContext(ctx).SpanContext().IsSampled()
}
