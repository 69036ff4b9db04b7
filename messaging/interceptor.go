// Package messaging instruments AMQP publish and consume operations with
// trace propagation and per-destination metrics, and declares the
// dead-letter retry topology for failed message processing.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/amqptel/amqptel/logging"
	"github.com/amqptel/amqptel/metrics"
	"github.com/amqptel/amqptel/propagation"
	"github.com/amqptel/amqptel/tracing"
)

const tracerName = "amqptel/messaging"

// Messaging attribute values for AMQP 0.9.1 brokers.
const (
	messagingSystem      = "rabbitmq"
	messagingProtocol    = "AMQP"
	destinationKindQueue = "queue"
)

// DefaultRedeliveryHeader is the header the broker stamps on a message the
// first time it transits a dead-letter exchange. Its presence marks a
// delivery as a retry.
const DefaultRedeliveryHeader = "x-first-death-exchange"

// Publisher is the publish operation the interceptor wraps.
// *amqp091.Channel satisfies it.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Handler processes one delivery. Returning an error leaves the message's
// fate to the broker; the interceptor never acknowledges or suppresses.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Config holds configuration for the messaging instrumentation.
type Config struct {
	// TracerProvider supplies the tracer. Nil falls back to the global
	// provider.
	TracerProvider trace.TracerProvider

	// Registry receives per-destination metrics. Nil disables metric
	// recording; spans are still produced.
	Registry *metrics.Registry

	// Codec carries trace context across the broker. Nil builds a W3C
	// codec with baggage.
	Codec *propagation.Codec

	// Logger for instrumentation-internal events. Nil discards them.
	Logger *zap.Logger

	// RedeliveryHeader overrides the broker header that marks redelivered
	// messages. Empty uses DefaultRedeliveryHeader.
	RedeliveryHeader string
}

// Instrumentation wraps publish operations and consumer callbacks. The
// wrapped operation's outcome always passes through unchanged; spans and
// metrics are bookkeeping on the side.
type Instrumentation struct {
	tracer           trace.Tracer
	registry         *metrics.Registry
	codec            *propagation.Codec
	logger           *zap.Logger
	redeliveryHeader string
}

// NewInstrumentation creates messaging instrumentation from config.
func NewInstrumentation(config *Config) *Instrumentation {
	if config == nil {
		config = &Config{}
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	codec := config.Codec
	if codec == nil {
		codec = propagation.NewCodec(nil, logger)
	}
	redeliveryHeader := config.RedeliveryHeader
	if redeliveryHeader == "" {
		redeliveryHeader = DefaultRedeliveryHeader
	}

	return &Instrumentation{
		tracer:           tp.Tracer(tracerName),
		registry:         config.Registry,
		codec:            codec,
		logger:           logger,
		redeliveryHeader: redeliveryHeader,
	}
}

// WrapPublisher returns a publisher whose PublishWithContext runs inside a
// producer span, carries the trace context in the message headers, and
// counts published messages. Publish errors return to the caller verbatim.
func (i *Instrumentation) WrapPublisher(next Publisher) Publisher {
	return &instrumentedPublisher{inst: i, next: next}
}

type instrumentedPublisher struct {
	inst *Instrumentation
	next Publisher
}

// PublishWithContext implements Publisher.
func (p *instrumentedPublisher) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	i := p.inst

	if msg.Headers == nil {
		msg.Headers = amqp.Table{}
	}

	ctx, span := tracing.StartSpan(ctx, "publish "+key,
		tracing.WithTracer(i.tracer),
		tracing.WithSpanKind(trace.SpanKindProducer),
		tracing.WithAttributes(
			tracing.MessagingSystemAttr(messagingSystem),
			tracing.MessagingDestinationAttr(key),
			tracing.MessagingDestinationKindAttr(destinationKindQueue),
			tracing.MessagingProtocolAttr(messagingProtocol),
		),
	)
	defer span.End()

	i.codec.Inject(ctx, propagation.TableCarrier(msg.Headers))

	// A consumer on the other side of the hop joins the trace through the
	// headers; the correlation id gives humans the same link.
	if msg.CorrelationId == "" {
		msg.CorrelationId = span.SpanContext().SpanID().String()
	}
	if msg.MessageId == "" {
		msg.MessageId = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	span.SetAttributes(
		tracing.MessagingMessageIDAttr(msg.MessageId),
		tracing.MessagingCorrelationIDAttr(msg.CorrelationId),
	)

	if err := p.next.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg); err != nil {
		tracing.SetSpanError(span, err)
		return err
	}

	i.record(key, func(inst *metrics.Instruments) {
		inst.AddPublished(ctx)
		inst.RecordMessageSize(ctx, len(msg.Body))
	})

	tracing.SetSpanOK(span)
	return nil
}

// WrapConsumer returns a handler that extracts the trace context from each
// delivery, runs h inside consume and process spans, and records consume
// metrics. Errors and panics from h propagate unchanged.
func (i *Instrumentation) WrapConsumer(queue string, h Handler) Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		ctx = i.codec.Extract(ctx, propagation.TableCarrier(d.Headers))

		ctx, span := tracing.StartSpan(ctx, "consume "+queue,
			tracing.WithTracer(i.tracer),
			tracing.WithSpanKind(trace.SpanKindConsumer),
			tracing.WithAttributes(
				tracing.MessagingSystemAttr(messagingSystem),
				tracing.MessagingDestinationAttr(queue),
				tracing.MessagingDestinationKindAttr(destinationKindQueue),
				tracing.MessagingProtocolAttr(messagingProtocol),
				tracing.MessagingMessageIDAttr(d.MessageId),
				tracing.MessagingCorrelationIDAttr(d.CorrelationId),
			),
		)
		defer span.End()

		redelivered := i.isRedelivered(d.Headers)
		i.record(queue, func(inst *metrics.Instruments) {
			inst.AddConsumed(ctx)
			inst.RecordMessageSize(ctx, len(d.Body))
			if redelivered {
				inst.AddRetry(ctx)
			}
			if !d.Timestamp.IsZero() {
				inst.RecordQueueTime(ctx, time.Since(d.Timestamp))
			}
		})

		err := i.process(ctx, span, queue, h, d)
		if err != nil {
			tracing.SetSpanError(span, err)
			return err
		}

		tracing.SetSpanOK(span)
		return nil
	}
}

// process runs the handler inside the nested processing span and times it.
// A panic marks both spans failed and propagates after they end.
func (i *Instrumentation) process(ctx context.Context, consumeSpan trace.Span, queue string, h Handler, d amqp.Delivery) error {
	ctx, span := tracing.StartSpan(ctx, "process "+queue,
		tracing.WithTracer(i.tracer),
		tracing.WithAttributes(tracing.StringAttr("messaging.operation", "process")),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			tracing.SetSpanError(span, err)
			tracing.SetSpanError(consumeSpan, err)
			panic(r)
		}
	}()

	start := time.Now()
	err := h(ctx, d)
	i.record(queue, func(inst *metrics.Instruments) {
		inst.RecordProcessingTime(ctx, time.Since(start))
	})

	if err != nil {
		tracing.SetSpanError(span, err)
		return err
	}
	tracing.SetSpanOK(span)
	return nil
}

// isRedelivered reports whether the broker marked the delivery as having
// transited a dead-letter exchange.
func (i *Instrumentation) isRedelivered(headers amqp.Table) bool {
	if headers == nil {
		return false
	}
	_, ok := headers[i.redeliveryHeader]
	return ok
}

// record runs metric bookkeeping so that its failure can never change the
// wrapped operation's outcome. Panics are logged and swallowed.
func (i *Instrumentation) record(destination string, fn func(*metrics.Instruments)) {
	if i.registry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("messaging instrumentation bookkeeping failed",
				logging.Destination(destination),
				zap.Any("panic", r),
			)
		}
	}()
	fn(i.registry.ForDestination(destination))
}
