package httptel

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amqptel/amqptel/metrics"
	"github.com/amqptel/amqptel/propagation"
	"github.com/amqptel/amqptel/tracing"
)

// Transport is an http.RoundTripper that runs each request inside a client
// span, injects the trace context into the outgoing headers and records
// the request duration per endpoint. Transport errors and non-2xx statuses
// mark the span failed and count on the error counter with their kind.
type Transport struct {
	base http.RoundTripper
	in   *instrument
}

// NewTransport wraps base with instrumentation. A nil base uses
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, config *Config) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, in: newInstrument(config)}
}

// RoundTrip implements http.RoundTripper. The response and error from the
// underlying transport return to the caller verbatim.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.in.skipRequest(req) {
		return t.base.RoundTrip(req)
	}

	destination := req.Method + " " + req.URL.Host + req.URL.Path
	ctx, span := t.in.tracer.Start(req.Context(), destination,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			tracing.HTTPMethodAttr(req.Method),
			tracing.HTTPURLAttr(req.URL.String()),
			tracing.HTTPHostAttr(req.URL.Host),
		),
	)
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(ctx)
	t.in.codec.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		kind := ClassifyError(err)
		span.SetAttributes(tracing.ErrorTypeAttr(kind))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)

		t.in.record(destination, func(inst *metrics.Instruments) {
			inst.RecordRequestDuration(ctx, duration)
			inst.AddError(ctx, kind)
		})
		return nil, err
	}

	span.SetAttributes(tracing.HTTPStatusCodeAttr(resp.StatusCode))
	kind, failed := ClassifyStatus(resp.StatusCode)
	if failed {
		span.SetAttributes(tracing.ErrorTypeAttr(kind))
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	t.in.record(destination, func(inst *metrics.Instruments) {
		inst.RecordRequestDuration(ctx, duration)
		if failed {
			inst.AddError(ctx, kind)
		}
	})
	return resp, nil
}

// InstrumentResty installs the instrumented transport on a resty client.
// Every request the client sends then carries trace context and endpoint
// metrics, including resty's own retries, one client span per attempt.
func InstrumentResty(client *resty.Client, config *Config) *resty.Client {
	client.SetTransport(NewTransport(client.GetClient().Transport, config))
	return client
}
