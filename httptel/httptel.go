// Package httptel carries trace context across HTTP and gRPC hops and
// records per-endpoint request metrics. Server middleware extracts the
// incoming context and opens a server span around the handler; the client
// transport and interceptors inject the context and open client spans
// around the call. The wrapped call's outcome always passes through
// unchanged.
package httptel

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/amqptel/amqptel/metrics"
	"github.com/amqptel/amqptel/propagation"
)

const tracerName = "amqptel/httptel"

// Error kinds recorded on the endpoint error counter.
const (
	ErrorKindTimeout   = "timeout"
	ErrorKindCanceled  = "canceled"
	ErrorKindTransport = "transport"
	ErrorKindRedirect  = "http_redirect"
	ErrorKindClient    = "http_client"
	ErrorKindServer    = "http_server"
)

// Config holds configuration shared by the HTTP middleware, the client
// transport and the gRPC interceptors.
type Config struct {
	// TracerProvider supplies the tracer. Nil falls back to the global
	// provider.
	TracerProvider trace.TracerProvider

	// Registry receives per-endpoint metrics. Nil disables metric
	// recording; spans are still produced.
	Registry *metrics.Registry

	// Codec carries trace context in headers and metadata. Nil builds a
	// W3C codec with baggage.
	Codec *propagation.Codec

	// Logger for instrumentation-internal events. Nil discards them.
	Logger *zap.Logger

	// SkipPaths lists URL paths the server middleware leaves
	// uninstrumented, typically health and metrics endpoints.
	SkipPaths []string

	// Filter decides per request whether to instrument. Nil instruments
	// everything not excluded by SkipPaths.
	Filter func(*http.Request) bool
}

// instrument is the normalized form of Config the wrappers run on.
type instrument struct {
	tracer   trace.Tracer
	registry *metrics.Registry
	codec    *propagation.Codec
	logger   *zap.Logger
	skip     map[string]bool
	filter   func(*http.Request) bool
}

func newInstrument(config *Config) *instrument {
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

	skip := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = true
	}

	return &instrument{
		tracer:   tp.Tracer(tracerName),
		registry: config.Registry,
		codec:    codec,
		logger:   logger,
		skip:     skip,
		filter:   config.Filter,
	}
}

// skipRequest reports whether the request stays uninstrumented.
func (in *instrument) skipRequest(r *http.Request) bool {
	if in.skip[r.URL.Path] {
		return true
	}
	return in.filter != nil && !in.filter(r)
}

// record runs metric bookkeeping so that its failure can never change the
// wrapped call's outcome. Panics are logged and swallowed.
func (in *instrument) record(destination string, fn func(*metrics.Instruments)) {
	if in.registry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("http instrumentation bookkeeping failed",
				zap.String("destination", destination),
				zap.Any("panic", r),
			)
		}
	}()
	fn(in.registry.ForDestination(destination))
}

// ClassifyError maps a transport-level failure to an error kind.
func ClassifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindTransport
}

// ClassifyStatus maps a response status code to an error kind. The second
// return is false for statuses that do not count as failures.
func ClassifyStatus(status int) (string, bool) {
	switch {
	case status >= 500:
		return ErrorKindServer, true
	case status >= 400:
		return ErrorKindClient, true
	case status >= 300:
		return ErrorKindRedirect, true
	default:
		return "", false
	}
}
