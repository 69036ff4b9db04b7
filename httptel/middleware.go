package httptel

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amqptel/amqptel/metrics"
	"github.com/amqptel/amqptel/propagation"
	"github.com/amqptel/amqptel/tracing"
)

// Middleware returns net/http middleware that extracts the incoming trace
// context, runs the handler inside a server span and records the request
// duration against the route. Non-2xx responses mark the span failed and
// count on the error counter.
func Middleware(config *Config) func(http.Handler) http.Handler {
	in := newInstrument(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if in.skipRequest(r) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := in.codec.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			spanName := r.Method + " " + r.URL.Path
			ctx, span := in.tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					tracing.HTTPMethodAttr(r.Method),
					tracing.HTTPTargetAttr(r.URL.Path),
					tracing.HTTPHostAttr(r.Host),
					tracing.StringAttr("http.user_agent", r.UserAgent()),
					tracing.StringAttr("net.peer.ip", r.RemoteAddr),
				),
			)
			defer span.End()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			duration := time.Since(start)

			span.SetAttributes(
				tracing.HTTPStatusCodeAttr(recorder.status),
				tracing.IntAttr("http.response_content_length", recorder.bytes),
			)

			kind, failed := ClassifyStatus(recorder.status)
			if failed {
				span.SetAttributes(tracing.ErrorTypeAttr(kind))
				span.SetStatus(codes.Error, http.StatusText(recorder.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}

			in.record(spanName, func(inst *metrics.Instruments) {
				inst.RecordRequestDuration(ctx, duration)
				if failed {
					inst.AddError(ctx, kind)
				}
			})
		})
	}
}

// statusRecorder captures the status code and body size the handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// GinMiddleware returns gin middleware with the same behavior as
// Middleware. Handler errors attached to the gin context are recorded on
// the span as well.
func GinMiddleware(config *Config) gin.HandlerFunc {
	in := newInstrument(config)

	return func(c *gin.Context) {
		if in.skipRequest(c.Request) {
			c.Next()
			return
		}

		ctx := in.codec.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		path := c.Request.URL.Path
		spanName := c.Request.Method + " " + path
		ctx, span := in.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				tracing.HTTPMethodAttr(c.Request.Method),
				tracing.HTTPTargetAttr(path),
				tracing.HTTPHostAttr(c.Request.Host),
				tracing.StringAttr("http.user_agent", c.Request.UserAgent()),
				tracing.StringAttr("net.peer.ip", c.ClientIP()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		span.SetAttributes(
			tracing.HTTPStatusCodeAttr(status),
			tracing.IntAttr("http.response_content_length", c.Writer.Size()),
		)

		if len(c.Errors) > 0 {
			span.RecordError(errors.New(c.Errors.String()))
		}

		kind, failed := ClassifyStatus(status)
		if failed {
			span.SetAttributes(tracing.ErrorTypeAttr(kind))
			span.SetStatus(codes.Error, http.StatusText(status))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		in.record(spanName, func(inst *metrics.Instruments) {
			inst.RecordRequestDuration(ctx, duration)
			if failed {
				inst.AddError(ctx, kind)
			}
		})
	}
}
