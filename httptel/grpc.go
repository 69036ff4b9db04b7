package httptel

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/amqptel/amqptel/metrics"
	"github.com/amqptel/amqptel/propagation"
	"github.com/amqptel/amqptel/tracing"
)

const rpcSystemGRPC = "grpc"

// UnaryServerInterceptor returns a unary server interceptor that extracts
// the trace context from incoming metadata, runs the handler inside a
// server span and records the call duration per method.
func UnaryServerInterceptor(config *Config) grpc.UnaryServerInterceptor {
	in := newInstrument(config)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = in.codec.Extract(ctx, propagation.MetadataCarrier(md))
		}

		service, method := parseFullMethod(info.FullMethod)
		ctx, span := in.tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				tracing.RPCSystemAttr(rpcSystemGRPC),
				tracing.RPCServiceAttr(service),
				tracing.RPCMethodAttr(method),
			),
		)
		defer span.End()

		if p, ok := peer.FromContext(ctx); ok {
			span.SetAttributes(tracing.StringAttr("net.peer.name", p.Addr.String()))
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		in.finishRPC(ctx, span, info.FullMethod, duration, err)
		return resp, err
	}
}

// UnaryClientInterceptor returns a unary client interceptor that injects
// the trace context into outgoing metadata, runs the call inside a client
// span and records the call duration per method.
func UnaryClientInterceptor(config *Config) grpc.UnaryClientInterceptor {
	in := newInstrument(config)

	return func(
		ctx context.Context,
		fullMethod string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		service, method := parseFullMethod(fullMethod)
		ctx, span := in.tracer.Start(ctx, fullMethod,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				tracing.RPCSystemAttr(rpcSystemGRPC),
				tracing.RPCServiceAttr(service),
				tracing.RPCMethodAttr(method),
			),
		)
		defer span.End()

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.New(nil)
		}
		in.codec.Inject(ctx, propagation.MetadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		start := time.Now()
		err := invoker(ctx, fullMethod, req, reply, cc, opts...)
		duration := time.Since(start)

		in.finishRPC(ctx, span, fullMethod, duration, err)
		return err
	}
}

// finishRPC records the call outcome on the span and the method metrics.
func (in *instrument) finishRPC(ctx context.Context, span trace.Span, fullMethod string, duration time.Duration, err error) {
	code := status.Code(err)
	span.SetAttributes(tracing.RPCGRPCStatusCodeAttr(int(code)))

	if err != nil {
		span.SetAttributes(tracing.ErrorTypeAttr(classifyRPCCode(code)))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	in.record(fullMethod, func(inst *metrics.Instruments) {
		inst.RecordRequestDuration(ctx, duration)
		if err != nil {
			inst.AddError(ctx, classifyRPCCode(code))
		}
	})
}

// classifyRPCCode folds gRPC status codes into the transport error kinds.
func classifyRPCCode(code grpccodes.Code) string {
	switch code {
	case grpccodes.DeadlineExceeded:
		return ErrorKindTimeout
	case grpccodes.Canceled:
		return ErrorKindCanceled
	default:
		return ErrorKindTransport
	}
}

// parseFullMethod splits "/package.Service/Method" into service and method.
func parseFullMethod(fullMethod string) (string, string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
