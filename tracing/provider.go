// Package tracing provides the OpenTelemetry span recorder: resource
// construction, OTLP export with bounded retry, sampling, and span helpers.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	// ExporterOTLPGRPC exports traces via OTLP over gRPC.
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	// ExporterOTLPHTTP exports traces via OTLP over HTTP.
	ExporterOTLPHTTP ExporterType = "otlp-http"
	// ExporterNone disables trace export. Spans are still recorded and
	// sampled so in-process consumers (logs, tests) see them.
	ExporterNone ExporterType = "none"
)

// Config holds configuration for the tracing provider.
type Config struct {
	// ServiceName is the name of the service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment (e.g., production, staging).
	Environment string

	// ExporterType is the type of exporter to use.
	ExporterType ExporterType

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// Headers are additional headers to send with traces.
	Headers map[string]string

	// SampleRate is the sampling rate (0.0 to 1.0) applied when a new
	// trace starts. Spans joining an existing trace inherit its decision.
	SampleRate float64

	// BatchTimeout is the maximum time to wait before exporting a batch.
	BatchTimeout time.Duration

	// MaxExportBatchSize is the maximum number of spans to export in a batch.
	MaxExportBatchSize int

	// MaxQueueSize is the maximum number of spans to queue before dropping.
	MaxQueueSize int

	// Export tunes retry and circuit breaking on the export path.
	Export *ExportConfig

	// Attributes are additional resource attributes to add to all spans.
	Attributes map[string]string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "amqptel",
		ServiceVersion:     "0.0.0",
		Environment:        "development",
		ExporterType:       ExporterOTLPGRPC,
		Endpoint:           "localhost:4317",
		Insecure:           true,
		SampleRate:         1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
		Export:             DefaultExportConfig(),
	}
}

// Provider manages the OpenTelemetry trace provider.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	exporter       *retryExporter
	logger         *zap.Logger
}

// NewProvider creates a new tracing provider.
func NewProvider(config *Config, logger *zap.Logger) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		config: config,
		logger: logger,
	}, nil
}

// Start initializes the tracer provider and installs it as the process
// default.
func (p *Provider) Start(ctx context.Context) error {
	res, err := p.createResource(ctx)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(p.createSampler()),
	}

	if p.config.ExporterType != ExporterNone {
		exporter, err := p.createExporter(ctx)
		if err != nil {
			return fmt.Errorf("failed to create exporter: %w", err)
		}

		p.exporter = newRetryExporter(exporter, p.config.Export, p.logger)

		bsp := sdktrace.NewBatchSpanProcessor(
			p.exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(p.config.MaxExportBatchSize),
			sdktrace.WithMaxQueueSize(p.config.MaxQueueSize),
		)
		opts = append(opts, sdktrace.WithSpanProcessor(bsp))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)

	p.logger.Info("tracing provider started",
		zap.String("service", p.config.ServiceName),
		zap.String("exporter", string(p.config.ExporterType)),
		zap.String("endpoint", p.config.Endpoint),
		zap.Float64("sampleRate", p.config.SampleRate),
	)

	return nil
}

// Stop flushes pending spans and shuts the provider down.
func (p *Provider) Stop(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}

	p.logger.Info("stopping tracing provider")
	return p.tracerProvider.Shutdown(ctx)
}

// Tracer returns a tracer with the given name.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name)
	}
	return p.tracerProvider.Tracer(name)
}

// GetTracerProvider returns the underlying tracer provider, falling back to
// the global one before Start.
func (p *Provider) GetTracerProvider() trace.TracerProvider {
	if p.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return p.tracerProvider
}

// ExportHealth reports whether the export path is healthy. Unhealthy means
// the collector breaker is open and batches are currently being dropped.
func (p *Provider) ExportHealth() (bool, string) {
	if p.exporter == nil {
		return true, ""
	}
	return p.exporter.Health()
}

// createResource creates the OpenTelemetry resource.
func (p *Provider) createResource(ctx context.Context) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
		semconv.DeploymentEnvironment(p.config.Environment),
	}

	for k, v := range p.config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
	)
}

// createExporter creates the trace exporter.
func (p *Provider) createExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	switch p.config.ExporterType {
	case ExporterOTLPHTTP:
		return p.createHTTPExporter(ctx)
	default:
		return p.createGRPCExporter(ctx)
	}
}

// createGRPCExporter creates an OTLP gRPC exporter.
func (p *Provider) createGRPCExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.Endpoint),
	}

	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(p.config.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(p.config.Headers))
	}

	return otlptracegrpc.New(ctx, opts...)
}

// createHTTPExporter creates an OTLP HTTP exporter.
func (p *Provider) createHTTPExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(p.config.Endpoint),
	}

	if p.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	if len(p.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(p.config.Headers))
	}

	return otlptracehttp.New(ctx, opts...)
}

// createSampler creates the trace sampler. The ratio decision applies to
// trace roots only; ParentBased makes every descendant follow its parent,
// so a trace is either recorded end to end or not at all.
func (p *Provider) createSampler() sdktrace.Sampler {
	if p.config.SampleRate <= 0 {
		return sdktrace.NeverSample()
	}
	if p.config.SampleRate >= 1.0 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.config.SampleRate))
}

// InitGlobalTracer creates and starts a provider in one call.
func InitGlobalTracer(ctx context.Context, config *Config, logger *zap.Logger) (*Provider, error) {
	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, err
	}

	if err := provider.Start(ctx); err != nil {
		return nil, err
	}

	return provider, nil
}
