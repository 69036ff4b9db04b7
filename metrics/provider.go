// Package metrics provides the destination-keyed instrument registry and
// the OpenTelemetry meter provider behind it.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// ExporterType defines the type of metric exporter.
type ExporterType string

const (
	// ExporterOTLPGRPC exports metrics via OTLP over gRPC.
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	// ExporterOTLPHTTP exports metrics via OTLP over HTTP.
	ExporterOTLPHTTP ExporterType = "otlp-http"
	// ExporterNone disables metric export. Instruments still work; their
	// aggregations are simply never read.
	ExporterNone ExporterType = "none"
)

// Config holds configuration for the metrics provider.
type Config struct {
	// ServiceName is the name of the service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment.
	Environment string

	// ExporterType is the type of exporter to use.
	ExporterType ExporterType

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// Headers are additional headers to send with metrics.
	Headers map[string]string

	// Interval is the export cadence. Recording is in-memory aggregation;
	// only the periodic reader touches the network.
	Interval time.Duration

	// Attributes are additional resource attributes.
	Attributes map[string]string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "amqptel",
		ServiceVersion: "0.0.0",
		Environment:    "development",
		ExporterType:   ExporterOTLPGRPC,
		Endpoint:       "localhost:4317",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// Provider manages the OpenTelemetry meter provider.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	logger        *zap.Logger
}

// NewProvider creates a new metrics provider.
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

// Start initializes the meter provider and installs it as the process
// default.
func (p *Provider) Start(ctx context.Context) error {
	res, err := p.createResource(ctx)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if p.config.ExporterType != ExporterNone {
		exporter, err := p.createExporter(ctx)
		if err != nil {
			return fmt.Errorf("failed to create exporter: %w", err)
		}

		reader := sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(p.config.Interval),
		)
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)

	p.logger.Info("metrics provider started",
		zap.String("service", p.config.ServiceName),
		zap.String("exporter", string(p.config.ExporterType)),
		zap.String("endpoint", p.config.Endpoint),
		zap.Duration("interval", p.config.Interval),
	)

	return nil
}

// Stop flushes pending metrics and shuts the provider down.
func (p *Provider) Stop(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}

	p.logger.Info("stopping metrics provider")
	return p.meterProvider.Shutdown(ctx)
}

// Meter returns a meter with the given name.
func (p *Provider) Meter(name string) metric.Meter {
	if p.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name)
	}
	return p.meterProvider.Meter(name)
}

// GetMeterProvider returns the underlying meter provider, falling back to
// the global one before Start.
func (p *Provider) GetMeterProvider() metric.MeterProvider {
	if p.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return p.meterProvider
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

// createExporter creates the metric exporter.
func (p *Provider) createExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	switch p.config.ExporterType {
	case ExporterOTLPHTTP:
		return p.createHTTPExporter(ctx)
	default:
		return p.createGRPCExporter(ctx)
	}
}

// createGRPCExporter creates an OTLP gRPC exporter.
func (p *Provider) createGRPCExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.Endpoint),
	}

	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(p.config.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(p.config.Headers))
	}

	return otlpmetricgrpc.New(ctx, opts...)
}

// createHTTPExporter creates an OTLP HTTP exporter.
func (p *Provider) createHTTPExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(p.config.Endpoint),
	}

	if p.config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	if len(p.config.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(p.config.Headers))
	}

	return otlpmetrichttp.New(ctx, opts...)
}
