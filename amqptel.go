package amqptel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amqptel/amqptel/config"
	"github.com/amqptel/amqptel/httptel"
	"github.com/amqptel/amqptel/internal/selfmetrics"
	"github.com/amqptel/amqptel/logging"
	"github.com/amqptel/amqptel/messaging"
	"github.com/amqptel/amqptel/metrics"
	"github.com/amqptel/amqptel/propagation"
	"github.com/amqptel/amqptel/tracing"
)

// Telemetry manages all telemetry components: logger, trace provider,
// meter provider with instrument registry, context propagation codec,
// and the optional self-metrics endpoint.
type Telemetry struct {
	config *config.Config

	logger          *logging.Logger
	codec           *propagation.Codec
	tracingProvider *tracing.Provider
	meterProvider   *metrics.Provider
	registry        *metrics.Registry
	monitor         *selfmetrics.Server
	monitorErrCh    chan error
	monitorReady    chan struct{}
}

// New creates a new Telemetry instance. The configuration is validated
// up front; nil selects the defaults.
func New(cfg *config.Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return &Telemetry{config: cfg}, nil
}

// Start initializes and starts all telemetry components. The context
// also governs the lifetime of the self-metrics server when the monitor
// is enabled.
func (t *Telemetry) Start(ctx context.Context) error {
	if err := t.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	t.logger.Info("initializing telemetry",
		zap.String("service", t.config.Service.Name),
		zap.String("version", t.config.Service.Version),
		zap.String("environment", t.config.Service.Environment),
	)

	if t.config.Tracing != nil && t.config.Tracing.Enabled {
		if err := t.initTracing(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if t.config.Metrics != nil && t.config.Metrics.Enabled {
		if err := t.initMetrics(ctx); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	if t.config.Monitor != nil && t.config.Monitor.Enabled {
		if err := t.initMonitor(ctx); err != nil {
			return fmt.Errorf("failed to start self-metrics server: %w", err)
		}
	}

	t.initPropagation()

	t.logger.Info("telemetry initialized successfully")
	return nil
}

// Stop shuts down all telemetry components in reverse start order.
func (t *Telemetry) Stop(ctx context.Context) error {
	if t.logger != nil {
		t.logger.Info("stopping telemetry")
	}

	var errs []error

	if t.monitor != nil {
		if err := t.monitor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop self-metrics server: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics provider: %w", err))
		}
	}

	if t.tracingProvider != nil {
		if err := t.tracingProvider.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop tracing provider: %w", err))
		}
	}

	if t.logger != nil {
		if err := t.logger.Sync(); err != nil {
			// Ignore sync errors for stdout/stderr
			output := ""
			if t.config.Logging != nil {
				output = t.config.Logging.Output
			}
			if output != "" && output != "stdout" && output != "stderr" {
				errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// initLogging initializes the logging component.
func (t *Telemetry) initLogging() error {
	logConfig := logging.DefaultConfig()
	if lc := t.config.Logging; lc != nil {
		if lc.Level != "" {
			logConfig.Level = logging.Level(strings.ToLower(lc.Level))
		}
		if lc.Format != "" {
			logConfig.Format = logging.Format(strings.ToLower(lc.Format))
		}
		if lc.Output != "" {
			logConfig.Output = lc.Output
		}
	}
	logConfig.InitialFields = map[string]interface{}{
		"service":     t.config.Service.Name,
		"version":     t.config.Service.Version,
		"environment": t.config.Service.Environment,
	}

	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		return err
	}

	t.logger = logger
	logging.SetGlobalLogger(logger)

	return nil
}

// initTracing initializes the tracing component.
func (t *Telemetry) initTracing(ctx context.Context) error {
	tc := t.config.Tracing
	tracingConfig := &tracing.Config{
		ServiceName:        t.config.Service.Name,
		ServiceVersion:     t.config.Service.Version,
		Environment:        t.config.Service.Environment,
		ExporterType:       tracing.ExporterType(tc.Exporter),
		Endpoint:           tc.Endpoint,
		Insecure:           tc.Insecure,
		Headers:            tc.Headers,
		SampleRate:         tc.SampleRate,
		BatchTimeout:       tc.BatchTimeout.Duration(),
		MaxExportBatchSize: tc.MaxExportBatchSize,
		MaxQueueSize:       tc.MaxQueueSize,
	}
	if tc.Export != nil {
		tracingConfig.Export = &tracing.ExportConfig{
			MaxRetries:      tc.Export.MaxRetries,
			InitialBackoff:  tc.Export.InitialBackoff.Duration(),
			MaxBackoff:      tc.Export.MaxBackoff.Duration(),
			BreakerEnabled:  tc.Export.BreakerEnabled,
			BreakerFailures: tc.Export.BreakerFailures,
			BreakerTimeout:  tc.Export.BreakerTimeout.Duration(),
		}
	}

	provider, err := tracing.NewProvider(tracingConfig, t.logger.Logger)
	if err != nil {
		return err
	}

	if err := provider.Start(ctx); err != nil {
		return err
	}

	t.tracingProvider = provider
	return nil
}

// initMetrics initializes the meter provider and instrument registry.
func (t *Telemetry) initMetrics(ctx context.Context) error {
	mc := t.config.Metrics
	metricsConfig := &metrics.Config{
		ServiceName:    t.config.Service.Name,
		ServiceVersion: t.config.Service.Version,
		Environment:    t.config.Service.Environment,
		ExporterType:   metrics.ExporterType(mc.Exporter),
		Endpoint:       mc.Endpoint,
		Insecure:       mc.Insecure,
		Headers:        mc.Headers,
		Interval:       mc.Interval.Duration(),
	}

	provider, err := metrics.NewProvider(metricsConfig, t.logger.Logger)
	if err != nil {
		return err
	}

	if err := provider.Start(ctx); err != nil {
		return err
	}

	registryConfig := metrics.DefaultRegistryConfig()
	if mc.MaxDestinations > 0 {
		registryConfig.MaxDestinations = mc.MaxDestinations
	}

	registry, err := metrics.NewRegistry(provider.GetMeterProvider(), registryConfig, t.logger.Logger)
	if err != nil {
		return err
	}

	t.meterProvider = provider
	t.registry = registry
	return nil
}

// initMonitor starts the self-metrics server in the background and
// waits for it to come up.
func (t *Telemetry) initMonitor(ctx context.Context) error {
	mc := t.config.Monitor
	serverConfig := selfmetrics.DefaultServerConfig()
	if mc.Port != 0 {
		serverConfig.Port = mc.Port
	}
	if mc.Path != "" {
		serverConfig.Path = mc.Path
	}
	if d := mc.ReadTimeout.Duration(); d > 0 {
		serverConfig.ReadTimeout = d
	}
	if d := mc.WriteTimeout.Duration(); d > 0 {
		serverConfig.WriteTimeout = d
	}

	server := selfmetrics.NewServer(serverConfig, t.logger.Logger)
	if t.tracingProvider != nil {
		server = server.WithHealthCheck(t.tracingProvider.ExportHealth)
	}

	t.monitor = server
	t.monitorErrCh = make(chan error, 1)
	t.monitorReady = make(chan struct{})

	go func() {
		go func() {
			// Give the listener a moment to come up before reporting
			// ready.
			time.Sleep(100 * time.Millisecond)
			close(t.monitorReady)
		}()

		if err := server.Start(ctx); err != nil {
			t.logger.Error("self-metrics server error", zap.Error(err))
			select {
			case t.monitorErrCh <- err:
			default:
			}
		}
	}()

	select {
	case <-t.monitorReady:
		t.logger.Info("self-metrics server started", zap.Int("port", serverConfig.Port))
		return nil
	case err := <-t.monitorErrCh:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("self-metrics server startup timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// initPropagation builds the codec and installs it as the global
// propagator.
func (t *Telemetry) initPropagation() {
	propConfig := propagation.DefaultConfig()
	if pc := t.config.Propagation; pc != nil {
		if len(pc.Formats) > 0 {
			formats := make([]propagation.Format, 0, len(pc.Formats))
			for _, f := range pc.Formats {
				formats = append(formats, propagation.Format(strings.ToLower(f)))
			}
			propConfig.Formats = formats
		}
		propConfig.EnableBaggage = pc.Baggage
	}

	t.codec = propagation.NewCodec(propConfig, t.logger.Logger)
	t.codec.SetGlobal()
}

// Logger returns the logger.
func (t *Telemetry) Logger() *logging.Logger {
	return t.logger
}

// Codec returns the propagation codec.
func (t *Telemetry) Codec() *propagation.Codec {
	return t.codec
}

// TracingProvider returns the tracing provider, nil when tracing is
// disabled.
func (t *Telemetry) TracingProvider() *tracing.Provider {
	return t.tracingProvider
}

// MeterProvider returns the metrics provider, nil when metrics are
// disabled.
func (t *Telemetry) MeterProvider() *metrics.Provider {
	return t.meterProvider
}

// Registry returns the per-destination instrument registry, nil when
// metrics are disabled.
func (t *Telemetry) Registry() *metrics.Registry {
	return t.registry
}

// MonitorError returns any error from the self-metrics server. Returns
// nil if no error occurred.
func (t *Telemetry) MonitorError() error {
	if t.monitorErrCh == nil {
		return nil
	}

	select {
	case err := <-t.monitorErrCh:
		// Put the error back for other readers
		select {
		case t.monitorErrCh <- err:
		default:
		}
		return err
	default:
		return nil
	}
}

// Messaging builds broker instrumentation wired to the stack's
// components.
func (t *Telemetry) Messaging() *messaging.Instrumentation {
	return messaging.NewInstrumentation(t.MessagingConfig())
}

// MessagingConfig returns a broker interceptor configuration wired to
// the stack's components.
func (t *Telemetry) MessagingConfig() *messaging.Config {
	cfg := &messaging.Config{
		Registry: t.registry,
		Codec:    t.codec,
	}
	if t.tracingProvider != nil {
		cfg.TracerProvider = t.tracingProvider.GetTracerProvider()
	}
	if t.logger != nil {
		cfg.Logger = t.logger.Logger
	}
	if mc := t.config.Messaging; mc != nil {
		cfg.RedeliveryHeader = mc.RedeliveryHeader
	}
	return cfg
}

// HTTPConfig returns an HTTP/gRPC instrumentation configuration wired
// to the stack's components.
func (t *Telemetry) HTTPConfig() *httptel.Config {
	cfg := &httptel.Config{
		Registry: t.registry,
		Codec:    t.codec,
	}
	if t.tracingProvider != nil {
		cfg.TracerProvider = t.tracingProvider.GetTracerProvider()
	}
	if t.logger != nil {
		cfg.Logger = t.logger.Logger
	}
	return cfg
}

// RetryPolicy builds a retry topology for the queue with the configured
// defaults applied.
func (t *Telemetry) RetryPolicy(queue string) *messaging.RetryPolicy {
	policy := messaging.NewRetryPolicy(queue)
	if mc := t.config.Messaging; mc != nil && mc.Retry != nil {
		policy.MaxRetries = mc.Retry.MaxRetries
		if d := mc.Retry.Delay.Duration(); d > 0 {
			policy.Delay = d
		}
		policy.Durable = mc.Retry.Durable
	}
	return policy
}
