package amqptel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amqptel/amqptel/config"
)

// newOfflineConfig returns a configuration that starts every component
// without touching the network.
func newOfflineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Service.Name = "amqptel-test"
	cfg.Logging.Level = "error"
	cfg.Tracing.Exporter = "none"
	cfg.Tracing.Endpoint = ""
	cfg.Metrics.Exporter = "none"
	cfg.Metrics.Endpoint = ""
	cfg.Monitor.Enabled = false
	return cfg
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	tel, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	// Stop before Start is a no-op.
	assert.NoError(t, tel.Stop(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Tracing.SampleRate = 2

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing.sampleRate")
}

func TestTelemetry_Lifecycle(t *testing.T) {
	// Not parallel: Start installs global providers

	tel, err := New(newOfflineConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tel.Start(ctx))

	assert.NotNil(t, tel.Logger())
	assert.NotNil(t, tel.Codec())
	require.NotNil(t, tel.TracingProvider())
	require.NotNil(t, tel.MeterProvider())
	require.NotNil(t, tel.Registry())
	assert.NoError(t, tel.MonitorError())

	// The wired tracer produces valid spans.
	tracer := tel.TracingProvider().Tracer("lifecycle-test")
	_, span := tracer.Start(ctx, "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tel.Stop(ctx))
}

func TestTelemetry_DisabledComponents(t *testing.T) {
	// Not parallel: Start installs global providers

	cfg := newOfflineConfig()
	cfg.Tracing.Enabled = false
	cfg.Metrics.Enabled = false

	tel, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tel.Start(ctx))
	defer func() { _ = tel.Stop(ctx) }()

	assert.NotNil(t, tel.Logger())
	assert.NotNil(t, tel.Codec())
	assert.Nil(t, tel.TracingProvider())
	assert.Nil(t, tel.MeterProvider())
	assert.Nil(t, tel.Registry())

	// Instrumentation built from a partially started stack still works;
	// it falls back to global providers and skips metrics.
	assert.NotNil(t, tel.Messaging())
}

func TestTelemetry_ComponentWiring(t *testing.T) {
	// Not parallel: Start installs global providers

	cfg := newOfflineConfig()
	cfg.Messaging.RedeliveryHeader = "x-retry"
	cfg.Messaging.Retry.MaxRetries = 7
	cfg.Messaging.Retry.Delay = config.Duration(10 * time.Second)
	cfg.Messaging.Retry.Durable = true

	tel, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tel.Start(ctx))
	defer func() { _ = tel.Stop(ctx) }()

	mcfg := tel.MessagingConfig()
	assert.NotNil(t, mcfg.TracerProvider)
	assert.NotNil(t, mcfg.Registry)
	assert.NotNil(t, mcfg.Codec)
	assert.NotNil(t, mcfg.Logger)
	assert.Equal(t, "x-retry", mcfg.RedeliveryHeader)

	hcfg := tel.HTTPConfig()
	require.NotNil(t, hcfg)
	assert.NotNil(t, hcfg.TracerProvider)
	assert.NotNil(t, hcfg.Registry)
	assert.NotNil(t, hcfg.Codec)

	policy := tel.RetryPolicy("orders")
	assert.Equal(t, "orders", policy.Queue)
	assert.Equal(t, 7, policy.MaxRetries)
	assert.Equal(t, 10*time.Second, policy.Delay)
	assert.True(t, policy.Durable)
}
