package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig_Defaults(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(DefaultConfig())
	assert.NoError(t, err)
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is nil")
}

func TestValidateConfig_ServiceName(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Service.Name = ""

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.name")
}

func TestValidateConfig_Logging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid levels pass",
			mutate: func(c *Config) { c.Logging.Level = "warn" },
		},
		{
			name:   "level is case insensitive",
			mutate: func(c *Config) { c.Logging.Level = "DEBUG" },
		},
		{
			name:    "invalid level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "invalid format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_Propagation(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Propagation.Formats = []string{"w3c", "b3", "b3-multi", "jaeger"}
	assert.NoError(t, ValidateConfig(cfg))

	cfg.Propagation.Formats = []string{"w3c", "x-datadog"}
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "propagation.formats[1]")
	assert.Contains(t, err.Error(), "x-datadog")
}

func TestValidateConfig_Tracing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid exporter",
			mutate:  func(c *Config) { c.Tracing.Exporter = "zipkin" },
			wantErr: "tracing.exporter",
		},
		{
			name: "missing endpoint when enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Endpoint = ""
			},
			wantErr: "tracing.endpoint",
		},
		{
			name: "no endpoint needed when exporter is none",
			mutate: func(c *Config) {
				c.Tracing.Exporter = "none"
				c.Tracing.Endpoint = ""
			},
		},
		{
			name:    "malformed endpoint",
			mutate:  func(c *Config) { c.Tracing.Endpoint = "collector" },
			wantErr: "tracing.endpoint",
		},
		{
			name:    "sample rate above one",
			mutate:  func(c *Config) { c.Tracing.SampleRate = 1.5 },
			wantErr: "tracing.sampleRate",
		},
		{
			name:    "negative sample rate",
			mutate:  func(c *Config) { c.Tracing.SampleRate = -0.1 },
			wantErr: "tracing.sampleRate",
		},
		{
			name:    "negative batch timeout",
			mutate:  func(c *Config) { c.Tracing.BatchTimeout = Duration(-1) },
			wantErr: "tracing.batchTimeout",
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.Tracing.MaxQueueSize = -1 },
			wantErr: "tracing.maxQueueSize",
		},
		{
			name:    "negative export retries",
			mutate:  func(c *Config) { c.Tracing.Export.MaxRetries = -1 },
			wantErr: "tracing.export.maxRetries",
		},
		{
			name: "max backoff below initial backoff",
			mutate: func(c *Config) {
				c.Tracing.Export.InitialBackoff = Duration(2 * time.Second)
				c.Tracing.Export.MaxBackoff = Duration(1 * time.Second)
			},
			wantErr: "tracing.export.maxBackoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_Metrics(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Metrics.Exporter = "statsd"
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.exporter")

	cfg = DefaultConfig()
	cfg.Metrics.MaxDestinations = -5
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.maxDestinations")
}

func TestValidateConfig_Monitor(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Monitor.Port = 70000
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor.port")

	cfg = DefaultConfig()
	cfg.Monitor.Path = "metrics"
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor.path")
}

func TestValidateConfig_Messaging(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Messaging.Retry.MaxRetries = -1
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messaging.retry.maxRetries")

	cfg = DefaultConfig()
	cfg.Messaging.Retry.Delay = Duration(-1)
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messaging.retry.delay")
}

func TestValidateConfig_AccumulatesErrors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Service.Name = ""
	cfg.Logging.Level = "loud"
	cfg.Tracing.SampleRate = 2

	err := ValidateConfig(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
	assert.Contains(t, err.Error(), "3 validation errors")
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	withPath := &ValidationError{Path: "tracing.endpoint", Message: "endpoint is required"}
	assert.Equal(t, "tracing.endpoint: endpoint is required", withPath.Error())

	withoutPath := &ValidationError{Message: "configuration is nil"}
	assert.Equal(t, "configuration is nil", withoutPath.Error())
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	var empty ValidationErrors
	assert.Equal(t, "no validation errors", empty.Error())
	assert.False(t, empty.HasErrors())

	single := ValidationErrors{{Path: "monitor.port", Message: "port must be between 1 and 65535, got: 0"}}
	assert.Equal(t, "monitor.port: port must be between 1 and 65535, got: 0", single.Error())
	assert.True(t, single.HasErrors())

	multiple := ValidationErrors{
		{Path: "a", Message: "first"},
		{Path: "b", Message: "second"},
	}
	msg := multiple.Error()
	assert.True(t, strings.HasPrefix(msg, "2 validation errors:"))
	assert.Contains(t, msg, "1. a: first")
	assert.Contains(t, msg, "2. b: second")
}
