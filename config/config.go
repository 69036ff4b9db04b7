package config

import "time"

// Config is the root configuration for the telemetry stack. Every
// section is optional in YAML; absent sections and fields keep the
// values from DefaultConfig.
type Config struct {
	Service     ServiceConfig      `yaml:"service" json:"service"`
	Logging     *LoggingConfig     `yaml:"logging,omitempty" json:"logging,omitempty"`
	Propagation *PropagationConfig `yaml:"propagation,omitempty" json:"propagation,omitempty"`
	Tracing     *TracingConfig     `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Metrics     *MetricsConfig     `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Monitor     *MonitorConfig     `yaml:"monitor,omitempty" json:"monitor,omitempty"`
	Messaging   *MessagingConfig   `yaml:"messaging,omitempty" json:"messaging,omitempty"`
}

// ServiceConfig identifies the instrumented service. The values become
// resource attributes on every span and metric.
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// PropagationConfig configures context propagation formats.
type PropagationConfig struct {
	// Formats lists the wire formats to inject and extract. Valid values
	// are w3c, b3, b3-multi, and jaeger.
	Formats []string `yaml:"formats,omitempty" json:"formats,omitempty"`

	// Baggage enables W3C baggage propagation alongside trace context.
	Baggage bool `yaml:"baggage" json:"baggage"`
}

// TracingConfig configures the trace provider and export pipeline.
type TracingConfig struct {
	Enabled      bool              `yaml:"enabled" json:"enabled"`
	Exporter     string            `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint     string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure     bool              `yaml:"insecure" json:"insecure"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	SampleRate   float64           `yaml:"sampleRate" json:"sampleRate"`
	BatchTimeout Duration          `yaml:"batchTimeout,omitempty" json:"batchTimeout,omitempty"`

	// MaxExportBatchSize is the maximum number of spans per export batch.
	MaxExportBatchSize int `yaml:"maxExportBatchSize,omitempty" json:"maxExportBatchSize,omitempty"`

	// MaxQueueSize is the span queue bound; spans past it are dropped.
	MaxQueueSize int `yaml:"maxQueueSize,omitempty" json:"maxQueueSize,omitempty"`

	// Export tunes retry and circuit breaking on the export path.
	Export *ExportConfig `yaml:"export,omitempty" json:"export,omitempty"`
}

// ExportConfig tunes retry and circuit breaking for trace export.
type ExportConfig struct {
	MaxRetries      int      `yaml:"maxRetries" json:"maxRetries"`
	InitialBackoff  Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`
	MaxBackoff      Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`
	BreakerEnabled  bool     `yaml:"breakerEnabled" json:"breakerEnabled"`
	BreakerFailures uint32   `yaml:"breakerFailures,omitempty" json:"breakerFailures,omitempty"`
	BreakerTimeout  Duration `yaml:"breakerTimeout,omitempty" json:"breakerTimeout,omitempty"`
}

// MetricsConfig configures the meter provider and instrument registry.
type MetricsConfig struct {
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Exporter string            `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure bool              `yaml:"insecure" json:"insecure"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Interval Duration          `yaml:"interval,omitempty" json:"interval,omitempty"`

	// MaxDestinations bounds the number of distinct destination labels;
	// further destinations fold into a single overflow series.
	MaxDestinations int `yaml:"maxDestinations,omitempty" json:"maxDestinations,omitempty"`
}

// MonitorConfig configures the local Prometheus endpoint that exposes
// the instrumentation's own health metrics.
type MonitorConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Port         int      `yaml:"port,omitempty" json:"port,omitempty"`
	Path         string   `yaml:"path,omitempty" json:"path,omitempty"`
	ReadTimeout  Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
}

// MessagingConfig configures broker instrumentation behavior.
type MessagingConfig struct {
	// RedeliveryHeader is the header whose presence marks a delivery as
	// a retry coming back from the delay queue.
	RedeliveryHeader string `yaml:"redeliveryHeader,omitempty" json:"redeliveryHeader,omitempty"`

	// Retry sets the defaults for declared retry topologies.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// RetryConfig holds retry topology defaults.
type RetryConfig struct {
	MaxRetries int      `yaml:"maxRetries" json:"maxRetries"`
	Delay      Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	Durable    bool     `yaml:"durable" json:"durable"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "amqptel",
			Version:     "0.0.0",
			Environment: "development",
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Propagation: &PropagationConfig{
			Formats: []string{"w3c"},
			Baggage: true,
		},
		Tracing: &TracingConfig{
			Enabled:            true,
			Exporter:           "otlp-grpc",
			Endpoint:           "localhost:4317",
			Insecure:           true,
			SampleRate:         1.0,
			BatchTimeout:       Duration(5 * time.Second),
			MaxExportBatchSize: 512,
			MaxQueueSize:       2048,
			Export: &ExportConfig{
				MaxRetries:      3,
				InitialBackoff:  Duration(100 * time.Millisecond),
				MaxBackoff:      Duration(2 * time.Second),
				BreakerEnabled:  true,
				BreakerFailures: 5,
				BreakerTimeout:  Duration(30 * time.Second),
			},
		},
		Metrics: &MetricsConfig{
			Enabled:         true,
			Exporter:        "otlp-grpc",
			Endpoint:        "localhost:4317",
			Insecure:        true,
			Interval:        Duration(15 * time.Second),
			MaxDestinations: 200,
		},
		Monitor: &MonitorConfig{
			Enabled:      false,
			Port:         9464,
			Path:         "/metrics",
			ReadTimeout:  Duration(5 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Messaging: &MessagingConfig{
			RedeliveryHeader: "x-first-death-exchange",
			Retry: &RetryConfig{
				MaxRetries: 3,
				Delay:      Duration(30 * time.Second),
				Durable:    false,
			},
		},
	}
}
