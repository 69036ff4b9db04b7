package config

import (
	"fmt"
	"strings"

	"github.com/amqptel/amqptel/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates telemetry configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a configuration.
func ValidateConfig(config *Config) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateService(&config.Service)

	if config.Logging != nil {
		v.validateLogging(config.Logging, "logging")
	}
	if config.Propagation != nil {
		v.validatePropagation(config.Propagation, "propagation")
	}
	if config.Tracing != nil {
		v.validateTracing(config.Tracing, "tracing")
	}
	if config.Metrics != nil {
		v.validateMetrics(config.Metrics, "metrics")
	}
	if config.Monitor != nil {
		v.validateMonitor(config.Monitor, "monitor")
	}
	if config.Messaging != nil {
		v.validateMessaging(config.Messaging, "messaging")
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateService validates service identity fields.
func (v *Validator) validateService(service *ServiceConfig) {
	if service.Name == "" {
		v.addError("service.name", "name is required")
	}
}

// validateLogging validates logging configuration.
func (v *Validator) validateLogging(logging *LoggingConfig, path string) {
	validLevels := map[string]bool{
		"":      true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(logging.Level)] {
		v.addError(path+".level", fmt.Sprintf("invalid log level: %s", logging.Level))
	}

	validFormats := map[string]bool{
		"":        true,
		"json":    true,
		"console": true,
	}
	if !validFormats[strings.ToLower(logging.Format)] {
		v.addError(path+".format", fmt.Sprintf("invalid log format: %s", logging.Format))
	}
}

// validatePropagation validates propagation configuration.
func (v *Validator) validatePropagation(propagation *PropagationConfig, path string) {
	validFormats := map[string]bool{
		"w3c":      true,
		"b3":       true,
		"b3-multi": true,
		"jaeger":   true,
	}

	for i, format := range propagation.Formats {
		if !validFormats[strings.ToLower(format)] {
			v.addError(fmt.Sprintf("%s.formats[%d]", path, i),
				fmt.Sprintf("invalid propagation format: %s", format))
		}
	}
}

// validTelemetryExporters are the exporter types accepted for traces and
// metrics. An empty string falls back to the default.
var validTelemetryExporters = map[string]bool{
	"":          true,
	"otlp-grpc": true,
	"otlp-http": true,
	"none":      true,
}

// validateTracing validates tracing configuration.
func (v *Validator) validateTracing(tracing *TracingConfig, path string) {
	if !validTelemetryExporters[strings.ToLower(tracing.Exporter)] {
		v.addError(path+".exporter", fmt.Sprintf("invalid exporter type: %s", tracing.Exporter))
	}

	if tracing.Enabled && tracing.Exporter != "none" && tracing.Endpoint == "" {
		v.addError(path+".endpoint", "endpoint is required when export is enabled")
	}

	if tracing.Endpoint != "" {
		if err := util.ValidateHostPort(tracing.Endpoint); err != nil {
			v.addError(path+".endpoint", err.Error())
		}
	}

	if tracing.SampleRate < 0 || tracing.SampleRate > 1 {
		v.addError(path+".sampleRate", "sampleRate must be between 0 and 1")
	}

	if err := util.ValidateDuration(tracing.BatchTimeout.Duration()); err != nil {
		v.addError(path+".batchTimeout", err.Error())
	}

	if tracing.MaxExportBatchSize < 0 {
		v.addError(path+".maxExportBatchSize", "maxExportBatchSize cannot be negative")
	}
	if tracing.MaxQueueSize < 0 {
		v.addError(path+".maxQueueSize", "maxQueueSize cannot be negative")
	}

	if tracing.Export != nil {
		v.validateExport(tracing.Export, path+".export")
	}
}

// validateExport validates export retry and breaker configuration.
func (v *Validator) validateExport(export *ExportConfig, path string) {
	if export.MaxRetries < 0 {
		v.addError(path+".maxRetries", "maxRetries cannot be negative")
	}

	if err := util.ValidateDuration(export.InitialBackoff.Duration()); err != nil {
		v.addError(path+".initialBackoff", err.Error())
	}
	if err := util.ValidateDuration(export.MaxBackoff.Duration()); err != nil {
		v.addError(path+".maxBackoff", err.Error())
	}
	if err := util.ValidateDuration(export.BreakerTimeout.Duration()); err != nil {
		v.addError(path+".breakerTimeout", err.Error())
	}

	if export.InitialBackoff > 0 && export.MaxBackoff > 0 && export.MaxBackoff < export.InitialBackoff {
		v.addError(path+".maxBackoff", "maxBackoff must not be smaller than initialBackoff")
	}
}

// validateMetrics validates metrics configuration.
func (v *Validator) validateMetrics(metrics *MetricsConfig, path string) {
	if !validTelemetryExporters[strings.ToLower(metrics.Exporter)] {
		v.addError(path+".exporter", fmt.Sprintf("invalid exporter type: %s", metrics.Exporter))
	}

	if metrics.Enabled && metrics.Exporter != "none" && metrics.Endpoint == "" {
		v.addError(path+".endpoint", "endpoint is required when export is enabled")
	}

	if metrics.Endpoint != "" {
		if err := util.ValidateHostPort(metrics.Endpoint); err != nil {
			v.addError(path+".endpoint", err.Error())
		}
	}

	if err := util.ValidateDuration(metrics.Interval.Duration()); err != nil {
		v.addError(path+".interval", err.Error())
	}

	if metrics.MaxDestinations < 0 {
		v.addError(path+".maxDestinations", "maxDestinations cannot be negative")
	}
}

// validateMonitor validates the self-metrics endpoint configuration.
func (v *Validator) validateMonitor(monitor *MonitorConfig, path string) {
	if monitor.Path != "" && !strings.HasPrefix(monitor.Path, "/") {
		v.addError(path+".path", "path must start with /")
	}

	if monitor.Port != 0 {
		if err := util.ValidatePort(monitor.Port); err != nil {
			v.addError(path+".port", err.Error())
		}
	}

	if err := util.ValidateDuration(monitor.ReadTimeout.Duration()); err != nil {
		v.addError(path+".readTimeout", err.Error())
	}
	if err := util.ValidateDuration(monitor.WriteTimeout.Duration()); err != nil {
		v.addError(path+".writeTimeout", err.Error())
	}
}

// validateMessaging validates broker instrumentation configuration.
func (v *Validator) validateMessaging(messaging *MessagingConfig, path string) {
	if messaging.Retry != nil {
		if messaging.Retry.MaxRetries < 0 {
			v.addError(path+".retry.maxRetries", "maxRetries cannot be negative")
		}
		if err := util.ValidateDuration(messaging.Retry.Delay.Duration()); err != nil {
			v.addError(path+".retry.delay", err.Error())
		}
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
