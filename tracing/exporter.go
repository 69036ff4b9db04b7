package tracing

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/amqptel/amqptel/internal/retry"
	"github.com/amqptel/amqptel/internal/selfmetrics"
)

// ExportConfig tunes retry and circuit breaking on the export path.
type ExportConfig struct {
	// MaxRetries is the number of retries per batch before it is dropped.
	MaxRetries int

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// BreakerEnabled short-circuits exports while the collector is down
	// instead of burning the retry budget on every batch.
	BreakerEnabled bool

	// BreakerFailures is the consecutive failure count that opens the
	// breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open before probing
	// the collector again.
	BreakerTimeout time.Duration
}

// DefaultExportConfig returns an ExportConfig with default values.
func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		MaxRetries:      3,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      2 * time.Second,
		BreakerEnabled:  true,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

const breakerName = "otlp-trace-export"

// retryExporter decorates a span exporter with bounded retry and a
// collector circuit breaker. A batch that exhausts its budget is dropped
// and counted; the error never reaches the instrumented application.
type retryExporter struct {
	wrapped  sdktrace.SpanExporter
	retryCfg *retry.Config
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func newRetryExporter(wrapped sdktrace.SpanExporter, cfg *ExportConfig, logger *zap.Logger) *retryExporter {
	if cfg == nil {
		cfg = DefaultExportConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &retryExporter{
		wrapped: wrapped,
		retryCfg: &retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		logger: logger,
	}

	if cfg.BreakerEnabled {
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				selfmetrics.SetBreakerState(name, breakerStateValue(to))
				selfmetrics.RecordBreakerTransition(name, from.String(), to.String())
				logger.Warn("export breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return e
}

// ExportSpans implements sdktrace.SpanExporter. It always returns nil: the
// batch either reaches the collector or is dropped with its count recorded.
func (e *retryExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := retry.Do(ctx, e.retryCfg, func() error {
		return e.export(ctx, spans)
	}, &retry.Options{
		ShouldRetry: func(err error) bool {
			// An open breaker fails fast; retrying would just spin on it.
			return !errors.Is(err, gobreaker.ErrOpenState)
		},
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			selfmetrics.RecordExportRetry()
			e.logger.Debug("retrying span export",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
		},
	})

	if err != nil {
		reason := selfmetrics.DropReasonRetryExhausted
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = selfmetrics.DropReasonBreakerOpen
		}
		selfmetrics.RecordExportDrop(len(spans), reason)
		e.logger.Warn("dropping span batch after failed export",
			zap.Int("spans", len(spans)),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return nil
	}

	selfmetrics.RecordExportSuccess(len(spans))
	return nil
}

// export runs one attempt, through the breaker when enabled.
func (e *retryExporter) export(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.breaker == nil {
		return e.wrapped.ExportSpans(ctx, spans)
	}
	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, e.wrapped.ExportSpans(ctx, spans)
	})
	return err
}

// Shutdown implements sdktrace.SpanExporter.
func (e *retryExporter) Shutdown(ctx context.Context) error {
	return e.wrapped.Shutdown(ctx)
}

// Health reports breaker state as the collector health signal.
func (e *retryExporter) Health() (bool, string) {
	if e.breaker == nil {
		return true, ""
	}
	if state := e.breaker.State(); state == gobreaker.StateOpen {
		return false, "collector unreachable, export breaker open"
	}
	return true, ""
}

// breakerStateValue maps gobreaker states onto the gauge encoding
// (0=closed, 1=open, 2=half-open).
func breakerStateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
