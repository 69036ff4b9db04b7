package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amqptel/amqptel/internal/selfmetrics"
)

// Instrument names. Destinations are carried as an attribute, never in the
// metric name, so the collector sees a fixed instrument set.
const (
	InstrumentPublished      = "messaging.published"
	InstrumentConsumed       = "messaging.consumed"
	InstrumentMessageSize    = "messaging.message.size"
	InstrumentProcessingTime = "messaging.processing.time"
	InstrumentQueueTime      = "messaging.queue.time"
	InstrumentRetries        = "messaging.retries"
	InstrumentHTTPDuration   = "http.request.duration"
	InstrumentHTTPErrors     = "http.errors"
)

// Attribute keys on recorded values.
const (
	AttrDestination = "messaging.destination"
	AttrErrorKind   = "error.kind"
)

// OverflowDestination receives observations once the destination cap is
// reached, keeping total cardinality bounded.
const OverflowDestination = "other"

// RegistryConfig holds configuration for the instrument registry.
type RegistryConfig struct {
	// MeterName names the meter the registry creates instruments on.
	MeterName string

	// MaxDestinations bounds the number of distinct destinations. Further
	// destinations fold into OverflowDestination.
	MaxDestinations int
}

// DefaultRegistryConfig returns a RegistryConfig with default values.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		MeterName:       "amqptel",
		MaxDestinations: 200,
	}
}

// Registry hands out the per-destination instrument set. Each destination
// gets exactly one *Instruments for the process lifetime, no matter how
// many goroutines ask first.
type Registry struct {
	maxDestinations int
	logger          *zap.Logger
	warnLimiter     *rate.Limiter

	mu           sync.RWMutex
	destinations map[string]*Instruments

	published      metric.Int64Counter
	consumed       metric.Int64Counter
	messageSize    metric.Float64Histogram
	processingTime metric.Float64Histogram
	queueTime      metric.Float64Histogram
	retries        metric.Int64Counter
	httpDuration   metric.Float64Histogram
	httpErrors     metric.Int64Counter
}

// NewRegistry creates a Registry with its instruments on the given meter
// provider.
func NewRegistry(provider metric.MeterProvider, config *RegistryConfig, logger *zap.Logger) (*Registry, error) {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if config.MeterName == "" {
		config.MeterName = "amqptel"
	}
	if config.MaxDestinations <= 0 {
		config.MaxDestinations = DefaultRegistryConfig().MaxDestinations
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := provider.Meter(config.MeterName)

	r := &Registry{
		maxDestinations: config.MaxDestinations,
		logger:          logger,
		warnLimiter:     rate.NewLimiter(rate.Every(10*time.Second), 1),
		destinations:    make(map[string]*Instruments),
	}

	var err error
	if r.published, err = meter.Int64Counter(InstrumentPublished,
		metric.WithDescription("Messages published, by destination"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", InstrumentPublished, err)
	}
	if r.consumed, err = meter.Int64Counter(InstrumentConsumed,
		metric.WithDescription("Messages consumed, by destination"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", InstrumentConsumed, err)
	}
	if r.messageSize, err = meter.Float64Histogram(InstrumentMessageSize,
		metric.WithDescription("Message payload size, by destination"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", InstrumentMessageSize, err)
	}
	if r.processingTime, err = meter.Float64Histogram(InstrumentProcessingTime,
		metric.WithDescription("Consumer callback duration, by destination"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", InstrumentProcessingTime, err)
	}
	if r.queueTime, err = meter.Float64Histogram(InstrumentQueueTime,
		metric.WithDescription("Time between publish and consume, by destination"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", InstrumentQueueTime, err)
	}
	if r.retries, err = meter.Int64Counter(InstrumentRetries,
		metric.WithDescription("Redelivered messages observed, by destination"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", InstrumentRetries, err)
	}
	if r.httpDuration, err = meter.Float64Histogram(InstrumentHTTPDuration,
		metric.WithDescription("HTTP request duration, by destination"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", InstrumentHTTPDuration, err)
	}
	if r.httpErrors, err = meter.Int64Counter(InstrumentHTTPErrors,
		metric.WithDescription("Failed HTTP requests, by destination and error kind"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", InstrumentHTTPErrors, err)
	}

	return r, nil
}

// ForDestination returns the instrument set for the destination, creating
// it on first use. Creation is first-writer-wins under concurrency; every
// caller gets the same instance. Beyond the destination cap the overflow
// set is returned instead.
func (r *Registry) ForDestination(name string) *Instruments {
	r.mu.RLock()
	inst, ok := r.destinations[name]
	r.mu.RUnlock()
	if ok {
		return inst
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if inst, ok = r.destinations[name]; ok {
		return inst
	}

	if name != OverflowDestination && len(r.destinations) >= r.maxDestinations {
		selfmetrics.RecordDestinationOverflow()
		if r.warnLimiter.Allow() {
			r.logger.Warn("destination cap reached, folding into overflow destination",
				zap.String("destination", name),
				zap.Int("max", r.maxDestinations),
			)
		}
		return r.overflowLocked()
	}

	inst = r.newInstruments(name)
	r.destinations[name] = inst
	selfmetrics.SetDestinationsActive(len(r.destinations))
	return inst
}

// Size returns the number of destinations currently registered.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.destinations)
}

// overflowLocked returns the overflow instrument set, creating it if
// needed. Caller holds the write lock.
func (r *Registry) overflowLocked() *Instruments {
	inst, ok := r.destinations[OverflowDestination]
	if !ok {
		inst = r.newInstruments(OverflowDestination)
		r.destinations[OverflowDestination] = inst
		selfmetrics.SetDestinationsActive(len(r.destinations))
	}
	return inst
}

func (r *Registry) newInstruments(name string) *Instruments {
	attrs := attribute.NewSet(attribute.String(AttrDestination, name))
	return &Instruments{
		registry:    r,
		destination: name,
		addOpts:     []metric.AddOption{metric.WithAttributeSet(attrs)},
		recordOpts:  []metric.RecordOption{metric.WithAttributeSet(attrs)},
	}
}

// Instruments records observations for one destination. All methods are
// in-memory aggregation, safe for concurrent use, and never block.
type Instruments struct {
	registry    *Registry
	destination string
	addOpts     []metric.AddOption
	recordOpts  []metric.RecordOption
}

// Destination returns the destination name the instruments are keyed by.
func (i *Instruments) Destination() string {
	return i.destination
}

// AddPublished counts one published message.
func (i *Instruments) AddPublished(ctx context.Context) {
	i.registry.published.Add(ctx, 1, i.addOpts...)
}

// AddConsumed counts one consumed message.
func (i *Instruments) AddConsumed(ctx context.Context) {
	i.registry.consumed.Add(ctx, 1, i.addOpts...)
}

// RecordMessageSize records a message payload size in bytes.
func (i *Instruments) RecordMessageSize(ctx context.Context, bytes int) {
	i.registry.messageSize.Record(ctx, float64(bytes), i.recordOpts...)
}

// RecordProcessingTime records a consumer callback duration.
func (i *Instruments) RecordProcessingTime(ctx context.Context, d time.Duration) {
	i.registry.processingTime.Record(ctx, durationMillis(d), i.recordOpts...)
}

// RecordQueueTime records the delay between publish and consume.
func (i *Instruments) RecordQueueTime(ctx context.Context, d time.Duration) {
	i.registry.queueTime.Record(ctx, durationMillis(d), i.recordOpts...)
}

// AddRetry counts one redelivered message.
func (i *Instruments) AddRetry(ctx context.Context) {
	i.registry.retries.Add(ctx, 1, i.addOpts...)
}

// RecordRequestDuration records an HTTP request duration.
func (i *Instruments) RecordRequestDuration(ctx context.Context, d time.Duration) {
	i.registry.httpDuration.Record(ctx, durationMillis(d), i.recordOpts...)
}

// AddError counts one failed HTTP request of the given error kind.
func (i *Instruments) AddError(ctx context.Context, kind string) {
	i.registry.httpErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrDestination, i.destination),
		attribute.String(AttrErrorKind, kind),
	))
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
