// Package selfmetrics exposes Prometheus metrics about the instrumentation
// layer itself: export outcomes, dropped telemetry, and the collector
// circuit breaker. These never ride the instrumented application's hot path.
package selfmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the metrics namespace for all self metrics.
	Namespace = "amqptel"

	// Subsystem names for different components.
	SubsystemExport   = "export"
	SubsystemRegistry = "registry"
)

var (
	// Export Metrics

	// ExportBatchesTotal counts export batch attempts by outcome.
	ExportBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExport,
			Name:      "batches_total",
			Help:      "Total number of telemetry export batches by outcome",
		},
		[]string{"result"},
	)

	// SpansExportedTotal counts spans successfully delivered to the collector.
	SpansExportedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExport,
			Name:      "spans_exported_total",
			Help:      "Total number of spans delivered to the collector",
		},
	)

	// SpansDroppedTotal counts spans dropped after the retry budget was spent
	// or while the breaker was open.
	SpansDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExport,
			Name:      "spans_dropped_total",
			Help:      "Total number of spans dropped instead of exported",
		},
		[]string{"reason"},
	)

	// RetriesTotal counts export retry attempts.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExport,
			Name:      "retries_total",
			Help:      "Total number of export retry attempts",
		},
	)

	// BreakerState shows the collector circuit breaker state.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExport,
			Name:      "breaker_state",
			Help:      "Collector circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// BreakerTransitionsTotal counts breaker state changes.
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemExport,
			Name:      "breaker_transitions_total",
			Help:      "Total number of collector circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)

	// Registry Metrics

	// DestinationsActive tracks distinct destinations held by the
	// instrument registry.
	DestinationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRegistry,
			Name:      "destinations_active",
			Help:      "Current number of destinations with registered instruments",
		},
	)

	// DestinationsOverflowTotal counts observations folded into the
	// overflow destination after the cardinality cap was reached.
	DestinationsOverflowTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRegistry,
			Name:      "destinations_overflow_total",
			Help:      "Total number of lookups folded into the overflow destination",
		},
	)
)

// Drop reasons for SpansDroppedTotal.
const (
	DropReasonRetryExhausted = "retry_exhausted"
	DropReasonBreakerOpen    = "breaker_open"
	DropReasonShutdown       = "shutdown"
)

// RecordExportSuccess records a delivered batch of the given span count.
func RecordExportSuccess(spans int) {
	ExportBatchesTotal.WithLabelValues("ok").Inc()
	SpansExportedTotal.Add(float64(spans))
}

// RecordExportDrop records a dropped batch of the given span count.
func RecordExportDrop(spans int, reason string) {
	ExportBatchesTotal.WithLabelValues("dropped").Inc()
	SpansDroppedTotal.WithLabelValues(reason).Add(float64(spans))
}

// RecordExportRetry records a single export retry attempt.
func RecordExportRetry() {
	RetriesTotal.Inc()
}

// SetBreakerState sets the collector breaker state gauge.
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerTransition records a breaker state change.
func RecordBreakerTransition(name, from, to string) {
	BreakerTransitionsTotal.WithLabelValues(name, from, to).Inc()
}

// SetDestinationsActive sets the registry destination gauge.
func SetDestinationsActive(count int) {
	DestinationsActive.Set(float64(count))
}

// RecordDestinationOverflow records a lookup folded into the overflow
// destination.
func RecordDestinationOverflow() {
	DestinationsOverflowTotal.Inc()
}
