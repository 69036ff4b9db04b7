// Package retry provides bounded exponential backoff retry functionality
// for the telemetry export path.
//
// Export attempts against an unreachable collector are retried a fixed
// number of times with jittered exponential backoff; callers decide what
// happens when the budget is exhausted (exported batches are dropped).
//
// # Features
//
//   - Configurable maximum retry attempts
//   - Exponential backoff with configurable base and maximum
//   - Jitter factor to prevent thundering herd
//   - Context-aware cancellation support
//   - Customizable retry condition functions
//
// # Usage
//
// Execute an operation with retry:
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    return exporter.ExportSpans(ctx, spans)
//	}, nil)
//
// # Configuration
//
// Customize retry behavior:
//
//	cfg := &retry.Config{
//	    MaxRetries:     5,
//	    InitialBackoff: 200 * time.Millisecond,
//	    MaxBackoff:     2 * time.Second,
//	    JitterFactor:   0.25,
//	}
package retry
