package subsync

import "time"

// Metrics defines the interface for tracking reconciliation outcomes.
type Metrics interface {
	// RecordApply records the outcome of applying a mutation.
	// outcome: "applied", "no_match" or "error"
	RecordApply(lookup LookupKind, outcome string)

	// RecordApplyDuration records how long the store update took.
	RecordApplyDuration(lookup LookupKind, duration time.Duration)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordApply(lookup LookupKind, outcome string)                 {}
func (n *NoopMetrics) RecordApplyDuration(lookup LookupKind, duration time.Duration) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                  {}
