package subsync

import "context"

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half_open"
)

// CircuitBreaker defines the interface for a circuit breaker.
// See pkg/subsync/breaker/gobreaker for the implementation.
type CircuitBreaker interface {
	// Execute executes the given function within the circuit breaker.
	// When the breaker is open it returns an error wrapping ErrCircuitOpen without calling fn.
	Execute(ctx context.Context, fn func() error) error
	// State returns the current state of the circuit breaker.
	State() CircuitBreakerState
}
