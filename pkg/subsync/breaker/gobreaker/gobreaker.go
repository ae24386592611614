// Package gobreaker adapts sony/gobreaker to subsync.CircuitBreaker.
package gobreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// Config configures the breaker
type Config struct {
	// Name identifies the breaker in state change callbacks
	Name string

	// FailureThreshold is the number of consecutive failures that opens the breaker. Default: 5
	FailureThreshold uint32

	// ResetTimeout is how long the breaker stays open before a trial request. Default: 30s
	ResetTimeout time.Duration

	// IsSuccessful classifies errors. Default: err == nil
	IsSuccessful func(err error) bool

	// OnStateChange is called with the new state on every transition
	OnStateChange func(state subsync.CircuitBreakerState)
}

// Breaker implements subsync.CircuitBreaker
type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// New creates a gobreaker-backed circuit breaker
func New(config Config) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}

	threshold := config.FailureThreshold
	settings := gobreaker.Settings{
		Name:         config.Name,
		MaxRequests:  1,
		Timeout:      config.ResetTimeout,
		IsSuccessful: config.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if config.OnStateChange != nil {
		onChange := config.OnStateChange
		settings.OnStateChange = func(_ string, _, to gobreaker.State) {
			onChange(mapState(to))
		}
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Execute implements subsync.CircuitBreaker
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", subsync.ErrCircuitOpen, b.cb.Name())
	}
	return err
}

// State implements subsync.CircuitBreaker
func (b *Breaker) State() subsync.CircuitBreakerState {
	return mapState(b.cb.State())
}

func mapState(s gobreaker.State) subsync.CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return subsync.StateOpen
	case gobreaker.StateHalfOpen:
		return subsync.StateHalfOpen
	default:
		return subsync.StateClosed
	}
}
