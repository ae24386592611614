package subsync

import (
	"context"
	"errors"
	"fmt"
)

// CircuitBreakerStore wraps a UserStore with circuit breaker protection.
// Only store errors count as failures; an update that matches no user does not.
type CircuitBreakerStore struct {
	store UserStore
	cb    CircuitBreaker
}

// NewCircuitBreakerStore creates a new store wrapper with circuit breaker.
func NewCircuitBreakerStore(store UserStore, cb CircuitBreaker) *CircuitBreakerStore {
	return &CircuitBreakerStore{
		store: store,
		cb:    cb,
	}
}

// UpdateEntitlement implements UserStore
func (s *CircuitBreakerStore) UpdateEntitlement(
	ctx context.Context, key LookupKey, match MatchMode, fields EntitlementFields,
) (int64, error) {
	var affected int64
	err := s.cb.Execute(ctx, func() error {
		var e error
		affected, e = s.store.UpdateEntitlement(ctx, key, match, fields)
		return e
	})
	if errors.Is(err, ErrCircuitOpen) {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return affected, err
}
