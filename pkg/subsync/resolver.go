package subsync

import (
	"fmt"
	"time"
)

// ResolverConfig configures a Resolver
type ResolverConfig struct {
	// Catalog maps price ids to plans. A nil catalog resolves every price to DefaultPlan.
	Catalog *Catalog

	// CustomerIDMatch is the match mode for customer-id lookups on
	// subscription updates. Deletions always match exactly.
	// Default: MatchExact
	CustomerIDMatch MatchMode

	// Now returns the resolution timestamp. Default: time.Now
	Now func() time.Time
}

// Resolver turns normalized events into entitlement mutations.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	catalog         *Catalog
	customerIDMatch MatchMode
	now             func() time.Time
}

// NewResolver creates a Resolver
func NewResolver(config ResolverConfig) (*Resolver, error) {
	if config.CustomerIDMatch == "" {
		config.CustomerIDMatch = MatchExact
	}
	if !config.CustomerIDMatch.Valid() {
		return nil, fmt.Errorf("invalid customer id match mode %q", config.CustomerIDMatch)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Resolver{
		catalog:         config.Catalog,
		customerIDMatch: config.CustomerIDMatch,
		now:             config.Now,
	}, nil
}

// Catalog returns the resolver's plan catalog
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve maps ev to the mutation that reconciles the user record with it.
// Unknown prices never fail; they resolve to DefaultPlan. The only error is a
// nil or foreign Event implementation.
func (r *Resolver) Resolve(ev Event) (EntitlementMutation, error) {
	now := r.now().UTC()

	switch e := ev.(type) {
	case CheckoutCompleted:
		plan := r.catalog.Lookup(e.PriceID)
		return EntitlementMutation{
			Key:   EmailKey(e.CustomerEmail),
			Match: MatchCaseInsensitive,
			Fields: EntitlementFields{
				StripeCustomerID:      e.CustomerID,
				SubscriptionStatus:    StatusActive,
				Plan:                  plan.Name,
				Credits:               plan.Credits,
				SubscriptionUpdatedAt: now,
			},
		}, nil

	case SubscriptionDeleted:
		// Cancellation always drops to the default plan regardless of catalog contents
		return EntitlementMutation{
			Key:   CustomerIDKey(e.CustomerID),
			Match: MatchExact,
			Fields: EntitlementFields{
				SubscriptionStatus:    StatusInactive,
				Plan:                  DefaultPlanName,
				Credits:               DefaultPlanCredits,
				SubscriptionUpdatedAt: now,
			},
		}, nil

	case SubscriptionUpdated:
		plan := r.catalog.Lookup(e.PriceID)
		status := StatusInactive
		if e.IsActive {
			status = StatusActive
		}
		return EntitlementMutation{
			Key:   CustomerIDKey(e.CustomerID),
			Match: r.customerIDMatch,
			Fields: EntitlementFields{
				SubscriptionStatus:    status,
				Plan:                  plan.Name,
				Credits:               plan.Credits,
				SubscriptionUpdatedAt: now,
			},
		}, nil

	default:
		return EntitlementMutation{}, fmt.Errorf("%w: %T", ErrUnrecognizedEventType, ev)
	}
}
