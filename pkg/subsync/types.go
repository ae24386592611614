package subsync

import (
	"time"
)

// SubscriptionStatus is the coarse subscription state stored on a user record
type SubscriptionStatus string

const (
	// StatusActive marks a user with a paid, active subscription
	StatusActive SubscriptionStatus = "active"
	// StatusInactive marks a user without an active subscription
	StatusInactive SubscriptionStatus = "inactive"
)

const (
	// DefaultPlanName is the plan granted when no catalog entry applies
	DefaultPlanName = "free"
	// DefaultPlanCredits is the credit allotment of the default plan
	DefaultPlanCredits = 1000
)

// PlanDescriptor is the entitlement granted for a billing-provider price
type PlanDescriptor struct {
	Name    string `json:"name"`
	Credits int    `json:"credits"`
}

// DefaultPlan returns the descriptor used for unknown or absent price ids
func DefaultPlan() PlanDescriptor {
	return PlanDescriptor{Name: DefaultPlanName, Credits: DefaultPlanCredits}
}

// UserRecord is the subset of a stored user that reconciliation touches.
// Records are owned by the store; this package never creates or deletes them.
type UserRecord struct {
	ID                    string             `json:"id"`
	Email                 string             `json:"email"`
	StripeCustomerID      string             `json:"stripe_customer_id,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	Plan                  string             `json:"plan"`
	Credits               int                `json:"credits"`
	SubscriptionUpdatedAt time.Time          `json:"subscription_updated_at"`
}

// LookupKind selects which user field a mutation is matched against
type LookupKind string

const (
	// LookupEmail matches on the user's email address
	LookupEmail LookupKind = "email"
	// LookupCustomerID matches on the stored Stripe customer id
	LookupCustomerID LookupKind = "customer_id"
)

// LookupKey identifies the target user record of a mutation
type LookupKey struct {
	Kind  LookupKind `json:"kind"`
	Value string     `json:"value"`
}

// EmailKey builds a lookup key on email
func EmailKey(email string) LookupKey {
	return LookupKey{Kind: LookupEmail, Value: email}
}

// CustomerIDKey builds a lookup key on the Stripe customer id
func CustomerIDKey(customerID string) LookupKey {
	return LookupKey{Kind: LookupCustomerID, Value: customerID}
}

// String implements fmt.Stringer
func (k LookupKey) String() string {
	return string(k.Kind) + "=" + k.Value
}

// MatchMode controls how a lookup value is compared with the stored value
type MatchMode string

const (
	// MatchExact compares byte-for-byte
	MatchExact MatchMode = "exact"
	// MatchCaseInsensitive compares after case folding
	MatchCaseInsensitive MatchMode = "case_insensitive"
)

// Valid reports whether m is a known match mode
func (m MatchMode) Valid() bool {
	return m == MatchExact || m == MatchCaseInsensitive
}

// EntitlementFields is the full field set written by a single mutation.
// An empty StripeCustomerID leaves the stored customer id unchanged.
type EntitlementFields struct {
	StripeCustomerID      string             `json:"stripe_customer_id,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	Plan                  string             `json:"plan"`
	Credits               int                `json:"credits"`
	SubscriptionUpdatedAt time.Time          `json:"subscription_updated_at"`
}

// EntitlementMutation is produced once per event and consumed once by the Applier
type EntitlementMutation struct {
	Key    LookupKey         `json:"lookup_key"`
	Match  MatchMode         `json:"match_mode"`
	Fields EntitlementFields `json:"fields"`
}

// ApplyTo writes the mutation's fields onto rec. Stores without native
// update statements use it so every backend shares the same overwrite rules.
func (f EntitlementFields) ApplyTo(rec *UserRecord) {
	if f.StripeCustomerID != "" {
		rec.StripeCustomerID = f.StripeCustomerID
	}
	rec.SubscriptionStatus = f.SubscriptionStatus
	rec.Plan = f.Plan
	rec.Credits = f.Credits
	rec.SubscriptionUpdatedAt = f.SubscriptionUpdatedAt
}
