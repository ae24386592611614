package billing

import "time"

// WebhookEvent contains information about a successfully reconciled webhook.
// It is passed to Config.WebhookCallback after the user store has been updated.
type WebhookEvent struct {
	// EventID is the provider event id
	EventID string

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// Plan is the plan written to the user record
	Plan string

	// Status is the subscription status written to the user record
	Status string

	// Credits is the credit allotment written to the user record
	Credits int

	// Affected is the number of user records updated
	Affected int64
}
