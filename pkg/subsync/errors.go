package subsync

import "errors"

var (
	// ErrMissingSignature is returned when the webhook signature header is absent
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrMissingSecret is returned when no webhook signing secret is configured
	ErrMissingSecret = errors.New("webhook signing secret not configured")

	// ErrInvalidSignature is returned when the signature does not match the payload
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a correctly signed body is not a provider event
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrMissingRequiredField is returned when an event lacks a field needed to locate the user
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrUnrecognizedEventType is returned for event types that are not reconciled.
	// Callers treat it as a successful no-op.
	ErrUnrecognizedEventType = errors.New("unrecognized event type")

	// ErrLineItemLookup is returned when the purchased price cannot be fetched from the provider
	ErrLineItemLookup = errors.New("line item lookup failed")

	// ErrNoMatchingUser is returned when a mutation matched zero user records
	ErrNoMatchingUser = errors.New("no matching user")

	// ErrStore is returned when the user store rejects or fails an update
	ErrStore = errors.New("user store error")

	// ErrCircuitOpen is returned when a circuit breaker short-circuits a call
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrInvalidCatalog is returned for malformed plan catalog configuration
	ErrInvalidCatalog = errors.New("invalid plan catalog")
)
