package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrPayloadTooLarge is returned when the request body exceeds the size limit
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrEmptyPayload is returned for a request without a body
	ErrEmptyPayload = errors.New("empty payload")

	// ErrEventInProgress is returned for a delivery whose event id another attempt is still processing
	ErrEventInProgress = errors.New("event is already being processed")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")
)
