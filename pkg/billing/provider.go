package billing

import (
	"context"
	"net/http"
)

// MaxWebhookBodyBytes bounds webhook payloads. Stripe events are far smaller.
const MaxWebhookBodyBytes int64 = 256 * 1024

// Provider is the interface a billing backend's webhook receiver implements.
type Provider interface {
	// Name returns the provider name (e.g. "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles verification, parsing and store updates internally.
	WebhookHandler() http.Handler

	// Process runs one delivery through verification and reconciliation
	// without an HTTP transport. Used by serverless entry points.
	Process(ctx context.Context, body []byte, signature string) Result

	// SignatureHeader returns the request header carrying the delivery signature
	SignatureHeader() string

	// ResponseHeaders returns the headers set on every webhook response
	ResponseHeaders() map[string]string
}

// Result is the transport-neutral outcome of processing one delivery
type Result struct {
	// StatusCode is the HTTP status to answer the provider with
	StatusCode int

	// Body is the JSON response body
	Body []byte

	// EventType is the provider event type, empty if the payload never verified
	EventType string

	// Err is the failure, nil on success and for ignored events
	Err error
}
