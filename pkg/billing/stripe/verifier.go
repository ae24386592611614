package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// VerifiedPayload is a Stripe event whose signature has been checked
type VerifiedPayload struct {
	EventID string
	Type    subsync.EventType
	Created time.Time

	// Object is the raw data.object of the event
	Object json.RawMessage
}

// Verify checks the Stripe-Signature header against body using secret and
// decodes the event envelope. The v1 HMAC-SHA256 scheme and Stripe's default
// timestamp tolerance apply; API version mismatches are ignored.
func Verify(body []byte, signature, secret string) (VerifiedPayload, error) {
	if strings.TrimSpace(signature) == "" {
		return VerifiedPayload{}, subsync.ErrMissingSignature
	}
	if secret == "" {
		return VerifiedPayload{}, subsync.ErrMissingSecret
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned):
			return VerifiedPayload{}, subsync.ErrMissingSignature
		case errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return VerifiedPayload{}, subsync.ErrInvalidSignature
		default:
			// Signature matched but the body is not an event document
			return VerifiedPayload{}, fmt.Errorf("%w: %v", subsync.ErrInvalidPayload, err)
		}
	}

	return payloadFromEvent(event)
}

// ParseUnverified decodes an event document without checking a signature.
// It serves offline dry runs over events exported from the Stripe dashboard
// and must never be used on network input.
func ParseUnverified(body []byte) (VerifiedPayload, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return VerifiedPayload{}, fmt.Errorf("%w: %v", subsync.ErrInvalidPayload, err)
	}
	return payloadFromEvent(event)
}

func payloadFromEvent(event stripe.Event) (VerifiedPayload, error) {
	if event.ID == "" || event.Type == "" || event.Data == nil {
		return VerifiedPayload{}, fmt.Errorf("%w: missing event id, type or data", subsync.ErrInvalidPayload)
	}

	return VerifiedPayload{
		EventID: event.ID,
		Type:    subsync.EventType(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Object:  event.Data.Raw,
	}, nil
}
