package stripe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

const subscriptionStatusActive = "active"

// LineItemLookup fetches the price id of a checkout session's first line item.
// It returns an empty id when the session has no priced line items.
type LineItemLookup interface {
	FirstPriceID(ctx context.Context, sessionID string) (string, error)
}

// Normalizer turns verified Stripe payloads into subsync events
type Normalizer struct {
	lineItems LineItemLookup
}

// NewNormalizer creates a Normalizer. A nil lookup limits checkout events to
// line items embedded in the payload.
func NewNormalizer(lineItems LineItemLookup) *Normalizer {
	return &Normalizer{lineItems: lineItems}
}

// Normalize parses p into a subsync.Event. Event types that are not reconciled
// yield an error wrapping subsync.ErrUnrecognizedEventType.
func (n *Normalizer) Normalize(ctx context.Context, p VerifiedPayload) (subsync.Event, error) {
	if !subsync.IsRecognized(p.Type) {
		return nil, fmt.Errorf("%w: %s", subsync.ErrUnrecognizedEventType, p.Type)
	}
	if p.Type == subsync.EventCheckoutCompleted {
		return n.checkoutCompleted(ctx, p.Object)
	}

	sub, err := decodeSubscription(p.Object)
	if err != nil {
		return nil, err
	}
	if p.Type == subsync.EventSubscriptionDeleted {
		return subsync.SubscriptionDeleted{CustomerID: sub.customerID}, nil
	}
	return subsync.SubscriptionUpdated{
		CustomerID: sub.customerID,
		PriceID:    sub.priceID,
		IsActive:   sub.status == subscriptionStatusActive,
	}, nil
}

func (n *Normalizer) checkoutCompleted(ctx context.Context, raw json.RawMessage) (subsync.Event, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", subsync.ErrInvalidPayload, err)
	}

	email := ""
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email == "" {
		email = session.CustomerEmail
	}
	if email == "" {
		return nil, fmt.Errorf("%w: customer email on checkout session", subsync.ErrMissingRequiredField)
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	priceID, embedded := firstEmbeddedPrice(&session)
	if !embedded && n.lineItems != nil {
		if session.ID == "" {
			return nil, fmt.Errorf("%w: checkout session id", subsync.ErrMissingRequiredField)
		}
		var err error
		priceID, err = n.lineItems.FirstPriceID(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", subsync.ErrLineItemLookup, err)
		}
	}

	return subsync.CheckoutCompleted{
		SessionID:     session.ID,
		CustomerID:    customerID,
		CustomerEmail: email,
		PriceID:       priceID,
	}, nil
}

func firstEmbeddedPrice(session *stripe.CheckoutSession) (string, bool) {
	if session.LineItems == nil || len(session.LineItems.Data) == 0 {
		return "", false
	}
	item := session.LineItems.Data[0]
	if item == nil || item.Price == nil {
		return "", true
	}
	return item.Price.ID, true
}

type subscriptionFields struct {
	customerID string
	priceID    string
	status     string
}

func decodeSubscription(raw json.RawMessage) (subscriptionFields, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return subscriptionFields{}, fmt.Errorf("%w: subscription: %v", subsync.ErrInvalidPayload, err)
	}

	out := subscriptionFields{status: string(sub.Status)}
	if sub.Customer != nil {
		out.customerID = sub.Customer.ID
	}
	if out.customerID == "" {
		return subscriptionFields{}, fmt.Errorf("%w: customer on subscription", subsync.ErrMissingRequiredField)
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil && sub.Items.Data[0].Price != nil {
		out.priceID = sub.Items.Data[0].Price.ID
	}
	return out, nil
}
