package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/pkg/subsync"
)

const listLineItemsEndpoint = "checkout_sessions.list_line_items"

// APILineItems implements LineItemLookup with the Stripe API
type APILineItems struct {
	client  *stripe.Client
	breaker subsync.CircuitBreaker
	metrics billing.Metrics
}

// NewAPILineItems creates a lookup backed by client. breaker and metrics are optional.
func NewAPILineItems(client *stripe.Client, breaker subsync.CircuitBreaker, metrics billing.Metrics) *APILineItems {
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	return &APILineItems{client: client, breaker: breaker, metrics: metrics}
}

// FirstPriceID implements LineItemLookup
func (l *APILineItems) FirstPriceID(ctx context.Context, sessionID string) (string, error) {
	var priceID string
	call := func() error {
		var err error
		priceID, err = l.firstPriceID(ctx, sessionID)
		return err
	}

	var err error
	if l.breaker != nil {
		err = l.breaker.Execute(ctx, call)
	} else {
		err = call()
	}
	return priceID, err
}

func (l *APILineItems) firstPriceID(ctx context.Context, sessionID string) (string, error) {
	start := time.Now()
	defer func() {
		l.metrics.RecordAPICallDuration(providerName, listLineItemsEndpoint, time.Since(start))
	}()

	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Limit = stripe.Int64(1)

	for item, err := range l.client.V1CheckoutSessions.ListLineItems(ctx, params) {
		if err != nil {
			l.metrics.RecordAPICall(providerName, listLineItemsEndpoint, "error")
			return "", fmt.Errorf("%w: list line items: %w", billing.ErrProviderAPIError, err)
		}
		l.metrics.RecordAPICall(providerName, listLineItemsEndpoint, "success")
		if item.Price == nil {
			return "", nil
		}
		return item.Price.ID, nil
	}

	l.metrics.RecordAPICall(providerName, listLineItemsEndpoint, "success")
	return "", nil
}
