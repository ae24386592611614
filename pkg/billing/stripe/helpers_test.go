package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/pkg/subsync"
	"github.com/mihaimyh/subsync/storage/memory"
)

const testSecret = "whsec_test_secret"

type fakeLineItems struct {
	mu      sync.Mutex
	priceID string
	err     error
	calls   int
}

func (f *fakeLineItems) FirstPriceID(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.priceID, f.err
}

func (f *fakeLineItems) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingStore struct {
	mu    sync.Mutex
	inner subsync.UserStore
	calls int
}

func (s *countingStore) UpdateEntitlement(
	ctx context.Context, key subsync.LookupKey, match subsync.MatchMode, fields subsync.EntitlementFields,
) (int64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.inner.UpdateEntitlement(ctx, key, match, fields)
}

func (s *countingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testEnv struct {
	provider  *Provider
	users     *memory.Storage
	store     *countingStore
	lineItems *fakeLineItems
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	users := memory.New()
	store := &countingStore{inner: users}
	lineItems := &fakeLineItems{priceID: "price_gold"}

	resolver, err := subsync.NewResolver(subsync.ResolverConfig{
		Catalog: subsync.MustCatalog(map[string]subsync.PlanDescriptor{
			"price_gold":    {Name: "gold", Credits: 3000},
			"price_diamond": {Name: "diamond", Credits: 100000},
			"price_elite":   {Name: "elite", Credits: 500000},
		}),
	})
	require.NoError(t, err)

	applier, err := subsync.NewApplier(subsync.ApplierConfig{Store: store})
	require.NoError(t, err)

	cfg := Config{
		Config: billing.Config{
			Resolver:      resolver,
			Applier:       applier,
			WebhookSecret: testSecret,
		},
		LineItems: lineItems,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	provider, err := NewProvider(cfg)
	require.NoError(t, err)

	return &testEnv{provider: provider, users: users, store: store, lineItems: lineItems}
}

func eventJSON(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     1735689600,
		"api_version": "2020-08-27",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return b
}

func sign(payload []byte, secret string, ts time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
		Scheme:    "v1",
	})
	return signed.Header
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(SignatureHeader, sign(payload, testSecret, time.Now()))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func checkoutObject(email, customerID string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":     "cs_test_1",
		"object": "checkout.session",
	}
	if customerID != "" {
		obj["customer"] = customerID
	}
	if email != "" {
		obj["customer_details"] = map[string]interface{}{"email": email}
	}
	return obj
}

func subscriptionObject(customerID, status, priceID string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":     "sub_test_1",
		"object": "subscription",
		"status": status,
	}
	if customerID != "" {
		obj["customer"] = customerID
	}
	if priceID != "" {
		obj["items"] = map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				map[string]interface{}{"id": "si_1", "object": "subscription_item", "price": map[string]interface{}{"id": priceID, "object": "price"}},
			},
		}
	}
	return obj
}
