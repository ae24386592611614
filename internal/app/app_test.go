package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subsync/internal/config"
	"github.com/mihaimyh/subsync/pkg/subsync"
	"github.com/mihaimyh/subsync/storage/memory"
)

const testSecret = "whsec_app_test"

type staticLineItems string

func (s staticLineItems) FirstPriceID(_ context.Context, _ string) (string, error) {
	return string(s), nil
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Environment:     "test",
		LogLevel:        "debug",
		Plans:           "price_gold=gold:3000",
		CustomerIDMatch: "exact",
	}
	cfg.Stripe.WebhookSecret = testSecret
	cfg.Stripe.SecretKey = "sk_test_unused"
	cfg.Stripe.APITimeout = time.Second
	cfg.Server.RateLimit = 0
	cfg.Store.Backend = config.StoreMemory
	cfg.Store.Table = "users"
	cfg.Store.BreakerFailures = 3
	cfg.Store.BreakerTimeout = time.Second
	return cfg
}

func TestNew_ProcessesSignedCheckout(t *testing.T) {
	store := memory.New()
	user, err := store.Insert(subsync.UserRecord{Email: "alice@example.com"})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), Options{
		Config:     testConfig(),
		Logger:     zerolog.Nop(),
		Registerer: reg,
		Store:      store,
		LineItems:  staticLineItems("price_gold"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	body, err := json.Marshal(map[string]interface{}{
		"id":      "evt_app_1",
		"object":  "event",
		"type":    "checkout.session.completed",
		"created": 1735689600,
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":               "cs_1",
			"object":           "checkout.session",
			"customer":         "cus_1",
			"customer_details": map[string]interface{}{"email": "Alice@Example.com"},
		}},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: body, Secret: testSecret, Timestamp: time.Now(), Scheme: "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	a.Provider.WebhookHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, ok := store.Get(user.ID)
	require.True(t, ok)
	assert.Equal(t, "gold", got.Plan)
	assert.Equal(t, 3000, got.Credits)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
	assert.Equal(t, subsync.StatusActive, got.SubscriptionStatus)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["subsync_billing_webhook_events_total"])
	assert.True(t, names["subsync_entitlement_updates_total"])

	// Redelivery is short-circuited by the in-process guard
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signed.Header)
	a.Provider.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), Options{
		Config:    testConfig(),
		Logger:    zerolog.Nop(),
		LineItems: staticLineItems(""),
	})
	require.NoError(t, err)
	assert.NoError(t, a.Ping(context.Background()))
	assert.NoError(t, a.Close())
	assert.Equal(t, "stripe", a.Provider.Name())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Options{Logger: zerolog.Nop()})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Plans = "broken"
	_, err = New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), LineItems: staticLineItems("")})
	assert.ErrorIs(t, err, subsync.ErrInvalidCatalog)

	cfg = testConfig()
	cfg.RedisURL = "not-a-url://x"
	_, err = New(context.Background(), Options{Config: cfg, Logger: zerolog.Nop(), LineItems: staticLineItems("")})
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "not-a-url")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogLevel = "warn"

	logger := NewLogger(cfg, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Contains(t, buf.String(), `"service":"subsync"`)

	buf.Reset()
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	console := NewLogger(cfg, &buf)
	console.Info().Msg("console")
	assert.Contains(t, buf.String(), "console")
	assert.NotContains(t, buf.String(), `"message"`)
}
