package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/subsync/internal/app"
	"github.com/mihaimyh/subsync/internal/config"
)

type noLineItems struct{}

func (noLineItems) FirstPriceID(context.Context, string) (string, error) { return "", nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWithLogger(t, zerolog.Nop())
}

func newTestRouterWithLogger(t *testing.T, logger zerolog.Logger) http.Handler {
	t.Helper()
	cfg := &config.Config{Environment: "test", LogLevel: "info", Plans: testPlans, CustomerIDMatch: "exact"}
	cfg.Stripe.WebhookSecret = "whsec_serve"
	cfg.Stripe.SecretKey = "sk_test"
	cfg.Stripe.APITimeout = time.Second
	cfg.Server.WebhookPath = "/webhooks/stripe"
	cfg.Store.Backend = config.StoreMemory
	cfg.Store.Table = "users"
	cfg.Store.BreakerFailures = 5
	cfg.Store.BreakerTimeout = time.Second

	reg := prometheus.NewRegistry()
	a, err := app.New(context.Background(), app.Options{
		Config: cfg, Logger: zerolog.Nop(), Registerer: reg, LineItems: noLineItems{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return newRouter(cfg, a, reg, logger)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"good"}`, rec.Body.String())
}

func TestRouter_WebhookRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/webhooks/stripe", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t)

	// One rejected delivery so the billing counters exist
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subsync_billing_webhook_errors_total")
}

func TestRouter_RecoversPanicWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	router, ok := newTestRouterWithLogger(t, zerolog.New(&buf)).(chi.Router)
	require.True(t, ok)
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"status":500`)
}
