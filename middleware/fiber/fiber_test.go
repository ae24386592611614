package fiber

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/subsync/pkg/billing"
)

// fakeProvider records the last delivery and answers with a fixed result
type fakeProvider struct {
	result    billing.Result
	calls     int
	body      string
	signature string
}

func (p *fakeProvider) Name() string                 { return "fake" }
func (p *fakeProvider) WebhookHandler() http.Handler { return http.NotFoundHandler() }
func (p *fakeProvider) SignatureHeader() string      { return "Fake-Signature" }
func (p *fakeProvider) ResponseHeaders() map[string]string {
	return map[string]string{"Access-Control-Allow-Origin": "*", "Cache-Control": "no-store"}
}

func (p *fakeProvider) Process(_ context.Context, body []byte, signature string) billing.Result {
	p.calls++
	p.body = string(body)
	p.signature = signature
	return p.result
}

func setupApp(t *testing.T, provider *fakeProvider, cfg Config) *fiber.App {
	t.Helper()
	cfg.Provider = provider
	app := fiber.New()
	Register(app, "/webhooks/stripe", cfg)
	return app
}

func TestWebhookHandler_ForwardsDelivery(t *testing.T) {
	provider := &fakeProvider{result: billing.Result{StatusCode: http.StatusOK, Body: []byte(`{"received":true}`)}}
	app := setupApp(t, provider, Config{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Fake-Signature", "t=1,v1=abc")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"received":true}` {
		t.Errorf("Expected ack body, got %s", string(body))
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if provider.body != `{"id":"evt_1"}` || provider.signature != "t=1,v1=abc" {
		t.Errorf("provider got body=%q signature=%q", provider.body, provider.signature)
	}
}

func TestWebhookHandler_PassesFailureStatus(t *testing.T) {
	provider := &fakeProvider{result: billing.Result{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"x"}`)}}
	calls := 0
	app := setupApp(t, provider, Config{OnProcessed: func(_ *fiber.Ctx, _ billing.Result) { calls++ }})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`)))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("OnProcessed called %d times, want 1", calls)
	}
}

func TestWebhookHandler_Preflight(t *testing.T) {
	provider := &fakeProvider{}
	app := setupApp(t, provider, Config{})

	resp, err := app.Test(httptest.NewRequest(http.MethodOptions, "/webhooks/stripe", http.NoBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header on preflight")
	}
	if provider.calls != 0 {
		t.Error("preflight must not reach the provider")
	}
}

func TestWebhookHandler_BodyLimits(t *testing.T) {
	provider := &fakeProvider{}
	app := setupApp(t, provider, Config{MaxBodyBytes: 8})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("0123456789")))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/stripe", http.NoBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if provider.calls != 0 {
		t.Error("rejected bodies must not reach the provider")
	}
}
