package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Resolver maps normalized events to entitlement mutations (required)
	Resolver *subsync.Resolver

	// Applier writes mutations to the user store (required)
	Applier *subsync.Applier

	// WebhookSecret is the shared secret used to verify inbound webhook signatures
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider (line-item lookups).
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Guard de-duplicates redelivered events by provider event id.
	// If nil, every delivery is processed (application is idempotent either way).
	Guard EventGuard

	// RateLimit is the number of webhook requests allowed per client IP per
	// RateLimitWindow. Zero disables rate limiting; negative uses the default.
	RateLimit int

	// RateLimitWindow defaults to one minute
	RateLimitWindow time.Duration

	// TrustedProxies lists proxy addresses or CIDR ranges whose
	// X-Forwarded-For and X-Real-IP headers are used for rate limiting.
	// When empty, requests are keyed on the connecting peer address.
	TrustedProxies []string

	// WebhookCallback is invoked after an event has been applied to the user store.
	// A callback error fails the delivery so the provider retries it.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error

	// Logger is optional; defaults to subsync.NoopLogger
	Logger subsync.Logger

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics(reg, namespace) for Prometheus metrics.
	Metrics Metrics
}
