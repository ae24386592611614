package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/subsync/pkg/billing"
	"github.com/mihaimyh/subsync/pkg/billing/internal"
	"github.com/mihaimyh/subsync/pkg/subsync"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 600
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Resolver, Applier, WebhookSecret, etc.)

	// LineItems overrides the checkout line-item lookup.
	// If nil, one is built from APIKey with the Stripe client.
	LineItems LineItemLookup

	// LineItemsBreaker optionally guards the default line-item lookup
	LineItemsBreaker subsync.CircuitBreaker
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	resolver      *subsync.Resolver
	applier       *subsync.Applier
	normalizer    *Normalizer
	guard         billing.EventGuard
	callback      func(context.Context, billing.WebhookEvent) error
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	logger        subsync.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Resolver == nil || config.Applier == nil {
		return nil, fmt.Errorf("%w: resolver and applier are required", billing.ErrProviderNotConfigured)
	}

	// Environment values may carry trailing whitespace or \r
	webhookSecret := strings.TrimSpace(config.WebhookSecret)
	if webhookSecret == "" {
		return nil, fmt.Errorf("%w: %w", billing.ErrProviderNotConfigured, subsync.ErrMissingSecret)
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &subsync.NoopLogger{}
	}

	lineItems := config.LineItems
	if lineItems == nil {
		apiKey := strings.TrimSpace(config.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: API key is required for line-item lookups", billing.ErrProviderNotConfigured)
		}
		httpClient := config.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: defaultHTTPTimeout}
		}
		backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{HTTPClient: httpClient})
		client := stripe.NewClient(apiKey, stripe.WithBackends(backends))
		lineItems = NewAPILineItems(client, config.LineItemsBreaker, metrics)
	}

	trusted, err := internal.ParseTrustedProxies(config.TrustedProxies)
	if err != nil {
		return nil, err
	}

	var limiter *internal.RateLimiter
	limit := config.RateLimit
	if limit < 0 {
		limit = defaultRateLimitRequests
	}
	if limit > 0 {
		window := config.RateLimitWindow
		if window <= 0 {
			window = defaultRateLimitWindow
		}
		limiter = internal.NewRateLimiter(limit, window, trusted)
	}

	return &Provider{
		resolver:      config.Resolver,
		applier:       config.Applier,
		normalizer:    NewNormalizer(lineItems),
		guard:         config.Guard,
		callback:      config.WebhookCallback,
		rateLimiter:   limiter,
		webhookSecret: webhookSecret,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}
