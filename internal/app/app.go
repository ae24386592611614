// Package app wires configuration into a ready Stripe webhook provider.
// Both the HTTP server and the Lambda entry point build through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/subsync/internal/config"
	"github.com/mihaimyh/subsync/pkg/billing"
	billingprom "github.com/mihaimyh/subsync/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/subsync/pkg/billing/stripe"
	"github.com/mihaimyh/subsync/pkg/subsync"
	"github.com/mihaimyh/subsync/pkg/subsync/breaker/gobreaker"
	zerologadapter "github.com/mihaimyh/subsync/pkg/subsync/logger/zerolog"
	subsyncprom "github.com/mihaimyh/subsync/pkg/subsync/metrics/prometheus"
	firestorestore "github.com/mihaimyh/subsync/storage/firestore"
	gormstore "github.com/mihaimyh/subsync/storage/gorm"
	"github.com/mihaimyh/subsync/storage/memory"
	"github.com/mihaimyh/subsync/storage/postgres"
	redisguard "github.com/mihaimyh/subsync/storage/redis"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "subsync"

// Options holds the dependencies New does not build itself
type Options struct {
	// Config is the loaded process configuration (required)
	Config *config.Config

	// Logger is the process logger
	Logger zerolog.Logger

	// Registerer receives Prometheus collectors. Nil disables metrics.
	Registerer prometheus.Registerer

	// Store overrides the configured store backend (tests)
	Store subsync.UserStore

	// LineItems overrides the Stripe API line-item lookup (tests)
	LineItems stripe.LineItemLookup
}

// App is the assembled webhook receiver
type App struct {
	Provider *stripe.Provider
	Resolver *subsync.Resolver
	Store    subsync.UserStore

	logger  zerolog.Logger
	pingers []func(context.Context) error
	closers []func() error
}

// NewLogger builds the process logger: console output in development, JSON otherwise
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "subsync").Logger()
}

// New builds the provider and its collaborators from opts
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	a := &App{logger: opts.Logger}
	logger := zerologadapter.NewLogger(opts.Logger)

	var subsyncMetrics subsync.Metrics = &subsync.NoopMetrics{}
	var billingMetrics billing.Metrics = &billing.NoopMetrics{}
	if opts.Registerer != nil {
		subsyncMetrics = subsyncprom.NewMetrics(opts.Registerer, MetricsNamespace)
		billingMetrics = billingprom.NewMetrics(opts.Registerer, MetricsNamespace)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	resolver, err := subsync.NewResolver(subsync.ResolverConfig{
		Catalog:         catalog,
		CustomerIDMatch: cfg.MatchMode(),
	})
	if err != nil {
		return nil, err
	}
	a.Resolver = resolver

	store := opts.Store
	if store == nil {
		store, err = a.openStore(ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	storeBreaker := a.newBreaker(cfg, "user-store", subsyncMetrics)
	a.Store = subsync.NewCircuitBreakerStore(store, storeBreaker)

	applier, err := subsync.NewApplier(subsync.ApplierConfig{
		Store:   a.Store,
		Logger:  logger,
		Metrics: subsyncMetrics,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	guard, err := a.openGuard(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	provider, err := stripe.NewProvider(stripe.Config{
		Config: billing.Config{
			Resolver:       resolver,
			Applier:        applier,
			WebhookSecret:  cfg.Stripe.WebhookSecret.Value(),
			APIKey:         cfg.Stripe.SecretKey.Value(),
			HTTPClient:     &http.Client{Timeout: cfg.Stripe.APITimeout},
			Guard:          guard,
			RateLimit:      cfg.Server.RateLimit,
			TrustedProxies: cfg.Server.TrustedProxies,
			Logger:         logger,
			Metrics:        billingMetrics,
		},
		LineItems:        opts.LineItems,
		LineItemsBreaker: a.newBreaker(cfg, "stripe-api", subsyncMetrics),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Provider = provider

	opts.Logger.Info().
		Str("store", cfg.Store.Backend).
		Int("plans", catalog.Len()).
		Str("customer_id_match", cfg.CustomerIDMatch).
		Bool("shared_guard", cfg.RedisURL != "").
		Msg("webhook receiver ready")

	return a, nil
}

// Ping checks every backend the app holds a connection to
func (a *App) Ping(ctx context.Context) error {
	for _, ping := range a.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backend connections
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newBreaker(cfg *config.Config, name string, metrics subsync.Metrics) *gobreaker.Breaker {
	return gobreaker.New(gobreaker.Config{
		Name:             name,
		FailureThreshold: cfg.Store.BreakerFailures,
		ResetTimeout:     cfg.Store.BreakerTimeout,
		OnStateChange: func(state subsync.CircuitBreakerState) {
			metrics.RecordCircuitBreakerStateChange(string(state))
			a.logger.Warn().Str("breaker", name).Str("state", string(state)).Msg("circuit breaker state changed")
		},
	})
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (subsync.UserStore, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.Store.DatabaseURL.Value()
		pgConfig.Table = cfg.Store.Table
		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		a.pingers = append(a.pingers, store.Ping)
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		return store, nil

	case config.StoreGorm:
		db, err := gormstore.Open(cfg.Store.GormDriver, cfg.Store.DatabaseURL.Value())
		if err != nil {
			return nil, fmt.Errorf("gorm store: %w", err)
		}
		store, err := gormstore.New(db, cfg.Store.Table)
		if err != nil {
			return nil, err
		}
		a.pingers = append(a.pingers, store.Ping)
		a.closers = append(a.closers, store.Close)
		return store, nil

	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := firestorestore.New(client, firestorestore.Config{UsersCollection: cfg.Store.Table})
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StoreMemory:
		a.logger.Warn().Msg("using in-memory user store; entitlements are lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func (a *App) openGuard(cfg *config.Config) (billing.EventGuard, error) {
	if cfg.RedisURL == "" {
		return memory.NewEventGuard(memory.DefaultGuardTTL), nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL.Value())
	if err != nil {
		// The URL may carry a password
		return nil, errors.New("invalid REDIS_URL")
	}
	client := redis.NewClient(redisOpts)
	guard, err := redisguard.New(client, redisguard.DefaultConfig())
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	a.pingers = append(a.pingers, guard.Ping)
	a.closers = append(a.closers, guard.Close)
	return guard, nil
}
