// Package config loads the subsync process configuration from the environment.
//
// Values are resolved in priority order: OS environment, then an optional
// .env file. Missing required values fail at startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// DefaultPlans is the production price catalog
const DefaultPlans = "price_1QdFN7IvZBeqKnwP0Hs7sIoI=gold:3000," +
	"price_1QdZAbIvZBeqKnwPP6Fv2zK1=diamond:100000," +
	"price_1QdZAeIvZBeqKnwP9vmmaAkW=elite:500000"

// Store backends
const (
	StorePostgres  = "postgres"
	StoreGorm      = "gorm"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

const redacted = "[REDACTED]"

// SecretString is a string that never prints its value
type SecretString string

// String implements fmt.Stringer
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer so %#v is redacted too
func (s SecretString) GoString() string {
	return s.String()
}

// Value returns the secret itself
func (s SecretString) Value() string {
	return string(s)
}

// Config is the process configuration
type Config struct {
	Environment string `envconfig:"SUBSYNC_ENV" default:"production" validate:"oneof=development production test"`
	LogLevel    string `envconfig:"SUBSYNC_LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`

	Stripe StripeConfig
	Server ServerConfig
	Store  StoreConfig

	// Plans is the price catalog in price_id=name:credits form
	Plans string `envconfig:"SUBSYNC_PLANS" default:"price_1QdFN7IvZBeqKnwP0Hs7sIoI=gold:3000,price_1QdZAbIvZBeqKnwPP6Fv2zK1=diamond:100000,price_1QdZAeIvZBeqKnwP9vmmaAkW=elite:500000"`

	// CustomerIDMatch applies to subscription updates; deletions always match exactly
	CustomerIDMatch string `envconfig:"SUBSYNC_CUSTOMER_ID_MATCH" default:"exact" validate:"oneof=exact case_insensitive"`

	// RedisURL enables the shared replay guard
	RedisURL SecretString `envconfig:"REDIS_URL"`
}

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	WebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	SecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	APITimeout    time.Duration `envconfig:"STRIPE_API_TIMEOUT" default:"10s"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `envconfig:"SUBSYNC_HTTP_ADDR" default:":8080"`
	WebhookPath     string        `envconfig:"SUBSYNC_WEBHOOK_PATH" default:"/webhooks/stripe" validate:"startswith=/"`
	RateLimit       int           `envconfig:"SUBSYNC_RATE_LIMIT" default:"600" validate:"min=0"`
	TrustedProxies  []string      `envconfig:"SUBSYNC_TRUSTED_PROXIES" validate:"dive,cidr|ip"`
	ShutdownTimeout time.Duration `envconfig:"SUBSYNC_SHUTDOWN_TIMEOUT" default:"15s"`
}

// StoreConfig selects and configures the user store
type StoreConfig struct {
	Backend     string       `envconfig:"SUBSYNC_STORE" default:"postgres" validate:"oneof=postgres gorm firestore memory"`
	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres,required_if=Backend gorm"`
	GormDriver  string       `envconfig:"SUBSYNC_GORM_DRIVER" default:"postgres" validate:"oneof=postgres mysql sqlite"`
	Table       string       `envconfig:"SUBSYNC_USERS_TABLE" default:"users" validate:"required"`
	ProjectID   string       `envconfig:"FIRESTORE_PROJECT_ID" validate:"required_if=Backend firestore"`

	// Breaker settings apply to the store and to the Stripe API
	BreakerFailures uint32        `envconfig:"SUBSYNC_BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout  time.Duration `envconfig:"SUBSYNC_BREAKER_TIMEOUT" default:"30s"`
}

// Load reads the optional .env files, then the environment, and validates the result.
// With no files given, ./.env is tried.
func Load(envFiles ...string) (*Config, error) {
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	return FromEnv()
}

// LoadEnvFiles loads the named dotenv files without overriding variables
// that are already set. A missing ./.env is fine when no file is named; a
// named file that cannot be read is an error.
func LoadEnvFiles(envFiles ...string) error {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(envFiles...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// FromEnv builds the configuration from the current environment only
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}
	cfg.clean()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := cfg.Catalog(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStore reads only the store settings. Maintenance commands use it so
// they run without Stripe credentials.
func LoadStore(envFiles ...string) (*StoreConfig, error) {
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	var sc StoreConfig
	if err := envconfig.Process("", &sc); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}
	sc.DatabaseURL = SecretString(strings.TrimSpace(sc.DatabaseURL.Value()))

	if err := validator.New().Struct(sc); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &sc, nil
}

// clean trims whitespace and \r from secrets and normalizes the log level
func (c *Config) clean() {
	c.Stripe.WebhookSecret = SecretString(strings.TrimSpace(c.Stripe.WebhookSecret.Value()))
	c.Stripe.SecretKey = SecretString(strings.TrimSpace(c.Stripe.SecretKey.Value()))
	c.Store.DatabaseURL = SecretString(strings.TrimSpace(c.Store.DatabaseURL.Value()))
	c.RedisURL = SecretString(strings.TrimSpace(c.RedisURL.Value()))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Catalog parses Plans
func (c *Config) Catalog() (*subsync.Catalog, error) {
	return subsync.ParseCatalog(c.Plans)
}

// MatchMode returns CustomerIDMatch as a subsync.MatchMode
func (c *Config) MatchMode() subsync.MatchMode {
	return subsync.MatchMode(c.CustomerIDMatch)
}

// IsDevelopment reports whether console logging should be used
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// String renders the configuration with secrets redacted
func (c *Config) String() string {
	return fmt.Sprintf(
		"env=%s log_level=%s store=%s table=%s http_addr=%s webhook_path=%s rate_limit=%d customer_id_match=%s "+
			"stripe_webhook_secret=%s stripe_secret_key=%s database_url=%s redis_url=%s",
		c.Environment, c.LogLevel, c.Store.Backend, c.Store.Table, c.Server.Addr, c.Server.WebhookPath,
		c.Server.RateLimit, c.CustomerIDMatch,
		c.Stripe.WebhookSecret, c.Stripe.SecretKey, c.Store.DatabaseURL, c.RedisURL,
	)
}
