// Package redis provides a Redis-backed webhook event guard.
// Claims and completions are shared across instances, so a delivery retried
// against another replica is still recognized.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/subsync/pkg/billing"
)

const (
	valueProcessing = "processing:"
	valueDone       = "done"
)

// releaseScript deletes a claim only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EventGuard implements billing.EventGuard.
// A claim is SET NX "processing:<token>" with ClaimTTL; Complete overwrites it with "done" and TTL.
type EventGuard struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis guard configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "subsync:event:")
	KeyPrefix string

	// TTL is how long an applied event id is remembered (default: 24h)
	TTL time.Duration

	// ClaimTTL bounds how long an unfinished attempt blocks redeliveries (default: 5m)
	ClaimTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "subsync:event:",
		TTL:       24 * time.Hour,
		ClaimTTL:  5 * time.Minute,
	}
}

// New creates a new Redis event guard.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*EventGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = defaults.ClaimTTL
	}

	return &EventGuard{client: client, config: config}, nil
}

// Claim implements billing.EventGuard
func (g *EventGuard) Claim(ctx context.Context, eventID string) (billing.EventState, string, error) {
	if eventID == "" {
		return billing.EventInProgress, "", fmt.Errorf("event id is required")
	}

	key := g.eventKey(eventID)
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, valueProcessing+token, g.config.ClaimTTL).Result()
	if err != nil {
		return billing.EventInProgress, "", fmt.Errorf("failed to claim event: %w", err)
	}
	if ok {
		return billing.EventClaimed, token, nil
	}

	val, err := g.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; the provider will redeliver
		return billing.EventInProgress, "", nil
	case err != nil:
		return billing.EventInProgress, "", fmt.Errorf("failed to read event state: %w", err)
	case val == valueDone:
		return billing.EventDone, "", nil
	default:
		return billing.EventInProgress, "", nil
	}
}

// Complete implements billing.EventGuard
func (g *EventGuard) Complete(ctx context.Context, eventID string) error {
	if err := g.client.Set(ctx, g.eventKey(eventID), valueDone, g.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to complete event: %w", err)
	}
	return nil
}

// Release forgets the claim on eventID so a provider retry is processed again
func (g *EventGuard) Release(ctx context.Context, eventID, token string) error {
	if token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, g.client, []string{g.eventKey(eventID)}, valueProcessing+token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release event: %w", err)
	}
	return nil
}

// Close closes the Redis client connection
func (g *EventGuard) Close() error {
	return g.client.Close()
}

// Ping checks the Redis connection
func (g *EventGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *EventGuard) eventKey(eventID string) string {
	return g.config.KeyPrefix + eventID
}
