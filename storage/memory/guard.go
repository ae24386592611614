package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/subsync/pkg/billing"
)

const (
	// DefaultGuardTTL is how long an applied event id is remembered
	DefaultGuardTTL = 24 * time.Hour

	// DefaultClaimTTL bounds how long an unfinished attempt blocks redeliveries
	DefaultClaimTTL = 5 * time.Minute
)

type guardEntry struct {
	done      bool
	token     string
	expiresAt time.Time
}

// EventGuard remembers webhook event ids in process memory.
// It implements billing.EventGuard for single-instance deployments and tests.
type EventGuard struct {
	mu       sync.Mutex
	entries  map[string]guardEntry
	ttl      time.Duration
	claimTTL time.Duration
	now      func() time.Time
}

// NewEventGuard creates a guard that forgets applied ids after ttl (DefaultGuardTTL if <= 0).
// Claims expire after DefaultClaimTTL.
func NewEventGuard(ttl time.Duration) *EventGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &EventGuard{
		entries:  make(map[string]guardEntry),
		ttl:      ttl,
		claimTTL: DefaultClaimTTL,
		now:      time.Now,
	}
}

// Claim implements billing.EventGuard
func (g *EventGuard) Claim(_ context.Context, eventID string) (billing.EventState, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.entries[eventID]; ok && now.Before(e.expiresAt) {
		if e.done {
			return billing.EventDone, "", nil
		}
		return billing.EventInProgress, "", nil
	}

	for id, e := range g.entries {
		if !now.Before(e.expiresAt) {
			delete(g.entries, id)
		}
	}
	token := uuid.NewString()
	g.entries[eventID] = guardEntry{token: token, expiresAt: now.Add(g.claimTTL)}
	return billing.EventClaimed, token, nil
}

// Complete implements billing.EventGuard
func (g *EventGuard) Complete(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[eventID] = guardEntry{done: true, expiresAt: g.now().Add(g.ttl)}
	return nil
}

// Release forgets the claim on eventID so a provider retry is processed again
func (g *EventGuard) Release(_ context.Context, eventID, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[eventID]; ok && !e.done && e.token == token {
		delete(g.entries, eventID)
	}
	return nil
}
