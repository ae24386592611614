// Package memory provides an in-memory implementation of the subsync.UserStore interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// ErrDuplicateEmail is returned by Insert when the email is already taken (case-insensitive)
var ErrDuplicateEmail = errors.New("email already exists")

// Storage implements subsync.UserStore using an in-memory map
type Storage struct {
	mu    sync.RWMutex
	users map[string]*subsync.UserRecord
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		users: make(map[string]*subsync.UserRecord),
	}
}

// Insert provisions a user record. An empty ID is replaced with a random UUID.
// Provisioning is outside reconciliation; this exists for tests and local development.
func (s *Storage) Insert(rec subsync.UserRecord) (subsync.UserRecord, error) {
	if strings.TrimSpace(rec.Email) == "" {
		return subsync.UserRecord{}, fmt.Errorf("email is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubscriptionStatus == "" {
		rec.SubscriptionStatus = subsync.StatusInactive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[rec.ID]; exists {
		return subsync.UserRecord{}, fmt.Errorf("user %s already exists", rec.ID)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, rec.Email) {
			return subsync.UserRecord{}, ErrDuplicateEmail
		}
	}

	// Store a copy to prevent external mutations
	recCopy := rec
	s.users[rec.ID] = &recCopy
	return rec, nil
}

// Get returns a copy of the user with the given id
func (s *Storage) Get(id string) (subsync.UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return subsync.UserRecord{}, false
	}
	return *u, true
}

// Users returns copies of all records ordered by id
func (s *Storage) Users() []subsync.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]subsync.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateEntitlement implements subsync.UserStore.
// All matching records are updated under a single lock.
func (s *Storage) UpdateEntitlement(
	ctx context.Context, key subsync.LookupKey, match subsync.MatchMode, fields subsync.EntitlementFields,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, u := range s.users {
		if matches(u, key, match) {
			fields.ApplyTo(u)
			affected++
		}
	}
	return affected, nil
}

func matches(u *subsync.UserRecord, key subsync.LookupKey, match subsync.MatchMode) bool {
	var stored string
	switch key.Kind {
	case subsync.LookupEmail:
		stored = u.Email
	case subsync.LookupCustomerID:
		stored = u.StripeCustomerID
	default:
		return false
	}
	if stored == "" {
		return false
	}
	if match == subsync.MatchCaseInsensitive {
		return strings.EqualFold(stored, key.Value)
	}
	return stored == key.Value
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*subsync.UserRecord)
}
