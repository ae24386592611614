// Package firestore provides a Firestore implementation of the subsync.UserStore interface.
//
// Firestore has no case-insensitive queries, so case-insensitive lookups use
// lowered copies of the lookup fields (emailLower, stripeCustomerIdLower).
// Applications that provision user documents must write those copies for
// case-insensitive matching to work. A document without them is only found
// when the event carries the value exactly as stored, so "Bob@Example.com"
// is missed by a checkout for "bob@example.com". The first update that does
// find such a document writes the missing copy.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// DefaultCollection is the users collection used when none is configured
const DefaultCollection = "users"

// Document fields
const (
	fieldEmail                 = "email"
	fieldEmailLower            = "emailLower"
	fieldStripeCustomerID      = "stripeCustomerId"
	fieldStripeCustomerIDLower = "stripeCustomerIdLower"
	fieldSubscriptionStatus    = "subscriptionStatus"
	fieldPlan                  = "plan"
	fieldCredits               = "credits"
	fieldSubscriptionUpdatedAt = "subscriptionUpdatedAt"
	fieldCreatedAt             = "createdAt"
)

// ErrUserNotFound is returned by Get for unknown ids
var ErrUserNotFound = errors.New("user not found")

// Storage implements subsync.UserStore using Google Cloud Firestore
type Storage struct {
	client          *firestore.Client
	usersCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// UsersCollection is the Firestore collection holding user documents
	// Default: "users"
	UsersCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.UsersCollection == "" {
		config.UsersCollection = DefaultCollection
	}

	return &Storage{
		client:          client,
		usersCollection: config.UsersCollection,
	}, nil
}

// UpdateEntitlement implements subsync.UserStore.
// The matching documents are read and updated in one transaction.
func (s *Storage) UpdateEntitlement(
	ctx context.Context, key subsync.LookupKey, match subsync.MatchMode, fields subsync.EntitlementFields,
) (int64, error) {
	lookups, err := queryLookups(key, match)
	if err != nil {
		return 0, err
	}

	updates := []firestore.Update{
		{Path: fieldSubscriptionStatus, Value: string(fields.SubscriptionStatus)},
		{Path: fieldPlan, Value: fields.Plan},
		{Path: fieldCredits, Value: fields.Credits},
		{Path: fieldSubscriptionUpdatedAt, Value: fields.SubscriptionUpdatedAt.UTC()},
	}
	if fields.StripeCustomerID != "" {
		updates = append(updates,
			firestore.Update{Path: fieldStripeCustomerID, Value: fields.StripeCustomerID},
			firestore.Update{Path: fieldStripeCustomerIDLower, Value: strings.ToLower(fields.StripeCustomerID)},
		)
	}
	users := s.client.Collection(s.usersCollection)

	var affected int64
	err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		affected = 0
		for _, l := range lookups {
			docs, err := tx.Documents(users.Where(l.field, "==", l.value)).GetAll()
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				continue
			}

			docUpdates := updates
			if l.backfill != "" && !hasPath(updates, l.backfill) {
				docUpdates = append(append([]firestore.Update{}, updates...),
					firestore.Update{Path: l.backfill, Value: strings.ToLower(l.value)})
			}
			for _, doc := range docs {
				if err := tx.Update(doc.Ref, docUpdates); err != nil {
					return err
				}
				affected++
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update entitlement: %w", err)
	}
	return affected, nil
}

// Insert provisions a user document (tests and local development).
// An empty ID is replaced with a random UUID.
func (s *Storage) Insert(ctx context.Context, rec subsync.UserRecord) (subsync.UserRecord, error) {
	if strings.TrimSpace(rec.Email) == "" {
		return subsync.UserRecord{}, fmt.Errorf("email is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubscriptionStatus == "" {
		rec.SubscriptionStatus = subsync.StatusInactive
	}
	if rec.Plan == "" {
		def := subsync.DefaultPlan()
		rec.Plan, rec.Credits = def.Name, def.Credits
	}

	data := map[string]interface{}{
		fieldEmail:              rec.Email,
		fieldEmailLower:         strings.ToLower(rec.Email),
		fieldSubscriptionStatus: string(rec.SubscriptionStatus),
		fieldPlan:               rec.Plan,
		fieldCredits:            rec.Credits,
		fieldCreatedAt:          time.Now().UTC(),
	}
	if rec.StripeCustomerID != "" {
		data[fieldStripeCustomerID] = rec.StripeCustomerID
		data[fieldStripeCustomerIDLower] = strings.ToLower(rec.StripeCustomerID)
	}
	if !rec.SubscriptionUpdatedAt.IsZero() {
		data[fieldSubscriptionUpdatedAt] = rec.SubscriptionUpdatedAt.UTC()
	}

	if _, err := s.client.Collection(s.usersCollection).Doc(rec.ID).Create(ctx, data); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return subsync.UserRecord{}, fmt.Errorf("user %s already exists", rec.ID)
		}
		return subsync.UserRecord{}, fmt.Errorf("failed to create user: %w", err)
	}
	return rec, nil
}

// Get loads a user document by id
func (s *Storage) Get(ctx context.Context, id string) (subsync.UserRecord, error) {
	snap, err := s.client.Collection(s.usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return subsync.UserRecord{}, ErrUserNotFound
		}
		return subsync.UserRecord{}, fmt.Errorf("failed to get user: %w", err)
	}
	if !snap.Exists() {
		return subsync.UserRecord{}, ErrUserNotFound
	}

	data := snap.Data()
	return subsync.UserRecord{
		ID:                    id,
		Email:                 getString(data, fieldEmail),
		StripeCustomerID:      getString(data, fieldStripeCustomerID),
		SubscriptionStatus:    subsync.SubscriptionStatus(getString(data, fieldSubscriptionStatus)),
		Plan:                  getString(data, fieldPlan),
		Credits:               getInt(data, fieldCredits),
		SubscriptionUpdatedAt: getTime(data, fieldSubscriptionUpdatedAt),
	}, nil
}

// lookup is one equality query tried by UpdateEntitlement
type lookup struct {
	field string
	value string

	// backfill is the lowered field written on documents matched by this lookup
	backfill string
}

// queryLookups returns the queries for key in order; the first that matches wins.
// A case-insensitive lookup falls back to the exact stored value for
// documents written without the lowered copy.
func queryLookups(key subsync.LookupKey, match subsync.MatchMode) ([]lookup, error) {
	var exact, lowered string
	switch key.Kind {
	case subsync.LookupEmail:
		exact, lowered = fieldEmail, fieldEmailLower
	case subsync.LookupCustomerID:
		exact, lowered = fieldStripeCustomerID, fieldStripeCustomerIDLower
	default:
		return nil, fmt.Errorf("unsupported lookup kind %q", key.Kind)
	}

	switch match {
	case subsync.MatchExact:
		return []lookup{{field: exact, value: key.Value}}, nil
	case subsync.MatchCaseInsensitive:
		return []lookup{
			{field: lowered, value: strings.ToLower(key.Value)},
			{field: exact, value: key.Value, backfill: lowered},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported match mode %q", match)
	}
}

func hasPath(updates []firestore.Update, path string) bool {
	for _, u := range updates {
		if u.Path == path {
			return true
		}
	}
	return false
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v.UTC()
	}
	return time.Time{}
}
