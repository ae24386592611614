package subsync

import "context"

// UserStore applies entitlement fields to existing user records.
// Implementations must apply the whole field set as one atomic update and
// report how many records matched. Zero matches is not an error at this layer.
type UserStore interface {
	// UpdateEntitlement overwrites the entitlement fields of every record whose
	// key field equals key.Value under match, returning the number of records matched
	UpdateEntitlement(ctx context.Context, key LookupKey, match MatchMode, fields EntitlementFields) (int64, error)
}

// UserStoreFunc adapts a function to the UserStore interface
type UserStoreFunc func(ctx context.Context, key LookupKey, match MatchMode, fields EntitlementFields) (int64, error)

// UpdateEntitlement implements UserStore
func (f UserStoreFunc) UpdateEntitlement(
	ctx context.Context, key LookupKey, match MatchMode, fields EntitlementFields,
) (int64, error) {
	return f(ctx, key, match, fields)
}
