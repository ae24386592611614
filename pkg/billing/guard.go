package billing

import "context"

// EventState is where an event id stands in an EventGuard
type EventState int

const (
	// EventClaimed means the caller now holds the claim and must Complete or Release it
	EventClaimed EventState = iota
	// EventInProgress means another attempt holds the claim
	EventInProgress
	// EventDone means the event was applied successfully
	EventDone
)

// String returns the state name used in logs and metrics
func (s EventState) String() string {
	switch s {
	case EventClaimed:
		return "claimed"
	case EventInProgress:
		return "in_progress"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// EventGuard remembers which provider events have been applied.
// A claim is short-lived; only Complete makes later deliveries duplicates.
// Implementations: storage/redis (shared) and storage/memory (single instance).
type EventGuard interface {
	// Claim atomically marks eventID as in progress unless it is already
	// claimed or done, and reports the state it found. When the state is
	// EventClaimed the token identifies this attempt's claim.
	Claim(ctx context.Context, eventID string) (state EventState, token string, err error)

	// Complete records eventID as applied
	Complete(ctx context.Context, eventID string) error

	// Release drops the claim identified by token so a redelivery is
	// processed again. A claim that expired and was taken by another attempt
	// is left alone.
	Release(ctx context.Context, eventID, token string) error
}
