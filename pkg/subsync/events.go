package subsync

// EventType is the billing-provider event type string
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
)

// Event is a normalized billing event. The set of implementations is closed:
// CheckoutCompleted, SubscriptionDeleted and SubscriptionUpdated.
type Event interface {
	Type() EventType
	isEvent()
}

// CheckoutCompleted is emitted when a customer finishes a checkout session.
// CustomerEmail is always set; PriceID is empty when no line item price was found.
type CheckoutCompleted struct {
	SessionID     string
	CustomerID    string
	CustomerEmail string
	PriceID       string
}

// SubscriptionDeleted is emitted when a subscription ends
type SubscriptionDeleted struct {
	CustomerID string
}

// SubscriptionUpdated is emitted on any subscription change
type SubscriptionUpdated struct {
	CustomerID string
	PriceID    string
	IsActive   bool
}

func (CheckoutCompleted) Type() EventType   { return EventCheckoutCompleted }
func (SubscriptionDeleted) Type() EventType { return EventSubscriptionDeleted }
func (SubscriptionUpdated) Type() EventType { return EventSubscriptionUpdated }

func (CheckoutCompleted) isEvent()   {}
func (SubscriptionDeleted) isEvent() {}
func (SubscriptionUpdated) isEvent() {}

// IsRecognized reports whether t is one of the event types this package reconciles
func IsRecognized(t EventType) bool {
	switch t {
	case EventCheckoutCompleted, EventSubscriptionDeleted, EventSubscriptionUpdated:
		return true
	default:
		return false
	}
}
