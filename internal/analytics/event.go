// Package analytics reports storefront funnel events (add to cart, checkout
// start, purchase) to an external sink without ever blocking or failing the
// caller's operation.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventName identifies a funnel event.
type EventName string

const (
	EventAddToCart        EventName = "add_to_cart"
	EventRemoveFromCart   EventName = "remove_from_cart"
	EventUpdateCart       EventName = "update_cart"
	EventInitiateCheckout EventName = "initiate_checkout"
	EventPurchase         EventName = "purchase"
)

// String implements fmt.Stringer.
func (e EventName) String() string {
	return string(e)
}

// Item is one product line attached to an event.
type Item struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// Event is the payload handed to sinks.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Name       EventName       `json:"name"`
	ProfileID  string          `json:"profile_id,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	Value      decimal.Decimal `json:"value"`
	Quantity   int             `json:"quantity"`
	Items      []Item          `json:"items,omitempty"`
	TrackingID string          `json:"tracking_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Tracker accepts events fire-and-forget. Implementations must not block on
// delivery and never surface sink failures to the caller.
type Tracker interface {
	Track(ctx context.Context, event Event)
}

// Sink delivers a single event to a destination.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Track(context.Context, Event) {}

func (Nop) Send(context.Context, Event) error { return nil }
