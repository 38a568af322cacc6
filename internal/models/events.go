package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypeNegotiationOffered   = "NEGOTIATION_OFFERED"
	EventTypeNegotiationResponded = "NEGOTIATION_RESPONDED"
	EventTypeProducePriceChanged  = "PRODUCE_PRICE_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type; promoted to every event embedding BaseEvent.
func (e BaseEvent) Type() string { return e.EventType }

// OrderCreatedEvent published when a vendor opens an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	ProduceID   int64           `json:"produce_id"`
	VendorID    int64           `json:"vendor_id"`
	FarmerID    int64           `json:"farmer_id"`
	Quantity    int             `json:"quantity"`
	PricePerKg  decimal.Decimal `json:"price_per_kg"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderStatusChangedEvent published after any committed status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID          int64               `json:"order_id"`
	ProduceID        int64               `json:"produce_id"`
	From             OrderStatus         `json:"from"`
	To               OrderStatus         `json:"to"`
	PricePerKg       decimal.Decimal     `json:"price_per_kg"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	CommissionAmount decimal.NullDecimal `json:"commission_amount"`
	ActorID          int64               `json:"actor_id"`
}

// NegotiationOfferedEvent published when an offer is appended to a ledger
type NegotiationOfferedEvent struct {
	BaseEvent
	NegotiationID int64           `json:"negotiation_id"`
	OrderID       int64           `json:"order_id"`
	Round         int             `json:"round"`
	ProposedBy    Role            `json:"proposed_by"`
	OfferedPrice  decimal.Decimal `json:"offered_price"`
}

// NegotiationRespondedEvent published when the counterpart answers an offer
type NegotiationRespondedEvent struct {
	BaseEvent
	NegotiationID int64             `json:"negotiation_id"`
	OrderID       int64             `json:"order_id"`
	Status        NegotiationStatus `json:"status"`
	ActorID       int64             `json:"actor_id"`
}

// ProducePriceChangedEvent published when a listing's price moves
type ProducePriceChangedEvent struct {
	BaseEvent
	ProduceID int64           `json:"produce_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	// OrderID is set when the change came from an accepted negotiation.
	OrderID int64 `json:"order_id,omitempty"`
}
