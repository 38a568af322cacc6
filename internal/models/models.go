package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching what clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// Role is the side of the marketplace a user acts for
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleVendor Role = "vendor"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleVendor
}

// Counterpart returns the other side of a negotiation
func (r Role) Counterpart() Role {
	if r == RoleVendor {
		return RoleFarmer
	}
	return RoleVendor
}

// Actor is the authenticated caller of an operation
type Actor struct {
	ID   int64
	Role Role
}

// Produce represents a farmer's listing
type Produce struct {
	ID                int64           `db:"id" json:"id"`
	FarmerID          int64           `db:"farmer_id" json:"farmerId"`
	Name              string          `db:"name" json:"name"`
	Category          string          `db:"category" json:"category"`
	Description       string          `db:"description" json:"description"`
	PricePerKg        decimal.Decimal `db:"price_per_kg" json:"pricePerKg"`
	MinOrderQuantity  int             `db:"min_order_quantity" json:"minOrderQuantity"`
	AvailableQuantity int             `db:"available_quantity" json:"availableQuantity"`
	TotalQuantity     int             `db:"total_quantity" json:"totalQuantity"`
	IsActive          bool            `db:"is_active" json:"isActive"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// PriceHistory records a price a listing held from RecordedAt onwards
type PriceHistory struct {
	ID         int64           `db:"id" json:"id"`
	ProduceID  int64           `db:"produce_id" json:"produceId"`
	Price      decimal.Decimal `db:"price" json:"price"`
	RecordedAt time.Time       `db:"recorded_at" json:"recordedAt"`
}

// Order is a vendor's request for a quantity of one listing
type Order struct {
	ID               int64               `db:"id" json:"id"`
	ProduceID        int64               `db:"produce_id" json:"produceId"`
	VendorID         int64               `db:"vendor_id" json:"vendorId"`
	FarmerID         int64               `db:"farmer_id" json:"farmerId"`
	Quantity         int                 `db:"quantity" json:"quantity"`
	PricePerKg       decimal.Decimal     `db:"price_per_kg" json:"pricePerKg"`
	TotalAmount      decimal.Decimal     `db:"total_amount" json:"totalAmount"`
	Status           OrderStatus         `db:"status" json:"status"`
	CommissionAmount decimal.NullDecimal `db:"commission_amount" json:"commissionAmount"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updatedAt"`
}

// PartyRole returns the role actor plays on this order, if any.
func (o *Order) PartyRole(actor Actor) (Role, bool) {
	switch {
	case actor.Role == RoleVendor && actor.ID == o.VendorID:
		return RoleVendor, true
	case actor.Role == RoleFarmer && actor.ID == o.FarmerID:
		return RoleFarmer, true
	}
	return "", false
}

// Reprice sets the unit price and recomputes the total.
func (o *Order) Reprice(pricePerKg decimal.Decimal) {
	o.PricePerKg = pricePerKg
	o.TotalAmount = pricePerKg.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// Negotiation is one offer in an order's ledger
type Negotiation struct {
	ID           int64             `db:"id" json:"id"`
	OrderID      int64             `db:"order_id" json:"orderId"`
	Round        int               `db:"round" json:"round"`
	VendorID     int64             `db:"vendor_id" json:"vendorId"`
	FarmerID     int64             `db:"farmer_id" json:"farmerId"`
	ProposedBy   Role              `db:"proposed_by" json:"proposedBy"`
	OfferedPrice decimal.Decimal   `db:"offered_price" json:"offeredPrice"`
	Message      string            `db:"message" json:"message"`
	Status       NegotiationStatus `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
	RespondedAt  *time.Time        `db:"responded_at" json:"respondedAt,omitempty"`
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusNegotiation OrderStatus = "negotiation"
	OrderStatusAccepted    OrderStatus = "accepted"
	OrderStatusRejected    OrderStatus = "rejected"
	OrderStatusCompleted   OrderStatus = "completed"
	OrderStatusCancelled   OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNegotiation, OrderStatusAccepted, OrderStatusRejected,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// NegotiationStatus is the state of a single offer
type NegotiationStatus string

// Negotiation statuses
const (
	NegotiationStatusPending   NegotiationStatus = "pending"
	NegotiationStatusAccepted  NegotiationStatus = "accepted"
	NegotiationStatusRejected  NegotiationStatus = "rejected"
	NegotiationStatusCountered NegotiationStatus = "countered"
)

func (s NegotiationStatus) Valid() bool {
	switch s {
	case NegotiationStatusPending, NegotiationStatusAccepted,
		NegotiationStatusRejected, NegotiationStatusCountered:
		return true
	}
	return false
}
