package store

import (
	"context"
	"errors"

	"marketplace-service/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ProduceFilter narrows ListProduce; zero values match everything
type ProduceFilter struct {
	FarmerID   int64
	ActiveOnly bool
}

// OrderFilter narrows ListOrders; zero values match everything
type OrderFilter struct {
	VendorID int64
	FarmerID int64
}

// Querier is the set of reads and writes available both outside and inside
// a transaction.
type Querier interface {
	GetProduce(ctx context.Context, id int64) (*models.Produce, error)
	GetProduceForUpdate(ctx context.Context, id int64) (*models.Produce, error)
	ListProduce(ctx context.Context, filter ProduceFilter) ([]models.Produce, error)
	CreateProduce(ctx context.Context, produce *models.Produce) error
	UpdateProduce(ctx context.Context, produce *models.Produce) error

	CreatePriceHistory(ctx context.Context, entry *models.PriceHistory) error
	ListPriceHistory(ctx context.Context, produceID int64) ([]models.PriceHistory, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	// GetOrderForUpdate reads an order and holds it against concurrent
	// writers until the surrounding transaction ends.
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error

	CreateNegotiation(ctx context.Context, negotiation *models.Negotiation) error
	GetNegotiation(ctx context.Context, id int64) (*models.Negotiation, error)
	// ListNegotiations returns an order's ledger in round order.
	ListNegotiations(ctx context.Context, orderID int64) ([]models.Negotiation, error)
	UpdateNegotiation(ctx context.Context, negotiation *models.Negotiation) error
}

// Repository is the persistence boundary of the marketplace. Store (Postgres)
// and MemoryStore both implement it.
type Repository interface {
	Querier

	// WithTx runs fn in a transaction. Writes made through the Querier passed
	// to fn are committed together when fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(q Querier) error) error

	Ping(ctx context.Context) error
	Close() error
}
