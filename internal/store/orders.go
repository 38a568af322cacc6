package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (produce_id, vendor_id, farmer_id, quantity, price_per_kg,
			total_amount, status, commission_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, order, query,
		order.ProduceID, order.VendorID, order.FarmerID, order.Quantity, order.PricePerKg,
		order.TotalAmount, order.Status, order.CommissionAmount)
}

// GetOrder retrieves an order by ID
func (q *queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT * FROM orders WHERE id = $1", id)
}

// GetOrderForUpdate retrieves an order by ID and locks its row
func (q *queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (q *queries) getOrder(ctx context.Context, query string, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves orders matching filter, newest first
func (q *queries) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := `
		SELECT * FROM orders
		WHERE ($1 = 0 OR vendor_id = $1) AND ($2 = 0 OR farmer_id = $2)
		ORDER BY created_at DESC, id DESC`

	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, q.ext, &orders, query, filter.VendorID, filter.FarmerID)
	return orders, err
}

// UpdateOrder writes price, total, status and commission of an order
func (q *queries) UpdateOrder(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders SET price_per_kg = $1, total_amount = $2, status = $3,
			commission_amount = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, q.ext, &order.UpdatedAt, query,
		order.PricePerKg, order.TotalAmount, order.Status, order.CommissionAmount, order.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %d: %w", order.ID, ErrNotFound)
	}
	return err
}

// CreateNegotiation appends an entry to an order's ledger
func (q *queries) CreateNegotiation(ctx context.Context, negotiation *models.Negotiation) error {
	query := `
		INSERT INTO negotiations (order_id, round, vendor_id, farmer_id, proposed_by,
			offered_price, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, negotiation, query,
		negotiation.OrderID, negotiation.Round, negotiation.VendorID, negotiation.FarmerID,
		negotiation.ProposedBy, negotiation.OfferedPrice, negotiation.Message, negotiation.Status)
}

// GetNegotiation retrieves a ledger entry by ID
func (q *queries) GetNegotiation(ctx context.Context, id int64) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	err := sqlx.GetContext(ctx, q.ext, &negotiation, "SELECT * FROM negotiations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("negotiation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &negotiation, nil
}

// ListNegotiations retrieves an order's ledger ordered by round
func (q *queries) ListNegotiations(ctx context.Context, orderID int64) ([]models.Negotiation, error) {
	negotiations := []models.Negotiation{}
	err := sqlx.SelectContext(ctx, q.ext, &negotiations,
		"SELECT * FROM negotiations WHERE order_id = $1 ORDER BY round ASC, id ASC", orderID)
	return negotiations, err
}

// UpdateNegotiation records the counterpart's response to an entry
func (q *queries) UpdateNegotiation(ctx context.Context, negotiation *models.Negotiation) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE negotiations SET status = $1, responded_at = $2 WHERE id = $3",
		negotiation.Status, negotiation.RespondedAt, negotiation.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("negotiation %d: %w", negotiation.ID, ErrNotFound)
	}
	return nil
}
