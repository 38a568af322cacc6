package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetProduce retrieves a listing by ID
func (q *queries) GetProduce(ctx context.Context, id int64) (*models.Produce, error) {
	return q.getProduce(ctx, "SELECT * FROM produce WHERE id = $1", id)
}

// GetProduceForUpdate retrieves a listing by ID and locks its row
func (q *queries) GetProduceForUpdate(ctx context.Context, id int64) (*models.Produce, error) {
	return q.getProduce(ctx, "SELECT * FROM produce WHERE id = $1 FOR UPDATE", id)
}

func (q *queries) getProduce(ctx context.Context, query string, id int64) (*models.Produce, error) {
	var produce models.Produce
	err := sqlx.GetContext(ctx, q.ext, &produce, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("produce %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &produce, nil
}

// ListProduce retrieves listings matching filter
func (q *queries) ListProduce(ctx context.Context, filter ProduceFilter) ([]models.Produce, error) {
	query := "SELECT * FROM produce WHERE ($1 = 0 OR farmer_id = $1) AND (NOT $2 OR is_active) ORDER BY id"

	produce := []models.Produce{}
	err := sqlx.SelectContext(ctx, q.ext, &produce, query, filter.FarmerID, filter.ActiveOnly)
	return produce, err
}

// CreateProduce inserts a new listing
func (q *queries) CreateProduce(ctx context.Context, produce *models.Produce) error {
	query := `
		INSERT INTO produce (farmer_id, name, category, description, price_per_kg,
			min_order_quantity, available_quantity, total_quantity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, produce, query,
		produce.FarmerID, produce.Name, produce.Category, produce.Description, produce.PricePerKg,
		produce.MinOrderQuantity, produce.AvailableQuantity, produce.TotalQuantity, produce.IsActive)
}

// UpdateProduce writes the mutable fields of a listing
func (q *queries) UpdateProduce(ctx context.Context, produce *models.Produce) error {
	query := `
		UPDATE produce SET name = $1, category = $2, description = $3, price_per_kg = $4,
			min_order_quantity = $5, available_quantity = $6, total_quantity = $7,
			is_active = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, q.ext, &produce.UpdatedAt, query,
		produce.Name, produce.Category, produce.Description, produce.PricePerKg,
		produce.MinOrderQuantity, produce.AvailableQuantity, produce.TotalQuantity,
		produce.IsActive, produce.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("produce %d: %w", produce.ID, ErrNotFound)
	}
	return err
}

// CreatePriceHistory appends a price point for a listing
func (q *queries) CreatePriceHistory(ctx context.Context, entry *models.PriceHistory) error {
	query := `
		INSERT INTO price_history (produce_id, price)
		VALUES ($1, $2)
		RETURNING id, recorded_at`

	return sqlx.GetContext(ctx, q.ext, entry, query, entry.ProduceID, entry.Price)
}

// ListPriceHistory retrieves a listing's price points, newest first
func (q *queries) ListPriceHistory(ctx context.Context, produceID int64) ([]models.PriceHistory, error) {
	history := []models.PriceHistory{}
	err := sqlx.SelectContext(ctx, q.ext, &history,
		"SELECT * FROM price_history WHERE produce_id = $1 ORDER BY recorded_at DESC, id DESC", produceID)
	return history, err
}
