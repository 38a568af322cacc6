package service

import (
	"context"
	"testing"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProduce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.seedProduce(t)
	assert.Equal(t, farmer.ID, p.FarmerID)
	assert.True(t, p.IsActive)

	history, err := env.catalog.PriceHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assertMoney(t, "25", history[0].Price)

	_, err = env.catalog.CreateProduce(ctx, vendor, &CreateProduceRequest{
		Name:             "Potatoes",
		PricePerKg:       decimal.NewFromInt(10),
		MinOrderQuantity: 1,
		TotalQuantity:    10,
	})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestCreateProduceValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  CreateProduceRequest
	}{
		{"missing name", CreateProduceRequest{PricePerKg: decimal.NewFromInt(10), MinOrderQuantity: 1, TotalQuantity: 10}},
		{"zero price", CreateProduceRequest{Name: "Okra", MinOrderQuantity: 1, TotalQuantity: 10}},
		{"fractional paise", CreateProduceRequest{Name: "Okra", PricePerKg: decimal.RequireFromString("10.005"), MinOrderQuantity: 1, TotalQuantity: 10}},
		{"zero minimum", CreateProduceRequest{Name: "Okra", PricePerKg: decimal.NewFromInt(10), TotalQuantity: 10}},
		{"available above total", CreateProduceRequest{Name: "Okra", PricePerKg: decimal.NewFromInt(10), MinOrderQuantity: 1, AvailableQuantity: 11, TotalQuantity: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := env.catalog.CreateProduce(context.Background(), farmer, &req)
			assert.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err))
		})
	}
}

func TestGetProduceUsesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)

	_, err := env.catalog.GetProduce(ctx, 999)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	got, err := env.catalog.GetProduce(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes", got.Name)
	assert.True(t, env.cache.has(p.ID))

	// A cached copy is served even if the row moves underneath it.
	stale := *got
	stale.Name = "Cached tomatoes"
	require.NoError(t, env.cache.SetProduce(ctx, &stale))

	got, err = env.catalog.GetProduce(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cached tomatoes", got.Name)

	require.NoError(t, env.catalog.RefreshProduce(ctx, p.ID))
	got, err = env.catalog.GetProduce(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes", got.Name)
}

func TestUpdateProduce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)

	_, err := env.catalog.GetProduce(ctx, p.ID)
	require.NoError(t, err)

	price := decimal.NewFromInt(28)
	available := 450
	updated, err := env.catalog.UpdateProduce(ctx, farmer, p.ID, &UpdateProduceRequest{
		PricePerKg:        &price,
		AvailableQuantity: &available,
	})
	require.NoError(t, err)
	assertMoney(t, "28", updated.PricePerKg)
	assert.Equal(t, 450, updated.AvailableQuantity)
	assert.Equal(t, "Tomatoes", updated.Name)
	assert.False(t, env.cache.has(p.ID))

	history, err := env.catalog.PriceHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assertMoney(t, "28", history[0].Price)
	assert.Contains(t, env.publisher.types(), models.EventTypeProducePriceChanged)

	// Same price: no new history entry.
	name := "Roma tomatoes"
	_, err = env.catalog.UpdateProduce(ctx, farmer, p.ID, &UpdateProduceRequest{Name: &name, PricePerKg: &price})
	require.NoError(t, err)
	history, err = env.catalog.PriceHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestUpdateProduceRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)

	inactive := false
	_, err := env.catalog.UpdateProduce(ctx, otherFarmer, p.ID, &UpdateProduceRequest{IsActive: &inactive})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = env.catalog.UpdateProduce(ctx, vendor, p.ID, &UpdateProduceRequest{IsActive: &inactive})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = env.catalog.UpdateProduce(ctx, farmer, 999, &UpdateProduceRequest{IsActive: &inactive})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	total := 100
	_, err = env.catalog.UpdateProduce(ctx, farmer, p.ID, &UpdateProduceRequest{TotalQuantity: &total})
	assert.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err))

	stored, err := env.repo.GetProduce(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Equal(t, 500, stored.TotalQuantity)
}

func TestListProduce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)

	inactive := false
	hidden, err := env.catalog.CreateProduce(ctx, farmer, &CreateProduceRequest{
		Name:             "Onions",
		PricePerKg:       decimal.NewFromInt(30),
		MinOrderQuantity: 10,
		TotalQuantity:    100,
		IsActive:         &inactive,
	})
	require.NoError(t, err)

	active, err := env.catalog.ListProduce(ctx, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, p.ID, active[0].ID)

	own, err := env.catalog.ListProduce(ctx, farmer.ID)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, hidden.ID, own[1].ID)
}
