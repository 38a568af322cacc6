package service

import (
	"context"
	"sync"
	"testing"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiationAcceptedSettlesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)

	order := env.seedOrder(t, p.ID, 300)
	assertMoney(t, "7500", order.TotalAmount)

	offer, err := env.offer(vendor, order.ID, "23")
	require.NoError(t, err)
	assert.Equal(t, 1, offer.Round)
	assert.Equal(t, models.RoleVendor, offer.ProposedBy)
	assert.Equal(t, models.NegotiationStatusPending, offer.Status)
	assert.Equal(t, vendor.ID, offer.VendorID)
	assert.Equal(t, farmer.ID, offer.FarmerID)

	// The farmer could legally counter here; only a repeat vendor offer is refused.
	_, err = env.offer(vendor, order.ID, "22")
	assert.EqualError(t, err, "WAITING_FOR_COUNTERPART: Waiting for farmer's response")

	answered, err := env.negotiations.RespondToNegotiation(ctx, farmer, offer.ID, models.NegotiationStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.NegotiationStatusAccepted, answered.Status)
	assert.NotNil(t, answered.RespondedAt)

	settled, err := env.orders.GetOrder(ctx, vendor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAccepted, settled.Status)
	assertMoney(t, "23", settled.PricePerKg)
	assertMoney(t, "6900", settled.TotalAmount)
	require.True(t, settled.CommissionAmount.Valid)
	assertMoney(t, "345", settled.CommissionAmount.Decimal)

	listing, err := env.repo.GetProduce(ctx, p.ID)
	require.NoError(t, err)
	assertMoney(t, "23", listing.PricePerKg)
	assert.Equal(t, 200, listing.AvailableQuantity)

	history, err := env.catalog.PriceHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assertMoney(t, "23", history[0].Price)
	assertMoney(t, "25", history[1].Price)

	assert.Subset(t, env.publisher.types(), []string{
		models.EventTypeNegotiationOffered,
		models.EventTypeNegotiationResponded,
		models.EventTypeOrderStatusChanged,
		models.EventTypeProducePriceChanged,
	})
}

func TestNegotiationRoundLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.seedOrder(t, env.seedProduce(t).ID, 100)

	prices := []string{"20", "24", "21", "23.50", "22", "23"}
	for i, price := range prices {
		actor := vendor
		if i%2 == 1 {
			actor = farmer
		}
		entry, err := env.offer(actor, order.ID, price)
		require.NoError(t, err, "offer %d", i+1)
		assert.Equal(t, i/2+1, entry.Round)
	}

	_, err := env.offer(vendor, order.ID, "22.50")
	assert.EqualError(t, err, "ROUND_LIMIT_EXCEEDED: Maximum negotiation rounds reached")

	ledger, err := env.negotiations.ListNegotiations(ctx, farmer, order.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 6)
	for i, entry := range ledger[:5] {
		assert.Equal(t, models.NegotiationStatusCountered, entry.Status, "entry %d", i+1)
	}
	assert.Equal(t, models.NegotiationStatusPending, ledger[5].Status)

	// The last offer can still be answered.
	_, err = env.negotiations.RespondToNegotiation(ctx, vendor, ledger[5].ID, models.NegotiationStatusAccepted)
	require.NoError(t, err)
}

func TestNegotiationFarmerMayOpen(t *testing.T) {
	env := newTestEnv(t)
	order := env.seedOrder(t, env.seedProduce(t).ID, 100)

	entry, err := env.offer(farmer, order.ID, "26")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Round)
	assert.Equal(t, models.RoleFarmer, entry.ProposedBy)

	_, err = env.offer(farmer, order.ID, "27")
	assert.EqualError(t, err, "WAITING_FOR_COUNTERPART: Waiting for vendor's response")

	counter, err := env.offer(vendor, order.ID, "24")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.Round)
}

func TestCreateNegotiationRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)
	order := env.seedOrder(t, p.ID, 100)

	_, err := env.offer(vendor, 999, "20")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = env.offer(otherVendor, order.ID, "20")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = env.offer(otherFarmer, order.ID, "20")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	for _, price := range []string{"0", "-5", "20.125"} {
		_, err = env.offer(vendor, order.ID, price)
		assert.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err), "price %s", price)
	}

	_, err = env.orders.SetStatus(ctx, vendor, order.ID, models.OrderStatusCancelled)
	require.NoError(t, err)
	_, err = env.offer(vendor, order.ID, "20")
	assert.EqualError(t, err, "INVALID_STATE: This order is not in negotiation state")

	ledger, err := env.negotiations.ListNegotiations(ctx, vendor, order.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestRespondToNegotiationRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.seedOrder(t, env.seedProduce(t).ID, 100)

	offer, err := env.offer(vendor, order.ID, "22")
	require.NoError(t, err)

	_, err = env.negotiations.RespondToNegotiation(ctx, vendor, offer.ID, models.NegotiationStatusAccepted)
	assert.EqualError(t, err, "FORBIDDEN: You can't respond to your own negotiation")

	_, err = env.negotiations.RespondToNegotiation(ctx, otherFarmer, offer.ID, models.NegotiationStatusAccepted)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = env.negotiations.RespondToNegotiation(ctx, farmer, offer.ID, models.NegotiationStatusPending)
	assert.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err))

	_, err = env.negotiations.RespondToNegotiation(ctx, farmer, 999, models.NegotiationStatusRejected)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	rejected, err := env.negotiations.RespondToNegotiation(ctx, farmer, offer.ID, models.NegotiationStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, models.NegotiationStatusRejected, rejected.Status)

	_, err = env.negotiations.RespondToNegotiation(ctx, farmer, offer.ID, models.NegotiationStatusAccepted)
	assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))

	// A rejected offer leaves the order open and the price untouched.
	stored, err := env.orders.GetOrder(ctx, vendor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusNegotiation, stored.Status)
	assertMoney(t, "25", stored.PricePerKg)

	// The farmer's turn is still open after rejecting.
	_, err = env.offer(farmer, order.ID, "24")
	assert.NoError(t, err)
}

func TestRespondAcceptRollsBackOnInsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduce(t)
	first := env.seedOrder(t, p.ID, 300)
	second := env.seedOrder(t, p.ID, 300)

	_, err := env.orders.SetStatus(ctx, farmer, first.ID, models.OrderStatusAccepted)
	require.NoError(t, err)

	offer, err := env.offer(vendor, second.ID, "20")
	require.NoError(t, err)

	_, err = env.negotiations.RespondToNegotiation(ctx, farmer, offer.ID, models.NegotiationStatusAccepted)
	assert.EqualError(t, err, "INSUFFICIENT_STOCK: Only 200kg available")

	order, err := env.repo.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusNegotiation, order.Status)
	assertMoney(t, "25", order.PricePerKg)
	assertMoney(t, "7500", order.TotalAmount)
	assert.False(t, order.CommissionAmount.Valid)

	entry, err := env.repo.GetNegotiation(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NegotiationStatusPending, entry.Status)

	listing, err := env.repo.GetProduce(ctx, p.ID)
	require.NoError(t, err)
	assertMoney(t, "25", listing.PricePerKg)
	assert.Equal(t, 200, listing.AvailableQuantity)

	history, err := env.repo.ListPriceHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestNegotiationOnAcceptedOrderRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.seedOrder(t, env.seedProduce(t).ID, 100)

	offer, err := env.offer(farmer, order.ID, "26")
	require.NoError(t, err)

	_, err = env.orders.SetStatus(ctx, farmer, order.ID, models.OrderStatusAccepted)
	require.NoError(t, err)

	_, err = env.negotiations.RespondToNegotiation(ctx, vendor, offer.ID, models.NegotiationStatusAccepted)
	assert.EqualError(t, err, "INVALID_STATE: This order is not in negotiation state")

	stored, err := env.repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assertMoney(t, "25", stored.PricePerKg)
}

func TestConcurrentOffersAlternate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.seedOrder(t, env.seedProduce(t).ID, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		actor := vendor
		if i%2 == 1 {
			actor = farmer
		}
		wg.Add(1)
		go func(actor models.Actor, i int) {
			defer wg.Done()
			price := decimal.NewFromInt(int64(20 + i%5))
			_, _ = env.negotiations.CreateNegotiation(ctx, actor, &CreateNegotiationRequest{
				OrderID:      order.ID,
				OfferedPrice: price,
			})
		}(actor, i)
	}
	wg.Wait()

	ledger, err := env.negotiations.ListNegotiations(ctx, vendor, order.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ledger)
	assert.LessOrEqual(t, len(ledger), DefaultMaxNegotiationEntries)
	for i := 1; i < len(ledger); i++ {
		assert.NotEqual(t, ledger[i-1].ProposedBy, ledger[i].ProposedBy, "entries %d and %d", i, i+1)
		assert.Equal(t, i/2+1, ledger[i].Round)
	}
}
