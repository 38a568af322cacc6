package service

import (
	"context"
	"testing"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// TestNegotiationLedgerProperties drives one order through random offers and
// answers from both parties and checks the ledger invariants after each step.
func TestNegotiationLedgerProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := newEnv()
		ctx := context.Background()

		produce, err := env.catalog.CreateProduce(ctx, farmer, &CreateProduceRequest{
			Name:              "Tomatoes",
			PricePerKg:        decimal.NewFromInt(25),
			MinOrderQuantity:  10,
			AvailableQuantity: 1000,
			TotalQuantity:     1000,
		})
		if err != nil {
			t.Fatalf("seed produce: %v", err)
		}
		quantity := rapid.IntRange(10, 1000).Draw(t, "quantity").(int)
		order, err := env.orders.CreateOrder(ctx, vendor, &CreateOrderRequest{ProduceID: produce.ID, Quantity: quantity}, "")
		if err != nil {
			t.Fatalf("seed order: %v", err)
		}

		steps := rapid.IntRange(1, 15).Draw(t, "steps").(int)
		for step := 0; step < steps; step++ {
			actor := vendor
			if rapid.IntRange(0, 1).Draw(t, "farmer").(int) == 1 {
				actor = farmer
			}

			switch rapid.IntRange(0, 2).Draw(t, "action").(int) {
			case 0:
				price := decimal.New(int64(rapid.IntRange(1, 5000).Draw(t, "price").(int)), -2)
				_, err = env.negotiations.CreateNegotiation(ctx, actor, &CreateNegotiationRequest{OrderID: order.ID, OfferedPrice: price})
			default:
				ledger, listErr := env.negotiations.ListNegotiations(ctx, actor, order.ID)
				if listErr != nil {
					t.Fatalf("list: %v", listErr)
				}
				if len(ledger) == 0 {
					continue
				}
				status := models.NegotiationStatusAccepted
				if rapid.IntRange(0, 1).Draw(t, "reject").(int) == 1 {
					status = models.NegotiationStatusRejected
				}
				_, err = env.negotiations.RespondToNegotiation(ctx, actor, ledger[len(ledger)-1].ID, status)
			}
			if err != nil && apperr.CodeOf(err) == apperr.CodeUnknown {
				t.Fatalf("step %d: unexpected error %v", step, err)
			}

			checkLedgerInvariants(t, env, order.ID)
		}
	})
}

func checkLedgerInvariants(t *rapid.T, env *testEnv, orderID int64) {
	ctx := context.Background()

	ledger, err := env.repo.ListNegotiations(ctx, orderID)
	if err != nil {
		t.Fatalf("list negotiations: %v", err)
	}
	order, err := env.repo.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}

	if len(ledger) > DefaultMaxNegotiationEntries {
		t.Fatalf("ledger has %d entries", len(ledger))
	}

	var accepted *models.Negotiation
	for i := range ledger {
		entry := &ledger[i]
		if entry.Round != nextRound(i) {
			t.Fatalf("entry %d has round %d", i+1, entry.Round)
		}
		if i > 0 && ledger[i-1].ProposedBy == entry.ProposedBy {
			t.Fatalf("entries %d and %d both proposed by %s", i, i+1, entry.ProposedBy)
		}
		if i < len(ledger)-1 && entry.Status == models.NegotiationStatusPending {
			t.Fatalf("entry %d still pending after a later offer", i+1)
		}
		if entry.Status == models.NegotiationStatusAccepted {
			if accepted != nil {
				t.Fatalf("more than one accepted entry")
			}
			accepted = entry
		}
	}

	if accepted == nil {
		if order.Status != models.OrderStatusNegotiation {
			t.Fatalf("order is %s with no accepted offer", order.Status)
		}
		return
	}

	if order.Status != models.OrderStatusAccepted {
		t.Fatalf("offer accepted but order is %s", order.Status)
	}
	if !order.PricePerKg.Equal(accepted.OfferedPrice) {
		t.Fatalf("order price %s, accepted offer %s", order.PricePerKg, accepted.OfferedPrice)
	}
	wantTotal := accepted.OfferedPrice.Mul(decimal.NewFromInt(int64(order.Quantity)))
	if !order.TotalAmount.Equal(wantTotal) {
		t.Fatalf("order total %s, want %s", order.TotalAmount, wantTotal)
	}
	wantCommission := wantTotal.Mul(decimal.RequireFromString("0.05")).Round(2)
	if !order.CommissionAmount.Valid || !order.CommissionAmount.Decimal.Equal(wantCommission) {
		t.Fatalf("commission %v, want %s", order.CommissionAmount, wantCommission)
	}
}
