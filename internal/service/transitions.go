package service

import (
	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"

	"github.com/shopspring/decimal"
)

// orderTransitions lists the statuses an order may move to from each status.
// Statuses without an entry are terminal.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusNegotiation: {
		models.OrderStatusAccepted,
		models.OrderStatusRejected,
		models.OrderStatusCancelled,
	},
	models.OrderStatusAccepted: {
		models.OrderStatusCompleted,
		models.OrderStatusCancelled,
	},
}

func canTransition(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// settlement applies the side effects of entering or leaving the accepted
// status. It mutates the records in place; callers persist them.
type settlement struct {
	calc         *pricing.Calculator
	reserveStock bool
}

// accept moves order to accepted at its current price, assessing commission
// once and taking the ordered quantity out of the listing's stock.
func (s *settlement) accept(order *models.Order, produce *models.Produce) error {
	if order.Status == models.OrderStatusAccepted {
		return nil
	}
	if s.reserveStock {
		if order.Quantity > produce.AvailableQuantity {
			return apperr.New(apperr.CodeInsufficientStock,
				"Only %dkg available", produce.AvailableQuantity)
		}
		produce.AvailableQuantity -= order.Quantity
	}

	order.Status = models.OrderStatusAccepted
	if !order.CommissionAmount.Valid {
		order.CommissionAmount = decimal.NewNullDecimal(s.calc.Commission(order.TotalAmount))
	}
	return nil
}

// release returns an accepted order's quantity to the listing
func (s *settlement) release(order *models.Order, produce *models.Produce) {
	if !s.reserveStock {
		return
	}
	produce.AvailableQuantity += order.Quantity
	if produce.AvailableQuantity > produce.TotalQuantity {
		produce.AvailableQuantity = produce.TotalQuantity
	}
}
