package service

import (
	"context"
	"fmt"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles the order lifecycle
type OrderService struct {
	repo        store.Repository
	locker      Locker
	idempotency IdempotencyStore
	cache       ProduceCache
	publisher   EventPublisher
	settle      *settlement
	opts        Options
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	locker Locker,
	idempotency IdempotencyStore,
	cache ProduceCache,
	publisher EventPublisher,
	calc *pricing.Calculator,
	opts Options,
) *OrderService {
	if cache == nil {
		cache = NoopCache{}
	}
	return &OrderService{
		repo:        repo,
		locker:      locker,
		idempotency: idempotency,
		cache:       cache,
		publisher:   publisher,
		settle:      &settlement{calc: calc, reserveStock: opts.ReserveStockOnAccept},
		opts:        opts,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ProduceID int64 `json:"produceId" binding:"required"`
	// VendorID defaults to the caller when omitted.
	VendorID int64 `json:"vendorId"`
	Quantity int   `json:"quantity" binding:"required"`
}

// CreateOrder opens an order in negotiation at the listing's current price.
// A repeated idempotencyKey returns the order the key first produced.
func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, req *CreateOrderRequest, idempotencyKey string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("produce_id", req.ProduceID))
	defer func() { util.EndSpan(span, err) }()

	if actor.Role != models.RoleVendor {
		util.OrdersRejectedTotal.WithLabelValues("forbidden").Inc()
		return nil, apperr.Forbidden("Only vendors can place orders")
	}
	if req.VendorID == 0 {
		req.VendorID = actor.ID
	}
	if req.VendorID != actor.ID {
		util.OrdersRejectedTotal.WithLabelValues("forbidden").Inc()
		return nil, apperr.Forbidden("You can only place orders for yourself")
	}

	if idempotencyKey != "" {
		unlock, err := acquire(ctx, s.locker, "idempotency:"+idempotencyKey, s.opts.LockWait)
		if err != nil {
			return nil, err
		}
		defer unlock()

		existingID, found, err := s.idempotency.LookupOrder(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if found {
			existing, err := s.repo.GetOrder(ctx, existingID)
			if err != nil {
				return nil, notFound(err, "Order not found")
			}
			if existing.VendorID != actor.ID {
				return nil, apperr.New(apperr.CodeConflict, "Idempotency key already used")
			}
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing, nil
		}
	}

	produce, err := s.repo.GetProduce(ctx, req.ProduceID)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, notFound(err, "Produce not found")
	}
	if err := checkOrderable(produce, req.Quantity); err != nil {
		util.OrdersRejectedTotal.WithLabelValues(string(apperr.CodeOf(err))).Inc()
		return nil, err
	}

	order = &models.Order{
		ProduceID: produce.ID,
		VendorID:  req.VendorID,
		FarmerID:  produce.FarmerID,
		Quantity:  req.Quantity,
		Status:    models.OrderStatusNegotiation,
	}
	order.Reprice(produce.PricePerKg)

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if idempotencyKey != "" {
		if err := s.idempotency.RememberOrder(ctx, idempotencyKey, order.ID); err != nil {
			s.logger.Error("Failed to remember idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("produce_id", order.ProduceID),
		zap.Int64("vendor_id", order.VendorID),
		zap.Int("quantity", order.Quantity),
		zap.String("total_amount", order.TotalAmount.String()))

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		ProduceID:   order.ProduceID,
		VendorID:    order.VendorID,
		FarmerID:    order.FarmerID,
		Quantity:    order.Quantity,
		PricePerKg:  order.PricePerKg,
		TotalAmount: order.TotalAmount,
	}
	if s.publisher != nil {
		if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return order, nil
}

// checkOrderable applies the listing rules to a requested quantity, in the
// order callers see them reported.
func checkOrderable(produce *models.Produce, quantity int) error {
	if !produce.IsActive {
		return apperr.New(apperr.CodeUnavailable, "This produce is not currently available")
	}
	if quantity < produce.MinOrderQuantity {
		return apperr.New(apperr.CodeBelowMinimum, "Minimum order quantity is %dkg", produce.MinOrderQuantity)
	}
	if quantity > produce.AvailableQuantity {
		return apperr.New(apperr.CodeInsufficientStock, "Only %dkg available", produce.AvailableQuantity)
	}
	return nil
}

// GetOrder returns an order to one of its parties
func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "Order not found")
	}
	if _, ok := order.PartyRole(actor); !ok {
		return nil, apperr.Forbidden("You don't have access to this order")
	}
	return order, nil
}

// ListOrders returns the caller's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	var filter store.OrderFilter
	switch actor.Role {
	case models.RoleVendor:
		filter.VendorID = actor.ID
	case models.RoleFarmer:
		filter.FarmerID = actor.ID
	default:
		return nil, apperr.Forbidden("Unknown role")
	}
	return s.repo.ListOrders(ctx, filter)
}

// SetStatus moves an order through its lifecycle on behalf of a party.
// Entering accepted assesses commission and takes stock; cancelling an
// accepted order gives the stock back.
func (s *OrderService) SetStatus(ctx context.Context, actor models.Actor, orderID int64, status models.OrderStatus) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SetStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)))
	defer func() { util.EndSpan(span, err) }()

	if !status.Valid() {
		return nil, apperr.InvalidRequest("Invalid status")
	}

	unlock, err := acquire(ctx, s.locker, orderLockKey(orderID), s.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		from         models.OrderStatus
		changed      bool
		stockTouched bool
	)
	err = s.repo.WithTx(ctx, func(q store.Querier) error {
		var err error
		order, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err, "Order not found")
		}
		if _, ok := order.PartyRole(actor); !ok {
			return apperr.Forbidden("You don't have access to this order")
		}
		if status == models.OrderStatusAccepted && actor.Role != models.RoleFarmer {
			return apperr.Forbidden("Only farmers can accept orders")
		}

		from = order.Status
		if from == status {
			return nil
		}
		if !canTransition(from, status) {
			return apperr.InvalidState("Cannot change order from %s to %s", from, status)
		}

		switch {
		case status == models.OrderStatusAccepted:
			produce, err := q.GetProduceForUpdate(ctx, order.ProduceID)
			if err != nil {
				return notFound(err, "Produce not found")
			}
			if err := s.settle.accept(order, produce); err != nil {
				return err
			}
			if err := q.UpdateProduce(ctx, produce); err != nil {
				return fmt.Errorf("failed to update produce stock: %w", err)
			}
			stockTouched = s.settle.reserveStock
		case from == models.OrderStatusAccepted && status == models.OrderStatusCancelled:
			produce, err := q.GetProduceForUpdate(ctx, order.ProduceID)
			if err != nil {
				return notFound(err, "Produce not found")
			}
			s.settle.release(order, produce)
			if err := q.UpdateProduce(ctx, produce); err != nil {
				return fmt.Errorf("failed to release produce stock: %w", err)
			}
			order.Status = status
			stockTouched = s.settle.reserveStock
		default:
			order.Status = status
		}

		if err := q.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		return order, nil
	}

	if stockTouched {
		if err := s.cache.InvalidateProduce(ctx, order.ProduceID); err != nil {
			s.logger.Warn("Failed to invalidate produce cache", zap.Int64("produce_id", order.ProduceID), zap.Error(err))
		}
	}
	recordTransition(ctx, s.publisher, s.logger, actor, order, from)
	return order, nil
}

// recordTransition emits the metrics, log line and event for a committed
// status change.
func recordTransition(ctx context.Context, publisher EventPublisher, logger *zap.Logger, actor models.Actor, order *models.Order, from models.OrderStatus) {
	util.OrderTransitionsTotal.WithLabelValues(string(from), string(order.Status)).Inc()
	if order.Status == models.OrderStatusAccepted && order.CommissionAmount.Valid {
		util.CommissionAmountTotal.Add(order.CommissionAmount.Decimal.InexactFloat64())
	}

	logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
		zap.Int64("actor_id", actor.ID))

	if publisher == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:          order.ID,
		ProduceID:        order.ProduceID,
		From:             from,
		To:               order.Status,
		PricePerKg:       order.PricePerKg,
		TotalAmount:      order.TotalAmount,
		CommissionAmount: order.CommissionAmount,
		ActorID:          actor.ID,
	}
	if err := publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}
