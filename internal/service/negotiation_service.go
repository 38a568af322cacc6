package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// NegotiationService runs the alternating offer ledger attached to each order
type NegotiationService struct {
	repo      store.Repository
	locker    Locker
	cache     ProduceCache
	publisher EventPublisher
	settle    *settlement
	opts      Options
	logger    *zap.Logger
}

// NewNegotiationService creates a new negotiation service
func NewNegotiationService(
	repo store.Repository,
	locker Locker,
	cache ProduceCache,
	publisher EventPublisher,
	calc *pricing.Calculator,
	opts Options,
) *NegotiationService {
	if cache == nil {
		cache = NoopCache{}
	}
	if opts.MaxNegotiationEntries <= 0 {
		opts.MaxNegotiationEntries = DefaultMaxNegotiationEntries
	}
	return &NegotiationService{
		repo:      repo,
		locker:    locker,
		cache:     cache,
		publisher: publisher,
		settle:    &settlement{calc: calc, reserveStock: opts.ReserveStockOnAccept},
		opts:      opts,
		logger:    util.GetLogger(),
	}
}

// CreateNegotiationRequest is an offer on an order
type CreateNegotiationRequest struct {
	OrderID      int64           `json:"orderId" binding:"required"`
	OfferedPrice decimal.Decimal `json:"offeredPrice"`
	Message      string          `json:"message"`
}

// CreateNegotiation appends the caller's offer to the order's ledger. The
// caller's own pending offer blocks a second one until the counterpart moves;
// a pending offer from the counterpart is marked countered.
func (s *NegotiationService) CreateNegotiation(ctx context.Context, actor models.Actor, req *CreateNegotiationRequest) (entry *models.Negotiation, err error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.CreateNegotiation",
		attribute.Int64("order_id", req.OrderID),
		attribute.String("role", string(actor.Role)))
	defer func() { util.EndSpan(span, err) }()

	unlock, err := acquire(ctx, s.locker, orderLockKey(req.OrderID), s.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(q store.Querier) error {
		order, err := q.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return notFound(err, "Order not found")
		}
		role, ok := order.PartyRole(actor)
		if !ok {
			return apperr.Forbidden("You don't have access to this order")
		}
		if order.Status != models.OrderStatusNegotiation {
			return apperr.InvalidState("This order is not in negotiation state")
		}
		if err := validatePrice("offeredPrice", req.OfferedPrice); err != nil {
			return err
		}

		ledger, err := q.ListNegotiations(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to load negotiations: %w", err)
		}
		if err := checkTurn(ledger, role, s.opts.MaxNegotiationEntries); err != nil {
			return err
		}

		now := time.Now()
		if n := len(ledger); n > 0 && ledger[n-1].Status == models.NegotiationStatusPending {
			prev := ledger[n-1]
			prev.Status = models.NegotiationStatusCountered
			prev.RespondedAt = &now
			if err := q.UpdateNegotiation(ctx, &prev); err != nil {
				return fmt.Errorf("failed to counter negotiation %d: %w", prev.ID, err)
			}
		}

		entry = &models.Negotiation{
			OrderID:      order.ID,
			Round:        nextRound(len(ledger)),
			VendorID:     order.VendorID,
			FarmerID:     order.FarmerID,
			ProposedBy:   role,
			OfferedPrice: req.OfferedPrice,
			Message:      req.Message,
			Status:       models.NegotiationStatusPending,
		}
		if err := q.CreateNegotiation(ctx, entry); err != nil {
			return fmt.Errorf("failed to create negotiation: %w", err)
		}
		return nil
	})
	if err != nil {
		if code := apperr.CodeOf(err); code != apperr.CodeUnknown {
			util.NegotiationsRefusedTotal.WithLabelValues(string(code)).Inc()
		}
		return nil, err
	}

	util.NegotiationsCreatedTotal.WithLabelValues(string(entry.ProposedBy)).Inc()
	s.logger.Info("Negotiation offered",
		zap.Int64("negotiation_id", entry.ID),
		zap.Int64("order_id", entry.OrderID),
		zap.Int("round", entry.Round),
		zap.String("proposed_by", string(entry.ProposedBy)),
		zap.String("offered_price", entry.OfferedPrice.String()))

	if s.publisher != nil {
		event := &models.NegotiationOfferedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeNegotiationOffered),
			NegotiationID: entry.ID,
			OrderID:       entry.OrderID,
			Round:         entry.Round,
			ProposedBy:    entry.ProposedBy,
			OfferedPrice:  entry.OfferedPrice,
		}
		if err := s.publisher.PublishNegotiationOffered(ctx, event); err != nil {
			s.logger.Error("Failed to publish NegotiationOffered event", zap.Error(err))
		}
	}

	return entry, nil
}

// RespondToNegotiation records the counterpart's answer to an offer.
// Accepting settles the order at the offered price: the listing is repriced,
// the order is repriced and accepted, commission is assessed and stock is
// taken, all in one transaction.
func (s *NegotiationService) RespondToNegotiation(ctx context.Context, actor models.Actor, negotiationID int64, status models.NegotiationStatus) (entry *models.Negotiation, err error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.RespondToNegotiation",
		attribute.Int64("negotiation_id", negotiationID),
		attribute.String("status", string(status)))
	defer func() { util.EndSpan(span, err) }()

	switch status {
	case models.NegotiationStatusAccepted, models.NegotiationStatusRejected, models.NegotiationStatusCountered:
	default:
		return nil, apperr.InvalidRequest("Invalid status")
	}

	// The order id is needed to take the lock; the entry is read again below.
	found, err := s.repo.GetNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, notFound(err, "Negotiation not found")
	}

	unlock, err := acquire(ctx, s.locker, orderLockKey(found.OrderID), s.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		order    *models.Order
		oldPrice decimal.Decimal
		repriced bool
	)
	err = s.repo.WithTx(ctx, func(q store.Querier) error {
		var err error
		order, err = q.GetOrderForUpdate(ctx, found.OrderID)
		if err != nil {
			return notFound(err, "Order not found")
		}
		entry, err = q.GetNegotiation(ctx, negotiationID)
		if err != nil {
			return notFound(err, "Negotiation not found")
		}

		role, ok := order.PartyRole(actor)
		if !ok {
			return apperr.Forbidden("You don't have access to this negotiation")
		}
		if entry.ProposedBy == role {
			return apperr.Forbidden("You can't respond to your own negotiation")
		}
		if entry.Status != models.NegotiationStatusPending {
			return apperr.InvalidState("This negotiation has already been answered")
		}
		if order.Status != models.OrderStatusNegotiation {
			return apperr.InvalidState("This order is not in negotiation state")
		}

		if status == models.NegotiationStatusAccepted {
			produce, err := q.GetProduceForUpdate(ctx, order.ProduceID)
			if err != nil {
				return notFound(err, "Produce not found")
			}
			oldPrice = produce.PricePerKg
			repriced = !oldPrice.Equal(entry.OfferedPrice)
			produce.PricePerKg = entry.OfferedPrice

			order.Reprice(entry.OfferedPrice)
			if err := s.settle.accept(order, produce); err != nil {
				return err
			}

			if err := q.UpdateProduce(ctx, produce); err != nil {
				return fmt.Errorf("failed to update produce: %w", err)
			}
			if repriced {
				if err := q.CreatePriceHistory(ctx, &models.PriceHistory{ProduceID: produce.ID, Price: produce.PricePerKg}); err != nil {
					return fmt.Errorf("failed to record price history: %w", err)
				}
			}
			if err := q.UpdateOrder(ctx, order); err != nil {
				return fmt.Errorf("failed to update order: %w", err)
			}
		}

		now := time.Now()
		entry.Status = status
		entry.RespondedAt = &now
		if err := q.UpdateNegotiation(ctx, entry); err != nil {
			return fmt.Errorf("failed to update negotiation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.NegotiationResponsesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Negotiation answered",
		zap.Int64("negotiation_id", entry.ID),
		zap.Int64("order_id", entry.OrderID),
		zap.String("status", string(status)),
		zap.Int64("actor_id", actor.ID))

	if s.publisher != nil {
		event := &models.NegotiationRespondedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeNegotiationResponded),
			NegotiationID: entry.ID,
			OrderID:       entry.OrderID,
			Status:        status,
			ActorID:       actor.ID,
		}
		if err := s.publisher.PublishNegotiationResponded(ctx, event); err != nil {
			s.logger.Error("Failed to publish NegotiationResponded event", zap.Error(err))
		}
	}

	if status == models.NegotiationStatusAccepted {
		util.NegotiationRoundsAtAcceptance.Observe(float64(entry.Round))
		if err := s.cache.InvalidateProduce(ctx, order.ProduceID); err != nil {
			s.logger.Warn("Failed to invalidate produce cache", zap.Int64("produce_id", order.ProduceID), zap.Error(err))
		}
		recordTransition(ctx, s.publisher, s.logger, actor, order, models.OrderStatusNegotiation)
		if repriced {
			publishPriceChanged(ctx, s.publisher, s.logger, order.ProduceID, order.ID, oldPrice, entry.OfferedPrice)
		}
	}

	return entry, nil
}

// ListNegotiations returns an order's ledger, round ascending, to one of its
// parties
func (s *NegotiationService) ListNegotiations(ctx context.Context, actor models.Actor, orderID int64) ([]models.Negotiation, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.ListNegotiations", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "Order not found")
	}
	if _, ok := order.PartyRole(actor); !ok {
		return nil, apperr.Forbidden("You don't have access to this order")
	}
	return s.repo.ListNegotiations(ctx, orderID)
}
