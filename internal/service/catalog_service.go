package service

import (
	"context"
	"fmt"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CatalogService is the source of truth for listing prices and availability
type CatalogService struct {
	repo      store.Repository
	cache     ProduceCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.Repository, cache ProduceCache, publisher EventPublisher) *CatalogService {
	if cache == nil {
		cache = NoopCache{}
	}
	return &CatalogService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CreateProduceRequest describes a new listing
type CreateProduceRequest struct {
	Name              string          `json:"name" binding:"required"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	PricePerKg        decimal.Decimal `json:"pricePerKg"`
	MinOrderQuantity  int             `json:"minOrderQuantity" binding:"required,min=1"`
	AvailableQuantity int             `json:"availableQuantity" binding:"min=0"`
	TotalQuantity     int             `json:"totalQuantity" binding:"required,min=1"`
	IsActive          *bool           `json:"isActive"`
}

// UpdateProduceRequest is a partial listing edit; nil fields are left alone
type UpdateProduceRequest struct {
	Name              *string          `json:"name"`
	Category          *string          `json:"category"`
	Description       *string          `json:"description"`
	PricePerKg        *decimal.Decimal `json:"pricePerKg"`
	MinOrderQuantity  *int             `json:"minOrderQuantity"`
	AvailableQuantity *int             `json:"availableQuantity"`
	TotalQuantity     *int             `json:"totalQuantity"`
	IsActive          *bool            `json:"isActive"`
}

func validateProduce(p *models.Produce) error {
	if p.Name == "" {
		return apperr.InvalidRequest("name is required")
	}
	if err := validatePrice("pricePerKg", p.PricePerKg); err != nil {
		return err
	}
	if p.MinOrderQuantity < 1 {
		return apperr.InvalidRequest("minOrderQuantity must be at least 1")
	}
	if p.AvailableQuantity < 0 || p.AvailableQuantity > p.TotalQuantity {
		return apperr.InvalidRequest("availableQuantity must be between 0 and totalQuantity")
	}
	return nil
}

// GetProduce returns a listing, served from cache when possible
func (s *CatalogService) GetProduce(ctx context.Context, id int64) (*models.Produce, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduce", attribute.Int64("produce_id", id))
	defer span.End()

	if cached, ok, err := s.cache.GetProduce(ctx, id); err != nil {
		s.logger.Warn("Produce cache read failed", zap.Int64("produce_id", id), zap.Error(err))
	} else if ok {
		util.ProduceCacheRequestsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.ProduceCacheRequestsTotal.WithLabelValues("miss").Inc()

	produce, err := s.repo.GetProduce(ctx, id)
	if err != nil {
		return nil, notFound(err, "Produce not found")
	}

	if err := s.cache.SetProduce(ctx, produce); err != nil {
		s.logger.Warn("Produce cache write failed", zap.Int64("produce_id", id), zap.Error(err))
	}
	return produce, nil
}

// ListProduce returns a farmer's listings, or every active listing when
// farmerID is zero
func (s *CatalogService) ListProduce(ctx context.Context, farmerID int64) ([]models.Produce, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProduce")
	defer span.End()

	filter := store.ProduceFilter{FarmerID: farmerID, ActiveOnly: farmerID == 0}
	return s.repo.ListProduce(ctx, filter)
}

// CreateProduce lists new produce for the calling farmer
func (s *CatalogService) CreateProduce(ctx context.Context, actor models.Actor, req *CreateProduceRequest) (*models.Produce, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduce")
	defer span.End()

	if actor.Role != models.RoleFarmer {
		return nil, apperr.Forbidden("Only farmers can list produce")
	}

	produce := &models.Produce{
		FarmerID:          actor.ID,
		Name:              req.Name,
		Category:          req.Category,
		Description:       req.Description,
		PricePerKg:        req.PricePerKg,
		MinOrderQuantity:  req.MinOrderQuantity,
		AvailableQuantity: req.AvailableQuantity,
		TotalQuantity:     req.TotalQuantity,
		IsActive:          req.IsActive == nil || *req.IsActive,
	}
	if err := validateProduce(produce); err != nil {
		return nil, err
	}

	err := s.repo.WithTx(ctx, func(q store.Querier) error {
		if err := q.CreateProduce(ctx, produce); err != nil {
			return fmt.Errorf("failed to create produce: %w", err)
		}
		return q.CreatePriceHistory(ctx, &models.PriceHistory{ProduceID: produce.ID, Price: produce.PricePerKg})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Produce listed",
		zap.Int64("produce_id", produce.ID),
		zap.Int64("farmer_id", produce.FarmerID),
		zap.String("price_per_kg", produce.PricePerKg.String()))
	return produce, nil
}

// UpdateProduce applies a listing edit by its owning farmer
func (s *CatalogService) UpdateProduce(ctx context.Context, actor models.Actor, id int64, req *UpdateProduceRequest) (*models.Produce, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduce", attribute.Int64("produce_id", id))
	defer span.End()

	var (
		produce  *models.Produce
		oldPrice decimal.Decimal
	)
	err := s.repo.WithTx(ctx, func(q store.Querier) error {
		var err error
		produce, err = q.GetProduceForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "Produce not found")
		}
		if actor.Role != models.RoleFarmer || produce.FarmerID != actor.ID {
			return apperr.Forbidden("You can only update your own produce")
		}

		oldPrice = produce.PricePerKg
		applyProducePatch(produce, req)
		if err := validateProduce(produce); err != nil {
			return err
		}

		if err := q.UpdateProduce(ctx, produce); err != nil {
			return fmt.Errorf("failed to update produce: %w", err)
		}
		if !produce.PricePerKg.Equal(oldPrice) {
			return q.CreatePriceHistory(ctx, &models.PriceHistory{ProduceID: id, Price: produce.PricePerKg})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	if !produce.PricePerKg.Equal(oldPrice) {
		publishPriceChanged(ctx, s.publisher, s.logger, id, 0, oldPrice, produce.PricePerKg)
	}
	return produce, nil
}

// PriceHistory returns a listing's recorded prices, newest first
func (s *CatalogService) PriceHistory(ctx context.Context, id int64) ([]models.PriceHistory, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.PriceHistory", attribute.Int64("produce_id", id))
	defer span.End()

	if _, err := s.repo.GetProduce(ctx, id); err != nil {
		return nil, notFound(err, "Produce not found")
	}
	return s.repo.ListPriceHistory(ctx, id)
}

// RefreshProduce reloads a listing into the cache
func (s *CatalogService) RefreshProduce(ctx context.Context, id int64) error {
	produce, err := s.repo.GetProduce(ctx, id)
	if err != nil {
		s.invalidate(ctx, id)
		return notFound(err, "Produce not found")
	}
	return s.cache.SetProduce(ctx, produce)
}

func (s *CatalogService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.InvalidateProduce(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate produce cache", zap.Int64("produce_id", id), zap.Error(err))
	}
}

func applyProducePatch(p *models.Produce, req *UpdateProduceRequest) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.PricePerKg != nil {
		p.PricePerKg = *req.PricePerKg
	}
	if req.MinOrderQuantity != nil {
		p.MinOrderQuantity = *req.MinOrderQuantity
	}
	if req.AvailableQuantity != nil {
		p.AvailableQuantity = *req.AvailableQuantity
	}
	if req.TotalQuantity != nil {
		p.TotalQuantity = *req.TotalQuantity
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
}

func publishPriceChanged(ctx context.Context, publisher EventPublisher, logger *zap.Logger, produceID, orderID int64, oldPrice, newPrice decimal.Decimal) {
	if publisher == nil {
		return
	}
	event := &models.ProducePriceChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeProducePriceChanged),
		ProduceID: produceID,
		OldPrice:  oldPrice,
		NewPrice:  newPrice,
		OrderID:   orderID,
	}
	if err := publisher.PublishProducePriceChanged(ctx, event); err != nil {
		logger.Error("Failed to publish ProducePriceChanged event", zap.Error(err))
	}
}
