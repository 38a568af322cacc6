package worker

import (
	"context"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// ProduceRefresher reloads a listing into the produce cache
type ProduceRefresher interface {
	RefreshProduce(ctx context.Context, produceID int64) error
}

// MessageSource is a stream of marketplace events; *broker.Consumer
// implements it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CatalogWorker keeps cached listings in step with committed price and stock
// changes, including those made by other service instances.
type CatalogWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	catalog      ProduceRefresher
	logger       *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(consumer MessageSource, catalog ProduceRefresher) *CatalogWorker {
	w := &CatalogWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		catalog:      catalog,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnProducePriceChanged(w.handlePriceChanged)
	w.eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	return w
}

// Start starts the worker
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}

func (w *CatalogWorker) handlePriceChanged(ctx context.Context, event *models.ProducePriceChangedEvent) error {
	w.logger.Info("Refreshing produce after price change",
		zap.Int64("produce_id", event.ProduceID),
		zap.String("old_price", event.OldPrice.String()),
		zap.String("new_price", event.NewPrice.String()))
	return w.refresh(ctx, event.ProduceID)
}

// handleStatusChanged refreshes the listing when a transition moved its stock
func (w *CatalogWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	touchesStock := event.To == models.OrderStatusAccepted ||
		(event.From == models.OrderStatusAccepted && event.To == models.OrderStatusCancelled)
	if !touchesStock {
		return nil
	}
	return w.refresh(ctx, event.ProduceID)
}

func (w *CatalogWorker) refresh(ctx context.Context, produceID int64) error {
	err := w.catalog.RefreshProduce(ctx, produceID)
	if apperr.Is(err, apperr.CodeNotFound) {
		w.logger.Warn("Produce from event no longer exists", zap.Int64("produce_id", produceID))
		return nil
	}
	return err
}
