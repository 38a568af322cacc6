package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter sends one keyed event; *Producer implements it.
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func produceKey(produceID int64) string {
	return fmt.Sprintf("produce-%d", produceID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishNegotiationOffered publishes NegotiationOffered event
func (ep *EventPublisher) PublishNegotiationOffered(ctx context.Context, event *models.NegotiationOfferedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishNegotiationResponded publishes NegotiationResponded event
func (ep *EventPublisher) PublishNegotiationResponded(ctx context.Context, event *models.NegotiationRespondedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishProducePriceChanged publishes ProducePriceChanged event
func (ep *EventPublisher) PublishProducePriceChanged(ctx context.Context, event *models.ProducePriceChangedEvent) error {
	return ep.producer.PublishEvent(ctx, produceKey(event.ProduceID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onProducePriceChanged func(context.Context, *models.ProducePriceChangedEvent) error
	onOrderStatusChanged  func(context.Context, *models.OrderStatusChangedEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnProducePriceChanged registers a handler for ProducePriceChanged events
func (eh *EventHandler) OnProducePriceChanged(handler func(context.Context, *models.ProducePriceChangedEvent) error) {
	eh.onProducePriceChanged = handler
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

func (eh *EventHandler) routes(eventType string) bool {
	switch eventType {
	case models.EventTypeProducePriceChanged:
		return eh.onProducePriceChanged != nil
	case models.EventTypeOrderStatusChanged:
		return eh.onOrderStatusChanged != nil
	}
	return false
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	if eventType, ok := EventType(msg); ok && !eh.routes(eventType) {
		return nil
	}

	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))
	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType).Inc()

	switch baseEvent.EventType {
	case models.EventTypeProducePriceChanged:
		if eh.onProducePriceChanged != nil {
			var event models.ProducePriceChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProducePriceChanged event: %w", err)
			}
			return eh.onProducePriceChanged(ctx, &event)
		}

	case models.EventTypeOrderStatusChanged:
		if eh.onOrderStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return eh.onOrderStatusChanged(ctx, &event)
		}
	}

	return nil
}
