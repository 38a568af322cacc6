package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ service.EventPublisher = (*EventPublisher)(nil)

type captured struct {
	key   string
	event interface{}
}

type fakeWriter struct {
	sent []captured
}

func (w *fakeWriter) PublishEvent(_ context.Context, key string, event interface{}) error {
	w.sent = append(w.sent, captured{key: key, event: event})
	return nil
}

func base(eventType string) models.BaseEvent {
	return models.BaseEvent{EventID: "e-1", EventType: eventType, Timestamp: time.Now()}
}

func TestEventPublisherKeys(t *testing.T) {
	w := &fakeWriter{}
	ep := NewEventPublisher(w)
	ctx := context.Background()

	require.NoError(t, ep.PublishOrderCreated(ctx, &models.OrderCreatedEvent{BaseEvent: base(models.EventTypeOrderCreated), OrderID: 1}))
	require.NoError(t, ep.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{BaseEvent: base(models.EventTypeOrderStatusChanged), OrderID: 1}))
	require.NoError(t, ep.PublishNegotiationOffered(ctx, &models.NegotiationOfferedEvent{BaseEvent: base(models.EventTypeNegotiationOffered), OrderID: 1}))
	require.NoError(t, ep.PublishNegotiationResponded(ctx, &models.NegotiationRespondedEvent{BaseEvent: base(models.EventTypeNegotiationResponded), OrderID: 1}))
	require.NoError(t, ep.PublishProducePriceChanged(ctx, &models.ProducePriceChangedEvent{BaseEvent: base(models.EventTypeProducePriceChanged), ProduceID: 9, OrderID: 1}))

	require.Len(t, w.sent, 5)
	for _, c := range w.sent[:4] {
		assert.Equal(t, "order-1", c.key)
	}
	assert.Equal(t, "produce-9", w.sent[4].key)
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestEventHandlerRoutes(t *testing.T) {
	eh := NewEventHandler()
	ctx := context.Background()

	var (
		priceEvent  *models.ProducePriceChangedEvent
		statusEvent *models.OrderStatusChangedEvent
	)
	eh.OnProducePriceChanged(func(_ context.Context, e *models.ProducePriceChangedEvent) error {
		priceEvent = e
		return nil
	})
	eh.OnOrderStatusChanged(func(_ context.Context, e *models.OrderStatusChangedEvent) error {
		statusEvent = e
		return nil
	})

	require.NoError(t, eh.HandleMessage(ctx, message(t, &models.ProducePriceChangedEvent{
		BaseEvent: base(models.EventTypeProducePriceChanged),
		ProduceID: 9,
		OldPrice:  decimal.NewFromInt(25),
		NewPrice:  decimal.NewFromInt(23),
	})))
	require.NotNil(t, priceEvent)
	assert.Equal(t, int64(9), priceEvent.ProduceID)
	assert.True(t, decimal.NewFromInt(23).Equal(priceEvent.NewPrice))

	require.NoError(t, eh.HandleMessage(ctx, message(t, &models.OrderStatusChangedEvent{
		BaseEvent: base(models.EventTypeOrderStatusChanged),
		OrderID:   1,
		ProduceID: 9,
		From:      models.OrderStatusNegotiation,
		To:        models.OrderStatusAccepted,
	})))
	require.NotNil(t, statusEvent)
	assert.Equal(t, models.OrderStatusAccepted, statusEvent.To)

	// Events nobody listens for are acknowledged.
	assert.NoError(t, eh.HandleMessage(ctx, message(t, &models.OrderCreatedEvent{BaseEvent: base(models.EventTypeOrderCreated)})))
}

func TestEventHandlerErrors(t *testing.T) {
	eh := NewEventHandler()
	boom := errors.New("boom")
	eh.OnProducePriceChanged(func(context.Context, *models.ProducePriceChangedEvent) error { return boom })

	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)

	err = eh.HandleMessage(context.Background(), message(t, &models.ProducePriceChangedEvent{BaseEvent: base(models.EventTypeProducePriceChanged)}))
	assert.ErrorIs(t, err, boom)
}

func TestEventHandlerSkipsUnroutedHeader(t *testing.T) {
	eh := NewEventHandler()

	// The body is not decoded when the header names an unrouted type.
	msg := kafka.Message{
		Value:   []byte("not json"),
		Headers: []kafka.Header{{Key: eventHeader, Value: []byte(models.EventTypeNegotiationOffered)}},
	}
	assert.NoError(t, eh.HandleMessage(context.Background(), msg))

	eventType, ok := EventType(msg)
	assert.True(t, ok)
	assert.Equal(t, models.EventTypeNegotiationOffered, eventType)

	_, ok = EventType(kafka.Message{})
	assert.False(t, ok)
}

func TestBaseEventType(t *testing.T) {
	var event interface{} = &models.OrderCreatedEvent{BaseEvent: base(models.EventTypeOrderCreated)}
	te, ok := event.(typedEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventTypeOrderCreated, te.Type())
}
