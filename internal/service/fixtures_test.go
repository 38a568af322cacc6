package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	farmer      = models.Actor{ID: 7, Role: models.RoleFarmer}
	otherFarmer = models.Actor{ID: 8, Role: models.RoleFarmer}
	vendor      = models.Actor{ID: 3, Role: models.RoleVendor}
	otherVendor = models.Actor{ID: 4, Role: models.RoleVendor}
)

// recordingPublisher keeps every published event type in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishNegotiationOffered(_ context.Context, e *models.NegotiationOfferedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishNegotiationResponded(_ context.Context, e *models.NegotiationRespondedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishProducePriceChanged(_ context.Context, e *models.ProducePriceChangedEvent) error {
	return p.record(e.EventType)
}

// mapCache is an in-memory ProduceCache
type mapCache struct {
	mu    sync.Mutex
	items map[int64]models.Produce
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[int64]models.Produce)}
}

func (c *mapCache) GetProduce(_ context.Context, id int64) (*models.Produce, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *mapCache) SetProduce(_ context.Context, p *models.Produce) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.ID] = *p
	return nil
}

func (c *mapCache) InvalidateProduce(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	return nil
}

func (c *mapCache) has(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[id]
	return ok
}

type testEnv struct {
	repo         *store.MemoryStore
	cache        *mapCache
	publisher    *recordingPublisher
	catalog      *CatalogService
	orders       *OrderService
	negotiations *NegotiationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnv()
}

func newEnv() *testEnv {
	repo := store.NewMemoryStore()
	cache := newMapCache()
	publisher := &recordingPublisher{}
	locker := NewLocalLocker()
	calc := pricing.NewCalculator(pricing.DefaultCommissionRate)
	opts := DefaultOptions()

	return &testEnv{
		repo:         repo,
		cache:        cache,
		publisher:    publisher,
		catalog:      NewCatalogService(repo, cache, publisher),
		orders:       NewOrderService(repo, locker, NewLocalIdempotencyStore(), cache, publisher, calc, opts),
		negotiations: NewNegotiationService(repo, locker, cache, publisher, calc, opts),
	}
}

// seedProduce lists 500kg of tomatoes at 25/kg, minimum 50kg, owned by farmer
func (e *testEnv) seedProduce(t *testing.T) *models.Produce {
	t.Helper()
	p, err := e.catalog.CreateProduce(context.Background(), farmer, &CreateProduceRequest{
		Name:              "Tomatoes",
		Category:          "vegetables",
		PricePerKg:        decimal.NewFromInt(25),
		MinOrderQuantity:  50,
		AvailableQuantity: 500,
		TotalQuantity:     500,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) seedOrder(t *testing.T, produceID int64, quantity int) *models.Order {
	t.Helper()
	order, err := e.orders.CreateOrder(context.Background(), vendor, &CreateOrderRequest{
		ProduceID: produceID,
		Quantity:  quantity,
	}, "")
	require.NoError(t, err)
	return order
}

func (e *testEnv) offer(actor models.Actor, orderID int64, price string) (*models.Negotiation, error) {
	return e.negotiations.CreateNegotiation(context.Background(), actor, &CreateNegotiationRequest{
		OrderID:      orderID,
		OfferedPrice: decimal.RequireFromString(price),
	})
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func newLockWaitOptions(wait time.Duration) Options {
	opts := DefaultOptions()
	opts.LockWait = wait
	return opts
}
