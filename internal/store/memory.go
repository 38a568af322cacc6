package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace-service/internal/models"
)

// MemoryStore is an in-process Repository. Transactions are serialized and
// work on a private copy of the data that replaces the live copy on commit.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	produce      map[int64]models.Produce
	priceHistory map[int64]models.PriceHistory
	orders       map[int64]models.Order
	negotiations map[int64]models.Negotiation

	nextProduceID      int64
	nextPriceHistoryID int64
	nextOrderID        int64
	nextNegotiationID  int64
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			produce:      make(map[int64]models.Produce),
			priceHistory: make(map[int64]models.PriceHistory),
			orders:       make(map[int64]models.Order),
			negotiations: make(map[int64]models.Negotiation),
		},
	}
}

func (d *memData) clone() *memData {
	c := *d
	c.produce = make(map[int64]models.Produce, len(d.produce))
	for k, v := range d.produce {
		c.produce[k] = v
	}
	c.priceHistory = make(map[int64]models.PriceHistory, len(d.priceHistory))
	for k, v := range d.priceHistory {
		c.priceHistory[k] = v
	}
	c.orders = make(map[int64]models.Order, len(d.orders))
	for k, v := range d.orders {
		c.orders[k] = v
	}
	c.negotiations = make(map[int64]models.Negotiation, len(d.negotiations))
	for k, v := range d.negotiations {
		c.negotiations[k] = v
	}
	return &c
}

// WithTx runs fn against a copy of the data and publishes the copy if fn succeeds
func (m *MemoryStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.data.clone()
	if err := fn(&memQuerier{data: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *MemoryStore) read() *memQuerier {
	return &memQuerier{data: m.data}
}

func (m *MemoryStore) write(ctx context.Context, fn func(q *memQuerier) error) error {
	return m.WithTx(ctx, func(q Querier) error {
		return fn(q.(*memQuerier))
	})
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetProduce(ctx context.Context, id int64) (*models.Produce, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetProduce(ctx, id)
}

func (m *MemoryStore) GetProduceForUpdate(ctx context.Context, id int64) (*models.Produce, error) {
	return m.GetProduce(ctx, id)
}

func (m *MemoryStore) ListProduce(ctx context.Context, filter ProduceFilter) ([]models.Produce, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListProduce(ctx, filter)
}

func (m *MemoryStore) CreateProduce(ctx context.Context, produce *models.Produce) error {
	return m.write(ctx, func(q *memQuerier) error { return q.CreateProduce(ctx, produce) })
}

func (m *MemoryStore) UpdateProduce(ctx context.Context, produce *models.Produce) error {
	return m.write(ctx, func(q *memQuerier) error { return q.UpdateProduce(ctx, produce) })
}

func (m *MemoryStore) CreatePriceHistory(ctx context.Context, entry *models.PriceHistory) error {
	return m.write(ctx, func(q *memQuerier) error { return q.CreatePriceHistory(ctx, entry) })
}

func (m *MemoryStore) ListPriceHistory(ctx context.Context, produceID int64) ([]models.PriceHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListPriceHistory(ctx, produceID)
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return m.write(ctx, func(q *memQuerier) error { return q.CreateOrder(ctx, order) })
}

func (m *MemoryStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetOrder(ctx, id)
}

func (m *MemoryStore) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListOrders(ctx, filter)
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	return m.write(ctx, func(q *memQuerier) error { return q.UpdateOrder(ctx, order) })
}

func (m *MemoryStore) CreateNegotiation(ctx context.Context, negotiation *models.Negotiation) error {
	return m.write(ctx, func(q *memQuerier) error { return q.CreateNegotiation(ctx, negotiation) })
}

func (m *MemoryStore) GetNegotiation(ctx context.Context, id int64) (*models.Negotiation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetNegotiation(ctx, id)
}

func (m *MemoryStore) ListNegotiations(ctx context.Context, orderID int64) ([]models.Negotiation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListNegotiations(ctx, orderID)
}

func (m *MemoryStore) UpdateNegotiation(ctx context.Context, negotiation *models.Negotiation) error {
	return m.write(ctx, func(q *memQuerier) error { return q.UpdateNegotiation(ctx, negotiation) })
}

// memQuerier operates on one memData without locking; callers hold the lock.
type memQuerier struct {
	data *memData
}

func (q *memQuerier) GetProduce(_ context.Context, id int64) (*models.Produce, error) {
	p, ok := q.data.produce[id]
	if !ok {
		return nil, fmt.Errorf("produce %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (q *memQuerier) GetProduceForUpdate(ctx context.Context, id int64) (*models.Produce, error) {
	return q.GetProduce(ctx, id)
}

func (q *memQuerier) ListProduce(_ context.Context, filter ProduceFilter) ([]models.Produce, error) {
	out := []models.Produce{}
	for _, p := range q.data.produce {
		if filter.FarmerID != 0 && p.FarmerID != filter.FarmerID {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CreateProduce(_ context.Context, produce *models.Produce) error {
	q.data.nextProduceID++
	now := time.Now()
	produce.ID = q.data.nextProduceID
	produce.CreatedAt = now
	produce.UpdatedAt = now
	q.data.produce[produce.ID] = *produce
	return nil
}

func (q *memQuerier) UpdateProduce(_ context.Context, produce *models.Produce) error {
	existing, ok := q.data.produce[produce.ID]
	if !ok {
		return fmt.Errorf("produce %d: %w", produce.ID, ErrNotFound)
	}
	produce.FarmerID = existing.FarmerID
	produce.CreatedAt = existing.CreatedAt
	produce.UpdatedAt = time.Now()
	q.data.produce[produce.ID] = *produce
	return nil
}

func (q *memQuerier) CreatePriceHistory(_ context.Context, entry *models.PriceHistory) error {
	if _, ok := q.data.produce[entry.ProduceID]; !ok {
		return fmt.Errorf("produce %d: %w", entry.ProduceID, ErrNotFound)
	}
	q.data.nextPriceHistoryID++
	entry.ID = q.data.nextPriceHistoryID
	entry.RecordedAt = time.Now()
	q.data.priceHistory[entry.ID] = *entry
	return nil
}

func (q *memQuerier) ListPriceHistory(_ context.Context, produceID int64) ([]models.PriceHistory, error) {
	out := []models.PriceHistory{}
	for _, h := range q.data.priceHistory {
		if h.ProduceID == produceID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (q *memQuerier) CreateOrder(_ context.Context, order *models.Order) error {
	if _, ok := q.data.produce[order.ProduceID]; !ok {
		return fmt.Errorf("produce %d: %w", order.ProduceID, ErrNotFound)
	}
	q.data.nextOrderID++
	now := time.Now()
	order.ID = q.data.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	q.data.orders[order.ID] = *order
	return nil
}

func (q *memQuerier) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := q.data.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return &o, nil
}

// GetOrderForUpdate needs no row lock: the enclosing WithTx holds the store lock.
func (q *memQuerier) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return q.GetOrder(ctx, id)
}

func (q *memQuerier) ListOrders(_ context.Context, filter OrderFilter) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range q.data.orders {
		if filter.VendorID != 0 && o.VendorID != filter.VendorID {
			continue
		}
		if filter.FarmerID != 0 && o.FarmerID != filter.FarmerID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (q *memQuerier) UpdateOrder(_ context.Context, order *models.Order) error {
	existing, ok := q.data.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", order.ID, ErrNotFound)
	}
	existing.PricePerKg = order.PricePerKg
	existing.TotalAmount = order.TotalAmount
	existing.Status = order.Status
	existing.CommissionAmount = order.CommissionAmount
	existing.UpdatedAt = time.Now()
	q.data.orders[order.ID] = existing
	order.UpdatedAt = existing.UpdatedAt
	return nil
}

func (q *memQuerier) CreateNegotiation(_ context.Context, negotiation *models.Negotiation) error {
	if _, ok := q.data.orders[negotiation.OrderID]; !ok {
		return fmt.Errorf("order %d: %w", negotiation.OrderID, ErrNotFound)
	}
	for _, n := range q.data.negotiations {
		if n.OrderID == negotiation.OrderID && n.Round == negotiation.Round && n.ProposedBy == negotiation.ProposedBy {
			return fmt.Errorf("duplicate negotiation for order %d round %d by %s",
				negotiation.OrderID, negotiation.Round, negotiation.ProposedBy)
		}
	}
	q.data.nextNegotiationID++
	negotiation.ID = q.data.nextNegotiationID
	negotiation.CreatedAt = time.Now()
	q.data.negotiations[negotiation.ID] = *negotiation
	return nil
}

func (q *memQuerier) GetNegotiation(_ context.Context, id int64) (*models.Negotiation, error) {
	n, ok := q.data.negotiations[id]
	if !ok {
		return nil, fmt.Errorf("negotiation %d: %w", id, ErrNotFound)
	}
	return &n, nil
}

func (q *memQuerier) ListNegotiations(_ context.Context, orderID int64) ([]models.Negotiation, error) {
	out := []models.Negotiation{}
	for _, n := range q.data.negotiations {
		if n.OrderID == orderID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQuerier) UpdateNegotiation(_ context.Context, negotiation *models.Negotiation) error {
	existing, ok := q.data.negotiations[negotiation.ID]
	if !ok {
		return fmt.Errorf("negotiation %d: %w", negotiation.ID, ErrNotFound)
	}
	existing.Status = negotiation.Status
	existing.RespondedAt = negotiation.RespondedAt
	q.data.negotiations[negotiation.ID] = existing
	return nil
}
