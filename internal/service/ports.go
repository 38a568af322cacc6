package service

import (
	"context"
	"sync"

	"marketplace-service/internal/models"
)

// Locker serializes work on a key across requests (and, with Redis, across
// service instances).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// IdempotencyStore remembers which order a client-supplied key produced
type IdempotencyStore interface {
	LookupOrder(ctx context.Context, key string) (orderID int64, found bool, err error)
	RememberOrder(ctx context.Context, key string, orderID int64) error
}

// ProduceCache is a read-through cache of listings
type ProduceCache interface {
	GetProduce(ctx context.Context, id int64) (*models.Produce, bool, error)
	SetProduce(ctx context.Context, produce *models.Produce) error
	InvalidateProduce(ctx context.Context, id int64) error
}

// EventPublisher publishes committed marketplace changes
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishNegotiationOffered(ctx context.Context, event *models.NegotiationOfferedEvent) error
	PublishNegotiationResponded(ctx context.Context, event *models.NegotiationRespondedEvent) error
	PublishProducePriceChanged(ctx context.Context, event *models.ProducePriceChangedEvent) error
}

// LocalLocker is a Locker for a single process. A key's entry lives only
// while someone holds or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return func() {
			<-lk.ch
			l.release(key, lk)
		}, nil
	case <-ctx.Done():
		l.release(key, lk)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// LocalIdempotencyStore keeps idempotency keys in memory without expiry
type LocalIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]int64
}

func NewLocalIdempotencyStore() *LocalIdempotencyStore {
	return &LocalIdempotencyStore{keys: make(map[string]int64)}
}

func (s *LocalIdempotencyStore) LookupOrder(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	return id, ok, nil
}

func (s *LocalIdempotencyStore) RememberOrder(_ context.Context, key string, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = orderID
	return nil
}

// NoopCache disables produce caching
type NoopCache struct{}

func (NoopCache) GetProduce(context.Context, int64) (*models.Produce, bool, error) {
	return nil, false, nil
}
func (NoopCache) SetProduce(context.Context, *models.Produce) error { return nil }
func (NoopCache) InvalidateProduce(context.Context, int64) error   { return nil }
