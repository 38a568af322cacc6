package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
)

// Options tunes the order and negotiation rules
type Options struct {
	MaxNegotiationEntries int
	ReserveStockOnAccept  bool
	// LockWait bounds how long a request waits for another request on the
	// same order to finish.
	LockWait time.Duration
}

// DefaultOptions returns the marketplace defaults
func DefaultOptions() Options {
	return Options{
		MaxNegotiationEntries: DefaultMaxNegotiationEntries,
		ReserveStockOnAccept:  true,
		LockWait:              3 * time.Second,
	}
}

func orderLockKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// acquire takes key on locker, waiting at most wait.
func acquire(ctx context.Context, locker Locker, key string, wait time.Duration) (func(), error) {
	start := time.Now()
	defer func() {
		util.OrderLockWaitLatency.Observe(time.Since(start).Seconds())
	}()

	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	unlock, err := locker.Lock(lockCtx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.CodeConflict, "Another update to this order is in progress, please retry")
	}
	return unlock, nil
}

// notFound turns a repository miss into the caller-facing error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
