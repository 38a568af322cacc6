package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const lockRetryInterval = 25 * time.Millisecond

// Options sets the expiry of the keys the client writes
type Options struct {
	LockTTL        time.Duration
	IdempotencyTTL time.Duration
	ProduceTTL     time.Duration
}

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	opts          Options
	logger        *zap.Logger
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb, opts), nil
}

func newClient(rdb *redis.Client, opts Options) *Client {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		opts:          opts,
		logger:        util.GetLogger(),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func lockKey(key string) string {
	return "lock:" + key
}

func idempotencyKey(key string) string {
	return "idempotency:" + key
}

func produceKey(id int64) string {
	return fmt.Sprintf("produce:%d", id)
}

// Lock takes a distributed lock on key, retrying until ctx is done. The lock
// expires after LockTTL if the holder never releases it; unlock only deletes
// the lock while it still carries this holder's token.
func (c *Client) Lock(ctx context.Context, key string) (func(), error) {
	k := lockKey(key)
	token := uuid.New().String()

	for {
		ok, err := c.rdb.SetNX(ctx, k, token, c.opts.LockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { c.release(k, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (c *Client) release(key, token string) {
	// The request context may already be cancelled when the lock is released.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.releaseScript.Run(ctx, c.rdb, []string{key}, token).Err(); err != nil {
		c.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
	}
}

// LookupOrder returns the order an idempotency key produced, if any
func (c *Client) LookupOrder(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency key %s: %w", key, err)
	}
	return orderID, true, nil
}

// RememberOrder stores an idempotency key with TTL
func (c *Client) RememberOrder(ctx context.Context, key string, orderID int64) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, c.opts.IdempotencyTTL).Err()
}

// GetProduce reads a cached listing
func (c *Client) GetProduce(ctx context.Context, id int64) (*models.Produce, bool, error) {
	data, err := c.rdb.Get(ctx, produceKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var produce models.Produce
	if err := json.Unmarshal(data, &produce); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached produce %d: %w", id, err)
	}
	return &produce, true, nil
}

// SetProduce caches a listing for ProduceTTL
func (c *Client) SetProduce(ctx context.Context, produce *models.Produce) error {
	data, err := json.Marshal(produce)
	if err != nil {
		return fmt.Errorf("failed to encode produce %d: %w", produce.ID, err)
	}
	return c.rdb.Set(ctx, produceKey(produce.ID), data, c.opts.ProduceTTL).Err()
}

// InvalidateProduce drops a cached listing
func (c *Client) InvalidateProduce(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, produceKey(id)).Err()
}
