package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paygate/internal/merchant"
)

const orderKeyPrefix = "paygate:order:"

// RedisClient is the slice of the go-redis API the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOrderCache is a read-through order cache. Lookups are served
// from Redis when present; misses and Redis failures fall through to
// the backing store. Status writes invalidate the cached entry.
type RedisOrderCache struct {
	inner  merchant.OrderStore
	client RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisOrderCache wraps the backing store with a Redis layer.
func NewRedisOrderCache(inner merchant.OrderStore, client RedisClient, ttl time.Duration, logger *zap.Logger) *RedisOrderCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisOrderCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

// FindOrder implements merchant.OrderStore.
func (c *RedisOrderCache) FindOrder(ctx context.Context, orderID string) (merchant.Order, error) {
	if orderID == "" {
		return c.inner.FindOrder(ctx, orderID)
	}

	key := orderKeyPrefix + orderID
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var order merchant.Order
		if uerr := json.Unmarshal([]byte(raw), &order); uerr == nil {
			return order, nil
		}
		// Unreadable entry; drop it and reload from the store.
		c.drop(ctx, key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("order cache read failed", zap.String("order", orderID), zap.Error(err))
	}

	order, err := c.inner.FindOrder(ctx, orderID)
	if err != nil {
		return merchant.Order{}, err
	}

	if payload, merr := json.Marshal(order); merr == nil {
		if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.Warn("order cache write failed", zap.String("order", orderID), zap.Error(serr))
		}
	}
	return order, nil
}

// MarkOrderStatus implements merchant.OrderStore. The cached entry is
// dropped after the write so the next lookup sees the new status.
func (c *RedisOrderCache) MarkOrderStatus(ctx context.Context, orderID string, status merchant.OrderStatus) error {
	if err := c.inner.MarkOrderStatus(ctx, orderID, status); err != nil {
		return err
	}
	c.drop(ctx, orderKeyPrefix+orderID)
	return nil
}

func (c *RedisOrderCache) drop(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("order cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
