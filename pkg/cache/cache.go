package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is the short fixed expiry on cached read models. It acts as a
// safety net against any missed invalidation.
const DefaultTTL = 60 * time.Second

// Cache is a fail-open read accelerator over Redis. Every error is logged
// and swallowed: the caller proceeds against the store as if the key were
// absent, so the system stays correct with Redis down.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a cache over an existing Redis client.
func New(client *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, logger: logger}
}

// GetJSON loads key into dest. Returns false on miss, error, or stale JSON
// (a stale entry is dropped so the next read repopulates it).
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logger.Warn("cache entry unreadable, dropping", zap.String("key", key), zap.Error(err))
		c.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON stores value under key with the default TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, DefaultTTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Del removes keys. Errors are logged only.
func (c *Cache) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidateDeal clears every cached view a deal mutation can stale: the
// entity key, the aggregate list, and the deal's category list. All deal
// writers go through here.
func (c *Cache) InvalidateDeal(ctx context.Context, dealID, category string) {
	c.Del(ctx, DealKey(dealID), DealsAllKey, DealsCategoryKey(category))
}

// InvalidateUserNotifications clears a user's notification list and the
// admin list.
func (c *Cache) InvalidateUserNotifications(ctx context.Context, userID string) {
	c.Del(ctx, UserNotificationsKey(userID), NotificationsAllKey)
}
