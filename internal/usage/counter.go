// Package usage keeps a best-effort per-profile daily request counter in
// Redis. The counter informs a soft cap; Redis being unreachable never blocks
// a request.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tastemate/internal/common/config"
	"tastemate/internal/common/database"
	"tastemate/internal/common/logger"
)

type Counter struct {
	redis  *database.RedisClient
	cfg    config.UsageConfig
	logger logger.Logger

	mu    sync.Mutex
	cache map[string]cachedCount
}

type cachedCount struct {
	count   int64
	expires time.Time
}

func NewCounter(redis *database.RedisClient, cfg config.UsageConfig, log logger.Logger) *Counter {
	return &Counter{
		redis:  redis,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "usage"}),
		cache:  map[string]cachedCount{},
	}
}

func dailyKey(profileID string, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s", profileID, now.UTC().Format("2006-01-02"))
}

// Increment bumps today's counter for the profile and returns the new count.
// The key expires after the configured counter TTL so stale days clean
// themselves up.
func (c *Counter) Increment(ctx context.Context, profileID string) (int64, error) {
	key := dailyKey(profileID, time.Now())

	count, err := c.redis.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment usage counter: %w", err)
	}
	if count == 1 && c.cfg.CounterTTL > 0 {
		if err := c.redis.Client.Expire(ctx, key, time.Duration(c.cfg.CounterTTL)*time.Millisecond).Err(); err != nil {
			c.logger.Warn("failed to set usage counter ttl", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	c.mu.Lock()
	c.cache[key] = cachedCount{count: count, expires: time.Now().Add(c.cacheTTL())}
	c.mu.Unlock()

	return count, nil
}

// Count reads today's counter, serving from a short-lived in-process cache to
// keep hot profiles off Redis.
func (c *Counter) Count(ctx context.Context, profileID string) (int64, error) {
	key := dailyKey(profileID, time.Now())

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.count, nil
	}
	c.mu.Unlock()

	val, err := c.redis.Client.Get(ctx, key).Int64()
	if err == redis.Nil {
		val = 0
	} else if err != nil {
		return 0, fmt.Errorf("read usage counter: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = cachedCount{count: val, expires: time.Now().Add(c.cacheTTL())}
	c.mu.Unlock()

	return val, nil
}

// Allow increments the counter and reports whether the profile is still under
// the daily cap. A zero cap disables limiting; counter errors fail open.
func (c *Counter) Allow(ctx context.Context, profileID string) (bool, int64) {
	count, err := c.Increment(ctx, profileID)
	if err != nil {
		c.logger.Warn("usage counter unavailable, allowing request", map[string]interface{}{
			"profileId": profileID,
			"error":     err.Error(),
		})
		return true, 0
	}
	if c.cfg.DailyCap <= 0 {
		return true, count
	}
	return count <= int64(c.cfg.DailyCap), count
}

func (c *Counter) cacheTTL() time.Duration {
	if c.cfg.CacheTTL <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.cfg.CacheTTL) * time.Millisecond
}
