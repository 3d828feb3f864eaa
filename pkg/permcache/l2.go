package permcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quillhub/quillhub/pkg/observability"
)

// L2Cache is the shared tier backed by Redis. Every process in front of
// the same store talks to the same keyspace, so a decision filled by one
// process is a hit for the rest.
//
// The tier fails open: connectivity errors surface as
// ErrTierUnavailable, which resolution treats as a miss. It never fails
// a request on its own.
type L2Cache struct {
	client  *redis.Client
	timeout time.Duration
	logger  *observability.Logger
}

// NewL2Cache wraps an existing Redis client. timeout bounds every
// round-trip so a slow Redis degrades to a miss instead of stalling
// resolution.
func NewL2Cache(client *redis.Client, timeout time.Duration, logger *observability.Logger) *L2Cache {
	return &L2Cache{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Get retrieves a cached decision. Returns ErrCacheMiss when the key is
// absent and ErrTierUnavailable when Redis cannot be reached. A corrupt
// payload is deleted and reported as a miss.
func (c *L2Cache) Get(ctx context.Context, key string) (cachedDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return cachedDecision{}, ErrCacheMiss
	}
	if err != nil {
		return cachedDecision{}, fmt.Errorf("%w: get: %v", ErrTierUnavailable, err)
	}

	var value cachedDecision
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		// Corrupt payload: delete it so the next fill writes a clean one.
		c.client.Del(ctx, key)
		c.logger.WithField("key", key).WithError(err).Warn("deleted corrupt cache entry")
		return cachedDecision{}, ErrCacheMiss
	}

	return value, nil
}

// GetBatch retrieves many keys in one MGET. The result is positional:
// result[i] is nil when keys[i] was absent or corrupt. Returns
// ErrTierUnavailable when Redis cannot be reached.
func (c *L2Cache) GetBatch(ctx context.Context, keys []string) ([]*cachedDecision, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget: %v", ErrTierUnavailable, err)
	}

	result := make([]*cachedDecision, len(keys))
	for i, item := range raw {
		data, ok := item.(string)
		if !ok {
			continue
		}
		var value cachedDecision
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			c.client.Del(ctx, keys[i])
			c.logger.WithField("key", keys[i]).WithError(err).Warn("deleted corrupt cache entry")
			continue
		}
		result[i] = &value
	}

	return result, nil
}

// Set stores a decision under key for ttl.
func (c *L2Cache) Set(ctx context.Context, key string, value cachedDecision, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cached decision: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Delete removes specific keys.
func (c *L2Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrTierUnavailable, err)
	}
	return nil
}

// DeleteByPattern removes every key matching a glob pattern using SCAN,
// so invalidation never blocks Redis the way KEYS would. Returns the
// number of keys deleted.
func (c *L2Cache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("%w: del %s: %v", ErrTierUnavailable, iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: scan %s: %v", ErrTierUnavailable, pattern, err)
	}

	return deleted, nil
}

// IsAvailable reports whether Redis currently answers pings. Used by
// cache stats and health reporting; resolution itself never asks first,
// it just tries and falls through.
func (c *L2Cache) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// Close closes the underlying Redis connection.
func (c *L2Cache) Close() error {
	return c.client.Close()
}
