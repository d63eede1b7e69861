package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache decorates a Provider with a Redis-backed text-to-vector cache.
// Identical text maps to the same key, so repeated stores and queries
// skip the embedding round trip. Cache failures degrade to pass-through:
// a broken cache must never surface as an embedding failure.
type Cache struct {
	inner  Provider
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache wraps the provider with a cache at the given Redis URL.
func NewCache(inner Provider, redisURL, model string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Cache{
		inner:  inner,
		client: redis.NewClient(opts),
		model:  model,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Embed returns the cached vector for the text when present, otherwise
// delegates to the wrapped provider and caches the result.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var vec []float32
		if jsonErr := json.Unmarshal(raw, &vec); jsonErr == nil && len(vec) > 0 {
			return vec, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(vec); jsonErr == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}

// Dimension delegates to the wrapped provider.
func (c *Cache) Dimension() int { return c.inner.Dimension() }

// Close releases the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }

// key derives a stable cache key from the model and text.
func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "mnemo:emb:" + hex.EncodeToString(sum[:])
}
