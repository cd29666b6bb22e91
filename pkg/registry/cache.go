package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const publishedCacheKey = "shelf:published"

// PublishedCache is an optional Redis read-through cache for the published
// list. A nil *PublishedCache is valid and disables caching.
type PublishedCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPublishedCache connects to Redis and verifies the connection
func NewPublishedCache(ctx context.Context, redisURL string, ttl time.Duration) (*PublishedCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &PublishedCache{client: client, ttl: ttl}, nil
}

// Get returns the cached published list, or (nil, false) on a miss
func (c *PublishedCache) Get(ctx context.Context) ([]PluginRelease, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, publishedCacheKey).Result()
	if err != nil {
		return nil, false
	}

	var releases []PluginRelease
	if err := json.Unmarshal([]byte(data), &releases); err != nil {
		// Corrupt entry: drop it and fall through to the store.
		c.client.Del(ctx, publishedCacheKey)
		return nil, false
	}

	return releases, true
}

// Set stores the published list
func (c *PublishedCache) Set(ctx context.Context, releases []PluginRelease) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(releases)
	if err != nil {
		return fmt.Errorf("failed to marshal published list: %w", err)
	}

	return c.client.Set(ctx, publishedCacheKey, data, c.ttl).Err()
}

// Invalidate drops the cached published list
func (c *PublishedCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, publishedCacheKey).Err()
}

// Close releases the Redis connection
func (c *PublishedCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
