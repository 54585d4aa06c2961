package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"address-route-optimizer/internal/models"
)

// RedisCache is a Cache stored in Redis, shared between processes
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis returns a client for addr, or nil when addr is empty
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisCache creates a cache on client. A zero ttl keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "geocode:", ttl: ttl}
}

func (c *RedisCache) key(provider, address string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, provider, address)
}

// Get returns nil, nil on a miss
func (c *RedisCache) Get(ctx context.Context, provider, address string) (*models.GeocodeCacheEntry, error) {
	raw, err := c.client.Get(ctx, c.key(provider, address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geocode cache entry: %w", err)
	}

	var entry models.GeocodeCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode geocode cache entry: %w", err)
	}
	return &entry, nil
}

func (c *RedisCache) Set(ctx context.Context, entry *models.GeocodeCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode geocode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(entry.Provider, entry.Address), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set geocode cache entry: %w", err)
	}
	return nil
}

// Clear removes every geocode entry under the cache prefix
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear geocode cache: %w", err)
		}
	}
	return iter.Err()
}
