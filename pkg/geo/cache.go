package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache keeps lookup results, including empty ones, for a while.
// Implementations must be safe for concurrent use and treat their own
// failures as misses.
type Cache interface {
	Get(ctx context.Context, ip string) (Location, bool)
	Set(ctx context.Context, ip string, loc Location, ttl time.Duration)
}

// MemoryCache is a bounded in-process cache. Each entry costs 1, so
// maxEntries caps the number of addresses held; the least valuable ones
// are evicted first.
type MemoryCache struct {
	cache *ristretto.Cache[string, Location]
}

// NewMemoryCache creates a cache holding up to maxEntries addresses.
func NewMemoryCache(maxEntries int64) (*MemoryCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", maxEntries)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Location]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create geo cache: %w", err)
	}
	return &MemoryCache{cache: cache}, nil
}

func (c *MemoryCache) Get(_ context.Context, ip string) (Location, bool) {
	return c.cache.Get(ip)
}

func (c *MemoryCache) Set(_ context.Context, ip string, loc Location, ttl time.Duration) {
	c.cache.SetWithTTL(ip, loc, 1, ttl)
}

// Wait blocks until pending writes are applied.
func (c *MemoryCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *MemoryCache) Close() {
	c.cache.Close()
}

const redisKeyPrefix = "geo:"

// RedisCache shares lookups between ingestion replicas.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a cache from a Redis URL such as
// redis://localhost:6379/0.
func NewRedisCache(redisURL string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: redis.NewClient(opts), logger: logger}, nil
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, ip string) (Location, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+ip).Bytes()
	if err == redis.Nil {
		return Location{}, false
	}
	if err != nil {
		c.logger.Debug("geo cache get failed", zap.Error(err))
		return Location{}, false
	}
	var loc Location
	if err := json.Unmarshal(val, &loc); err != nil {
		return Location{}, false
	}
	return loc, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, loc Location, ttl time.Duration) {
	val, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+ip, val, ttl).Err(); err != nil {
		c.logger.Debug("geo cache set failed", zap.Error(err))
	}
}

// Close closes the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
