package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// Cache stores evidence search results in Redis with an in-process LRU
// fallback, so a missing Redis never disables the coordinator.
type Cache struct {
	redis      *redis.Client
	local      *lru.Cache[string, []domain.EvidenceSource]
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// NewCache creates the evidence cache. A Redis connection failure downgrades
// to local-only caching with a warning.
func NewCache(cfg domain.CacheConfig, logger *logrus.Logger) (*Cache, error) {
	if logger == nil {
		logger = logrus.New()
	}
	size := cfg.LocalSize
	if size <= 0 {
		size = 512
	}
	local, err := lru.New[string, []domain.EvidenceSource](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}

	c := &Cache{
		local:      local,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts.PoolSize = cfg.PoolSize
		opts.PoolTimeout = cfg.PoolTimeout
		opts.MaxRetries = cfg.MaxRetries

		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unavailable, evidence cache is local-only")
		} else {
			c.redis = client
		}
	}

	return c, nil
}

// Get returns cached results for a source and query.
func (c *Cache) Get(ctx context.Context, sourceName, query string) ([]domain.EvidenceSource, bool) {
	key := cacheKey(sourceName, query)

	if sources, ok := c.local.Get(key); ok {
		return sources, true
	}

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			var sources []domain.EvidenceSource
			if err := json.Unmarshal([]byte(val), &sources); err == nil {
				c.local.Add(key, sources)
				return sources, true
			}
			c.redis.Del(ctx, key)
		}
	}

	return nil, false
}

// Set stores results in both layers.
func (c *Cache) Set(ctx context.Context, sourceName, query string, sources []domain.EvidenceSource) {
	key := cacheKey(sourceName, query)
	c.local.Add(key, sources)

	if c.redis != nil {
		data, err := json.Marshal(sources)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, key, data, c.defaultTTL).Err(); err != nil {
			c.logger.WithError(err).Debug("Evidence cache write failed")
		}
	}
}

func cacheKey(sourceName, query string) string {
	sum := sha256.Sum256([]byte(sourceName + "|" + query))
	return fmt.Sprintf("evidence:%x", sum)
}
