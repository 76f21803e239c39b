package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hunabku/shorturl/internal/config"
	"github.com/hunabku/shorturl/internal/logger"
	"github.com/hunabku/shorturl/internal/model"
	"github.com/hunabku/shorturl/internal/repository"
)

// Marks a code known to be absent from the backend.
const missingMarker = "null"

// RedisCache is a read-through cache in front of a repository.Store.
// Only Get is cached; allocation goes straight to the backend. Cache
// failures are logged and fall back to the backend.
type RedisCache struct {
	repository.Store

	client      *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
	prefix      string
	log         *logger.Logger
}

// NewRedisCache wraps backend. The cache owns client and backend and closes
// both in Close.
func NewRedisCache(client *redis.Client, backend repository.Store, cfg *config.CacheConfig, prefix string, log *logger.Logger) *RedisCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	negativeTTL := cfg.NegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = time.Minute
	}

	return &RedisCache{
		Store:       backend,
		client:      client,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		prefix:      prefix + "cache:",
		log:         log,
	}
}

// Open wraps backend in a RedisCache when cfg enables the cache and returns
// backend unchanged otherwise. On failure backend is closed.
func Open(ctx context.Context, backend repository.Store, cfg *config.Config, log *logger.Logger) (repository.Store, error) {
	if !cfg.Cache.Enabled {
		return backend, nil
	}

	client, err := repository.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			log.Error("failed to close store", "error", closeErr.Error())
		}
		return nil, err
	}
	return NewRedisCache(client, backend, &cfg.Cache, cfg.Redis.KeyPrefix, log), nil
}

func (c *RedisCache) key(code string) string {
	return c.prefix + code
}

func (c *RedisCache) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	key := c.key(code)

	data, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if data == missingMarker {
			return nil, repository.ErrNotFound
		}
		var link model.ShortLink
		if err := json.Unmarshal([]byte(data), &link); err == nil {
			return &link, nil
		}
		c.log.Warn("discarding malformed cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", "key", key, "error", err.Error())
	}

	link, err := c.Store.Get(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		// SetNX so a miss observed before a concurrent insert never
		// shadows the entry that insert wrote.
		if err := c.client.SetNX(ctx, key, missingMarker, c.negativeTTL).Err(); err != nil {
			c.log.Warn("cache write failed", "key", key, "error", err.Error())
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(link); err == nil {
		c.set(ctx, key, string(data), c.ttl)
	}
	return link, nil
}

// InsertIfAbsent writes through to the backend, then caches the new link
// over any negative entry left for the code.
func (c *RedisCache) InsertIfAbsent(ctx context.Context, link *model.ShortLink) error {
	if err := c.Store.InsertIfAbsent(ctx, link); err != nil {
		return err
	}

	key := c.key(link.Code)
	data, err := json.Marshal(link)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.log.Warn("cache write failed", "code", link.Code, "error", err.Error())
		// A stale negative entry must not outlive the insert.
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.log.Warn("cache invalidation failed", "code", link.Code, "error", err.Error())
		}
	}
	return nil
}

func (c *RedisCache) set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err.Error())
	}
}

func (c *RedisCache) Close() error {
	return errors.Join(c.Store.Close(), c.client.Close())
}
