package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunabku/shorturl/internal/config"
	"github.com/hunabku/shorturl/internal/logger"
	"github.com/hunabku/shorturl/internal/model"
	"github.com/hunabku/shorturl/internal/repository"
	"github.com/hunabku/shorturl/internal/testutils"
)

// countingStore records how often Get reaches the backend
type countingStore struct {
	*repository.MemoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	s.gets++
	return s.MemoryStore.Get(ctx, code)
}

func TestRedisCache_ReadThrough(t *testing.T) {
	client := testutils.StartRedis(t)
	backend := &countingStore{MemoryStore: repository.NewMemoryStore()}
	c := NewRedisCache(client, backend, &config.CacheConfig{TTL: time.Minute, NegativeTTL: time.Minute}, "t1:", logger.Discard())
	defer c.Close()

	ctx := context.Background()
	link := &model.ShortLink{Code: "IYUGaO", TargetURL: "https://example.org/a", CreatedAt: 1700000000}
	require.NoError(t, c.InsertIfAbsent(ctx, link))

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "IYUGaO")
		require.NoError(t, err)
		assert.Equal(t, *link, *got)
	}
	assert.Zero(t, backend.gets, "inserted links should be served from redis")
}

func TestRedisCache_NegativeEntryClearedOnInsert(t *testing.T) {
	client := testutils.StartRedis(t)
	backend := &countingStore{MemoryStore: repository.NewMemoryStore()}
	c := NewRedisCache(client, backend, &config.CacheConfig{}, "t2:", logger.Discard())
	defer c.Close()

	ctx := context.Background()

	_, err := c.Get(ctx, "later")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = c.Get(ctx, "later")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, backend.gets, "miss should be cached")

	require.NoError(t, c.InsertIfAbsent(ctx, &model.ShortLink{Code: "later", TargetURL: "https://example.org/later"}))

	got, err := c.Get(ctx, "later")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/later", got.TargetURL)
}

func TestRedisCache_DegradesWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	backend := repository.NewMemoryStore()
	c := NewRedisCache(client, backend, &config.CacheConfig{}, "t3:", logger.Discard())
	defer c.Close()

	ctx := context.Background()
	link := &model.ShortLink{Code: "abc", TargetURL: "https://example.org"}
	require.NoError(t, c.InsertIfAbsent(ctx, link))

	got, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", got.TargetURL)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Counter calls pass through to the backend.
	tick, err := c.Advance(ctx, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, model.Tick{Bucket: 1700000000}, tick)
}

// gatedStore holds the first Get open after it has read the backend, so a
// concurrent insert can land between the miss and the cache fill
type gatedStore struct {
	*repository.MemoryStore
	once    sync.Once
	missed  chan struct{}
	release chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	link, err := s.MemoryStore.Get(ctx, code)
	s.once.Do(func() {
		close(s.missed)
		<-s.release
	})
	return link, err
}

func TestRedisCache_MissRacingInsert(t *testing.T) {
	client := testutils.StartRedis(t)
	backend := &gatedStore{
		MemoryStore: repository.NewMemoryStore(),
		missed:      make(chan struct{}),
		release:     make(chan struct{}),
	}
	c := NewRedisCache(client, backend, &config.CacheConfig{}, "t4:", logger.Discard())
	defer c.Close()

	ctx := context.Background()

	lookup := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "IYUGaO")
		lookup <- err
	}()

	<-backend.missed
	link := &model.ShortLink{Code: "IYUGaO", TargetURL: "https://example.org/a", CreatedAt: 1700000000}
	require.NoError(t, c.InsertIfAbsent(ctx, link))
	close(backend.release)
	assert.ErrorIs(t, <-lookup, repository.ErrNotFound)

	got, err := c.Get(ctx, "IYUGaO")
	require.NoError(t, err, "a late negative entry must not hide the inserted link")
	assert.Equal(t, *link, *got)
}

// closeTrackingStore records whether Close was called
type closeTrackingStore struct {
	*repository.MemoryStore
	closed bool
}

func (s *closeTrackingStore) Close() error {
	s.closed = true
	return nil
}

func TestOpen(t *testing.T) {
	t.Run("disabled returns backend", func(t *testing.T) {
		backend := &closeTrackingStore{MemoryStore: repository.NewMemoryStore()}
		cfg := config.Default()

		store, err := Open(context.Background(), backend, cfg, logger.Discard())
		require.NoError(t, err)
		assert.Same(t, backend, store)
		assert.False(t, backend.closed)
	})

	t.Run("unreachable redis closes backend", func(t *testing.T) {
		backend := &closeTrackingStore{MemoryStore: repository.NewMemoryStore()}
		cfg := config.Default()
		cfg.Cache.Enabled = true
		cfg.Redis.Addr = "127.0.0.1:1"

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		store, err := Open(ctx, backend, cfg, logger.Discard())
		assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
		assert.Nil(t, store)
		assert.True(t, backend.closed)
	})
}
