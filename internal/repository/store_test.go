package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunabku/shorturl/internal/model"
)

// runStoreContract checks the behavior every backend must share
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("insert then get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		link := &model.ShortLink{Code: "IYUGaO", TargetURL: "https://example.org/a", CreatedAt: 1700000000}
		require.NoError(t, store.InsertIfAbsent(ctx, link))

		got, err := store.Get(ctx, "IYUGaO")
		require.NoError(t, err)
		assert.Equal(t, *link, *got)
	})

	t.Run("duplicate code is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := &model.ShortLink{Code: "dup", TargetURL: "https://example.org/first", CreatedAt: 1}
		second := &model.ShortLink{Code: "dup", TargetURL: "https://example.org/second", CreatedAt: 2}

		require.NoError(t, store.InsertIfAbsent(ctx, first))
		assert.ErrorIs(t, store.InsertIfAbsent(ctx, second), ErrDuplicateKey)

		got, err := store.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/first", got.TargetURL)
	})

	t.Run("unknown code", func(t *testing.T) {
		store := newStore(t)

		got, err := store.Get(context.Background(), "doesnotexist")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("sequence increments within a bucket", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for want := int64(0); want < 5; want++ {
			tick, err := store.Advance(ctx, 1700000000)
			require.NoError(t, err)
			assert.Equal(t, model.Tick{Bucket: 1700000000, Sequence: want}, tick)
		}
	})

	t.Run("new bucket resets sequence", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 7; i++ {
			_, err := store.Advance(ctx, 1700000000)
			require.NoError(t, err)
		}

		tick, err := store.Advance(ctx, 1700000001)
		require.NoError(t, err)
		assert.Equal(t, model.Tick{Bucket: 1700000001, Sequence: 0}, tick)

		tick, err = store.Advance(ctx, 1700000001)
		require.NoError(t, err)
		assert.Equal(t, model.Tick{Bucket: 1700000001, Sequence: 1}, tick)
	})

	t.Run("clock going backwards stays in the stored bucket", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Advance(ctx, 1700000005)
		require.NoError(t, err)

		tick, err := store.Advance(ctx, 1700000003)
		require.NoError(t, err)
		assert.Equal(t, model.Tick{Bucket: 1700000005, Sequence: 1}, tick)
	})

	t.Run("concurrent advances never repeat a pair", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const workers = 100
		ticks := make(chan model.Tick, workers)
		errs := make(chan error, workers)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tick, err := store.Advance(ctx, 1700000000)
				if err != nil {
					errs <- err
					return
				}
				ticks <- tick
			}()
		}
		wg.Wait()
		close(ticks)
		close(errs)

		for err := range errs {
			t.Fatalf("advance failed: %v", err)
		}

		seen := make(map[model.Tick]bool)
		for tick := range ticks {
			assert.False(t, seen[tick], "pair issued twice: %+v", tick)
			seen[tick] = true
		}
		assert.Len(t, seen, workers)
	})

	t.Run("cancelled context is a store failure", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.Advance(ctx, 1700000000)
		assert.ErrorIs(t, err, ErrStoreUnavailable)

		err = store.InsertIfAbsent(ctx, &model.ShortLink{Code: "x", TargetURL: "https://example.org"})
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore_InMemory(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		store, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSQLiteStore_File(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "links.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

// Two stores opened on one file share nothing but the database, like two
// server processes.
func TestSQLiteStore_SharedFileAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared", "links.db")

	a, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer a.Close()

	b, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	stores := []Store{a, b}

	const perStore = 50
	var mu sync.Mutex
	seen := make(map[model.Tick]int)

	var wg sync.WaitGroup
	for _, s := range stores {
		for j := 0; j < perStore; j++ {
			wg.Add(1)
			go func(s Store) {
				defer wg.Done()
				tick, err := s.Advance(ctx, 1700000000)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[tick]++
				mu.Unlock()
			}(s)
		}
	}
	wg.Wait()

	assert.Len(t, seen, len(stores)*perStore)
	for tick, n := range seen {
		assert.Equal(t, 1, n, "pair %+v issued %d times", tick, n)
	}

	// A link written through one instance is visible through the other.
	require.NoError(t, a.InsertIfAbsent(ctx, &model.ShortLink{Code: "shared", TargetURL: "https://example.org"}))
	assert.ErrorIs(t, b.InsertIfAbsent(ctx, &model.ShortLink{Code: "shared", TargetURL: "https://other.org"}), ErrDuplicateKey)

	got, err := b.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", got.TargetURL)
}

func TestSQLiteStore_Ping(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), ErrStoreUnavailable)
}

func TestMemoryStore_Len(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertIfAbsent(ctx, &model.ShortLink{Code: fmt.Sprint(i), TargetURL: "https://example.org"}))
	}
	assert.Equal(t, 3, store.Len())
}
