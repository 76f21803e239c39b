package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hunabku/shorturl/internal/config"
	"github.com/hunabku/shorturl/internal/model"
)

var (
	ErrNotFound         = errors.New("short link not found")
	ErrDuplicateKey     = errors.New("short code already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// LinkStore persists ShortLink records keyed by code. The uniqueness of
// code is enforced by the store itself.
type LinkStore interface {
	// InsertIfAbsent creates link, or returns ErrDuplicateKey when a record
	// with the same code exists. Any other failure wraps ErrStoreUnavailable.
	InsertIfAbsent(ctx context.Context, link *model.ShortLink) error

	// Get returns the record for code or ErrNotFound.
	Get(ctx context.Context, code string) (*model.ShortLink, error)
}

// Counter is the shared allocation counter.
type Counter interface {
	// Advance atomically issues the next (bucket, sequence) pair for now.
	// When now is newer than the stored bucket the sequence restarts at 0,
	// otherwise it increments within the stored bucket. No two calls, from
	// any process, ever receive the same pair.
	Advance(ctx context.Context, now int64) (model.Tick, error)
}

// Store is a persistent backend holding both record kinds.
type Store interface {
	LinkStore
	Counter
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Store.Driver
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Store.Path)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.Store.DSN)
	case config.DriverRedis:
		client, err := NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	case config.DriverMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
