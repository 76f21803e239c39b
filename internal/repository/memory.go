package repository

import (
	"context"
	"sync"

	"github.com/hunabku/shorturl/internal/model"
)

// MemoryStore keeps everything in process memory. Its counter is only
// shared by callers inside one process, so it suits tests and single
// instance development runs.
type MemoryStore struct {
	mu      sync.Mutex
	links   map[string]model.ShortLink
	counter model.Tick
	started bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]model.ShortLink)}
}

func (m *MemoryStore) InsertIfAbsent(ctx context.Context, link *model.ShortLink) error {
	if err := ctx.Err(); err != nil {
		return unavailable("insert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.Code]; exists {
		return ErrDuplicateKey
	}
	m.links[link.Code] = *link
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (m *MemoryStore) Advance(ctx context.Context, now int64) (model.Tick, error) {
	if err := ctx.Err(); err != nil {
		return model.Tick{}, unavailable("advance", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started && now <= m.counter.Bucket {
		m.counter.Sequence++
	} else {
		m.counter = model.Tick{Bucket: now, Sequence: 0}
		m.started = true
	}
	return m.counter, nil
}

// Len returns the number of stored links
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
