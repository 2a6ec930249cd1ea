// Package cache keeps recently fetched values in a bounded in-memory LRU in front of
// a persistent store. Entries expire after a TTL, checked when they are read.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Record is a serialized value with the time it was stored.
type Record struct {
	Value    []byte
	StoredAt time.Time
}

// Store persists records. LoadCache returns nil, nil for a missing key.
type Store interface {
	LoadCache(ctx context.Context, key string) (*Record, error)
	SaveCache(ctx context.Context, key string, rec Record) error
	DeleteCache(ctx context.Context, key string) error
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type Cache[V any] struct {
	mem   *lru.Cache[string, entry[V]]
	store Store
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache holding at most capacity values in memory. store may be nil for
// a memory-only cache. A non-positive ttl disables expiry.
func New[V any](store Store, capacity int, ttl time.Duration, opts ...Option) (*Cache[V], error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	mem, err := lru.New[string, entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Cache[V]{mem: mem, store: store, ttl: ttl, now: o.now}, nil
}

func (c *Cache[V]) expired(storedAt time.Time) bool {
	return c.ttl > 0 && c.now().Sub(storedAt) > c.ttl
}

// Get returns the value for key when present and not expired. Expired entries are
// removed from both tiers.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	if e, ok := c.mem.Get(key); ok {
		if !c.expired(e.storedAt) {
			return e.value, true
		}
		c.Invalidate(ctx, key)
		return zero, false
	}

	if c.store == nil {
		return zero, false
	}
	rec, err := c.store.LoadCache(ctx, key)
	if err != nil {
		slog.Warn("failed to load cache entry", "key", key, "error", err)
		return zero, false
	}
	if rec == nil {
		return zero, false
	}
	if c.expired(rec.StoredAt) {
		c.Invalidate(ctx, key)
		return zero, false
	}

	var v V
	if err := json.Unmarshal(rec.Value, &v); err != nil {
		slog.Warn("dropping unreadable cache entry", "key", key, "error", err)
		c.Invalidate(ctx, key)
		return zero, false
	}
	c.mem.Add(key, entry[V]{value: v, storedAt: rec.StoredAt})
	return v, true
}

// Put stores value in memory and in the persistent store.
func (c *Cache[V]) Put(ctx context.Context, key string, value V) error {
	now := c.now()
	c.mem.Add(key, entry[V]{value: value, storedAt: now})

	if c.store == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.store.SaveCache(ctx, key, Record{Value: data, StoredAt: now}); err != nil {
		return fmt.Errorf("save cache entry %s: %w", key, err)
	}
	return nil
}

// Invalidate removes key from both tiers.
func (c *Cache[V]) Invalidate(ctx context.Context, key string) {
	c.mem.Remove(key)
	if c.store == nil {
		return
	}
	if err := c.store.DeleteCache(ctx, key); err != nil {
		slog.Warn("failed to delete cache entry", "key", key, "error", err)
	}
}

// Len reports the number of values held in memory.
func (c *Cache[V]) Len() int {
	return c.mem.Len()
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) LoadCache(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) SaveCache(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) DeleteCache(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
