package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, store Store, capacity int, ttl time.Duration) (*Cache[item], *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	c, err := New[item](store, capacity, ttl, WithClock(clk.now))
	require.NoError(t, err)
	return c, clk
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, NewMemoryStore(), 10, time.Hour)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "a", item{Name: "a", Total: 1}))
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, item{Name: "a", Total: 1}, v)
}

func TestCache_TTLCheckedOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, clk := newTestCache(t, store, 10, time.Hour)

	require.NoError(t, c.Put(ctx, "a", item{Name: "a"}))
	clk.advance(59 * time.Minute)
	_, ok := c.Get(ctx, "a")
	assert.True(t, ok)

	clk.advance(2 * time.Minute)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)

	rec, err := store.LoadCache(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, rec, "expired entries are removed from the store")
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, nil, 10, 0)

	require.NoError(t, c.Put(ctx, "a", item{Name: "a"}))
	clk.advance(365 * 24 * time.Hour)
	_, ok := c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestCache_LRUEvictionFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, _ := newTestCache(t, store, 2, time.Hour)

	require.NoError(t, c.Put(ctx, "a", item{Name: "a"}))
	require.NoError(t, c.Put(ctx, "b", item{Name: "b"}))
	require.NoError(t, c.Put(ctx, "c", item{Name: "c"}))
	assert.Equal(t, 2, c.Len())

	// "a" was evicted from memory but is still in the store.
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "a", v.Name)
	assert.Equal(t, 2, c.Len())
}

func TestCache_MemoryOnlyEviction(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil, 2, time.Hour)

	require.NoError(t, c.Put(ctx, "a", item{Name: "a"}))
	require.NoError(t, c.Put(ctx, "b", item{Name: "b"}))
	_, _ = c.Get(ctx, "a") // a is now most recently used
	require.NoError(t, c.Put(ctx, "c", item{Name: "c"}))

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestCache_StoreTTLKeepsOriginalTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	writer, clk := newTestCache(t, store, 10, time.Hour)
	require.NoError(t, writer.Put(ctx, "a", item{Name: "a"}))

	// A fresh cache over the same store, e.g. after a restart.
	reader, err := New[item](store, 10, time.Hour, WithClock(clk.now))
	require.NoError(t, err)

	clk.advance(30 * time.Minute)
	_, ok := reader.Get(ctx, "a")
	require.True(t, ok)

	clk.advance(31 * time.Minute)
	_, ok = reader.Get(ctx, "a")
	assert.False(t, ok)
}

func TestCache_UnreadableStoreEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, clk := newTestCache(t, store, 10, time.Hour)
	require.NoError(t, store.SaveCache(ctx, "a", Record{Value: []byte("{bad"), StoredAt: clk.now()}))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	rec, _ := store.LoadCache(ctx, "a")
	assert.Nil(t, rec)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, _ := newTestCache(t, store, 10, time.Hour)

	require.NoError(t, c.Put(ctx, "a", item{Name: "a"}))
	c.Invalidate(ctx, "a")
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New[item](nil, 0, time.Hour)
	assert.Error(t, err)
}
