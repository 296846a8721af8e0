package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(time.Hour)
	store.now = clock.Now
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	isNew, err := store.MarkProcessed(ctx, "MLB:orders:/orders/1", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.MarkProcessed(ctx, "MLB:orders:/orders/1", time.Minute)
	require.NoError(t, err)
	assert.False(t, isNew, "second delivery inside the window is coalesced")

	processed, err := store.IsProcessed(ctx, "MLB:orders:/orders/1")
	require.NoError(t, err)
	assert.True(t, processed)

	clock.Advance(time.Minute)
	isNew, err = store.MarkProcessed(ctx, "MLB:orders:/orders/1", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew, "expired mark is replaced")
}

func TestInMemoryIdempotencyStore_Forget(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "event-1"))

	processed, err := store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, processed)

	isNew, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	_, _ = store.MarkProcessed(ctx, "short", time.Second)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	require.Equal(t, 2, store.Size())

	clock.Advance(time.Minute)
	store.sweep()
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkProcessed(ctx, "same", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Millisecond)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestNewIdempotencyStore_FallsBackWithoutRedis(t *testing.T) {
	store := NewIdempotencyStore(nil, "msync:test:", zap.NewNop())
	defer store.Close()

	_, ok := store.(*InMemoryIdempotencyStore)
	assert.True(t, ok)
}
