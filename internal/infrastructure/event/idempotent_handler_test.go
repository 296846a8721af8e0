package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	inner := newRecordingHandler("inventory.stock_changed")
	h := NewIdempotentHandler(inner, store, zaptest.NewLogger(t))
	assert.Equal(t, inner.EventTypes(), h.EventTypes())

	event := stockEvent()
	require.NoError(t, h.Handle(ctx, event))
	require.NoError(t, h.Handle(ctx, event))
	require.NoError(t, h.Handle(ctx, stockEvent()))

	assert.Equal(t, 2, inner.count())
	assert.Equal(t, IdempotencyStats{EventsProcessed: 2, EventsDuplicate: 1}, h.Stats())
}

func TestIdempotentHandler_FailureReleasesKey(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	inner := newRecordingHandler("inventory.stock_changed")
	inner.err = errors.New("database unavailable")
	h := NewIdempotentHandler(inner, store, zaptest.NewLogger(t))

	event := stockEvent()
	require.Error(t, h.Handle(ctx, event))

	inner.err = nil
	require.NoError(t, h.Handle(ctx, event))
	assert.Equal(t, 2, inner.count())
	assert.Equal(t, int64(1), h.Stats().EventsFailed)
	assert.Equal(t, int64(1), h.Stats().EventsProcessed)
}

func TestIdempotentHandler_StoreErrorStillProcesses(t *testing.T) {
	ctx := context.Background()
	store := new(MockIdempotencyStore)
	event := stockEvent()
	key := "event:" + event.EventType() + ":" + event.EventID().String()
	store.On("MarkProcessed", ctx, key, time.Hour).Return(false, errors.New("redis down"))

	inner := newRecordingHandler("inventory.stock_changed")
	h := NewIdempotentHandler(inner, store, zaptest.NewLogger(t),
		WithIdempotencyConfig(shared.IdempotencyConfig{TTL: time.Hour, Enabled: true}))

	require.NoError(t, h.Handle(ctx, event))
	assert.Equal(t, 1, inner.count())
	store.AssertExpectations(t)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newRecordingHandler("inventory.stock_changed")
	h := NewIdempotentHandler(inner, store, zaptest.NewLogger(t),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))

	event := stockEvent()
	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, 2, inner.count())
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}
