package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

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

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestIdempotentHandler_SkipsDuplicateEvents(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := &testHandler{name: "activity", types: []string{"status_changed"}}
	h := NewIdempotentHandler(inner, store, zap.NewNop())
	event := newTestEvent("status_changed")

	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), newTestEvent("status_changed")))

	assert.Equal(t, 2, inner.count())
	stats := h.Metrics().Stats()
	assert.Equal(t, int64(2), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.EventsDuplicate)
	assert.Equal(t, "activity", h.Name())
	assert.Equal(t, []string{"status_changed"}, h.EventTypes())
}

func TestIdempotentHandler_KeysAreScopedPerHandler(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	first := &testHandler{name: "first"}
	second := &testHandler{name: "second"}
	event := newTestEvent("label_ready")

	require.NoError(t, NewIdempotentHandler(first, store, nil).Handle(context.Background(), event))
	require.NoError(t, NewIdempotentHandler(second, store, nil).Handle(context.Background(), event))

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
}

func TestIdempotentHandler_StoreErrorStillProcesses(t *testing.T) {
	store := new(MockIdempotencyStore)
	event := newTestEvent("status_changed")
	store.On("MarkProcessed", mock.Anything, "h:"+event.EventID().String(), 24*time.Hour).
		Return(false, errors.New("redis down"))

	inner := &testHandler{name: "h"}
	h := NewIdempotentHandler(inner, store, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, 1, inner.count())
	store.AssertExpectations(t)
}

func TestIdempotentHandler_HandlerErrorCounted(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	metrics := &IdempotencyMetrics{}
	inner := &testHandler{name: "h", err: errors.New("fail")}
	h := NewIdempotentHandler(inner, store, zap.NewNop(), WithIdempotencyMetrics(metrics))

	err := h.Handle(context.Background(), newTestEvent("status_changed"))
	assert.Error(t, err)
	assert.Equal(t, int64(1), metrics.Stats().EventsFailed)
	assert.Equal(t, int64(0), metrics.Stats().EventsProcessed)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := &testHandler{name: "h"}
	h := NewIdempotentHandler(inner, store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))

	event := newTestEvent("status_changed")
	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))

	assert.Equal(t, 2, inner.count())
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}
