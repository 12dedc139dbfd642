package messagebus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/transport"
)

// countingHandler потокобезопасный обработчик для тестов
type countingHandler struct {
	mu       sync.Mutex
	messages []*transport.Message
	failures int // Количество первых вызовов, завершающихся ошибкой
	calls    int
}

func (h *countingHandler) handle(ctx context.Context, msg *transport.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failures {
		return fmt.Errorf("handler failure %d", h.calls)
	}
	h.messages = append(h.messages, msg)
	return nil
}

func (h *countingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *countingHandler) received() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func newStartedAdapter(t *testing.T) *InMemoryAdapter {
	t.Helper()
	adapter := NewInMemoryAdapter(DefaultInMemoryConfig())
	require.NoError(t, adapter.Start(context.Background()))
	t.Cleanup(func() {
		_ = adapter.Stop(context.Background())
	})
	return adapter
}

func TestInMemoryAdapter_Lifecycle(t *testing.T) {
	adapter := NewInMemoryAdapter(DefaultInMemoryConfig())

	// Проверка начального состояния
	assert.False(t, adapter.IsRunning())
	assert.Equal(t, "inmemory-messagebus", adapter.Name())
	assert.Equal(t, core.ComponentTypeAdapter, adapter.Type())

	// Запуск
	ctx := context.Background()
	require.NoError(t, adapter.Start(ctx))
	assert.True(t, adapter.IsRunning())

	// Повторный запуск идемпотентен
	require.NoError(t, adapter.Start(ctx))

	// Остановка
	require.NoError(t, adapter.Stop(ctx))
	assert.False(t, adapter.IsRunning())
}

func TestInMemoryAdapter_PublishWhenStopped(t *testing.T) {
	adapter := NewInMemoryAdapter(DefaultInMemoryConfig())

	err := adapter.Publish(context.Background(), "saga.events.test", []byte("{}"), nil)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrUnavailable))
}

func TestInMemoryAdapter_PublishSubscribe(t *testing.T) {
	adapter := newStartedAdapter(t)
	handler := &countingHandler{}

	require.NoError(t, adapter.Subscribe(context.Background(), "saga.events.test", handler.handle))
	assert.Equal(t, 1, adapter.SubscriberCount("saga.events.test"))

	headers := map[string]string{"event_type": "test"}
	require.NoError(t, adapter.Publish(context.Background(), "saga.events.test", []byte(`{"ok":true}`), headers))

	// EnableOrdering доставляет синхронно
	require.Equal(t, 1, handler.received())
	msg := handler.messages[0]
	assert.Equal(t, "saga.events.test", msg.Subject)
	assert.Equal(t, `{"ok":true}`, string(msg.Data))
	assert.Equal(t, "test", msg.Header("event_type"))
}

func TestInMemoryAdapter_PublishWithoutSubscribers(t *testing.T) {
	adapter := newStartedAdapter(t)

	// Сообщение без подписчиков теряется без ошибки
	require.NoError(t, adapter.Publish(context.Background(), "saga.events.orphan", []byte("{}"), nil))
}

func TestInMemoryAdapter_QueueGroupDeliversToOneMember(t *testing.T) {
	adapter := newStartedAdapter(t)
	ctx := context.Background()

	first := &countingHandler{}
	second := &countingHandler{}
	require.NoError(t, adapter.Subscribe(ctx, "saga.commands.test", first.handle, transport.WithQueue("workers")))
	require.NoError(t, adapter.Subscribe(ctx, "saga.commands.test", second.handle, transport.WithQueue("workers")))

	require.NoError(t, adapter.Publish(ctx, "saga.commands.test", []byte("one"), nil))
	require.NoError(t, adapter.Publish(ctx, "saga.commands.test", []byte("two"), nil))

	// Каждое сообщение получает ровно один участник очереди
	assert.Equal(t, 2, first.received()+second.received())
	assert.Equal(t, 1, first.received())
	assert.Equal(t, 1, second.received())
}

func TestInMemoryAdapter_QueueAndBroadcast(t *testing.T) {
	adapter := newStartedAdapter(t)
	ctx := context.Background()

	broadcast := &countingHandler{}
	workerA := &countingHandler{}
	workerB := &countingHandler{}
	require.NoError(t, adapter.Subscribe(ctx, "saga.events.test", broadcast.handle))
	require.NoError(t, adapter.Subscribe(ctx, "saga.events.test", workerA.handle, transport.WithQueue("workers")))
	require.NoError(t, adapter.Subscribe(ctx, "saga.events.test", workerB.handle, transport.WithQueue("workers")))

	require.NoError(t, adapter.Publish(ctx, "saga.events.test", []byte("one"), nil))
	require.NoError(t, adapter.Publish(ctx, "saga.events.test", []byte("two"), nil))

	// Подписка без очереди получает все сообщения,
	// очередь делит их между участниками
	assert.Equal(t, 2, broadcast.received())
	assert.Equal(t, 2, workerA.received()+workerB.received())
}

func TestInMemoryAdapter_WildcardSubjects(t *testing.T) {
	adapter := newStartedAdapter(t)
	ctx := context.Background()

	single := &countingHandler{}
	multi := &countingHandler{}
	require.NoError(t, adapter.Subscribe(ctx, "saga.events.*", single.handle))
	require.NoError(t, adapter.Subscribe(ctx, "saga.events.>", multi.handle))

	require.NoError(t, adapter.Publish(ctx, "saga.events.credit", []byte("{}"), nil))
	require.NoError(t, adapter.Publish(ctx, "saga.events.credit.reserved", []byte("{}"), nil))

	// * покрывает один токен, > покрывает хвост любой длины
	assert.Equal(t, 1, single.received())
	assert.Equal(t, 2, multi.received())
}

func TestInMemoryAdapter_RetryUntilSuccess(t *testing.T) {
	config := DefaultInMemoryConfig()
	config.Retry = &transport.ExponentialBackoffRetryPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	}
	adapter := NewInMemoryAdapter(config)
	require.NoError(t, adapter.Start(context.Background()))
	defer func() {
		_ = adapter.Stop(context.Background())
	}()

	handler := &countingHandler{failures: 2}
	require.NoError(t, adapter.Subscribe(context.Background(), "saga.events.retry", handler.handle))
	require.NoError(t, adapter.Publish(context.Background(), "saga.events.retry", []byte("{}"), nil))

	assert.Equal(t, 3, handler.callCount())
	assert.Equal(t, 1, handler.received())
}

func TestInMemoryAdapter_DropsAfterRetryExhausted(t *testing.T) {
	config := DefaultInMemoryConfig()
	config.Retry = &transport.ExponentialBackoffRetryPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
	}
	adapter := NewInMemoryAdapter(config)
	require.NoError(t, adapter.Start(context.Background()))
	defer func() {
		_ = adapter.Stop(context.Background())
	}()

	handler := &countingHandler{failures: 100}
	require.NoError(t, adapter.Subscribe(context.Background(), "saga.events.poison", handler.handle))
	require.NoError(t, adapter.Publish(context.Background(), "saga.events.poison", []byte("{}"), nil))

	// Доставка прекращается после исчерпания попыток
	assert.Equal(t, 3, handler.callCount())
	assert.Equal(t, 0, handler.received())
}

func TestInMemoryAdapter_Unsubscribe(t *testing.T) {
	adapter := newStartedAdapter(t)
	ctx := context.Background()
	handler := &countingHandler{}

	require.NoError(t, adapter.Subscribe(ctx, "saga.events.test", handler.handle))
	require.NoError(t, adapter.Unsubscribe("saga.events.test"))
	assert.Equal(t, 0, adapter.SubscriberCount("saga.events.test"))

	require.NoError(t, adapter.Publish(ctx, "saga.events.test", []byte("{}"), nil))
	assert.Equal(t, 0, handler.received())

	// Повторная отписка не возвращает ошибку
	require.NoError(t, adapter.Unsubscribe("saga.events.test"))
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		subject string
		pattern string
		want    bool
	}{
		{"saga.events.credit", "saga.events.credit", true},
		{"saga.events.credit", "saga.events.*", true},
		{"saga.events.credit.reserved", "saga.events.*", false},
		{"saga.events.credit.reserved", "saga.events.>", true},
		{"saga.events.credit", "saga.events.>", true},
		{"saga.events", "saga.events.>", false},
		{"saga.commands.credit", "saga.events.*", false},
		{"saga.events.credit", "saga.*.credit", true},
	}

	for _, tt := range tests {
		got := matchSubject(tt.subject, tt.pattern)
		if got != tt.want {
			t.Errorf("matchSubject(%q, %q) = %v, want %v", tt.subject, tt.pattern, got, tt.want)
		}
	}
}
