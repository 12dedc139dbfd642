// Package events предоставляет реализацию EventBus.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventMiddleware middleware для событий
type EventMiddleware func(ctx context.Context, event Event, next func(ctx context.Context, event Event) error) error

// InMemoryEventBus реализация шины событий в пределах процесса
type InMemoryEventBus struct {
	handlers   map[string][]EventHandler
	middleware []EventMiddleware
	mu         sync.RWMutex
	wg         sync.WaitGroup
	shutdownMu sync.Mutex
	stopped    bool
}

// NewInMemoryEventBus создает новую шину событий
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers:   make(map[string][]EventHandler),
		middleware: make([]EventMiddleware, 0),
	}
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryEventBus) WithMiddleware(middleware EventMiddleware) *InMemoryEventBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// Publish публикует событие всем подписчикам его типа.
// Ошибки обработчиков собираются, но не прерывают доставку остальным.
func (b *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	b.shutdownMu.Lock()
	if b.stopped {
		b.shutdownMu.Unlock()
		return fmt.Errorf("event bus is stopped")
	}
	b.wg.Add(1)
	b.shutdownMu.Unlock()
	defer b.wg.Done()

	next := func(ctx context.Context, event Event) error {
		return b.deliver(ctx, event)
	}

	b.mu.RLock()
	middleware := b.middleware
	b.mu.RUnlock()

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, event Event) error {
			return mw(ctx, event, prevNext)
		}
	}

	return next(ctx, event)
}

// deliver доставляет событие подписчикам
func (b *InMemoryEventBus) deliver(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers[event.EventType()]))
	copy(handlers, b.handlers[event.EventType()])
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType(), err)
		}
	}
	return firstErr
}

// Subscribe подписывается на тип события
func (b *InMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Unsubscribe отписывается от типа события
func (b *InMemoryEventBus) Unsubscribe(eventType string, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, h := range handlers {
		if h == handler {
			b.handlers[eventType] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}
	return nil
}

// Shutdown останавливает шину и дожидается активных публикаций
func (b *InMemoryEventBus) Shutdown(ctx context.Context) error {
	b.shutdownMu.Lock()
	if b.stopped {
		b.shutdownMu.Unlock()
		return nil
	}
	b.stopped = true
	b.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("shutdown timeout after waiting for active publications")
	}
}
