// Package messagebus предоставляет адаптеры шины сообщений для различных брокеров.
package messagebus

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/transport"
)

// InMemoryConfig конфигурация для InMemory адаптера
type InMemoryConfig struct {
	// EnableOrdering включает синхронную доставку с FIFO гарантиями
	EnableOrdering bool
	// Retry политика повторной доставки при ошибке обработчика.
	// nil отключает повторы.
	Retry transport.RetryPolicy
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		EnableOrdering: true,
		Retry:          transport.DefaultRetryPolicy(),
	}
}

// inMemorySubscription одна подписка с опциональной очередью
type inMemorySubscription struct {
	handler transport.MessageHandler
	queue   string
}

// InMemoryAdapter реализация MessageBus в памяти. Воспроизводит
// семантику брокера: очереди балансируют сообщение на одного
// подписчика, ошибка обработчика ведет к повторной доставке
// согласно политике повторов.
type InMemoryAdapter struct {
	config      InMemoryConfig
	logger      *zap.Logger
	subscribers map[string][]*inMemorySubscription
	rrCounters  map[string]int
	mu          sync.RWMutex
	wg          sync.WaitGroup
	running     bool
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter(config InMemoryConfig) *InMemoryAdapter {
	return &InMemoryAdapter{
		config:      config,
		logger:      zap.NewNop(),
		subscribers: make(map[string][]*inMemorySubscription),
		rrCounters:  make(map[string]int),
	}
}

// WithLogger устанавливает логгер
func (a *InMemoryAdapter) WithLogger(logger *zap.Logger) *InMemoryAdapter {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Start запускает адаптер (реализация core.Lifecycle)
func (a *InMemoryAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}
	a.running = true
	return nil
}

// Stop останавливает адаптер и дожидается доставок (реализация core.Lifecycle)
func (a *InMemoryAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (a *InMemoryAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Name возвращает имя компонента (реализация core.Component)
func (a *InMemoryAdapter) Name() string {
	return "inmemory-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (a *InMemoryAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет здоровье компонента (реализация core.HealthCheckable)
func (a *InMemoryAdapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return core.NewError(core.ErrUnavailable, "message bus is not running")
	}
	return nil
}

// Publish публикует сообщение в subject
func (a *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return core.NewError(core.ErrUnavailable, "message bus is not running")
	}
	targets := a.selectTargets(subject)
	for range targets {
		a.wg.Add(1)
	}
	a.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	msg := &transport.Message{
		Subject: subject,
		Data:    data,
		Headers: headers,
	}

	for _, sub := range targets {
		if a.config.EnableOrdering {
			a.deliver(ctx, sub, msg)
		} else {
			go a.deliver(ctx, sub, msg)
		}
	}
	return nil
}

// selectTargets выбирает получателей сообщения: все подписки без
// очереди и по одной подписке на каждую очередь (round-robin).
// Вызывается под блокировкой.
func (a *InMemoryAdapter) selectTargets(subject string) []*inMemorySubscription {
	var matched []*inMemorySubscription
	for pattern, subs := range a.subscribers {
		if matchSubject(subject, pattern) {
			matched = append(matched, subs...)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	var targets []*inMemorySubscription
	queues := make(map[string][]*inMemorySubscription)
	for _, sub := range matched {
		if sub.queue == "" {
			targets = append(targets, sub)
			continue
		}
		queues[sub.queue] = append(queues[sub.queue], sub)
	}
	for queue, members := range queues {
		key := subject + "|" + queue
		pick := a.rrCounters[key] % len(members)
		a.rrCounters[key]++
		targets = append(targets, members[pick])
	}
	return targets
}

// deliver доставляет сообщение с повторами при ошибке обработчика
func (a *InMemoryAdapter) deliver(ctx context.Context, sub *inMemorySubscription, msg *transport.Message) {
	defer a.wg.Done()

	attempt := 1
	for {
		err := sub.handler(ctx, msg)
		if err == nil {
			return
		}
		if a.config.Retry == nil || !a.config.Retry.ShouldRetry(attempt, err) {
			a.logger.Error("message dropped after delivery attempts",
				zap.String("subject", msg.Subject),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}

		select {
		case <-time.After(a.config.Retry.GetDelay(attempt)):
		case <-ctx.Done():
			a.logger.Warn("message delivery abandoned",
				zap.String("subject", msg.Subject),
				zap.Error(ctx.Err()))
			return
		}
		attempt++
	}
}

// Subscribe подписывается на subject
func (a *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler, opts ...transport.SubscribeOption) error {
	options := transport.ApplySubscribeOptions(opts...)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.subscribers[subject] = append(a.subscribers[subject], &inMemorySubscription{
		handler: handler,
		queue:   options.Queue,
	})
	return nil
}

// Unsubscribe отписывается от subject
func (a *InMemoryAdapter) Unsubscribe(subject string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.subscribers, subject)
	return nil
}

// SubscriberCount возвращает количество подписок на subject
func (a *InMemoryAdapter) SubscriberCount(subject string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subscribers[subject])
}

// matchSubject проверяет соответствие subject паттерну подписки.
// Поддерживает NATS-style wildcards: * (один токен) и > (все токены).
func matchSubject(subject, pattern string) bool {
	if subject == pattern {
		return true
	}

	subjectParts := strings.Split(subject, ".")
	patternParts := strings.Split(pattern, ".")

	if len(patternParts) > len(subjectParts) {
		return false
	}

	for i, part := range patternParts {
		if part == ">" {
			return true
		}
		if part == "*" {
			continue
		}
		if part != subjectParts[i] {
			return false
		}
	}

	return len(patternParts) == len(subjectParts)
}
