// Package transport предоставляет абстракции для работы с message bus.
package transport

import (
	"context"
	"time"
)

// Message представляет сообщение в очереди
type Message struct {
	Subject string
	Data    []byte
	Headers map[string]string
}

// Header возвращает значение заголовка или пустую строку
func (m *Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// MessageHandler обработчик сообщений. Возврат ошибки означает,
// что сообщение не подтверждено и будет доставлено повторно.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher публикатор сообщений
type Publisher interface {
	// Publish публикует сообщение в subject
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Subscriber подписчик на сообщения
type Subscriber interface {
	// Subscribe подписывается на subject и вызывает handler при получении сообщения
	Subscribe(ctx context.Context, subject string, handler MessageHandler, opts ...SubscribeOption) error
	// Unsubscribe отписывается от subject
	Unsubscribe(subject string) error
}

// MessageBus объединяет возможности публикации и подписки
type MessageBus interface {
	Publisher
	Subscriber
}

// SubscribeOptions опции подписки
type SubscribeOptions struct {
	// Queue очередь для балансировки нагрузки между экземплярами.
	// Сообщение получает только один подписчик очереди.
	Queue string
}

// SubscribeOption опция подписки
type SubscribeOption func(*SubscribeOptions)

// WithQueue указывает очередь для подписки
func WithQueue(queue string) SubscribeOption {
	return func(opts *SubscribeOptions) {
		opts.Queue = queue
	}
}

// ApplySubscribeOptions собирает опции подписки
func ApplySubscribeOptions(opts ...SubscribeOption) SubscribeOptions {
	options := SubscribeOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// RetryPolicy политика повторной доставки сообщений
type RetryPolicy interface {
	// ShouldRetry определяет, нужно ли повторить доставку
	ShouldRetry(attempt int, err error) bool
	// GetDelay возвращает задержку перед повтором
	GetDelay(attempt int) time.Duration
	// GetMaxAttempts возвращает максимальное количество попыток
	GetMaxAttempts() int
}

// ExponentialBackoffRetryPolicy политика повторов с экспоненциальной задержкой
type ExponentialBackoffRetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultRetryPolicy возвращает политику повторов по умолчанию
func DefaultRetryPolicy() *ExponentialBackoffRetryPolicy {
	return &ExponentialBackoffRetryPolicy{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
	}
}

// ShouldRetry определяет, нужно ли повторить доставку
func (p *ExponentialBackoffRetryPolicy) ShouldRetry(attempt int, err error) bool {
	return err != nil && attempt < p.MaxAttempts
}

// GetDelay возвращает задержку перед повтором
func (p *ExponentialBackoffRetryPolicy) GetDelay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// GetMaxAttempts возвращает максимальное количество попыток
func (p *ExponentialBackoffRetryPolicy) GetMaxAttempts() int {
	return p.MaxAttempts
}
