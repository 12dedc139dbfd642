// Package events предоставляет внутреннюю шину событий жизненного цикла саг.
//
// Шина работает в пределах процесса и используется для доставки
// уведомлений о смене статуса саг подписчикам вроде websocket-адаптера.
// Для межсервисного обмена используется transport.MessageBus.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event представляет внутреннее событие жизненного цикла
type Event interface {
	// EventID возвращает уникальный идентификатор события
	EventID() string
	// EventType возвращает тип события
	EventType() string
	// OccurredAt возвращает время возникновения события
	OccurredAt() time.Time
	// AggregateID возвращает идентификатор транзакции саги
	AggregateID() string
}

// BaseEvent базовая реализация события
type BaseEvent struct {
	eventID     string
	eventType   string
	occurredAt  time.Time
	aggregateID string
}

// NewBaseEvent создает новое базовое событие
func NewBaseEvent(eventType, aggregateID string) *BaseEvent {
	return &BaseEvent{
		eventID:     uuid.NewString(),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
	}
}

func (e *BaseEvent) EventID() string {
	return e.eventID
}

func (e *BaseEvent) EventType() string {
	return e.eventType
}

func (e *BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e *BaseEvent) AggregateID() string {
	return e.aggregateID
}

// EventHandler обработчик внутренних событий
type EventHandler interface {
	// Handle обрабатывает событие
	Handle(ctx context.Context, event Event) error
	// EventType возвращает тип события, который обрабатывает этот handler
	EventType() string
}

// EventHandlerFunc адаптер функции к интерфейсу EventHandler
type EventHandlerFunc struct {
	Type string
	Fn   func(ctx context.Context, event Event) error
}

// Handle обрабатывает событие
func (h *EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return h.Fn(ctx, event)
}

// EventType возвращает тип события, который обрабатывает этот handler
func (h *EventHandlerFunc) EventType() string {
	return h.Type
}

// EventPublisher публикатор событий
type EventPublisher interface {
	// Publish публикует событие
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber подписчик на события
type EventSubscriber interface {
	// Subscribe подписывается на тип события
	Subscribe(eventType string, handler EventHandler) error
	// Unsubscribe отписывается от типа события
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventBus объединяет Publisher и Subscriber
type EventBus interface {
	EventPublisher
	EventSubscriber
}
