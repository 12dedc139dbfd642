// Package saga предоставляет контракт хранилища состояния саг.
package saga

import (
	"context"
	"time"
)

// Filter параметры выборки саг
type Filter struct {
	// Status фильтрует по статусу, пустое значение отключает фильтр
	Status Status
	// UpdatedBefore отбирает записи, не обновлявшиеся после указанного
	// момента. Нулевое значение отключает фильтр.
	UpdatedBefore time.Time
	// Limit ограничивает размер выборки, ноль отключает ограничение
	Limit int
}

// Transition запись аудита одного перехода саги
type Transition struct {
	TransactionID string    `json:"transaction_id"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	Event         string    `json:"event"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Store хранилище записей саг.
//
// Create возвращает ошибку ALREADY_EXISTS при коллизии transaction_id.
// Get возвращает ошибку NOT_FOUND для неизвестной транзакции.
// CompareAndSwap атомарно заменяет запись при совпадении версии и
// возвращает ошибку VERSION_CONFLICT, если версия в хранилище изменилась.
// Это единственный примитив сериализации конкурентных изменений:
// обработчик, получивший VERSION_CONFLICT, не подтверждает сообщение
// и полагается на повторную доставку.
type Store interface {
	// Create сохраняет новую запись саги
	Create(ctx context.Context, record *Purchase) error
	// Get возвращает снимок записи по идентификатору транзакции
	Get(ctx context.Context, transactionID string) (*Purchase, error)
	// CompareAndSwap заменяет запись при совпадении ожидаемой версии.
	// При успехе в переданную запись записывается новая версия
	// (expectedVersion + 1), что позволяет продолжать изменения
	// без повторного чтения.
	CompareAndSwap(ctx context.Context, transactionID string, expectedVersion int64, record *Purchase) error
	// List возвращает записи, удовлетворяющие фильтру
	List(ctx context.Context, filter Filter) ([]*Purchase, error)
	// AppendTransition добавляет запись аудита перехода
	AppendTransition(ctx context.Context, transition *Transition) error
	// History возвращает переходы саги в порядке возникновения
	History(ctx context.Context, transactionID string) ([]*Transition, error)
}
