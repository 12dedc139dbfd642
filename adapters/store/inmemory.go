// Package store предоставляет адаптеры хранилища саг для различных backends.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/saga"
)

// InMemoryStore хранилище саг в памяти. Используется в разработке
// и тестах, состояние теряется при перезапуске.
type InMemoryStore struct {
	records     map[string]*saga.Purchase
	transitions map[string][]*saga.Transition
	mu          sync.RWMutex
}

// NewInMemoryStore создает новое in-memory хранилище
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:     make(map[string]*saga.Purchase),
		transitions: make(map[string][]*saga.Transition),
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (s *InMemoryStore) Start(ctx context.Context) error {
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (s *InMemoryStore) Stop(ctx context.Context) error {
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (s *InMemoryStore) IsRunning() bool {
	return true
}

// Name возвращает имя компонента (реализация core.Component)
func (s *InMemoryStore) Name() string {
	return "inmemory-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *InMemoryStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет здоровье компонента (реализация core.HealthCheckable)
func (s *InMemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Create сохраняет новую запись саги
func (s *InMemoryStore) Create(ctx context.Context, record *saga.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.TransactionID]; exists {
		return core.NewErrorf(core.ErrAlreadyExists, "transaction %s already exists", record.TransactionID)
	}
	s.records[record.TransactionID] = record.Clone()
	return nil
}

// Get возвращает снимок записи по идентификатору транзакции
func (s *InMemoryStore) Get(ctx context.Context, transactionID string) (*saga.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[transactionID]
	if !exists {
		return nil, core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
	}
	return record.Clone(), nil
}

// CompareAndSwap заменяет запись при совпадении ожидаемой версии.
// При успехе в переданную запись записывается новая версия.
func (s *InMemoryStore) CompareAndSwap(ctx context.Context, transactionID string, expectedVersion int64, record *saga.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[transactionID]
	if !exists {
		return core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
	}
	if current.Version != expectedVersion {
		return core.NewErrorf(core.ErrVersionConflict,
			"transaction %s version is %d, expected %d", transactionID, current.Version, expectedVersion)
	}

	record.Version = expectedVersion + 1
	s.records[transactionID] = record.Clone()
	return nil
}

// List возвращает записи, удовлетворяющие фильтру,
// в порядке возрастания времени обновления.
func (s *InMemoryStore) List(ctx context.Context, filter saga.Filter) ([]*saga.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*saga.Purchase
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !record.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		matched = append(matched, record.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// AppendTransition добавляет запись аудита перехода
func (s *InMemoryStore) AppendTransition(ctx context.Context, transition *saga.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *transition
	s.transitions[transition.TransactionID] = append(s.transitions[transition.TransactionID], &t)
	return nil
}

// History возвращает переходы саги в порядке возникновения
func (s *InMemoryStore) History(ctx context.Context, transactionID string) ([]*saga.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.transitions[transactionID]
	result := make([]*saga.Transition, len(history))
	for i, t := range history {
		clone := *t
		result[i] = &clone
	}
	return result, nil
}

// Count возвращает количество записей
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear очищает хранилище (для тестирования)
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*saga.Purchase)
	s.transitions = make(map[string][]*saga.Transition)
	return nil
}
