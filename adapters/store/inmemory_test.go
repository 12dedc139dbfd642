package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/saga"
)

func newPurchase(t *testing.T) *saga.Purchase {
	t.Helper()
	return saga.NewPurchase(7, 42, saga.PaymentTypeCash, 95000)
}

func TestInMemoryStore_CreateAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	record := newPurchase(t)

	require.NoError(t, s.Create(ctx, record))

	got, err := s.Get(ctx, record.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, record.TransactionID, got.TransactionID)
	assert.Equal(t, saga.StatusStarted, got.Status)
	assert.Equal(t, int64(1), got.Version)

	// Get возвращает копию, мутация не видна хранилищу
	got.Status = saga.StatusFailed
	again, err := s.Get(ctx, record.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusStarted, again.Status)
}

func TestInMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	record := newPurchase(t)

	require.NoError(t, s.Create(ctx, record))
	err := s.Create(ctx, record)
	require.Error(t, err)
	assert.True(t, core.IsAlreadyExists(err))
}

func TestInMemoryStore_GetNotFound(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestInMemoryStore_CompareAndSwap(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	record := newPurchase(t)
	require.NoError(t, s.Create(ctx, record))

	// Успешный CAS записывает новую версию в переданную запись
	updated := record.Clone()
	updated.Status = saga.StatusCreditReserved
	require.NoError(t, s.CompareAndSwap(ctx, record.TransactionID, 1, updated))
	assert.Equal(t, int64(2), updated.Version)

	stored, err := s.Get(ctx, record.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCreditReserved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)

	// Продолжение по возвращенной версии без повторного чтения
	updated.Status = saga.StatusVehicleReserved
	require.NoError(t, s.CompareAndSwap(ctx, record.TransactionID, updated.Version, updated))
	assert.Equal(t, int64(3), updated.Version)
}

func TestInMemoryStore_CompareAndSwapConflict(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	record := newPurchase(t)
	require.NoError(t, s.Create(ctx, record))

	stale := record.Clone()
	stale.Status = saga.StatusCreditReserved
	err := s.CompareAndSwap(ctx, record.TransactionID, 99, stale)
	require.Error(t, err)
	assert.True(t, core.IsVersionConflict(err))

	// Запись не изменилась
	stored, err := s.Get(ctx, record.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusStarted, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestInMemoryStore_CompareAndSwapNotFound(t *testing.T) {
	s := NewInMemoryStore()
	record := newPurchase(t)

	err := s.CompareAndSwap(context.Background(), "missing", 1, record)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestInMemoryStore_ConcurrentCASSingleWinner(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	record := newPurchase(t)
	require.NoError(t, s.Create(ctx, record))

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt := record.Clone()
			attempt.Status = saga.StatusCreditReserved
			if err := s.CompareAndSwap(ctx, record.TransactionID, 1, attempt); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Один победитель при конкурентном обновлении одной версии
	assert.Equal(t, 1, winners)

	stored, err := s.Get(ctx, record.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestInMemoryStore_List(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	old := newPurchase(t)
	old.Status = saga.StatusCompensating
	old.UpdatedAt = now.Add(-10 * time.Minute)
	require.NoError(t, s.Create(ctx, old))

	fresh := newPurchase(t)
	fresh.Status = saga.StatusCompensating
	fresh.UpdatedAt = now
	require.NoError(t, s.Create(ctx, fresh))

	other := newPurchase(t)
	other.Status = saga.StatusCompleted
	other.UpdatedAt = now.Add(-10 * time.Minute)
	require.NoError(t, s.Create(ctx, other))

	// Фильтр по статусу
	records, err := s.List(ctx, saga.Filter{Status: saga.StatusCompensating})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Фильтр по давности обновления
	records, err = s.List(ctx, saga.Filter{
		Status:        saga.StatusCompensating,
		UpdatedBefore: now.Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, old.TransactionID, records[0].TransactionID)

	// Сортировка по времени обновления и лимит
	records, err = s.List(ctx, saga.Filter{Status: saga.StatusCompensating, Limit: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, old.TransactionID, records[0].TransactionID)
}

func TestInMemoryStore_Transitions(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	first := &saga.Transition{
		TransactionID: "tx-1",
		FromStatus:    saga.StatusStarted,
		ToStatus:      saga.StatusCreditReserved,
		Event:         "credit.reserved",
		OccurredAt:    now,
	}
	second := &saga.Transition{
		TransactionID: "tx-1",
		FromStatus:    saga.StatusCreditReserved,
		ToStatus:      saga.StatusVehicleReserved,
		Event:         "vehicle.reserved",
		OccurredAt:    now.Add(time.Second),
	}
	require.NoError(t, s.AppendTransition(ctx, first))
	require.NoError(t, s.AppendTransition(ctx, second))

	history, err := s.History(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "credit.reserved", history[0].Event)
	assert.Equal(t, "vehicle.reserved", history[1].Event)

	// История неизвестной транзакции пуста
	history, err = s.History(ctx, "tx-unknown")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestInMemoryStore_CountAndClear(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newPurchase(t)))
	require.NoError(t, s.Create(ctx, newPurchase(t)))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, s.Clear(ctx))
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStoreFactory(t *testing.T) {
	factory := NewFactory()

	names := factory.ListRegistered()
	assert.Len(t, names, 3)
	assert.Contains(t, names, "inmemory")
	assert.Contains(t, names, "postgres")
	assert.Contains(t, names, "mongodb")

	s, err := factory.Create("inmemory", nil)
	require.NoError(t, err)
	require.NotNil(t, s)

	// Подключение происходит в Start, создание не требует сервера
	pgConfig := DefaultPostgresConfig()
	pgConfig.DSN = "postgres://localhost:5432/dealsaga"
	s, err = factory.Create("postgres", pgConfig)
	require.NoError(t, err)
	require.NotNil(t, s)

	mongoConfig := DefaultMongoConfig()
	mongoConfig.URI = "mongodb://localhost:27017"
	s, err = factory.Create("mongodb", mongoConfig)
	require.NoError(t, err)
	require.NotNil(t, s)

	// Неверные конфигурации и типы
	_, err = factory.Create("postgres", "not-a-config")
	require.Error(t, err)
	_, err = factory.Create("postgres", DefaultPostgresConfig())
	require.Error(t, err)
	_, err = factory.Create("cassandra", nil)
	require.Error(t, err)
}
