// Package store предоставляет адаптеры хранилища саг для различных backends.
package store

import (
	"fmt"
	"sync"

	"github.com/akriventsev/dealsaga/saga"
)

// StoreCreator создает хранилище из конфигурации
type StoreCreator func(config interface{}) (saga.Store, error)

// Factory создает хранилища саг по имени backend. Встроенные
// хранилища (inmemory, postgres, mongodb) регистрируются при
// создании фабрики.
type Factory struct {
	creators map[string]StoreCreator
	mu       sync.RWMutex
}

// NewFactory создает фабрику со встроенными хранилищами
func NewFactory() *Factory {
	f := &Factory{
		creators: make(map[string]StoreCreator),
	}

	_ = f.Register("inmemory", func(config interface{}) (saga.Store, error) {
		return NewInMemoryStore(), nil
	})

	_ = f.Register("postgres", func(config interface{}) (saga.Store, error) {
		cfg, ok := config.(PostgresConfig)
		if !ok {
			return nil, fmt.Errorf("invalid postgres config type: %T", config)
		}
		return NewPostgresStore(cfg)
	})

	_ = f.Register("mongodb", func(config interface{}) (saga.Store, error) {
		cfg, ok := config.(MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid mongodb config type: %T", config)
		}
		return NewMongoStore(cfg)
	})

	return f
}

// Create создает хранилище указанного типа
func (f *Factory) Create(storeType string, config interface{}) (saga.Store, error) {
	f.mu.RLock()
	creator, exists := f.creators[storeType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown store type: %s", storeType)
	}

	s, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", storeType, err)
	}
	return s, nil
}

// Register регистрирует хранилище под именем
func (f *Factory) Register(name string, creator StoreCreator) error {
	if name == "" {
		return fmt.Errorf("store name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("store %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// ListRegistered возвращает список зарегистрированных хранилищ
func (f *Factory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	return names
}
