// Package messagebus предоставляет адаптеры шины сообщений для различных брокеров.
package messagebus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/metrics"
	"github.com/akriventsev/dealsaga/transport"
)

// BusCreator создает адаптер шины из конфигурации
type BusCreator func(config interface{}) (transport.MessageBus, error)

// Factory создает MessageBus адаптеры по имени брокера. Встроенные
// адаптеры (inmemory, nats, kafka, redis) регистрируются при создании
// фабрики и получают общий логгер и метрики.
type Factory struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	creators map[string]BusCreator
	mu       sync.RWMutex
}

// NewFactory создает фабрику со встроенными адаптерами
func NewFactory(logger *zap.Logger, m *metrics.Metrics) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Factory{
		logger:   logger,
		metrics:  m,
		creators: make(map[string]BusCreator),
	}

	_ = f.Register("inmemory", func(config interface{}) (transport.MessageBus, error) {
		cfg := DefaultInMemoryConfig()
		if c, ok := config.(InMemoryConfig); ok {
			cfg = c
		}
		return NewInMemoryAdapter(cfg).WithLogger(f.logger), nil
	})

	_ = f.Register("nats", func(config interface{}) (transport.MessageBus, error) {
		if url, ok := config.(string); ok {
			return NewNATSAdapterBuilder().WithURL(url).WithLogger(f.logger).Build()
		}
		cfg, ok := config.(NATSConfig)
		if !ok {
			return nil, fmt.Errorf("invalid NATS config type: %T", config)
		}
		builder := NewNATSAdapterBuilder().
			WithURL(cfg.URL).
			WithMaxReconnects(cfg.MaxReconnects).
			WithReconnectWait(cfg.ReconnectWait).
			WithDrainTimeout(cfg.DrainTimeout).
			WithConnectionTimeout(cfg.ConnectionTimeout).
			WithLogger(f.logger)
		if cfg.TLS != nil {
			builder.WithTLS(cfg.TLS)
		}
		if cfg.Token != "" {
			builder.WithToken(cfg.Token)
		}
		if cfg.Username != "" && cfg.Password != "" {
			builder.WithCredentials(cfg.Username, cfg.Password)
		}
		return builder.Build()
	})

	_ = f.Register("kafka", func(config interface{}) (transport.MessageBus, error) {
		cfg, ok := config.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Kafka config type: %T", config)
		}
		adapter, err := NewKafkaAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithLogger(f.logger).WithMetrics(f.metrics), nil
	})

	_ = f.Register("redis", func(config interface{}) (transport.MessageBus, error) {
		cfg, ok := config.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Redis config type: %T", config)
		}
		adapter, err := NewRedisAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return adapter.WithLogger(f.logger).WithMetrics(f.metrics), nil
	})

	return f
}

// Create создает MessageBus адаптер указанного типа
func (f *Factory) Create(busType string, config interface{}) (transport.MessageBus, error) {
	f.mu.RLock()
	creator, exists := f.creators[busType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown message bus type: %s", busType)
	}

	adapter, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", busType, err)
	}
	return adapter, nil
}

// Register регистрирует адаптер под именем
func (f *Factory) Register(name string, creator BusCreator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// ListRegistered возвращает список зарегистрированных адаптеров
func (f *Factory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	return names
}
