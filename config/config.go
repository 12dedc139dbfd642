// Package config предоставляет загрузку конфигурации оркестратора
// из файла и переменных окружения с префиксом DEALSAGA_.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/akriventsev/dealsaga"
)

// Config конфигурация оркестратора
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	REST         RESTConfig         `mapstructure:"rest"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket"`
	GRPC         GRPCConfig         `mapstructure:"grpc"`
	Store        StoreConfig        `mapstructure:"store"`
	MessageBus   MessageBusConfig   `mapstructure:"messagebus"`
	Participants ParticipantsConfig `mapstructure:"participants"`
	Watchdog     WatchdogConfig     `mapstructure:"watchdog"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// ServiceConfig идентификация сервиса
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`   // debug, info, warn, error
}

// RESTConfig настройки REST адаптера
type RESTConfig struct {
	Port             int           `mapstructure:"port"`
	Mode             string        `mapstructure:"mode"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	EnableValidation bool          `mapstructure:"enable_validation"`
}

// WebSocketConfig настройки WebSocket адаптера
type WebSocketConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// GRPCConfig настройки gRPC адаптера
type GRPCConfig struct {
	Port             int  `mapstructure:"port"`
	EnableReflection bool `mapstructure:"enable_reflection"`
}

// StoreConfig выбор backend хранилища саг
type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // inmemory, postgres, mongodb
	DSN     string      `mapstructure:"dsn"`
	Mongo   MongoConfig `mapstructure:"mongo"`
}

// MongoConfig настройки MongoDB хранилища
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// MessageBusConfig выбор брокера шины сообщений
type MessageBusConfig struct {
	Broker string      `mapstructure:"broker"` // inmemory, nats, kafka, redis
	NATS   NATSConfig  `mapstructure:"nats"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// NATSConfig настройки NATS брокера
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// KafkaConfig настройки Kafka брокера
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

// RedisConfig настройки Redis Streams брокера
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ParticipantsConfig адреса сервисов участников саги
type ParticipantsConfig struct {
	VehicleServiceURL  string        `mapstructure:"vehicle_service_url"`
	CustomerServiceURL string        `mapstructure:"customer_service_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// WatchdogConfig настройки наблюдателя за зависшими сагами
type WatchdogConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Interval            time.Duration `mapstructure:"interval"`
	CompensationTimeout time.Duration `mapstructure:"compensation_timeout"`
	FinalizationTimeout time.Duration `mapstructure:"finalization_timeout"`
	ForwardTimeout      time.Duration `mapstructure:"forward_timeout"`
	BatchLimit          int           `mapstructure:"batch_limit"`
}

// TracingConfig настройки distributed tracing
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // otlp, jaeger, zipkin, stdout
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Load загружает конфигурацию. Значения берутся из файла (если path
// не пустой), переменных окружения DEALSAGA_* и значений по умолчанию,
// в порядке убывания приоритета окружение, файл, умолчания.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEALSAGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "saga-orchestrator")
	v.SetDefault("service.version", dealsaga.Version)
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")

	v.SetDefault("rest.port", 8080)
	v.SetDefault("rest.mode", "release")
	v.SetDefault("rest.shutdown_timeout", 30*time.Second)
	v.SetDefault("rest.enable_validation", true)

	v.SetDefault("websocket.port", 8083)
	v.SetDefault("websocket.path", "/ws")

	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.enable_reflection", true)

	v.SetDefault("store.backend", "inmemory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.mongo.uri", "")
	v.SetDefault("store.mongo.database", "dealsaga")

	v.SetDefault("messagebus.broker", "inmemory")
	v.SetDefault("messagebus.nats.url", "nats://localhost:4222")
	v.SetDefault("messagebus.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("messagebus.kafka.group_id", "saga-orchestrator")
	v.SetDefault("messagebus.redis.addr", "localhost:6379")
	v.SetDefault("messagebus.redis.password", "")
	v.SetDefault("messagebus.redis.db", 0)

	v.SetDefault("participants.vehicle_service_url", "http://localhost:8081")
	v.SetDefault("participants.customer_service_url", "http://localhost:8082")
	v.SetDefault("participants.request_timeout", 10*time.Second)

	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.interval", 30*time.Second)
	v.SetDefault("watchdog.compensation_timeout", 2*time.Minute)
	v.SetDefault("watchdog.finalization_timeout", time.Minute)
	v.SetDefault("watchdog.forward_timeout", time.Duration(0))
	v.SetDefault("watchdog.batch_limit", 100)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name cannot be empty")
	}

	switch c.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Service.LogLevel)
	}

	switch c.Store.Backend {
	case "inmemory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres backend")
		}
	case "mongodb":
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required for mongodb backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	switch c.MessageBus.Broker {
	case "inmemory":
	case "nats":
		if c.MessageBus.NATS.URL == "" {
			return fmt.Errorf("messagebus.nats.url is required for nats broker")
		}
	case "kafka":
		if len(c.MessageBus.Kafka.Brokers) == 0 {
			return fmt.Errorf("messagebus.kafka.brokers is required for kafka broker")
		}
	case "redis":
		if c.MessageBus.Redis.Addr == "" {
			return fmt.Errorf("messagebus.redis.addr is required for redis broker")
		}
	default:
		return fmt.Errorf("unknown message bus broker: %s", c.MessageBus.Broker)
	}

	if c.Participants.VehicleServiceURL == "" {
		return fmt.Errorf("participants.vehicle_service_url cannot be empty")
	}
	if c.Participants.CustomerServiceURL == "" {
		return fmt.Errorf("participants.customer_service_url cannot be empty")
	}

	return nil
}
