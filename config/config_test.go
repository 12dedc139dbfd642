package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "saga-orchestrator", cfg.Service.Name)
	assert.Equal(t, "development", cfg.Service.Environment)
	assert.Equal(t, "info", cfg.Service.LogLevel)

	assert.Equal(t, 8080, cfg.REST.Port)
	assert.Equal(t, 30*time.Second, cfg.REST.ShutdownTimeout)
	assert.True(t, cfg.REST.EnableValidation)

	assert.Equal(t, 8083, cfg.WebSocket.Port)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, 50051, cfg.GRPC.Port)

	assert.Equal(t, "inmemory", cfg.Store.Backend)
	assert.Equal(t, "inmemory", cfg.MessageBus.Broker)
	assert.Equal(t, []string{"localhost:9092"}, cfg.MessageBus.Kafka.Brokers)

	assert.Equal(t, "http://localhost:8081", cfg.Participants.VehicleServiceURL)
	assert.Equal(t, "http://localhost:8082", cfg.Participants.CustomerServiceURL)

	assert.True(t, cfg.Watchdog.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Watchdog.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Watchdog.CompensationTimeout)

	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEALSAGA_REST_PORT", "9090")
	t.Setenv("DEALSAGA_STORE_BACKEND", "postgres")
	t.Setenv("DEALSAGA_STORE_DSN", "postgres://localhost:5432/dealsaga")
	t.Setenv("DEALSAGA_MESSAGEBUS_BROKER", "nats")
	t.Setenv("DEALSAGA_MESSAGEBUS_NATS_URL", "nats://broker:4222")
	t.Setenv("DEALSAGA_WATCHDOG_INTERVAL", "10s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.REST.Port)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost:5432/dealsaga", cfg.Store.DSN)
	assert.Equal(t, "nats", cfg.MessageBus.Broker)
	assert.Equal(t, "nats://broker:4222", cfg.MessageBus.NATS.URL)
	assert.Equal(t, 10*time.Second, cfg.Watchdog.Interval)
}

func TestLoad_File(t *testing.T) {
	content := `
service:
  name: dealsaga-staging
  environment: staging
rest:
  port: 8100
store:
  backend: mongodb
  mongo:
    uri: mongodb://localhost:27017
    database: sagas
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4318
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dealsaga-staging", cfg.Service.Name)
	assert.Equal(t, "staging", cfg.Service.Environment)
	assert.Equal(t, 8100, cfg.REST.Port)
	assert.Equal(t, "mongodb", cfg.Store.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.Mongo.URI)
	assert.Equal(t, "sagas", cfg.Store.Mongo.Database)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)

	// Незатронутые файлом секции сохраняют умолчания
	assert.Equal(t, "inmemory", cfg.MessageBus.Broker)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty service name",
			mutate:  func(c *Config) { c.Service.Name = "" },
			wantErr: "service.name",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Service.LogLevel = "trace" },
			wantErr: "unknown log level",
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.Store.Backend = "cassandra" },
			wantErr: "unknown store backend",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Backend = "postgres" },
			wantErr: "store.dsn is required",
		},
		{
			name:    "mongodb without uri",
			mutate:  func(c *Config) { c.Store.Backend = "mongodb" },
			wantErr: "store.mongo.uri is required",
		},
		{
			name:    "unknown broker",
			mutate:  func(c *Config) { c.MessageBus.Broker = "rabbitmq" },
			wantErr: "unknown message bus broker",
		},
		{
			name: "kafka without brokers",
			mutate: func(c *Config) {
				c.MessageBus.Broker = "kafka"
				c.MessageBus.Kafka.Brokers = nil
			},
			wantErr: "messagebus.kafka.brokers",
		},
		{
			name:    "missing participant url",
			mutate:  func(c *Config) { c.Participants.VehicleServiceURL = "" },
			wantErr: "vehicle_service_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
