// Сервисный бинарник оркестратора саги покупки транспортного средства.
// Собирает хранилище, шину сообщений, движок саги и транспортные адаптеры
// по конфигурации и управляет их жизненным циклом.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/akriventsev/dealsaga/adapters/messagebus"
	"github.com/akriventsev/dealsaga/adapters/services"
	"github.com/akriventsev/dealsaga/adapters/store"
	"github.com/akriventsev/dealsaga/adapters/transport"
	"github.com/akriventsev/dealsaga/config"
	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/events"
	"github.com/akriventsev/dealsaga/metrics"
	"github.com/akriventsev/dealsaga/observability"
	"github.com/akriventsev/dealsaga/saga"
	sagatransport "github.com/akriventsev/dealsaga/transport"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("DEALSAGA_CONFIG"), "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("saga orchestrator failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Метрики ---
	meterProvider, err := metrics.SetupMetrics(&metrics.MetricsConfig{
		ExporterType: "prometheus",
		ResourceAttrs: map[string]string{
			"service.name":           cfg.Service.Name,
			"service.version":        cfg.Service.Version,
			"deployment.environment": cfg.Service.Environment,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to setup metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metrics.ShutdownMetrics(shutdownCtx, meterProvider); err != nil {
			logger.Warn("failed to shutdown metrics", zap.Error(err))
		}
	}()

	m, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// --- Трассировка ---
	tracing, err := observability.NewTracingManager(observability.TracingConfig{
		Enabled:          cfg.Tracing.Enabled,
		ServiceName:      cfg.Service.Name,
		ServiceVersion:   cfg.Service.Version,
		Environment:      cfg.Service.Environment,
		Exporter:         cfg.Tracing.Exporter,
		ExporterEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:     cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracing manager: %w", err)
	}

	// --- Хранилище ---
	sagaStore, err := buildStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create saga store: %w", err)
	}

	// --- Шина сообщений ---
	bus, err := buildMessageBus(cfg.MessageBus, logger, m)
	if err != nil {
		return fmt.Errorf("failed to create message bus: %w", err)
	}

	// --- Клиенты сервисов-участников ---
	vehicles, err := services.NewVehicleClient(services.VehicleServiceConfig{
		BaseURL: cfg.Participants.VehicleServiceURL,
		Timeout: cfg.Participants.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create vehicle client: %w", err)
	}
	vehicles.WithLogger(logger)

	customers, err := services.NewCustomerClient(services.CustomerServiceConfig{
		BaseURL: cfg.Participants.CustomerServiceURL,
		Timeout: cfg.Participants.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create customer client: %w", err)
	}
	customers.WithLogger(logger)

	// --- Внутренняя шина уведомлений ---
	notifier := events.NewInMemoryEventBus()

	// --- Движок саги ---
	engine, err := saga.NewEngineBuilder().
		WithStore(sagaStore).
		WithMessageBus(bus).
		WithVehicleCatalog(vehicles).
		WithCustomerDirectory(customers).
		WithNotifier(notifier).
		WithMetrics(m).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build saga engine: %w", err)
	}

	// --- Watchdog ---
	var watchdog *saga.Watchdog
	if cfg.Watchdog.Enabled {
		watchdog, err = saga.NewWatchdog(engine, saga.WatchdogConfig{
			Interval:            cfg.Watchdog.Interval,
			CompensationTimeout: cfg.Watchdog.CompensationTimeout,
			FinalizationTimeout: cfg.Watchdog.FinalizationTimeout,
			ForwardTimeout:      cfg.Watchdog.ForwardTimeout,
			BatchLimit:          cfg.Watchdog.BatchLimit,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create watchdog: %w", err)
		}
	}

	// --- Health checks ---
	var health []core.MonitoredComponent
	for _, candidate := range []interface{}{sagaStore, bus, vehicles, customers} {
		if mc, ok := candidate.(core.MonitoredComponent); ok {
			health = append(health, mc)
		}
	}

	// --- Транспортные адаптеры ---
	restCfg := transport.DefaultRESTConfig()
	restCfg.Port = cfg.REST.Port
	restCfg.Mode = cfg.REST.Mode
	restCfg.ShutdownTimeout = cfg.REST.ShutdownTimeout
	restCfg.EnableValidation = cfg.REST.EnableValidation
	restCfg.EnableTracing = cfg.Tracing.Enabled

	rest, err := transport.NewRESTAdapter(restCfg, engine)
	if err != nil {
		return fmt.Errorf("failed to create rest adapter: %w", err)
	}
	rest.WithLogger(logger).WithHealthChecks(health...)

	wsCfg := transport.DefaultWebSocketConfig()
	wsCfg.Port = cfg.WebSocket.Port
	wsCfg.Path = cfg.WebSocket.Path

	ws, err := transport.NewWebSocketAdapter(wsCfg, notifier)
	if err != nil {
		return fmt.Errorf("failed to create websocket adapter: %w", err)
	}
	ws.WithLogger(logger)

	grpcCfg := transport.DefaultGRPCConfig()
	grpcCfg.Port = cfg.GRPC.Port
	grpcCfg.EnableReflection = cfg.GRPC.EnableReflection

	grpcSrv, err := transport.NewGRPCAdapter(grpcCfg)
	if err != nil {
		return fmt.Errorf("failed to create grpc adapter: %w", err)
	}
	grpcSrv.WithLogger(logger).WithHealthChecks(health...)

	// --- Запуск ---
	// Порядок важен: хранилище и шина раньше движка, транспорт последним.
	components := []core.Lifecycle{tracing}
	if lc, ok := sagaStore.(core.Lifecycle); ok {
		components = append(components, lc)
	}
	if lc, ok := bus.(core.Lifecycle); ok {
		components = append(components, lc)
	}
	components = append(components, engine)
	if watchdog != nil {
		components = append(components, watchdog)
	}
	components = append(components, ws, grpcSrv, rest)

	started, err := startAll(ctx, components, logger)
	if err != nil {
		stopAll(started, logger)
		return err
	}

	logger.Info("saga orchestrator started",
		zap.String("service", cfg.Service.Name),
		zap.String("version", cfg.Service.Version),
		zap.Int("rest_port", cfg.REST.Port),
		zap.Int("websocket_port", cfg.WebSocket.Port),
		zap.Int("grpc_port", cfg.GRPC.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("broker", cfg.MessageBus.Broker))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopAll(started, logger)

	notifierCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := notifier.Shutdown(notifierCtx); err != nil {
		logger.Warn("failed to shutdown notification bus", zap.Error(err))
	}

	logger.Info("saga orchestrator stopped")
	return nil
}

// newLogger создает zap логгер согласно окружению и уровню из конфигурации
func newLogger(cfg config.ServiceConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// buildStore создает хранилище саг для выбранного бэкенда
func buildStore(cfg config.StoreConfig) (saga.Store, error) {
	factory := store.NewFactory()

	switch cfg.Backend {
	case "postgres":
		pgCfg := store.DefaultPostgresConfig()
		pgCfg.DSN = cfg.DSN
		return factory.Create("postgres", pgCfg)
	case "mongodb":
		mongoCfg := store.DefaultMongoConfig()
		mongoCfg.URI = cfg.Mongo.URI
		if cfg.Mongo.Database != "" {
			mongoCfg.Database = cfg.Mongo.Database
		}
		return factory.Create("mongodb", mongoCfg)
	default:
		return factory.Create(cfg.Backend, nil)
	}
}

// buildMessageBus создает адаптер шины сообщений для выбранного брокера
func buildMessageBus(cfg config.MessageBusConfig, logger *zap.Logger, m *metrics.Metrics) (sagatransport.MessageBus, error) {
	factory := messagebus.NewFactory(logger, m)

	switch cfg.Broker {
	case "nats":
		natsCfg := messagebus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		return factory.Create("nats", natsCfg)
	case "kafka":
		kafkaCfg := messagebus.DefaultKafkaConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		if cfg.Kafka.GroupID != "" {
			kafkaCfg.GroupID = cfg.Kafka.GroupID
		}
		return factory.Create("kafka", kafkaCfg)
	case "redis":
		redisCfg := messagebus.DefaultRedisConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		return factory.Create("redis", redisCfg)
	default:
		return factory.Create(cfg.Broker, messagebus.DefaultInMemoryConfig())
	}
}

// startAll запускает компоненты по порядку и возвращает успешно запущенные.
// При ошибке вызывающий останавливает уже запущенные в обратном порядке.
func startAll(ctx context.Context, components []core.Lifecycle, logger *zap.Logger) ([]core.Lifecycle, error) {
	started := make([]core.Lifecycle, 0, len(components))
	for _, component := range components {
		if err := component.Start(ctx); err != nil {
			return started, fmt.Errorf("failed to start %s: %w", componentName(component), err)
		}
		started = append(started, component)
		logger.Debug("component started", zap.String("component", componentName(component)))
	}
	return started, nil
}

// stopAll останавливает компоненты в обратном порядке запуска
func stopAll(components []core.Lifecycle, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		if err := component.Stop(ctx); err != nil {
			logger.Warn("failed to stop component",
				zap.String("component", componentName(component)),
				zap.Error(err))
		}
	}
}

func componentName(component core.Lifecycle) string {
	if c, ok := component.(core.Component); ok {
		return c.Name()
	}
	return fmt.Sprintf("%T", component)
}
