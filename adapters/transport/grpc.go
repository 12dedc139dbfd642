package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/observability"
)

// GRPCConfig конфигурация для gRPC адаптера
type GRPCConfig struct {
	Port                  int
	MaxConcurrentStreams  uint32
	MaxReceiveMessageSize int
	EnableReflection      bool
	HealthInterval        time.Duration
}

// Validate проверяет корректность конфигурации
func (c GRPCConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("health interval must be positive")
	}
	return nil
}

// DefaultGRPCConfig возвращает конфигурацию gRPC по умолчанию
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Port:                  50051,
		MaxConcurrentStreams:  100,
		MaxReceiveMessageSize: 4 * 1024 * 1024, // 4MB
		EnableReflection:      true,
		HealthInterval:        15 * time.Second,
	}
}

// GRPCAdapter публикует состояние оркестратора по стандартному
// gRPC Health протоколу. Статус каждого зарегистрированного
// компонента периодически обновляется по его HealthCheck.
type GRPCAdapter struct {
	config GRPCConfig
	server *grpc.Server
	health *health.Server
	checks []core.MonitoredComponent
	logger *zap.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewGRPCAdapter создает новый gRPC адаптер
func NewGRPCAdapter(config GRPCConfig) (*GRPCAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grpc config: %w", err)
	}

	opts := []grpc.ServerOption{
		grpc.MaxConcurrentStreams(config.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(config.MaxReceiveMessageSize),
		grpc.ChainUnaryInterceptor(observability.GRPCTracingInterceptor()),
	}

	adapter := &GRPCAdapter{
		config: config,
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
		logger: zap.NewNop(),
	}

	healthpb.RegisterHealthServer(adapter.server, adapter.health)
	if config.EnableReflection {
		reflection.Register(adapter.server)
	}

	return adapter, nil
}

// WithLogger устанавливает логгер
func (g *GRPCAdapter) WithLogger(logger *zap.Logger) *GRPCAdapter {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithHealthChecks регистрирует компоненты, чье состояние публикуется
// как per-service статус gRPC Health протокола
func (g *GRPCAdapter) WithHealthChecks(components ...core.MonitoredComponent) *GRPCAdapter {
	g.checks = append(g.checks, components...)
	return g
}

// Start запускает gRPC сервер (реализация core.Lifecycle)
func (g *GRPCAdapter) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", g.config.Port))
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to listen grpc port")
	}

	go func() {
		if err := g.server.Serve(listener); err != nil {
			g.logger.Error("grpc server failed", zap.Error(err))
		}
	}()

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	watchCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.wg.Add(1)
	go g.watchHealth(watchCtx)

	g.running = true
	g.logger.Info("grpc adapter started", zap.Int("port", g.config.Port))
	return nil
}

// Stop останавливает gRPC сервер (реализация core.Lifecycle)
func (g *GRPCAdapter) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false

	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()

	g.health.Shutdown()
	g.server.GracefulStop()

	g.logger.Info("grpc adapter stopped")
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (g *GRPCAdapter) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// Name возвращает имя компонента (реализация core.Component)
func (g *GRPCAdapter) Name() string {
	return "grpc-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (g *GRPCAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// watchHealth периодически обновляет per-service статусы
func (g *GRPCAdapter) watchHealth(ctx context.Context) {
	defer g.wg.Done()

	g.refreshHealth(ctx)
	ticker := time.NewTicker(g.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refreshHealth(ctx)
		}
	}
}

// refreshHealth опрашивает компоненты и публикует их статусы
func (g *GRPCAdapter) refreshHealth(ctx context.Context) {
	allServing := true
	for _, component := range g.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := component.HealthCheck(checkCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			allServing = false
			g.logger.Warn("component is unhealthy",
				zap.String("component", component.Name()),
				zap.Error(err))
		}
		g.health.SetServingStatus(component.Name(), status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !allServing {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", overall)
}
