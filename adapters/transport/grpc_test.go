package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akriventsev/dealsaga/adapters/messagebus"
	"github.com/akriventsev/dealsaga/core"
)

func TestGRPCConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultGRPCConfig().Validate())

	bad := DefaultGRPCConfig()
	bad.Port = -1
	assert.Error(t, bad.Validate())

	bad = DefaultGRPCConfig()
	bad.HealthInterval = 0
	assert.Error(t, bad.Validate())
}

func TestNewGRPCAdapter(t *testing.T) {
	adapter, err := NewGRPCAdapter(DefaultGRPCConfig())
	require.NoError(t, err)
	assert.Equal(t, "grpc-adapter", adapter.Name())
	assert.Equal(t, core.ComponentTypeTransport, adapter.Type())
	assert.False(t, adapter.IsRunning())

	_, err = NewGRPCAdapter(GRPCConfig{Port: 0})
	assert.Error(t, err)
}

func newHealthClient(t *testing.T, port int) healthpb.HealthClient {
	t.Helper()

	conn, err := grpc.NewClient(
		fmt.Sprintf("127.0.0.1:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func TestGRPCAdapter_ServesHealth(t *testing.T) {
	config := DefaultGRPCConfig()
	config.Port = 18096

	adapter, err := NewGRPCAdapter(config)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, adapter.Start(ctx))
	t.Cleanup(func() { _ = adapter.Stop(ctx) })
	assert.True(t, adapter.IsRunning())

	client := newHealthClient(t, config.Port)
	require.Eventually(t, func() bool {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		resp, err := client.Check(checkCtx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 50*time.Millisecond)
}

func TestGRPCAdapter_ReportsComponentStatus(t *testing.T) {
	config := DefaultGRPCConfig()
	config.Port = 18097
	config.HealthInterval = 50 * time.Millisecond

	bus := messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig())
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	adapter, err := NewGRPCAdapter(config)
	require.NoError(t, err)
	adapter.WithHealthChecks(bus)

	ctx := context.Background()
	require.NoError(t, adapter.Start(ctx))
	t.Cleanup(func() { _ = adapter.Stop(ctx) })

	client := newHealthClient(t, config.Port)
	busService := &healthpb.HealthCheckRequest{Service: bus.Name()}

	require.Eventually(t, func() bool {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		resp, err := client.Check(checkCtx, busService)
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 50*time.Millisecond)

	// Остановленная шина переводит компонент и сервис в NOT_SERVING
	require.NoError(t, bus.Stop(context.Background()))

	require.Eventually(t, func() bool {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		resp, err := client.Check(checkCtx, busService)
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 3*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		resp, err := client.Check(checkCtx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 3*time.Second, 50*time.Millisecond)
}

func TestGRPCAdapter_Lifecycle(t *testing.T) {
	config := DefaultGRPCConfig()
	config.Port = 18098

	adapter, err := NewGRPCAdapter(config)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, adapter.Start(ctx))
	require.NoError(t, adapter.Start(ctx))
	assert.True(t, adapter.IsRunning())

	require.NoError(t, adapter.Stop(ctx))
	assert.False(t, adapter.IsRunning())
	require.NoError(t, adapter.Stop(ctx))
}
