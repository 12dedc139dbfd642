package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/akriventsev/dealsaga/core"
)

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
	}{
		{
			name:    "disabled config is always valid",
			config:  TracingConfig{Enabled: false},
			wantErr: false,
		},
		{
			name: "valid enabled config",
			config: TracingConfig{
				Enabled:      true,
				ServiceName:  "saga-orchestrator",
				Exporter:     ExporterStdout,
				SamplingRate: 0.5,
			},
			wantErr: false,
		},
		{
			name: "missing service name",
			config: TracingConfig{
				Enabled:      true,
				Exporter:     ExporterStdout,
				SamplingRate: 1.0,
			},
			wantErr: true,
		},
		{
			name: "unknown exporter",
			config: TracingConfig{
				Enabled:      true,
				ServiceName:  "saga-orchestrator",
				Exporter:     "graphite",
				SamplingRate: 1.0,
			},
			wantErr: true,
		},
		{
			name: "sampling rate out of range",
			config: TracingConfig{
				Enabled:      true,
				ServiceName:  "saga-orchestrator",
				Exporter:     ExporterStdout,
				SamplingRate: 1.5,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultTracingConfig(t *testing.T) {
	config := DefaultTracingConfig()

	assert.False(t, config.Enabled)
	assert.Equal(t, "saga-orchestrator", config.ServiceName)
	assert.Equal(t, ExporterStdout, config.Exporter)
	assert.Equal(t, 1.0, config.SamplingRate)
	assert.NoError(t, config.Validate())
}

func TestNewTracingManager_Disabled(t *testing.T) {
	manager, err := NewTracingManager(DefaultTracingConfig())
	require.NoError(t, err)
	require.NotNil(t, manager)

	assert.Equal(t, "tracing-manager", manager.Name())
	assert.Equal(t, core.ComponentTypeAdapter, manager.Type())
	assert.NotNil(t, manager.Tracer())

	ctx := context.Background()
	require.NoError(t, manager.Start(ctx))
	assert.True(t, manager.IsRunning())
	require.NoError(t, manager.Stop(ctx))
	assert.False(t, manager.IsRunning())
}

func TestNewTracingManager_InvalidConfig(t *testing.T) {
	_, err := NewTracingManager(TracingConfig{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service name")
}

func TestTracingManager_Lifecycle(t *testing.T) {
	config := TracingConfig{
		Enabled:      true,
		ServiceName:  "saga-orchestrator-test",
		Exporter:     ExporterStdout,
		SamplingRate: 0.0, // spans не сэмплируются, экспортер молчит
	}

	manager, err := NewTracingManager(config)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, manager.Start(ctx))
	assert.True(t, manager.IsRunning())

	require.NoError(t, manager.Stop(ctx))
	assert.False(t, manager.IsRunning())
}

func TestTraceContextPropagation(t *testing.T) {
	config := TracingConfig{
		Enabled:      true,
		ServiceName:  "saga-orchestrator-test",
		Exporter:     ExporterStdout,
		SamplingRate: 0.0,
	}

	manager, err := NewTracingManager(config)
	require.NoError(t, err)
	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop(context.Background())

	ctx, span := manager.Tracer().Start(context.Background(), "purchase")
	defer span.End()
	require.True(t, span.SpanContext().TraceID().IsValid())

	headers := make(map[string]string)
	InjectTraceContext(ctx, headers)
	require.NotEmpty(t, headers["traceparent"])

	restored := ExtractTraceContext(context.Background(), headers)
	restoredSpan := trace.SpanContextFromContext(restored)
	assert.Equal(t, span.SpanContext().TraceID(), restoredSpan.TraceID())
}

func TestExtractTraceContext_EmptyHeaders(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, ctx, ExtractTraceContext(ctx, nil))
	assert.Equal(t, ctx, ExtractTraceContext(ctx, map[string]string{}))
}

func TestTraceEvent(t *testing.T) {
	var seen context.Context
	err := TraceEvent(context.Background(), "credit.reserved", func(ctx context.Context) error {
		seen = ctx
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, seen)

	wantErr := fmt.Errorf("handler rejected event")
	err = TraceEvent(context.Background(), "payment.failed", func(ctx context.Context) error {
		return wantErr
	})
	assert.Equal(t, wantErr, err)
}

func TestCorrelationID_InjectExtract(t *testing.T) {
	assert.Empty(t, ExtractCorrelationID(context.Background()))

	ctx := InjectCorrelationID(context.Background(), "corr-123")
	assert.Equal(t, "corr-123", ExtractCorrelationID(ctx))
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CorrelationIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, ExtractCorrelationID(c.Request.Context()))
	})

	t.Run("propagates incoming correlation id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Correlation-ID", "corr-inbound")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "corr-inbound", rec.Header().Get("X-Correlation-ID"))
		assert.Equal(t, "corr-inbound", rec.Body.String())
	})

	t.Run("generates correlation id when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		generated := rec.Header().Get("X-Correlation-ID")
		assert.NotEmpty(t, generated)
		assert.Equal(t, generated, rec.Body.String())
	})
}
