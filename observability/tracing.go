// Package observability предоставляет distributed tracing и propagation
// trace context между оркестратором и сервисами участников.
package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/akriventsev/dealsaga/core"
)

const correlationIDKey = "X-Correlation-ID"

// Поддерживаемые exporters
const (
	ExporterOTLP   = "otlp"
	ExporterJaeger = "jaeger"
	ExporterZipkin = "zipkin"
	ExporterStdout = "stdout"
)

// TracingConfig конфигурация для distributed tracing
type TracingConfig struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Environment      string // development, staging, production
	Exporter         string // otlp, jaeger, zipkin, stdout
	ExporterEndpoint string
	SamplingRate     float64 // 0.0 - 1.0
}

// Validate проверяет корректность конфигурации
func (c TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	switch c.Exporter {
	case ExporterOTLP, ExporterJaeger, ExporterZipkin, ExporterStdout, "":
	default:
		return fmt.Errorf("unknown exporter: %s", c.Exporter)
	}
	if c.SamplingRate < 0.0 || c.SamplingRate > 1.0 {
		return fmt.Errorf("sampling rate must be between 0.0 and 1.0")
	}
	return nil
}

// DefaultTracingConfig возвращает конфигурацию tracing по умолчанию
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    "saga-orchestrator",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Exporter:       ExporterStdout,
		SamplingRate:   1.0,
	}
}

// TracingManager настраивает глобальный tracer provider и propagation
type TracingManager struct {
	config   TracingConfig
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider

	mu      sync.RWMutex
	running bool
}

// NewTracingManager создает новый TracingManager.
// При Enabled=false возвращается бездействующий менеджер.
func NewTracingManager(config TracingConfig) (*TracingManager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracing config: %w", err)
	}
	if !config.Enabled {
		return &TracingManager{config: config}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(config.SamplingRate)
	if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if config.SamplingRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracingManager{
		config:   config,
		tracer:   provider.Tracer(config.ServiceName),
		provider: provider,
	}, nil
}

// createExporter создает exporter на основе конфигурации
func createExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case ExporterJaeger:
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.ExporterEndpoint)))
	case ExporterZipkin:
		return zipkin.New(config.ExporterEndpoint)
	case ExporterOTLP:
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(config.ExporterEndpoint),
			otlptracehttp.WithInsecure(),
		)
		return otlptrace.New(context.Background(), client)
	default:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
}

// Start запускает tracing (реализация core.Lifecycle)
func (tm *TracingManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.running = true
	return nil
}

// Stop останавливает tracing, сбрасывая накопленные spans
// (реализация core.Lifecycle)
func (tm *TracingManager) Stop(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.running = false
	if tm.provider != nil {
		return tm.provider.Shutdown(ctx)
	}
	return nil
}

// IsRunning проверяет, запущен ли менеджер (реализация core.Lifecycle)
func (tm *TracingManager) IsRunning() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// Name возвращает имя компонента (реализация core.Component)
func (tm *TracingManager) Name() string {
	return "tracing-manager"
}

// Type возвращает тип компонента (реализация core.Component)
func (tm *TracingManager) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Tracer возвращает tracer для создания spans
func (tm *TracingManager) Tracer() trace.Tracer {
	if tm.tracer != nil {
		return tm.tracer
	}
	return otel.Tracer(tm.config.ServiceName)
}

// InjectTraceContext записывает trace context в заголовки сообщения.
// Заголовки передаются сервисам участников вместе с командой.
func InjectTraceContext(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractTraceContext восстанавливает trace context из заголовков сообщения
func ExtractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// TraceEvent оборачивает обработку события участника в span
func TraceEvent(ctx context.Context, eventType string, fn func(context.Context) error) error {
	tracer := otel.Tracer("dealsaga.event")
	ctx, span := tracer.Start(ctx, fmt.Sprintf("event.%s", eventType))
	defer span.End()

	span.SetAttributes(attribute.String("event.type", eventType))

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("event.success", false))
	} else {
		span.SetAttributes(attribute.Bool("event.success", true))
	}
	return err
}

// HTTPTracingMiddleware Gin middleware для инструментации HTTP requests
func HTTPTracingMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(c.Request.Header))

		tracer := otel.Tracer(serviceName)
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.url", c.Request.URL.String()),
			attribute.String("http.route", c.FullPath()),
		)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}

		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))
	}
}

// GRPCTracingInterceptor gRPC interceptor для инструментации unary calls
func GRPCTracingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = otel.GetTextMapPropagator().Extract(ctx, metadataTextMapCarrier(md))
		}

		tracer := otel.Tracer("grpc")
		ctx, span := tracer.Start(ctx, info.FullMethod)
		defer span.End()

		span.SetAttributes(attribute.String("rpc.method", info.FullMethod))

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}

// metadataTextMapCarrier адаптер для propagation через gRPC metadata
type metadataTextMapCarrier metadata.MD

func (m metadataTextMapCarrier) Get(key string) string {
	values := metadata.MD(m).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (m metadataTextMapCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}

func (m metadataTextMapCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ExtractCorrelationID извлекает correlation ID из context
func ExtractCorrelationID(ctx context.Context) string {
	b := baggage.FromContext(ctx)
	if member := b.Member(correlationIDKey); member.Key() == correlationIDKey {
		return member.Value()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().TraceID().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// InjectCorrelationID добавляет correlation ID в context
func InjectCorrelationID(ctx context.Context, correlationID string) context.Context {
	b := baggage.FromContext(ctx)
	member, err := baggage.NewMember(correlationIDKey, correlationID)
	if err != nil {
		return ctx
	}
	b, _ = b.SetMember(member)
	return baggage.ContextWithBaggage(ctx, b)
}

// CorrelationIDMiddleware Gin middleware для генерации и propagation
// correlation ID
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		correlationID := c.GetHeader(correlationIDKey)
		if correlationID == "" {
			span := trace.SpanFromContext(ctx)
			if span.SpanContext().TraceID().IsValid() {
				correlationID = span.SpanContext().TraceID().String()
			} else {
				correlationID = uuid.NewString()
			}
		}

		c.Request = c.Request.WithContext(InjectCorrelationID(ctx, correlationID))
		c.Writer.Header().Set(correlationIDKey, correlationID)
		c.Next()
	}
}
