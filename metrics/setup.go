// Package metrics предоставляет функции для настройки системы метрик.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	ExporterType  string
	ResourceAttrs map[string]string
}

// DefaultMetricsConfig возвращает конфигурацию метрик по умолчанию
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		ExporterType: "prometheus",
		ResourceAttrs: map[string]string{
			"service.name": "dealsaga",
		},
	}
}

// SetupMetrics настраивает экспорт метрик и устанавливает глобальный
// MeterProvider. Снятие метрик выполняется через promhttp на /metrics.
func SetupMetrics(config *MetricsConfig) (*metric.MeterProvider, error) {
	if config == nil {
		config = DefaultMetricsConfig()
	}

	var reader metric.Reader
	var err error

	switch config.ExporterType {
	case "prometheus", "":
		reader, err = setupPrometheusExporter()
	default:
		return nil, fmt.Errorf("unknown metrics exporter type: %s", config.ExporterType)
	}

	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(buildResourceAttributes(config.ResourceAttrs)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(provider)

	return provider, nil
}

// setupPrometheusExporter настраивает Prometheus exporter
func setupPrometheusExporter() (metric.Reader, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return exporter, nil
}

// buildResourceAttributes строит resource attributes
func buildResourceAttributes(attrs map[string]string) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, attribute.String(k, v))
	}
	return result
}

// ShutdownMetrics корректно завершает работу метрик
func ShutdownMetrics(ctx context.Context, provider *metric.MeterProvider) error {
	if provider == nil {
		return nil
	}

	return provider.Shutdown(ctx)
}
