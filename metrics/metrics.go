// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics сборщик метрик оркестратора
type Metrics struct {
	meter              metric.Meter
	sagasStarted       metric.Int64Counter
	sagasFinished      metric.Int64Counter
	eventsTotal        metric.Int64Counter
	eventDuration      metric.Float64Histogram
	commandsTotal      metric.Int64Counter
	transitionsTotal   metric.Int64Counter
	compensationsTotal metric.Int64Counter
	watchdogRequeues   metric.Int64Counter
	errorsTotal        metric.Int64Counter
}

// NewMetrics создает новый сборщик метрик
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("dealsaga")

	sagasStarted, err := meter.Int64Counter(
		"saga_started_total",
		metric.WithDescription("Total number of purchase sagas started"),
	)
	if err != nil {
		return nil, err
	}

	sagasFinished, err := meter.Int64Counter(
		"saga_finished_total",
		metric.WithDescription("Total number of sagas reaching a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	eventsTotal, err := meter.Int64Counter(
		"saga_events_total",
		metric.WithDescription("Total number of participant events received"),
	)
	if err != nil {
		return nil, err
	}

	eventDuration, err := meter.Float64Histogram(
		"saga_event_duration_seconds",
		metric.WithDescription("Event handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	commandsTotal, err := meter.Int64Counter(
		"saga_commands_total",
		metric.WithDescription("Total number of commands published to participants"),
	)
	if err != nil {
		return nil, err
	}

	transitionsTotal, err := meter.Int64Counter(
		"saga_transitions_total",
		metric.WithDescription("Total number of saga status transitions"),
	)
	if err != nil {
		return nil, err
	}

	compensationsTotal, err := meter.Int64Counter(
		"saga_compensations_total",
		metric.WithDescription("Total number of compensation commands issued"),
	)
	if err != nil {
		return nil, err
	}

	watchdogRequeues, err := meter.Int64Counter(
		"saga_watchdog_requeues_total",
		metric.WithDescription("Total number of stuck sagas reprocessed by the watchdog"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:              meter,
		sagasStarted:       sagasStarted,
		sagasFinished:      sagasFinished,
		eventsTotal:        eventsTotal,
		eventDuration:      eventDuration,
		commandsTotal:      commandsTotal,
		transitionsTotal:   transitionsTotal,
		compensationsTotal: compensationsTotal,
		watchdogRequeues:   watchdogRequeues,
		errorsTotal:        errorsTotal,
	}, nil
}

// SagaStarted записывает запуск новой саги
func (m *Metrics) SagaStarted(ctx context.Context) {
	m.sagasStarted.Add(ctx, 1)
}

// SagaFinished записывает достижение терминального статуса
func (m *Metrics) SagaFinished(ctx context.Context, status string) {
	m.sagasFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordEvent записывает метрику обработки входящего события
func (m *Metrics) RecordEvent(ctx context.Context, event, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	}

	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.eventDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if outcome == "error" {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "event"),
			attribute.String("event", event),
		))
	}
}

// RecordCommand записывает метрику публикации команды
func (m *Metrics) RecordCommand(ctx context.Context, command string, success bool) {
	m.commandsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	))

	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "command"),
			attribute.String("command", command),
		))
	}
}

// RecordTransition записывает переход статуса саги
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCompensation записывает выдачу команды компенсации
func (m *Metrics) RecordCompensation(ctx context.Context, step string) {
	m.compensationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
	))
}

// RecordWatchdogRequeue записывает повторную обработку застрявшей саги
func (m *Metrics) RecordWatchdogRequeue(ctx context.Context, kind string) {
	m.watchdogRequeues.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordTransport записывает метрику транспорта
func (m *Metrics) RecordTransport(ctx context.Context, transportName string, duration time.Duration, success bool) {
	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "transport"),
			attribute.String("transport", transportName),
		))
	}
}
