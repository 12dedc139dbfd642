// Package core предоставляет базовые интерфейсы и типы для всех компонентов сервиса.
package core

import "context"

// Component базовый интерфейс для всех компонентов сервиса
type Component interface {
	// Name возвращает имя компонента
	Name() string
	// Type возвращает тип компонента
	Type() ComponentType
}

// Lifecycle интерфейс для управления жизненным циклом компонентов
type Lifecycle interface {
	// Start запускает компонент
	Start(ctx context.Context) error
	// Stop останавливает компонент
	Stop(ctx context.Context) error
	// IsRunning проверяет, запущен ли компонент
	IsRunning() bool
}

// HealthCheckable интерфейс для проверки здоровья компонентов
type HealthCheckable interface {
	// HealthCheck проверяет здоровье компонента
	HealthCheck(ctx context.Context) error
}

// MonitoredComponent компонент, публикующий свое состояние в health endpoints
type MonitoredComponent interface {
	Component
	HealthCheckable
}

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeModule    ComponentType = "module"
	ComponentTypeAdapter   ComponentType = "adapter"
	ComponentTypeTransport ComponentType = "transport"
	ComponentTypeHandler   ComponentType = "handler"
)
