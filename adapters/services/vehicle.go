// Package services предоставляет HTTP клиенты сервисов участников саги.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/saga"
)

// VehicleServiceConfig конфигурация клиента сервиса автомобилей
type VehicleServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Validate проверяет корректность конфигурации
func (c VehicleServiceConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://")
	}
	return nil
}

// DefaultVehicleServiceConfig возвращает конфигурацию по умолчанию
func DefaultVehicleServiceConfig() VehicleServiceConfig {
	return VehicleServiceConfig{
		BaseURL: "http://localhost:8081",
		Timeout: 10 * time.Second,
	}
}

// VehicleClient клиент каталога автомобилей. Реализует saga.VehicleCatalog
// поверх REST API сервиса автомобилей.
type VehicleClient struct {
	config VehicleServiceConfig
	client *http.Client
	logger *zap.Logger
}

// NewVehicleClient создает клиент сервиса автомобилей
func NewVehicleClient(config VehicleServiceConfig) (*VehicleClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vehicle service config: %w", err)
	}

	return &VehicleClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: zap.NewNop(),
	}, nil
}

// WithLogger устанавливает логгер
func (c *VehicleClient) WithLogger(logger *zap.Logger) *VehicleClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Name возвращает имя компонента (реализация core.Component)
func (c *VehicleClient) Name() string {
	return "vehicle-service-client"
}

// Type возвращает тип компонента (реализация core.Component)
func (c *VehicleClient) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет доступность сервиса (реализация core.HealthCheckable)
func (c *VehicleClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to build health request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "vehicle service is unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return core.NewErrorf(core.ErrUnavailable, "vehicle service is unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// GetVehicle возвращает данные автомобиля (реализация saga.VehicleCatalog)
func (c *VehicleClient) GetVehicle(ctx context.Context, vehicleID int64) (*saga.Vehicle, error) {
	url := fmt.Sprintf("%s/vehicles/%d", c.config.BaseURL, vehicleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to build vehicle request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to call vehicle service")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, core.NewErrorf(core.ErrNotFound, "vehicle %d not found", vehicleID)
	default:
		return nil, core.NewErrorf(core.ErrUnavailable, "vehicle service returned status %d", resp.StatusCode)
	}

	var vehicle saga.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicle); err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to decode vehicle response")
	}
	return &vehicle, nil
}

// MarkVehicleSold помечает автомобиль проданным (реализация saga.VehicleCatalog)
func (c *VehicleClient) MarkVehicleSold(ctx context.Context, vehicleID int64) error {
	url := fmt.Sprintf("%s/vehicles/%d/mark_as_sold", c.config.BaseURL, vehicleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, nil)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to build mark as sold request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to call vehicle service")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Info("vehicle marked as sold", zap.Int64("vehicle_id", vehicleID))
		return nil
	case http.StatusNotFound:
		return core.NewErrorf(core.ErrNotFound, "vehicle %d not found", vehicleID)
	default:
		return core.NewErrorf(core.ErrUnavailable, "vehicle service returned status %d", resp.StatusCode)
	}
}
