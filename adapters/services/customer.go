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

// CustomerServiceConfig конфигурация клиента сервиса клиентов
type CustomerServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Validate проверяет корректность конфигурации
func (c CustomerServiceConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://")
	}
	return nil
}

// DefaultCustomerServiceConfig возвращает конфигурацию по умолчанию
func DefaultCustomerServiceConfig() CustomerServiceConfig {
	return CustomerServiceConfig{
		BaseURL: "http://localhost:8082",
		Timeout: 10 * time.Second,
	}
}

// CustomerClient клиент справочника клиентов. Реализует
// saga.CustomerDirectory поверх REST API сервиса клиентов.
type CustomerClient struct {
	config CustomerServiceConfig
	client *http.Client
	logger *zap.Logger
}

// NewCustomerClient создает клиент сервиса клиентов
func NewCustomerClient(config CustomerServiceConfig) (*CustomerClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid customer service config: %w", err)
	}

	return &CustomerClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: zap.NewNop(),
	}, nil
}

// WithLogger устанавливает логгер
func (c *CustomerClient) WithLogger(logger *zap.Logger) *CustomerClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Name возвращает имя компонента (реализация core.Component)
func (c *CustomerClient) Name() string {
	return "customer-service-client"
}

// Type возвращает тип компонента (реализация core.Component)
func (c *CustomerClient) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет доступность сервиса (реализация core.HealthCheckable)
func (c *CustomerClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to build health request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "customer service is unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return core.NewErrorf(core.ErrUnavailable, "customer service is unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// GetCustomer возвращает данные клиента (реализация saga.CustomerDirectory)
func (c *CustomerClient) GetCustomer(ctx context.Context, customerID int64) (*saga.Customer, error) {
	url := fmt.Sprintf("%s/customers/%d", c.config.BaseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to build customer request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to call customer service")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, core.NewErrorf(core.ErrNotFound, "customer %d not found", customerID)
	default:
		return nil, core.NewErrorf(core.ErrUnavailable, "customer service returned status %d", resp.StatusCode)
	}

	var customer saga.Customer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, core.Wrap(err, core.ErrInternal, "failed to decode customer response")
	}
	return &customer, nil
}
