// Package transport предоставляет REST, WebSocket и gRPC адаптеры оркестратора.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/observability"
	"github.com/akriventsev/dealsaga/saga"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Port             int
	Mode             string // gin mode: release, debug, test
	ShutdownTimeout  time.Duration
	EnableValidation bool // Валидация запросов по OpenAPI контракту
	EnableTracing    bool // Создание серверных span для входящих запросов
}

// Validate проверяет корректность конфигурации
func (c RESTConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Port:             8080,
		Mode:             gin.ReleaseMode,
		ShutdownTimeout:  30 * time.Second,
		EnableValidation: true,
	}
}

// RESTAdapter HTTP API оркестратора: запуск покупки, запросы состояния
// и истории, отмена. Ошибки домена транслируются в HTTP статусы.
type RESTAdapter struct {
	config RESTConfig
	engine *saga.Engine
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
	health []core.MonitoredComponent

	mu      sync.RWMutex
	running bool
}

// NewRESTAdapter создает REST адаптер поверх оркестратора
func NewRESTAdapter(config RESTConfig, engine *saga.Engine) (*RESTAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rest config: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}

	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	adapter := &RESTAdapter{
		config: config,
		engine: engine,
		logger: zap.NewNop(),
		router: gin.New(),
	}

	if err := adapter.setupRoutes(); err != nil {
		return nil, err
	}
	return adapter, nil
}

// WithLogger устанавливает логгер
func (r *RESTAdapter) WithLogger(logger *zap.Logger) *RESTAdapter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithHealthChecks регистрирует компоненты для /health
func (r *RESTAdapter) WithHealthChecks(checks ...core.MonitoredComponent) *RESTAdapter {
	r.health = append(r.health, checks...)
	return r
}

// Router возвращает маршрутизатор (для тестов)
func (r *RESTAdapter) Router() *gin.Engine {
	return r.router
}

// setupRoutes настраивает маршруты API
func (r *RESTAdapter) setupRoutes() error {
	r.router.Use(gin.Recovery())

	if r.config.EnableTracing {
		r.router.Use(observability.HTTPTracingMiddleware("saga-orchestrator"))
		r.router.Use(observability.CorrelationIDMiddleware())
	}

	if r.config.EnableValidation {
		validator, err := newContractValidator()
		if err != nil {
			return fmt.Errorf("failed to load OpenAPI contract: %w", err)
		}
		r.router.Use(validator.middleware())
	}

	r.router.POST("/purchase", r.startPurchase)
	r.router.POST("/purchase/:transaction_id/cancel", r.cancelPurchase)
	r.router.GET("/saga-states", r.listStates)
	r.router.GET("/saga-states/:transaction_id", r.getState)
	r.router.GET("/saga-states/:transaction_id/history", r.getHistory)
	r.router.GET("/health", r.healthCheck)
	r.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}

// Start запускает HTTP сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	r.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", r.config.Port),
		Handler: r.router,
	}

	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("rest server failed", zap.Error(err))
		}
	}()

	r.running = true
	r.logger.Info("rest adapter started", zap.Int("port", r.config.Port))
	return nil
}

// Stop останавливает HTTP сервер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false

	if r.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
		if err := r.server.Shutdown(shutdownCtx); err != nil {
			return core.Wrap(err, core.ErrInternal, "failed to shutdown rest server")
		}
	}

	r.logger.Info("rest adapter stopped")
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return "rest-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// purchaseResponse ответ на запуск саги покупки
type purchaseResponse struct {
	Message       string  `json:"message"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	PaymentType   string  `json:"payment_type"`
}

// startPurchase обрабатывает POST /purchase
func (r *RESTAdapter) startPurchase(c *gin.Context) {
	var req saga.StartPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	record, err := r.engine.StartPurchase(c.Request.Context(), req)
	if err != nil {
		r.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, purchaseResponse{
		Message:       "Purchase saga initiated. Credit reservation pending.",
		TransactionID: record.TransactionID,
		Status:        string(record.Status),
		Amount:        record.Amount,
		PaymentType:   string(record.PaymentType),
	})
}

// cancelRequest тело запроса отмены
type cancelRequest struct {
	Reason string `json:"reason"`
}

// cancelPurchase обрабатывает POST /purchase/:transaction_id/cancel
func (r *RESTAdapter) cancelPurchase(c *gin.Context) {
	transactionID := c.Param("transaction_id")

	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	if err := r.engine.Cancel(c.Request.Context(), transactionID, req.Reason); err != nil {
		r.respondError(c, err)
		return
	}

	status := ""
	if record, err := r.engine.GetState(c.Request.Context(), transactionID); err == nil {
		status = string(record.Status)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":        "Cancellation initiated",
		"transaction_id": transactionID,
		"status":         status,
	})
}

// getState обрабатывает GET /saga-states/:transaction_id
func (r *RESTAdapter) getState(c *gin.Context) {
	record, err := r.engine.GetState(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// listStates обрабатывает GET /saga-states
func (r *RESTAdapter) listStates(c *gin.Context) {
	var filter saga.Filter

	if status := c.Query("status"); status != "" {
		if !saga.Status(status).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + status})
			return
		}
		filter.Status = saga.Status(status)
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	records, err := r.engine.ListStates(c.Request.Context(), filter)
	if err != nil {
		r.respondError(c, err)
		return
	}
	if records == nil {
		records = []*saga.Purchase{}
	}

	c.JSON(http.StatusOK, gin.H{"items": records, "count": len(records)})
}

// getHistory обрабатывает GET /saga-states/:transaction_id/history
func (r *RESTAdapter) getHistory(c *gin.Context) {
	transactionID := c.Param("transaction_id")
	transitions, err := r.engine.GetHistory(c.Request.Context(), transactionID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	if transitions == nil {
		transitions = []*saga.Transition{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id": transactionID,
		"transitions":    transitions,
	})
}

// healthCheck обрабатывает GET /health
func (r *RESTAdapter) healthCheck(c *gin.Context) {
	components := make(map[string]string, len(r.health))
	healthy := true

	for _, check := range r.health {
		if err := check.HealthCheck(c.Request.Context()); err != nil {
			components[check.Name()] = err.Error()
			healthy = false
		} else {
			components[check.Name()] = "ok"
		}
	}

	status := http.StatusOK
	statusText := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":     statusText,
		"service":    "saga-orchestrator",
		"timestamp":  time.Now().UTC(),
		"components": components,
	})
}

// respondError транслирует ошибку домена в HTTP статус
func (r *RESTAdapter) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsInvalidRequest(err):
		status = http.StatusBadRequest
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case core.IsAlreadyExists(err), core.IsAlreadyTerminal(err), core.IsVersionConflict(err):
		status = http.StatusConflict
	case core.HasCode(err, core.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
