// Package saga предоставляет Watchdog для восстановления зависших саг.
package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
)

// WatchdogConfig конфигурация наблюдателя за зависшими сагами
type WatchdogConfig struct {
	// Interval период обхода хранилища
	Interval time.Duration `json:"interval"`
	// CompensationTimeout порог бездействия саги в COMPENSATING,
	// после которого команда компенсации выдается повторно.
	// Ноль отключает проверку.
	CompensationTimeout time.Duration `json:"compensation_timeout"`
	// FinalizationTimeout порог бездействия саги в PAYMENT_PROCESSED,
	// после которого финализация выполняется повторно.
	// Ноль отключает проверку.
	FinalizationTimeout time.Duration `json:"finalization_timeout"`
	// ForwardTimeout порог бездействия саги в промежуточном статусе
	// прямого хода, после которого команда текущего шага выдается
	// повторно. По умолчанию отключен: повторная выдача безопасна
	// только при идемпотентных участниках.
	ForwardTimeout time.Duration `json:"forward_timeout"`
	// BatchLimit максимум записей на статус за один обход
	BatchLimit int `json:"batch_limit"`
}

// DefaultWatchdogConfig возвращает конфигурацию наблюдателя по умолчанию
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Interval:            30 * time.Second,
		CompensationTimeout: 2 * time.Minute,
		FinalizationTimeout: 1 * time.Minute,
		ForwardTimeout:      0,
		BatchLimit:          100,
	}
}

// Validate проверяет конфигурацию наблюдателя
func (c WatchdogConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.CompensationTimeout < 0 {
		return fmt.Errorf("compensation timeout cannot be negative")
	}
	if c.FinalizationTimeout < 0 {
		return fmt.Errorf("finalization timeout cannot be negative")
	}
	if c.ForwardTimeout < 0 {
		return fmt.Errorf("forward timeout cannot be negative")
	}
	if c.BatchLimit <= 0 {
		return fmt.Errorf("batch limit must be positive")
	}
	return nil
}

// Watchdog периодически обходит хранилище и восстанавливает саги,
// застрявшие из-за потерянных сообщений или падения процесса между
// записью состояния и публикацией команды. Повторная выдача команд
// безопасна: участники обрабатывают команды идемпотентно по
// transaction_id, а дублирующиеся события поглощает оркестратор.
type Watchdog struct {
	engine *Engine
	config WatchdogConfig
	logger *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewWatchdog создает наблюдателя над оркестратором
func NewWatchdog(engine *Engine, config WatchdogConfig, logger *zap.Logger) (*Watchdog, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watchdog config: %w", err)
	}
	if logger == nil {
		logger = engine.logger
	}
	return &Watchdog{
		engine: engine,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Name возвращает имя компонента (реализация core.Component)
func (w *Watchdog) Name() string {
	return "saga-watchdog"
}

// Type возвращает тип компонента (реализация core.Component)
func (w *Watchdog) Type() core.ComponentType {
	return core.ComponentTypeModule
}

// Start запускает периодический обход (реализация core.Lifecycle)
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.run()

	w.running = true
	w.logger.Info("saga watchdog started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("compensation_timeout", w.config.CompensationTimeout),
		zap.Duration("finalization_timeout", w.config.FinalizationTimeout),
		zap.Duration("forward_timeout", w.config.ForwardTimeout))
	return nil
}

// Stop останавливает обход (реализация core.Lifecycle)
func (w *Watchdog) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopCh)
	w.wg.Wait()

	w.running = false
	w.logger.Info("saga watchdog stopped")
	return nil
}

// IsRunning проверяет, запущен ли наблюдатель (реализация core.Lifecycle)
func (w *Watchdog) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// run цикл периодического обхода
func (w *Watchdog) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(context.Background())
		case <-w.stopCh:
			return
		}
	}
}

// Sweep выполняет один обход хранилища и восстанавливает зависшие саги
func (w *Watchdog) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if w.config.CompensationTimeout > 0 {
		w.requeueCompensations(ctx, now.Add(-w.config.CompensationTimeout))
	}
	if w.config.FinalizationTimeout > 0 {
		w.retryFinalizations(ctx, now.Add(-w.config.FinalizationTimeout))
	}
	if w.config.ForwardTimeout > 0 {
		w.requeueForward(ctx, now.Add(-w.config.ForwardTimeout))
	}
}

// listStuck возвращает записи в статусе, не обновлявшиеся после порога
func (w *Watchdog) listStuck(ctx context.Context, status Status, cutoff time.Time) ([]*Purchase, error) {
	return w.engine.store.List(ctx, Filter{
		Status:        status,
		UpdatedBefore: cutoff,
		Limit:         w.config.BatchLimit,
	})
}

// requeueCompensations повторно выдает команды компенсации сагам,
// зависшим в COMPENSATING
func (w *Watchdog) requeueCompensations(ctx context.Context, cutoff time.Time) {
	records, err := w.listStuck(ctx, StatusCompensating, cutoff)
	if err != nil {
		w.logger.Error("watchdog failed to list compensating sagas", zap.Error(err))
		return
	}

	for _, record := range records {
		step, ok := w.engine.definition.StepByName(record.LastCompletedStep())
		if !ok || !step.HasCompensation() {
			// Некомпенсируемых шагов на конце списка не бывает,
			// оркестратор отбрасывает их до записи COMPENSATING.
			w.logger.Warn("compensating saga has no pending compensation",
				zap.String("transaction_id", record.TransactionID),
				zap.String("last_step", record.LastCompletedStep()))
			continue
		}
		w.logger.Warn("requeueing stuck compensation",
			zap.String("transaction_id", record.TransactionID),
			zap.String("step", step.Name()),
			zap.Time("updated_at", record.UpdatedAt))
		w.recordRequeue(ctx, "compensation")
		w.engine.publishCommand(ctx, step.BuildCompensation(record))
	}
}

// retryFinalizations повторно запускает финализацию сагам,
// зависшим в PAYMENT_PROCESSED
func (w *Watchdog) retryFinalizations(ctx context.Context, cutoff time.Time) {
	records, err := w.listStuck(ctx, StatusPaymentProcessed, cutoff)
	if err != nil {
		w.logger.Error("watchdog failed to list unfinalized sagas", zap.Error(err))
		return
	}

	for _, record := range records {
		w.logger.Warn("retrying stuck finalization",
			zap.String("transaction_id", record.TransactionID),
			zap.Time("updated_at", record.UpdatedAt))
		w.recordRequeue(ctx, "finalization")
		if err := w.engine.finalize(ctx, record); err != nil {
			w.logger.Error("watchdog finalization attempt failed",
				zap.String("transaction_id", record.TransactionID),
				zap.Error(err))
		}
	}
}

// requeueForward повторно выдает команды текущего шага сагам,
// зависшим в промежуточном статусе прямого хода
func (w *Watchdog) requeueForward(ctx context.Context, cutoff time.Time) {
	for _, step := range w.engine.definition.Steps() {
		records, err := w.listStuck(ctx, step.StatusBefore(), cutoff)
		if err != nil {
			w.logger.Error("watchdog failed to list stalled sagas",
				zap.String("status", string(step.StatusBefore())), zap.Error(err))
			continue
		}

		for _, record := range records {
			w.logger.Warn("requeueing stalled step command",
				zap.String("transaction_id", record.TransactionID),
				zap.String("step", step.Name()),
				zap.Time("updated_at", record.UpdatedAt))
			w.recordRequeue(ctx, "forward")
			w.engine.publishCommand(ctx, step.BuildCommand(record))
		}
	}
}

// recordRequeue учитывает повторную выдачу в метриках
func (w *Watchdog) recordRequeue(ctx context.Context, kind string) {
	if w.engine.metrics != nil {
		w.engine.metrics.RecordWatchdogRequeue(ctx, kind)
	}
}
