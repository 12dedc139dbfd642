// Package saga предоставляет Engine, реактивный оркестратор саги покупки.
package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/events"
	"github.com/akriventsev/dealsaga/messages"
	"github.com/akriventsev/dealsaga/metrics"
	"github.com/akriventsev/dealsaga/observability"
	"github.com/akriventsev/dealsaga/transport"
)

// DefaultQueue имя очереди подписок оркестратора. Экземпляры,
// подписанные с одной очередью, делят поток событий между собой.
const DefaultQueue = "saga-orchestrator"

// Vehicle снимок данных автомобиля из сервиса участника
type Vehicle struct {
	ID         int64   `json:"id"`
	Brand      string  `json:"brand"`
	Model      string  `json:"model"`
	Year       int     `json:"year"`
	Price      float64 `json:"price"`
	IsReserved bool    `json:"is_reserved"`
	IsSold     bool    `json:"is_sold"`
}

// Customer снимок данных клиента из сервиса участника
type Customer struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	AccountBalance  float64 `json:"account_balance"`
	AvailableCredit float64 `json:"available_credit"`
}

// VehicleCatalog клиент сервиса автомобилей
type VehicleCatalog interface {
	// GetVehicle возвращает данные автомобиля
	GetVehicle(ctx context.Context, vehicleID int64) (*Vehicle, error)
	// MarkVehicleSold помечает автомобиль проданным
	MarkVehicleSold(ctx context.Context, vehicleID int64) error
}

// CustomerDirectory клиент сервиса клиентов
type CustomerDirectory interface {
	// GetCustomer возвращает данные клиента
	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)
}

// StartPurchaseRequest параметры запроса на покупку
type StartPurchaseRequest struct {
	CustomerID  int64       `json:"customer_id"`
	VehicleID   int64       `json:"vehicle_id"`
	PaymentType PaymentType `json:"payment_type"`
}

// Validate проверяет корректность запроса
func (r StartPurchaseRequest) Validate() error {
	if r.CustomerID <= 0 {
		return core.NewError(core.ErrInvalidRequest, "customer_id is required")
	}
	if r.VehicleID <= 0 {
		return core.NewError(core.ErrInvalidRequest, "vehicle_id is required")
	}
	if !r.PaymentType.Valid() {
		return core.NewErrorf(core.ErrInvalidRequest, "payment_type must be cash or credit, got %q", string(r.PaymentType))
	}
	return nil
}

// Engine оркестратор саги покупки. Реагирует на события участников,
// продвигая сагу вперед или запуская компенсацию. Engine не держит
// состояние саг в памяти: каждая реакция читает запись из Store
// и записывает новую версию через CompareAndSwap.
type Engine struct {
	definition *Definition
	store      Store
	bus        transport.MessageBus
	vehicles   VehicleCatalog
	customers  CustomerDirectory
	notifier   events.EventPublisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	queue      string

	mu      sync.RWMutex
	running bool
}

// EngineBuilder построитель оркестратора
type EngineBuilder struct {
	engine *Engine
	err    error
}

// NewEngineBuilder создает новый построитель оркестратора
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		engine: &Engine{
			queue:  DefaultQueue,
			logger: zap.NewNop(),
		},
	}
}

// WithDefinition устанавливает таблицу шагов саги
func (b *EngineBuilder) WithDefinition(definition *Definition) *EngineBuilder {
	b.engine.definition = definition
	return b
}

// WithStore устанавливает хранилище состояния саг
func (b *EngineBuilder) WithStore(store Store) *EngineBuilder {
	b.engine.store = store
	return b
}

// WithMessageBus устанавливает шину сообщений
func (b *EngineBuilder) WithMessageBus(bus transport.MessageBus) *EngineBuilder {
	b.engine.bus = bus
	return b
}

// WithVehicleCatalog устанавливает клиент сервиса автомобилей
func (b *EngineBuilder) WithVehicleCatalog(vehicles VehicleCatalog) *EngineBuilder {
	b.engine.vehicles = vehicles
	return b
}

// WithCustomerDirectory устанавливает клиент сервиса клиентов
func (b *EngineBuilder) WithCustomerDirectory(customers CustomerDirectory) *EngineBuilder {
	b.engine.customers = customers
	return b
}

// WithNotifier устанавливает внутреннюю шину уведомлений
func (b *EngineBuilder) WithNotifier(notifier events.EventPublisher) *EngineBuilder {
	b.engine.notifier = notifier
	return b
}

// WithMetrics устанавливает сборщик метрик
func (b *EngineBuilder) WithMetrics(m *metrics.Metrics) *EngineBuilder {
	b.engine.metrics = m
	return b
}

// WithLogger устанавливает логгер
func (b *EngineBuilder) WithLogger(logger *zap.Logger) *EngineBuilder {
	if logger != nil {
		b.engine.logger = logger
	}
	return b
}

// WithQueue устанавливает имя очереди подписок
func (b *EngineBuilder) WithQueue(queue string) *EngineBuilder {
	b.engine.queue = queue
	return b
}

// Build создает оркестратор
func (b *EngineBuilder) Build() (*Engine, error) {
	e := b.engine
	if e.definition == nil {
		definition, err := NewPurchaseDefinition()
		if err != nil {
			return nil, fmt.Errorf("failed to build purchase definition: %w", err)
		}
		e.definition = definition
	}
	if e.store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if e.bus == nil {
		return nil, fmt.Errorf("message bus cannot be nil")
	}
	if e.vehicles == nil {
		return nil, fmt.Errorf("vehicle catalog cannot be nil")
	}
	if e.customers == nil {
		return nil, fmt.Errorf("customer directory cannot be nil")
	}
	if e.queue == "" {
		e.queue = DefaultQueue
	}
	return e, nil
}

// Name возвращает имя компонента (реализация core.Component)
func (e *Engine) Name() string {
	return "saga-engine"
}

// Type возвращает тип компонента (реализация core.Component)
func (e *Engine) Type() core.ComponentType {
	return core.ComponentTypeModule
}

// Start подписывает оркестратор на топики событий участников
// (реализация core.Lifecycle)
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	for _, topic := range messages.EventTopics() {
		if err := e.bus.Subscribe(ctx, topic, e.handleMessage, transport.WithQueue(e.queue)); err != nil {
			return core.Wrap(err, core.ErrUnavailable, "failed to subscribe to "+topic)
		}
	}
	if err := e.bus.Subscribe(ctx, messages.TopicCancelPurchase, e.handleCancelMessage, transport.WithQueue(e.queue)); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to subscribe to "+messages.TopicCancelPurchase)
	}

	e.running = true
	e.logger.Info("saga engine started",
		zap.String("definition", e.definition.Name()),
		zap.String("queue", e.queue))
	return nil
}

// Stop отписывает оркестратор от топиков (реализация core.Lifecycle)
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	for _, topic := range messages.EventTopics() {
		_ = e.bus.Unsubscribe(topic)
	}
	_ = e.bus.Unsubscribe(messages.TopicCancelPurchase)

	e.running = false
	e.logger.Info("saga engine stopped")
	return nil
}

// IsRunning проверяет, запущен ли оркестратор (реализация core.Lifecycle)
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Definition возвращает таблицу шагов саги
func (e *Engine) Definition() *Definition {
	return e.definition
}

// StartPurchase проверяет запрос, создает запись саги и выдает первую
// команду. Возвращает снимок созданной записи немедленно, не дожидаясь
// завершения саги: результат доступен через GetState.
func (e *Engine) StartPurchase(ctx context.Context, req StartPurchaseRequest) (*Purchase, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	vehicle, err := e.vehicles.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.IsSold || vehicle.IsReserved {
		return nil, core.NewError(core.ErrInvalidRequest, "vehicle is not available for purchase")
	}
	if vehicle.Price <= 0 {
		return nil, core.NewError(core.ErrInvalidRequest, "invalid vehicle price")
	}

	customer, err := e.customers.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	// Предварительная проверка платежеспособности. Окончательное решение
	// остается за кредитным сервисом на шаге резервирования.
	switch req.PaymentType {
	case PaymentTypeCash:
		if customer.AccountBalance < vehicle.Price {
			return nil, core.NewError(core.ErrInvalidRequest, "insufficient account balance")
		}
	case PaymentTypeCredit:
		if customer.AvailableCredit < vehicle.Price {
			return nil, core.NewError(core.ErrInvalidRequest, "insufficient credit limit")
		}
	}

	record := NewPurchase(req.CustomerID, req.VehicleID, req.PaymentType, vehicle.Price)
	if err := e.store.Create(ctx, record); err != nil {
		return nil, err
	}
	e.appendTransition(ctx, &Transition{
		TransactionID: record.TransactionID,
		FromStatus:    "",
		ToStatus:      StatusStarted,
		Event:         "purchase_requested",
		OccurredAt:    record.CreatedAt,
	})

	e.logger.Info("saga started",
		zap.String("transaction_id", record.TransactionID),
		zap.Int64("customer_id", record.CustomerID),
		zap.Int64("vehicle_id", record.VehicleID),
		zap.String("payment_type", string(record.PaymentType)),
		zap.Float64("amount", record.Amount))
	if e.metrics != nil {
		e.metrics.SagaStarted(ctx)
	}
	e.notify(ctx, NewSagaStartedEvent(record))

	// Публикация после фиксации записи. Ошибка публикации не отменяет
	// сагу: запись остается в STARTED и доступна для отмены оператором.
	e.publishCommand(ctx, e.definition.First().BuildCommand(record))

	return record.Clone(), nil
}

// GetState возвращает снимок записи саги
func (e *Engine) GetState(ctx context.Context, transactionID string) (*Purchase, error) {
	return e.store.Get(ctx, transactionID)
}

// ListStates возвращает записи саг, удовлетворяющие фильтру
func (e *Engine) ListStates(ctx context.Context, filter Filter) ([]*Purchase, error) {
	return e.store.List(ctx, filter)
}

// GetHistory возвращает переходы саги в порядке возникновения
func (e *Engine) GetHistory(ctx context.Context, transactionID string) ([]*Transition, error) {
	if _, err := e.store.Get(ctx, transactionID); err != nil {
		return nil, err
	}
	return e.store.History(ctx, transactionID)
}

// Cancel запрашивает отмену саги. Отмена обрабатывается как отказ
// текущего шага: сага переходит в COMPENSATING и компенсирует
// завершенные шаги в обратном порядке, завершаясь в CANCELLED.
func (e *Engine) Cancel(ctx context.Context, transactionID, reason string) error {
	record, err := e.store.Get(ctx, transactionID)
	if err != nil {
		return err
	}

	if record.IsTerminal() {
		return core.NewErrorf(core.ErrAlreadyTerminal, "cannot cancel transaction with status %s", record.Status)
	}
	if record.Status == StatusCompensating {
		if record.CancelRequested {
			return core.NewError(core.ErrAlreadyExists, "cancellation already in progress")
		}
		return core.NewError(core.ErrAlreadyExists, "compensation already in progress")
	}
	if record.Status == StatusPaymentProcessed {
		// Платеж проведен, продажа финализируется: отменять поздно.
		e.publishNotification(ctx, &messages.CancellationFailedEvent{
			TransactionID: record.TransactionID,
			Reason:        "transaction too advanced to cancel",
			CurrentStep:   StepPaymentProcessing,
			Timestamp:     time.Now().UTC(),
		})
		return core.NewError(core.ErrInvalidRequest, "transaction too advanced to cancel")
	}

	if reason == "" {
		reason = "customer requested cancellation"
	}
	cancelledStep := string(record.Status)
	if step, ok := e.definition.StepAwaitedIn(record.Status); ok {
		cancelledStep = step.Name()
	}

	next := record.Clone()
	next.CancelRequested = true
	next.CancelledStep = cancelledStep
	next.FailureReason = reason
	next.UpdatedAt = time.Now().UTC()

	if len(next.CompletedSteps) == 0 {
		next.Status = StatusCancelled
		if err := e.swap(ctx, record, next, "cancel_requested", reason); err != nil {
			return err
		}
		e.finishSaga(ctx, next)
		return nil
	}

	next.Status = StatusCompensating
	comp := e.nextCompensation(next)
	if comp == nil {
		next.Status = StatusCancelled
		if err := e.swap(ctx, record, next, "cancel_requested", reason); err != nil {
			return err
		}
		e.finishSaga(ctx, next)
		return nil
	}

	if err := e.swap(ctx, record, next, "cancel_requested", reason); err != nil {
		return err
	}
	e.issueCompensation(ctx, comp, next)
	return nil
}

// HandleEvent обрабатывает событие участника. Дублирующиеся и
// устаревшие события поглощаются без изменений записи. Возврат
// ошибки означает, что сообщение не подтверждено и будет
// доставлено повторно.
func (e *Engine) HandleEvent(ctx context.Context, event messages.Event) error {
	record, err := e.store.Get(ctx, event.AggregateID())
	if err != nil {
		if core.IsNotFound(err) {
			e.logger.Warn("event for unknown transaction",
				zap.String("event", event.EventName()),
				zap.String("transaction_id", event.AggregateID()))
			return nil
		}
		return err
	}

	if record.IsTerminal() {
		return e.absorb(record, event)
	}

	switch record.Status {
	case StatusCompensating:
		return e.handleCompensationEvent(ctx, record, event)
	case StatusPaymentProcessed:
		// Повторная доставка после незавершенной финализации.
		last := e.definition.steps[len(e.definition.steps)-1]
		if event.EventName() == last.SuccessEvent() {
			return e.finalize(ctx, record)
		}
		return e.absorb(record, event)
	default:
		return e.handleForwardEvent(ctx, record, event)
	}
}

// handleForwardEvent обрабатывает событие прямого хода саги
func (e *Engine) handleForwardEvent(ctx context.Context, record *Purchase, event messages.Event) error {
	step, ok := e.definition.StepAwaitedIn(record.Status)
	if !ok {
		return e.absorb(record, event)
	}

	switch event.EventName() {
	case step.SuccessEvent():
		return e.advance(ctx, record, step, event)
	case step.FailureEvent():
		return e.compensateAfterFailure(ctx, record, step, event)
	default:
		return e.absorb(record, event)
	}
}

// advance фиксирует успех шага и выдает команду следующего шага
// либо запускает финализацию после последнего шага.
func (e *Engine) advance(ctx context.Context, record *Purchase, step *Step, event messages.Event) error {
	next := record.Clone()
	next.Status = step.StatusAfter()
	next.AppendStep(step.Name())
	step.ApplySuccess(next, event)
	next.UpdatedAt = time.Now().UTC()

	if err := e.swap(ctx, record, next, event.EventName(), ""); err != nil {
		return err
	}

	if next.Status == e.definition.Final() {
		return e.finalize(ctx, next)
	}

	if nextStep, ok := e.definition.StepAwaitedIn(next.Status); ok {
		e.publishCommand(ctx, nextStep.BuildCommand(next))
	}
	return nil
}

// compensateAfterFailure переводит сагу в компенсацию после отказа шага.
// Если завершенных шагов нет, сага сразу становится FAILED.
func (e *Engine) compensateAfterFailure(ctx context.Context, record *Purchase, step *Step, event messages.Event) error {
	reason := failureReason(event)
	if reason == "" {
		reason = fmt.Sprintf("step %s failed", step.Name())
	}

	next := record.Clone()
	next.FailureReason = reason
	next.UpdatedAt = time.Now().UTC()

	if len(next.CompletedSteps) == 0 {
		next.Status = StatusFailed
		if err := e.swap(ctx, record, next, event.EventName(), reason); err != nil {
			return err
		}
		e.finishSaga(ctx, next)
		return nil
	}

	next.Status = StatusCompensating
	comp := e.nextCompensation(next)
	if comp == nil {
		next.Status = StatusFailed
		if err := e.swap(ctx, record, next, event.EventName(), reason); err != nil {
			return err
		}
		e.finishSaga(ctx, next)
		return nil
	}

	if err := e.swap(ctx, record, next, event.EventName(), reason); err != nil {
		return err
	}
	e.issueCompensation(ctx, comp, next)
	return nil
}

// handleCompensationEvent обрабатывает подтверждение или отказ
// компенсации. Компенсации выдаются строго по одной: следующая
// команда публикуется только после подтверждения предыдущей.
func (e *Engine) handleCompensationEvent(ctx context.Context, record *Purchase, event messages.Event) error {
	step, ok := e.definition.StepByName(record.LastCompletedStep())
	if !ok {
		return e.absorb(record, event)
	}

	switch event.EventName() {
	case step.CompensationAck():
		next := record.Clone()
		next.PopStep()
		next.UpdatedAt = time.Now().UTC()

		comp := e.nextCompensation(next)
		if comp == nil {
			if next.CancelRequested {
				next.Status = StatusCancelled
			} else {
				next.Status = StatusFailed
			}
			if err := e.swap(ctx, record, next, event.EventName(), "compensation completed"); err != nil {
				return err
			}
			e.finishSaga(ctx, next)
			return nil
		}

		if err := e.swap(ctx, record, next, event.EventName(), ""); err != nil {
			return err
		}
		e.issueCompensation(ctx, comp, next)
		return nil

	case step.CompensationRefusal():
		// Участник отказал в компенсации: ручное вмешательство.
		reason := failureReason(event)
		next := record.Clone()
		next.Status = StatusFailed
		next.FailureReason = fmt.Sprintf("compensation for %s refused: %s", step.Name(), reason)
		next.UpdatedAt = time.Now().UTC()

		if err := e.swap(ctx, record, next, event.EventName(), reason); err != nil {
			return err
		}
		e.logger.Error("compensation refused",
			zap.String("transaction_id", next.TransactionID),
			zap.String("step", step.Name()),
			zap.String("reason", reason))
		e.finishSaga(ctx, next)
		return nil

	default:
		return e.absorb(record, event)
	}
}

// finalize выполняет синхронную финализацию после успешного платежа:
// помечает автомобиль проданным и завершает сагу. Отказ финализации
// не откатывает платеж, сага становится FAILED для ручного
// вмешательства.
func (e *Engine) finalize(ctx context.Context, record *Purchase) error {
	if err := e.vehicles.MarkVehicleSold(ctx, record.VehicleID); err != nil {
		next := record.Clone()
		next.Status = StatusFailed
		next.FailureReason = "post-payment finalization failed: " + err.Error()
		next.UpdatedAt = time.Now().UTC()

		if swapErr := e.swap(ctx, record, next, "mark_vehicle_sold", err.Error()); swapErr != nil {
			return swapErr
		}
		e.logger.Error("post-payment finalization failed",
			zap.String("transaction_id", record.TransactionID),
			zap.Int64("vehicle_id", record.VehicleID),
			zap.Error(err))
		e.finishSaga(ctx, next)
		return nil
	}

	next := record.Clone()
	next.Status = StatusCompleted
	next.UpdatedAt = time.Now().UTC()

	if err := e.swap(ctx, record, next, "mark_vehicle_sold", ""); err != nil {
		return err
	}
	e.finishSaga(ctx, next)
	return nil
}

// absorb поглощает дублирующееся или устаревшее событие
func (e *Engine) absorb(record *Purchase, event messages.Event) error {
	e.logger.Debug("event absorbed as duplicate or out of order",
		zap.String("event", event.EventName()),
		zap.String("transaction_id", record.TransactionID),
		zap.String("status", string(record.Status)))
	return nil
}

// swap атомарно записывает новую версию записи и фиксирует переход
func (e *Engine) swap(ctx context.Context, prev, next *Purchase, trigger, detail string) error {
	if err := e.store.CompareAndSwap(ctx, prev.TransactionID, prev.Version, next); err != nil {
		if core.IsVersionConflict(err) {
			e.logger.Debug("version conflict, leaving event for redelivery",
				zap.String("transaction_id", prev.TransactionID),
				zap.String("trigger", trigger),
				zap.Int64("expected_version", prev.Version))
		}
		return err
	}

	e.appendTransition(ctx, &Transition{
		TransactionID: next.TransactionID,
		FromStatus:    prev.Status,
		ToStatus:      next.Status,
		Event:         trigger,
		Detail:        detail,
		OccurredAt:    next.UpdatedAt,
	})

	e.logger.Info("saga transition",
		zap.String("transaction_id", next.TransactionID),
		zap.String("from", string(prev.Status)),
		zap.String("to", string(next.Status)),
		zap.String("trigger", trigger))
	if e.metrics != nil {
		e.metrics.RecordTransition(ctx, string(prev.Status), string(next.Status))
	}
	e.notify(ctx, NewStatusChangedEvent(next.TransactionID, prev.Status, next.Status, trigger, next.FailureReason))
	return nil
}

// nextCompensation отбрасывает некомпенсируемые шаги с конца списка
// завершенных и возвращает шаг, компенсацию которого нужно выдать,
// либо nil, если компенсировать больше нечего.
func (e *Engine) nextCompensation(record *Purchase) *Step {
	for len(record.CompletedSteps) > 0 {
		step, ok := e.definition.StepByName(record.LastCompletedStep())
		if !ok || !step.HasCompensation() {
			record.PopStep()
			continue
		}
		return step
	}
	return nil
}

// issueCompensation публикует команду компенсации шага
func (e *Engine) issueCompensation(ctx context.Context, step *Step, record *Purchase) {
	if e.metrics != nil {
		e.metrics.RecordCompensation(ctx, step.Name())
	}
	e.publishCommand(ctx, step.BuildCompensation(record))
}

// finishSaga фиксирует достижение терминального статуса
func (e *Engine) finishSaga(ctx context.Context, record *Purchase) {
	e.logger.Info("saga finished",
		zap.String("transaction_id", record.TransactionID),
		zap.String("status", string(record.Status)),
		zap.String("failure_reason", record.FailureReason))
	if e.metrics != nil {
		e.metrics.SagaFinished(ctx, string(record.Status))
	}

	switch record.Status {
	case StatusCancelled:
		e.publishNotification(ctx, &messages.PurchaseCancelledEvent{
			TransactionID:         record.TransactionID,
			CustomerID:            record.CustomerID,
			VehicleID:             record.VehicleID,
			CancelledStep:         record.CancelledStep,
			Reason:                record.FailureReason,
			CompensationCompleted: true,
			Timestamp:             record.UpdatedAt,
		})
	case StatusFailed:
		if record.CancelRequested {
			e.publishNotification(ctx, &messages.CancellationFailedEvent{
				TransactionID: record.TransactionID,
				Reason:        record.FailureReason,
				CurrentStep:   record.CancelledStep,
				Timestamp:     record.UpdatedAt,
			})
		}
	}
}

// publishCommand публикует команду участнику. Ошибка публикации
// логируется, состояние саги при этом уже зафиксировано: повторная
// выдача выполняется watchdog или оператором.
func (e *Engine) publishCommand(ctx context.Context, cmd messages.Command) {
	if cmd == nil {
		return
	}
	if err := messages.PublishCommand(ctx, e.bus, cmd); err != nil {
		e.logger.Error("failed to publish command",
			zap.String("command", cmd.CommandName()),
			zap.String("transaction_id", cmd.AggregateID()),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.RecordCommand(ctx, cmd.CommandName(), false)
		}
		return
	}
	e.logger.Info("command published",
		zap.String("command", cmd.CommandName()),
		zap.String("transaction_id", cmd.AggregateID()))
	if e.metrics != nil {
		e.metrics.RecordCommand(ctx, cmd.CommandName(), true)
	}
}

// publishNotification публикует уведомление во внешнюю шину
func (e *Engine) publishNotification(ctx context.Context, event messages.Event) {
	if err := messages.PublishEvent(ctx, e.bus, event); err != nil {
		e.logger.Warn("failed to publish notification",
			zap.String("event", event.EventName()),
			zap.String("transaction_id", event.AggregateID()),
			zap.Error(err))
	}
}

// notify публикует внутреннее событие жизненного цикла
func (e *Engine) notify(ctx context.Context, event events.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, event); err != nil {
		e.logger.Debug("failed to publish lifecycle event",
			zap.String("event", event.EventType()),
			zap.Error(err))
	}
}

// appendTransition добавляет запись аудита. Ошибка аудита не
// останавливает сагу.
func (e *Engine) appendTransition(ctx context.Context, transition *Transition) {
	if err := e.store.AppendTransition(ctx, transition); err != nil {
		e.logger.Warn("failed to append transition",
			zap.String("transaction_id", transition.TransactionID),
			zap.Error(err))
	}
}

// handleMessage обрабатывает сообщение из топика событий
func (e *Engine) handleMessage(ctx context.Context, msg *transport.Message) error {
	start := time.Now()
	ctx = observability.ExtractTraceContext(ctx, msg.Headers)

	event, err := messages.DecodeEvent(msg.Subject, msg.Data)
	if err != nil {
		// Повторная доставка не исправит сообщение, подтверждаем.
		e.logger.Warn("dropping undecodable event",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.RecordEvent(ctx, msg.Subject, "malformed", time.Since(start))
		}
		return nil
	}

	err = observability.TraceEvent(ctx, event.EventName(), func(ctx context.Context) error {
		return e.HandleEvent(ctx, event)
	})
	if e.metrics != nil {
		outcome := "applied"
		if err != nil {
			outcome = "error"
			if core.IsVersionConflict(err) {
				outcome = "conflict"
			}
		}
		e.metrics.RecordEvent(ctx, event.EventName(), outcome, time.Since(start))
	}
	return err
}

// handleCancelMessage обрабатывает команду отмены из шины
func (e *Engine) handleCancelMessage(ctx context.Context, msg *transport.Message) error {
	ctx = observability.ExtractTraceContext(ctx, msg.Headers)

	cmd, err := messages.DecodeCancelCommand(msg.Data)
	if err != nil {
		e.logger.Warn("dropping undecodable cancel command", zap.Error(err))
		return nil
	}

	err = e.Cancel(ctx, cmd.TransactionID, cmd.Reason)
	switch {
	case err == nil:
		return nil
	case core.IsVersionConflict(err) || core.HasCode(err, core.ErrUnavailable):
		return err
	default:
		// Отмена невозможна или не нужна, повтор не поможет.
		e.logger.Info("cancel command rejected",
			zap.String("transaction_id", cmd.TransactionID),
			zap.String("reason", err.Error()))
		return nil
	}
}

// failureReason извлекает причину отказа из события участника
func failureReason(event messages.Event) string {
	switch ev := event.(type) {
	case *messages.CreditReservationFailedEvent:
		return ev.Reason
	case *messages.VehicleReservationFailedEvent:
		return ev.Reason
	case *messages.PaymentCodeGenerationFailedEvent:
		return ev.Reason
	case *messages.PaymentFailedEvent:
		return ev.Reason
	case *messages.PaymentRefundFailedEvent:
		return ev.Reason
	}
	return ""
}
