// Package saga предоставляет таблицу шагов саги покупки.
package saga

import (
	"fmt"

	"github.com/akriventsev/dealsaga/messages"
)

// Имена шагов саги покупки
const (
	StepCreditReservation     = "credit_reservation"
	StepVehicleReservation    = "vehicle_reservation"
	StepPaymentCodeGeneration = "payment_code_generation"
	StepPaymentProcessing     = "payment_processing"
)

// defaultPaymentMethod способ списания, передаваемый платежному сервису
const defaultPaymentMethod = "pix"

// Step описывает один шаг саги: команду, ожидаемые события успеха
// и отказа, статусы до и после, и компенсацию (если шаг обратим).
type Step struct {
	name          string
	statusBefore  Status
	statusAfter   Status
	successEvent  string
	failureEvent  string
	buildCommand  func(p *Purchase) messages.Command
	applySuccess  func(p *Purchase, event messages.Event)
	buildComp     func(p *Purchase) messages.Command
	compAckEvent  string
	compFailEvent string
}

// Name возвращает имя шага
func (s *Step) Name() string { return s.name }

// StatusBefore возвращает статус, в котором ожидается событие шага
func (s *Step) StatusBefore() Status { return s.statusBefore }

// StatusAfter возвращает статус после успешного завершения шага
func (s *Step) StatusAfter() Status { return s.statusAfter }

// SuccessEvent возвращает имя события успешного завершения шага
func (s *Step) SuccessEvent() string { return s.successEvent }

// FailureEvent возвращает имя события отказа шага
func (s *Step) FailureEvent() string { return s.failureEvent }

// BuildCommand строит прямую команду шага
func (s *Step) BuildCommand(p *Purchase) messages.Command {
	return s.buildCommand(p)
}

// ApplySuccess переносит данные события успеха в запись саги
func (s *Step) ApplySuccess(p *Purchase, event messages.Event) {
	if s.applySuccess != nil {
		s.applySuccess(p, event)
	}
}

// HasCompensation проверяет, обратим ли шаг
func (s *Step) HasCompensation() bool { return s.buildComp != nil }

// BuildCompensation строит команду компенсации шага
func (s *Step) BuildCompensation(p *Purchase) messages.Command {
	if s.buildComp == nil {
		return nil
	}
	return s.buildComp(p)
}

// CompensationAck возвращает имя события подтверждения компенсации
func (s *Step) CompensationAck() string { return s.compAckEvent }

// CompensationRefusal возвращает имя события отказа компенсации
// или пустую строку, если участник не сообщает об отказах.
func (s *Step) CompensationRefusal() string { return s.compFailEvent }

// StepBuilder построитель шага саги
type StepBuilder struct {
	step *Step
}

// NewStepBuilder создает новый построитель шага
func NewStepBuilder(name string) *StepBuilder {
	return &StepBuilder{step: &Step{name: name}}
}

// WithCommand устанавливает построение прямой команды
func (b *StepBuilder) WithCommand(build func(p *Purchase) messages.Command) *StepBuilder {
	b.step.buildCommand = build
	return b
}

// WithSuccess устанавливает событие успеха и статус после шага
func (b *StepBuilder) WithSuccess(event string, after Status) *StepBuilder {
	b.step.successEvent = event
	b.step.statusAfter = after
	return b
}

// WithFailure устанавливает событие отказа шага
func (b *StepBuilder) WithFailure(event string) *StepBuilder {
	b.step.failureEvent = event
	return b
}

// WithStatusBefore устанавливает статус, в котором ожидается событие шага
func (b *StepBuilder) WithStatusBefore(status Status) *StepBuilder {
	b.step.statusBefore = status
	return b
}

// WithApply устанавливает перенос данных события успеха в запись
func (b *StepBuilder) WithApply(apply func(p *Purchase, event messages.Event)) *StepBuilder {
	b.step.applySuccess = apply
	return b
}

// WithCompensation устанавливает команду компенсации и событие
// её подтверждения
func (b *StepBuilder) WithCompensation(build func(p *Purchase) messages.Command, ackEvent string) *StepBuilder {
	b.step.buildComp = build
	b.step.compAckEvent = ackEvent
	return b
}

// WithCompensationRefusal устанавливает событие отказа компенсации
func (b *StepBuilder) WithCompensationRefusal(event string) *StepBuilder {
	b.step.compFailEvent = event
	return b
}

// Build создает шаг
func (b *StepBuilder) Build() (*Step, error) {
	s := b.step
	if s.name == "" {
		return nil, fmt.Errorf("step name cannot be empty")
	}
	if s.buildCommand == nil {
		return nil, fmt.Errorf("step %s: command builder cannot be nil", s.name)
	}
	if s.successEvent == "" {
		return nil, fmt.Errorf("step %s: success event cannot be empty", s.name)
	}
	if s.failureEvent == "" {
		return nil, fmt.Errorf("step %s: failure event cannot be empty", s.name)
	}
	if !s.statusAfter.Valid() || s.statusAfter.IsTerminal() || s.statusAfter == StatusCompensating {
		return nil, fmt.Errorf("step %s: invalid status after success: %s", s.name, s.statusAfter)
	}
	if s.buildComp != nil && s.compAckEvent == "" {
		return nil, fmt.Errorf("step %s: compensation requires an acknowledgment event", s.name)
	}
	if s.buildComp == nil && (s.compAckEvent != "" || s.compFailEvent != "") {
		return nil, fmt.Errorf("step %s: compensation events set without compensation command", s.name)
	}
	return s, nil
}

// Definition статическая таблица шагов саги. Единственный источник
// истины о топологии саги: какая команда следует за каким событием
// и что именно откатывается при компенсации.
type Definition struct {
	name     string
	steps    []*Step
	byName   map[string]*Step
	byStatus map[Status]*Step
}

// NewDefinition создает определение саги из упорядоченного списка шагов
func NewDefinition(name string, steps ...*Step) (*Definition, error) {
	d := &Definition{
		name:     name,
		steps:    steps,
		byName:   make(map[string]*Step, len(steps)),
		byStatus: make(map[Status]*Step, len(steps)),
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	for _, step := range steps {
		d.byName[step.name] = step
		d.byStatus[step.statusBefore] = step
	}
	return d, nil
}

// validate проверяет согласованность таблицы шагов при старте
func (d *Definition) validate() error {
	if d.name == "" {
		return fmt.Errorf("definition name cannot be empty")
	}
	if len(d.steps) == 0 {
		return fmt.Errorf("definition %s has no steps", d.name)
	}

	names := make(map[string]bool, len(d.steps))
	events := make(map[string]string)
	for _, step := range d.steps {
		if names[step.name] {
			return fmt.Errorf("duplicate step name %s", step.name)
		}
		names[step.name] = true

		for _, event := range []string{step.successEvent, step.failureEvent, step.compAckEvent, step.compFailEvent} {
			if event == "" {
				continue
			}
			if owner, ok := events[event]; ok {
				return fmt.Errorf("event %s is claimed by both %s and %s", event, owner, step.name)
			}
			events[event] = step.name
		}
	}

	// Цепочка статусов должна быть непрерывной, начиная со STARTED
	expected := StatusStarted
	for _, step := range d.steps {
		if step.statusBefore != expected {
			return fmt.Errorf("step %s expects status %s, want %s", step.name, step.statusBefore, expected)
		}
		if step.statusAfter == step.statusBefore {
			return fmt.Errorf("step %s does not advance the status", step.name)
		}
		expected = step.statusAfter
	}
	return nil
}

// Name возвращает имя определения саги
func (d *Definition) Name() string { return d.name }

// Steps возвращает шаги саги в прямом порядке
func (d *Definition) Steps() []*Step { return d.steps }

// First возвращает первый шаг саги
func (d *Definition) First() *Step { return d.steps[0] }

// Final возвращает статус после успешного завершения последнего шага
func (d *Definition) Final() Status { return d.steps[len(d.steps)-1].statusAfter }

// StepByName возвращает шаг по имени
func (d *Definition) StepByName(name string) (*Step, bool) {
	step, ok := d.byName[name]
	return step, ok
}

// StepAwaitedIn возвращает шаг, событие которого ожидается
// в указанном статусе.
func (d *Definition) StepAwaitedIn(status Status) (*Step, bool) {
	step, ok := d.byStatus[status]
	return step, ok
}

// NewPurchaseDefinition строит таблицу шагов саги покупки автомобиля:
// резервирование кредита, резервирование автомобиля, генерация
// платежного кода и обработка платежа. Платежный код не компенсируется,
// неоплаченный код истекает на стороне платежного сервиса.
func NewPurchaseDefinition() (*Definition, error) {
	creditReservation, err := NewStepBuilder(StepCreditReservation).
		WithStatusBefore(StatusStarted).
		WithCommand(func(p *Purchase) messages.Command {
			return &messages.ReserveCreditCommand{
				TransactionID: p.TransactionID,
				CustomerID:    p.CustomerID,
				Amount:        p.Amount,
				PaymentType:   string(p.PaymentType),
			}
		}).
		WithSuccess("credit.reserved", StatusCreditReserved).
		WithFailure("credit.reservation_failed").
		WithCompensation(func(p *Purchase) messages.Command {
			return &messages.ReleaseCreditCommand{
				TransactionID: p.TransactionID,
				CustomerID:    p.CustomerID,
				Amount:        p.Amount,
				PaymentType:   string(p.PaymentType),
			}
		}, "credit.released").
		Build()
	if err != nil {
		return nil, err
	}

	vehicleReservation, err := NewStepBuilder(StepVehicleReservation).
		WithStatusBefore(StatusCreditReserved).
		WithCommand(func(p *Purchase) messages.Command {
			return &messages.ReserveVehicleCommand{
				TransactionID: p.TransactionID,
				VehicleID:     p.VehicleID,
			}
		}).
		WithSuccess("vehicle.reserved", StatusVehicleReserved).
		WithFailure("vehicle.reservation_failed").
		WithApply(func(p *Purchase, event messages.Event) {
			// Каталог мог переоценить автомобиль после intake
			if reserved, ok := event.(*messages.VehicleReservedEvent); ok && reserved.VehiclePrice > 0 {
				p.Amount = reserved.VehiclePrice
			}
		}).
		WithCompensation(func(p *Purchase) messages.Command {
			return &messages.ReleaseVehicleCommand{
				TransactionID: p.TransactionID,
				VehicleID:     p.VehicleID,
			}
		}, "vehicle.released").
		Build()
	if err != nil {
		return nil, err
	}

	paymentCodeGeneration, err := NewStepBuilder(StepPaymentCodeGeneration).
		WithStatusBefore(StatusVehicleReserved).
		WithCommand(func(p *Purchase) messages.Command {
			return &messages.GeneratePaymentCodeCommand{
				TransactionID: p.TransactionID,
				CustomerID:    p.CustomerID,
				VehicleID:     p.VehicleID,
				Amount:        p.Amount,
				PaymentType:   string(p.PaymentType),
			}
		}).
		WithSuccess("payment.code_generated", StatusPaymentCodeGenerated).
		WithFailure("payment.code_generation_failed").
		WithApply(func(p *Purchase, event messages.Event) {
			if generated, ok := event.(*messages.PaymentCodeGeneratedEvent); ok {
				p.PaymentCode = generated.PaymentCode
			}
		}).
		Build()
	if err != nil {
		return nil, err
	}

	paymentProcessing, err := NewStepBuilder(StepPaymentProcessing).
		WithStatusBefore(StatusPaymentCodeGenerated).
		WithCommand(func(p *Purchase) messages.Command {
			return &messages.ProcessPaymentCommand{
				TransactionID: p.TransactionID,
				PaymentCode:   p.PaymentCode,
				PaymentMethod: defaultPaymentMethod,
			}
		}).
		WithSuccess("payment.processed", StatusPaymentProcessed).
		WithFailure("payment.failed").
		WithApply(func(p *Purchase, event messages.Event) {
			if processed, ok := event.(*messages.PaymentProcessedEvent); ok {
				p.PaymentID = processed.PaymentID
			}
		}).
		WithCompensation(func(p *Purchase) messages.Command {
			return &messages.RefundPaymentCommand{
				TransactionID: p.TransactionID,
				PaymentID:     p.PaymentID,
			}
		}, "payment.refunded").
		WithCompensationRefusal("payment.refund_failed").
		Build()
	if err != nil {
		return nil, err
	}

	return NewDefinition("vehicle-purchase",
		creditReservation,
		vehicleReservation,
		paymentCodeGeneration,
		paymentProcessing,
	)
}
