// Package saga реализует оркестратор саги покупки автомобиля.
//
// Оркестратор ведет каждую покупку от STARTED до терминального статуса,
// реагируя на события сервисов участников. Состояние саги хранится
// исключительно в Store: между шагами оркестратор ничего не держит
// в памяти, поэтому экземпляры взаимозаменяемы и горизонтально
// масштабируемы. Сериализация конкурентных изменений одной транзакции
// обеспечивается оптимистичной блокировкой (CompareAndSwap по версии).
package saga

import (
	"time"

	"github.com/google/uuid"
)

// Status статус выполнения саги
type Status string

const (
	StatusStarted              Status = "STARTED"
	StatusCreditReserved       Status = "CREDIT_RESERVED"
	StatusVehicleReserved      Status = "VEHICLE_RESERVED"
	StatusPaymentCodeGenerated Status = "PAYMENT_CODE_GENERATED"
	StatusPaymentProcessed     Status = "PAYMENT_PROCESSED"
	StatusCompleted            Status = "COMPLETED"
	StatusCompensating         Status = "COMPENSATING"
	StatusFailed               Status = "FAILED"
	StatusCancelled            Status = "CANCELLED"
)

// IsTerminal проверяет, является ли статус терминальным.
// Терминальная запись неизменяема.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid проверяет, что статус известен
func (s Status) Valid() bool {
	switch s {
	case StatusStarted, StatusCreditReserved, StatusVehicleReserved,
		StatusPaymentCodeGenerated, StatusPaymentProcessed,
		StatusCompleted, StatusCompensating, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// PaymentType способ оплаты покупки
type PaymentType string

const (
	PaymentTypeCash   PaymentType = "cash"
	PaymentTypeCredit PaymentType = "credit"
)

// Valid проверяет, что способ оплаты известен
func (p PaymentType) Valid() bool {
	return p == PaymentTypeCash || p == PaymentTypeCredit
}

// Purchase запись состояния саги покупки. Одна запись на одну попытку
// покупки, идентифицируется TransactionID. Записи никогда не удаляются,
// терминальные записи хранятся для аудита и запросов.
type Purchase struct {
	TransactionID string      `json:"transaction_id"`
	CustomerID    int64       `json:"customer_id"`
	VehicleID     int64       `json:"vehicle_id"`
	PaymentType   PaymentType `json:"payment_type"`
	Amount        float64     `json:"amount"`
	Status        Status      `json:"status"`

	// PaymentCode заполняется после успешной генерации платежного кода
	PaymentCode string `json:"payment_code,omitempty"`
	// PaymentID заполняется после успешной обработки платежа
	PaymentID string `json:"payment_id,omitempty"`

	// CompletedSteps упорядоченный список успешно завершенных шагов.
	// Растет при прямом ходе саги и потребляется с конца при компенсации,
	// каждый шаг компенсируется не более одного раза.
	CompletedSteps []string `json:"completed_steps"`

	// FailureReason заполняется при переходе в FAILED
	// и при отказе компенсации.
	FailureReason string `json:"failure_reason,omitempty"`

	// CancelRequested выставляется при запросе отмены и определяет
	// терминальный статус после завершения компенсаций.
	CancelRequested bool `json:"cancel_requested"`
	// CancelledStep шаг, на котором была запрошена отмена
	CancelledStep string `json:"cancelled_step,omitempty"`

	// Version версия записи для оптимистичной блокировки
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPurchase создает новую сагу в статусе STARTED
func NewPurchase(customerID, vehicleID int64, paymentType PaymentType, amount float64) *Purchase {
	now := time.Now().UTC()
	return &Purchase{
		TransactionID:  uuid.NewString(),
		CustomerID:     customerID,
		VehicleID:      vehicleID,
		PaymentType:    paymentType,
		Amount:         amount,
		Status:         StatusStarted,
		CompletedSteps: []string{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsTerminal проверяет, достигла ли сага терминального статуса
func (p *Purchase) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// HasCompletedStep проверяет, завершен ли шаг
func (p *Purchase) HasCompletedStep(name string) bool {
	for _, step := range p.CompletedSteps {
		if step == name {
			return true
		}
	}
	return false
}

// LastCompletedStep возвращает последний завершенный шаг
// или пустую строку, если завершенных шагов нет.
func (p *Purchase) LastCompletedStep() string {
	if len(p.CompletedSteps) == 0 {
		return ""
	}
	return p.CompletedSteps[len(p.CompletedSteps)-1]
}

// AppendStep отмечает шаг завершенным
func (p *Purchase) AppendStep(name string) {
	p.CompletedSteps = append(p.CompletedSteps, name)
}

// PopStep удаляет последний завершенный шаг (шаг компенсирован)
func (p *Purchase) PopStep() {
	if len(p.CompletedSteps) > 0 {
		p.CompletedSteps = p.CompletedSteps[:len(p.CompletedSteps)-1]
	}
}

// Clone возвращает глубокую копию записи
func (p *Purchase) Clone() *Purchase {
	clone := *p
	clone.CompletedSteps = make([]string, len(p.CompletedSteps))
	copy(clone.CompletedSteps, p.CompletedSteps)
	return &clone
}
