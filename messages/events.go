package messages

import "time"

// Event общий интерфейс событий участников и уведомлений оркестратора
type Event interface {
	// EventName возвращает тип события
	EventName() string
	// Topic возвращает топик события
	Topic() string
	// AggregateID возвращает идентификатор транзакции саги
	AggregateID() string
}

// CreditReservedEvent событие успешного резервирования кредита
type CreditReservedEvent struct {
	TransactionID    string    `json:"transaction_id"`
	CustomerID       int64     `json:"customer_id"`
	Amount           float64   `json:"amount"`
	PaymentType      string    `json:"payment_type"`
	RemainingBalance *float64  `json:"remaining_balance,omitempty"`
	RemainingCredit  *float64  `json:"remaining_credit,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *CreditReservedEvent) EventName() string { return "credit.reserved" }

// Topic возвращает топик события
func (e *CreditReservedEvent) Topic() string { return TopicCreditReserved }

// AggregateID возвращает идентификатор транзакции саги
func (e *CreditReservedEvent) AggregateID() string { return e.TransactionID }

// CreditReservationFailedEvent событие отказа в резервировании кредита
type CreditReservationFailedEvent struct {
	TransactionID string    `json:"transaction_id"`
	CustomerID    int64     `json:"customer_id"`
	Amount        float64   `json:"amount"`
	PaymentType   string    `json:"payment_type"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *CreditReservationFailedEvent) EventName() string { return "credit.reservation_failed" }

// Topic возвращает топик события
func (e *CreditReservationFailedEvent) Topic() string { return TopicCreditReservationFailed }

// AggregateID возвращает идентификатор транзакции саги
func (e *CreditReservationFailedEvent) AggregateID() string { return e.TransactionID }

// CreditReleasedEvent событие освобождения зарезервированного кредита
type CreditReleasedEvent struct {
	TransactionID      string    `json:"transaction_id"`
	CustomerID         int64     `json:"customer_id"`
	Amount             float64   `json:"amount"`
	PaymentType        string    `json:"payment_type"`
	NewBalance         *float64  `json:"new_balance,omitempty"`
	NewAvailableCredit *float64  `json:"new_available_credit,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *CreditReleasedEvent) EventName() string { return "credit.released" }

// Topic возвращает топик события
func (e *CreditReleasedEvent) Topic() string { return TopicCreditReleased }

// AggregateID возвращает идентификатор транзакции саги
func (e *CreditReleasedEvent) AggregateID() string { return e.TransactionID }

// VehicleReservedEvent событие успешного резервирования автомобиля
type VehicleReservedEvent struct {
	TransactionID string    `json:"transaction_id"`
	VehicleID     int64     `json:"vehicle_id"`
	VehiclePrice  float64   `json:"vehicle_price"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *VehicleReservedEvent) EventName() string { return "vehicle.reserved" }

// Topic возвращает топик события
func (e *VehicleReservedEvent) Topic() string { return TopicVehicleReserved }

// AggregateID возвращает идентификатор транзакции саги
func (e *VehicleReservedEvent) AggregateID() string { return e.TransactionID }

// VehicleReservationFailedEvent событие отказа в резервировании автомобиля
type VehicleReservationFailedEvent struct {
	TransactionID string    `json:"transaction_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *VehicleReservationFailedEvent) EventName() string { return "vehicle.reservation_failed" }

// Topic возвращает топик события
func (e *VehicleReservationFailedEvent) Topic() string { return TopicVehicleReservationFailed }

// AggregateID возвращает идентификатор транзакции саги
func (e *VehicleReservationFailedEvent) AggregateID() string { return e.TransactionID }

// VehicleReleasedEvent событие освобождения зарезервированного автомобиля
type VehicleReleasedEvent struct {
	TransactionID string    `json:"transaction_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *VehicleReleasedEvent) EventName() string { return "vehicle.released" }

// Topic возвращает топик события
func (e *VehicleReleasedEvent) Topic() string { return TopicVehicleReleased }

// AggregateID возвращает идентификатор транзакции саги
func (e *VehicleReleasedEvent) AggregateID() string { return e.TransactionID }

// PaymentCodeGeneratedEvent событие генерации платежного кода
type PaymentCodeGeneratedEvent struct {
	TransactionID string    `json:"transaction_id"`
	PaymentCode   string    `json:"payment_code"`
	CustomerID    int64     `json:"customer_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Amount        float64   `json:"amount"`
	PaymentType   string    `json:"payment_type"`
	ExpiresAt     time.Time `json:"expires_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PaymentCodeGeneratedEvent) EventName() string { return "payment.code_generated" }

// Topic возвращает топик события
func (e *PaymentCodeGeneratedEvent) Topic() string { return TopicPaymentCodeGenerated }

// AggregateID возвращает идентификатор транзакции саги
func (e *PaymentCodeGeneratedEvent) AggregateID() string { return e.TransactionID }

// PaymentCodeGenerationFailedEvent событие ошибки генерации платежного кода
type PaymentCodeGenerationFailedEvent struct {
	TransactionID string    `json:"transaction_id"`
	CustomerID    int64     `json:"customer_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Amount        float64   `json:"amount"`
	PaymentType   string    `json:"payment_type"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PaymentCodeGenerationFailedEvent) EventName() string { return "payment.code_generation_failed" }

// Topic возвращает топик события
func (e *PaymentCodeGenerationFailedEvent) Topic() string { return TopicPaymentCodeGenerationFailed }

// AggregateID возвращает идентификатор транзакции саги
func (e *PaymentCodeGenerationFailedEvent) AggregateID() string { return e.TransactionID }

// PaymentProcessedEvent событие успешной обработки платежа
type PaymentProcessedEvent struct {
	TransactionID string    `json:"transaction_id"`
	PaymentID     string    `json:"payment_id"`
	PaymentCode   string    `json:"payment_code"`
	CustomerID    int64     `json:"customer_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Amount        float64   `json:"amount"`
	PaymentType   string    `json:"payment_type"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PaymentProcessedEvent) EventName() string { return "payment.processed" }

// Topic возвращает топик события
func (e *PaymentProcessedEvent) Topic() string { return TopicPaymentProcessed }

// AggregateID возвращает идентификатор транзакции саги
func (e *PaymentProcessedEvent) AggregateID() string { return e.TransactionID }

// PaymentFailedEvent событие ошибки обработки платежа
type PaymentFailedEvent struct {
	TransactionID string    `json:"transaction_id"`
	PaymentCode   string    `json:"payment_code"`
	CustomerID    int64     `json:"customer_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Amount        float64   `json:"amount"`
	PaymentType   string    `json:"payment_type"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PaymentFailedEvent) EventName() string { return "payment.failed" }

// Topic возвращает топик события
func (e *PaymentFailedEvent) Topic() string { return TopicPaymentFailed }

// AggregateID возвращает идентификатор транзакции саги
func (e *PaymentFailedEvent) AggregateID() string { return e.TransactionID }

// PaymentRefundedEvent событие успешного возврата платежа
type PaymentRefundedEvent struct {
	TransactionID string    `json:"transaction_id"`
	PaymentID     string    `json:"payment_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PaymentRefundedEvent) EventName() string { return "payment.refunded" }

// Topic возвращает топик события
func (e *PaymentRefundedEvent) Topic() string { return TopicPaymentRefunded }

// AggregateID возвращает идентификатор транзакции саги
func (e *PaymentRefundedEvent) AggregateID() string { return e.TransactionID }

// PaymentRefundFailedEvent событие ошибки возврата платежа
type PaymentRefundFailedEvent struct {
	TransactionID string    `json:"transaction_id"`
	PaymentID     string    `json:"payment_id"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PaymentRefundFailedEvent) EventName() string { return "payment.refund_failed" }

// Topic возвращает топик события
func (e *PaymentRefundFailedEvent) Topic() string { return TopicPaymentRefundFailed }

// AggregateID возвращает идентификатор транзакции саги
func (e *PaymentRefundFailedEvent) AggregateID() string { return e.TransactionID }

// PurchaseCancelledEvent уведомление об успешной отмене покупки
type PurchaseCancelledEvent struct {
	TransactionID         string    `json:"transaction_id"`
	CustomerID            int64     `json:"customer_id"`
	VehicleID             int64     `json:"vehicle_id"`
	CancelledStep         string    `json:"cancelled_step"`
	Reason                string    `json:"reason"`
	CompensationCompleted bool      `json:"compensation_completed"`
	Timestamp             time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *PurchaseCancelledEvent) EventName() string { return "purchase.cancelled" }

// Topic возвращает топик события
func (e *PurchaseCancelledEvent) Topic() string { return TopicPurchaseCancelled }

// AggregateID возвращает идентификатор транзакции саги
func (e *PurchaseCancelledEvent) AggregateID() string { return e.TransactionID }

// CancellationFailedEvent уведомление об отказе в отмене покупки
type CancellationFailedEvent struct {
	TransactionID string    `json:"transaction_id"`
	Reason        string    `json:"reason"`
	CurrentStep   string    `json:"current_step"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventName возвращает тип события
func (e *CancellationFailedEvent) EventName() string { return "purchase.cancellation_failed" }

// Topic возвращает топик события
func (e *CancellationFailedEvent) Topic() string { return TopicCancellationFailed }

// AggregateID возвращает идентификатор транзакции саги
func (e *CancellationFailedEvent) AggregateID() string { return e.TransactionID }
