// Package saga предоставляет события жизненного цикла саг для внутренней шины.
package saga

import (
	"github.com/akriventsev/dealsaga/events"
)

// Типы внутренних событий жизненного цикла
const (
	EventTypeSagaStarted   = "saga.started"
	EventTypeStatusChanged = "saga.status_changed"
)

// SagaStartedEvent событие создания новой саги покупки
type SagaStartedEvent struct {
	*events.BaseEvent
	TransactionID string      `json:"transaction_id"`
	CustomerID    int64       `json:"customer_id"`
	VehicleID     int64       `json:"vehicle_id"`
	PaymentType   PaymentType `json:"payment_type"`
	Amount        float64     `json:"amount"`
}

// NewSagaStartedEvent создает событие создания саги
func NewSagaStartedEvent(record *Purchase) *SagaStartedEvent {
	return &SagaStartedEvent{
		BaseEvent:     events.NewBaseEvent(EventTypeSagaStarted, record.TransactionID),
		TransactionID: record.TransactionID,
		CustomerID:    record.CustomerID,
		VehicleID:     record.VehicleID,
		PaymentType:   record.PaymentType,
		Amount:        record.Amount,
	}
}

// StatusChangedEvent событие смены статуса саги
type StatusChangedEvent struct {
	*events.BaseEvent
	TransactionID string `json:"transaction_id"`
	FromStatus    Status `json:"from_status"`
	ToStatus      Status `json:"to_status"`
	Trigger       string `json:"trigger"`
	FailureReason string `json:"failure_reason,omitempty"`
	Terminal      bool   `json:"terminal"`
}

// NewStatusChangedEvent создает событие смены статуса
func NewStatusChangedEvent(transactionID string, from, to Status, trigger, failureReason string) *StatusChangedEvent {
	return &StatusChangedEvent{
		BaseEvent:     events.NewBaseEvent(EventTypeStatusChanged, transactionID),
		TransactionID: transactionID,
		FromStatus:    from,
		ToStatus:      to,
		Trigger:       trigger,
		FailureReason: failureReason,
		Terminal:      to.IsTerminal(),
	}
}
