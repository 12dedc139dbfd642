// Package messages определяет wire-формат команд и событий саги покупки автомобиля.
//
// Оркестратор публикует команды в топики commands.* и подписывается на
// топики events.*, в которые сервисы участников публикуют результаты.
// Каждому типу события соответствует ровно один топик, поэтому тип
// входящего сообщения определяется по subject.
package messages

// Топики команд (оркестратор -> сервисы участников)
const (
	TopicReserveCredit       = "commands.credit.reserve"
	TopicReleaseCredit       = "commands.credit.release"
	TopicReserveVehicle      = "commands.vehicle.reserve"
	TopicReleaseVehicle      = "commands.vehicle.release"
	TopicGeneratePaymentCode = "commands.payment.generate_code"
	TopicProcessPayment      = "commands.payment.process"
	TopicRefundPayment       = "commands.payment.refund"
	TopicCancelPurchase      = "commands.purchase.cancel"
)

// Топики событий (сервисы участников -> оркестратор)
const (
	TopicCreditReserved              = "events.credit.reserved"
	TopicCreditReservationFailed     = "events.credit.reservation_failed"
	TopicCreditReleased              = "events.credit.released"
	TopicVehicleReserved             = "events.vehicle.reserved"
	TopicVehicleReservationFailed    = "events.vehicle.reservation_failed"
	TopicVehicleReleased             = "events.vehicle.released"
	TopicPaymentCodeGenerated        = "events.payment.code_generated"
	TopicPaymentCodeGenerationFailed = "events.payment.code_generation_failed"
	TopicPaymentProcessed            = "events.payment.processed"
	TopicPaymentFailed               = "events.payment.failed"
	TopicPaymentRefunded             = "events.payment.refunded"
	TopicPaymentRefundFailed         = "events.payment.refund_failed"
)

// Топики уведомлений (оркестратор -> внешние потребители)
const (
	TopicPurchaseCancelled  = "events.purchase.cancelled"
	TopicCancellationFailed = "events.purchase.cancellation_failed"
)

// EventTopics возвращает все топики событий участников,
// на которые подписывается оркестратор.
func EventTopics() []string {
	return []string{
		TopicCreditReserved,
		TopicCreditReservationFailed,
		TopicCreditReleased,
		TopicVehicleReserved,
		TopicVehicleReservationFailed,
		TopicVehicleReleased,
		TopicPaymentCodeGenerated,
		TopicPaymentCodeGenerationFailed,
		TopicPaymentProcessed,
		TopicPaymentFailed,
		TopicPaymentRefunded,
		TopicPaymentRefundFailed,
	}
}

// Заголовки сообщений
const (
	HeaderMessageID  = "message_id"
	HeaderEventType  = "event_type"
	HeaderOccurredAt = "occurred_at"
)
