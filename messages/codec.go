package messages

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/observability"
	"github.com/akriventsev/dealsaga/transport"
)

// DecodeEvent разбирает событие участника по топику сообщения.
// Возвращает ошибку INVALID_REQUEST для неизвестного топика,
// некорректного JSON или пустого transaction_id.
func DecodeEvent(subject string, data []byte) (Event, error) {
	var event Event
	switch subject {
	case TopicCreditReserved:
		event = &CreditReservedEvent{}
	case TopicCreditReservationFailed:
		event = &CreditReservationFailedEvent{}
	case TopicCreditReleased:
		event = &CreditReleasedEvent{}
	case TopicVehicleReserved:
		event = &VehicleReservedEvent{}
	case TopicVehicleReservationFailed:
		event = &VehicleReservationFailedEvent{}
	case TopicVehicleReleased:
		event = &VehicleReleasedEvent{}
	case TopicPaymentCodeGenerated:
		event = &PaymentCodeGeneratedEvent{}
	case TopicPaymentCodeGenerationFailed:
		event = &PaymentCodeGenerationFailedEvent{}
	case TopicPaymentProcessed:
		event = &PaymentProcessedEvent{}
	case TopicPaymentFailed:
		event = &PaymentFailedEvent{}
	case TopicPaymentRefunded:
		event = &PaymentRefundedEvent{}
	case TopicPaymentRefundFailed:
		event = &PaymentRefundFailedEvent{}
	case TopicPurchaseCancelled:
		event = &PurchaseCancelledEvent{}
	case TopicCancellationFailed:
		event = &CancellationFailedEvent{}
	default:
		return nil, core.NewErrorf(core.ErrInvalidRequest, "unknown event topic %q", subject)
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidRequest, "malformed event payload")
	}
	if event.AggregateID() == "" {
		return nil, core.NewErrorf(core.ErrInvalidRequest, "event %s has empty transaction_id", event.EventName())
	}
	return event, nil
}

// DecodeCancelCommand разбирает команду отмены покупки
func DecodeCancelCommand(data []byte) (*CancelPurchaseCommand, error) {
	cmd := &CancelPurchaseCommand{}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidRequest, "malformed cancel command payload")
	}
	if cmd.TransactionID == "" {
		return nil, core.NewError(core.ErrInvalidRequest, "cancel command has empty transaction_id")
	}
	return cmd, nil
}

// PublishCommand сериализует команду и публикует её в соответствующий топик
func PublishCommand(ctx context.Context, pub transport.Publisher, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to marshal command")
	}

	headers := map[string]string{
		HeaderMessageID:  uuid.NewString(),
		HeaderEventType:  cmd.CommandName(),
		HeaderOccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	observability.InjectTraceContext(ctx, headers)
	if err := pub.Publish(ctx, cmd.Topic(), data, headers); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to publish command "+cmd.CommandName())
	}
	return nil
}

// PublishEvent сериализует событие и публикует его в соответствующий топик
func PublishEvent(ctx context.Context, pub transport.Publisher, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to marshal event")
	}

	headers := map[string]string{
		HeaderMessageID:  uuid.NewString(),
		HeaderEventType:  event.EventName(),
		HeaderOccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	observability.InjectTraceContext(ctx, headers)
	if err := pub.Publish(ctx, event.Topic(), data, headers); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to publish event "+event.EventName())
	}
	return nil
}
