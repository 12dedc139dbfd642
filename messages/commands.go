package messages

// Command общий интерфейс команд оркестратора
type Command interface {
	// CommandName возвращает имя команды
	CommandName() string
	// Topic возвращает топик для публикации команды
	Topic() string
	// AggregateID возвращает идентификатор транзакции саги
	AggregateID() string
}

// ReserveCreditCommand команда резервирования кредита
type ReserveCreditCommand struct {
	TransactionID string  `json:"transaction_id"`
	CustomerID    int64   `json:"customer_id"`
	Amount        float64 `json:"amount"`
	PaymentType   string  `json:"payment_type"`
}

// CommandName возвращает имя команды
func (c *ReserveCreditCommand) CommandName() string { return "reserve_credit" }

// Topic возвращает топик для публикации команды
func (c *ReserveCreditCommand) Topic() string { return TopicReserveCredit }

// AggregateID возвращает идентификатор транзакции саги
func (c *ReserveCreditCommand) AggregateID() string { return c.TransactionID }

// ReleaseCreditCommand команда освобождения зарезервированного кредита
type ReleaseCreditCommand struct {
	TransactionID string  `json:"transaction_id"`
	CustomerID    int64   `json:"customer_id"`
	Amount        float64 `json:"amount"`
	PaymentType   string  `json:"payment_type"`
}

// CommandName возвращает имя команды
func (c *ReleaseCreditCommand) CommandName() string { return "release_credit" }

// Topic возвращает топик для публикации команды
func (c *ReleaseCreditCommand) Topic() string { return TopicReleaseCredit }

// AggregateID возвращает идентификатор транзакции саги
func (c *ReleaseCreditCommand) AggregateID() string { return c.TransactionID }

// ReserveVehicleCommand команда резервирования автомобиля
type ReserveVehicleCommand struct {
	TransactionID string `json:"transaction_id"`
	VehicleID     int64  `json:"vehicle_id"`
}

// CommandName возвращает имя команды
func (c *ReserveVehicleCommand) CommandName() string { return "reserve_vehicle" }

// Topic возвращает топик для публикации команды
func (c *ReserveVehicleCommand) Topic() string { return TopicReserveVehicle }

// AggregateID возвращает идентификатор транзакции саги
func (c *ReserveVehicleCommand) AggregateID() string { return c.TransactionID }

// ReleaseVehicleCommand команда освобождения зарезервированного автомобиля
type ReleaseVehicleCommand struct {
	TransactionID string `json:"transaction_id"`
	VehicleID     int64  `json:"vehicle_id"`
}

// CommandName возвращает имя команды
func (c *ReleaseVehicleCommand) CommandName() string { return "release_vehicle" }

// Topic возвращает топик для публикации команды
func (c *ReleaseVehicleCommand) Topic() string { return TopicReleaseVehicle }

// AggregateID возвращает идентификатор транзакции саги
func (c *ReleaseVehicleCommand) AggregateID() string { return c.TransactionID }

// GeneratePaymentCodeCommand команда генерации платежного кода
type GeneratePaymentCodeCommand struct {
	TransactionID string  `json:"transaction_id"`
	CustomerID    int64   `json:"customer_id"`
	VehicleID     int64   `json:"vehicle_id"`
	Amount        float64 `json:"amount"`
	PaymentType   string  `json:"payment_type"`
}

// CommandName возвращает имя команды
func (c *GeneratePaymentCodeCommand) CommandName() string { return "generate_payment_code" }

// Topic возвращает топик для публикации команды
func (c *GeneratePaymentCodeCommand) Topic() string { return TopicGeneratePaymentCode }

// AggregateID возвращает идентификатор транзакции саги
func (c *GeneratePaymentCodeCommand) AggregateID() string { return c.TransactionID }

// ProcessPaymentCommand команда обработки платежа
type ProcessPaymentCommand struct {
	TransactionID string `json:"transaction_id"`
	PaymentCode   string `json:"payment_code"`
	PaymentMethod string `json:"payment_method"`
}

// CommandName возвращает имя команды
func (c *ProcessPaymentCommand) CommandName() string { return "process_payment" }

// Topic возвращает топик для публикации команды
func (c *ProcessPaymentCommand) Topic() string { return TopicProcessPayment }

// AggregateID возвращает идентификатор транзакции саги
func (c *ProcessPaymentCommand) AggregateID() string { return c.TransactionID }

// RefundPaymentCommand команда возврата платежа
type RefundPaymentCommand struct {
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id"`
}

// CommandName возвращает имя команды
func (c *RefundPaymentCommand) CommandName() string { return "refund_payment" }

// Topic возвращает топик для публикации команды
func (c *RefundPaymentCommand) Topic() string { return TopicRefundPayment }

// AggregateID возвращает идентификатор транзакции саги
func (c *RefundPaymentCommand) AggregateID() string { return c.TransactionID }

// CancelPurchaseCommand команда отмены покупки
type CancelPurchaseCommand struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// CommandName возвращает имя команды
func (c *CancelPurchaseCommand) CommandName() string { return "cancel_purchase" }

// Topic возвращает топик для публикации команды
func (c *CancelPurchaseCommand) Topic() string { return TopicCancelPurchase }

// AggregateID возвращает идентификатор транзакции саги
func (c *CancelPurchaseCommand) AggregateID() string { return c.TransactionID }
