package saga

import (
	"testing"

	"github.com/akriventsev/dealsaga/messages"
)

func purchaseFixture() *Purchase {
	record := NewPurchase(7, 42, PaymentTypeCredit, 85000)
	record.PaymentCode = "PIX-777"
	record.PaymentID = "pay-777"
	return record
}

func TestNewPurchaseDefinition(t *testing.T) {
	definition, err := NewPurchaseDefinition()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	if definition.Name() != "vehicle-purchase" {
		t.Errorf("Expected name vehicle-purchase, got %s", definition.Name())
	}
	steps := definition.Steps()
	if len(steps) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(steps))
	}

	wantOrder := []string{
		StepCreditReservation,
		StepVehicleReservation,
		StepPaymentCodeGeneration,
		StepPaymentProcessing,
	}
	for i, name := range wantOrder {
		if steps[i].Name() != name {
			t.Errorf("Step %d: expected %s, got %s", i, name, steps[i].Name())
		}
	}

	if definition.First().Name() != StepCreditReservation {
		t.Errorf("Expected first step %s, got %s", StepCreditReservation, definition.First().Name())
	}
	if definition.Final() != StatusPaymentProcessed {
		t.Errorf("Expected final status PAYMENT_PROCESSED, got %s", definition.Final())
	}
}

func TestPurchaseDefinition_StatusChain(t *testing.T) {
	definition, err := NewPurchaseDefinition()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	chain := []struct {
		status Status
		step   string
	}{
		{StatusStarted, StepCreditReservation},
		{StatusCreditReserved, StepVehicleReservation},
		{StatusVehicleReserved, StepPaymentCodeGeneration},
		{StatusPaymentCodeGenerated, StepPaymentProcessing},
	}

	for _, link := range chain {
		step, ok := definition.StepAwaitedIn(link.status)
		if !ok {
			t.Errorf("Expected a step awaited in %s", link.status)
			continue
		}
		if step.Name() != link.step {
			t.Errorf("Status %s: expected step %s, got %s", link.status, link.step, step.Name())
		}
	}

	if _, ok := definition.StepAwaitedIn(StatusCompleted); ok {
		t.Error("Expected no step awaited in terminal status")
	}
	if _, ok := definition.StepByName("no-such-step"); ok {
		t.Error("Expected lookup miss for unknown step name")
	}
}

func TestPurchaseDefinition_Compensations(t *testing.T) {
	definition, err := NewPurchaseDefinition()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	compensable := map[string]bool{
		StepCreditReservation:     true,
		StepVehicleReservation:    true,
		StepPaymentCodeGeneration: false,
		StepPaymentProcessing:     true,
	}
	for name, want := range compensable {
		step, ok := definition.StepByName(name)
		if !ok {
			t.Fatalf("Step %s not found", name)
		}
		if step.HasCompensation() != want {
			t.Errorf("Step %s: expected HasCompensation %v", name, want)
		}
	}

	// Только возврат платежа сообщает об отказе компенсации
	payment, _ := definition.StepByName(StepPaymentProcessing)
	if payment.CompensationRefusal() != "payment.refund_failed" {
		t.Errorf("Expected refund refusal event, got %s", payment.CompensationRefusal())
	}
	credit, _ := definition.StepByName(StepCreditReservation)
	if credit.CompensationRefusal() != "" {
		t.Errorf("Expected no refusal event for credit release, got %s", credit.CompensationRefusal())
	}
}

func TestPurchaseDefinition_Commands(t *testing.T) {
	definition, err := NewPurchaseDefinition()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}
	record := purchaseFixture()

	cases := []struct {
		step      string
		topic     string
		compTopic string
	}{
		{StepCreditReservation, messages.TopicReserveCredit, messages.TopicReleaseCredit},
		{StepVehicleReservation, messages.TopicReserveVehicle, messages.TopicReleaseVehicle},
		{StepPaymentCodeGeneration, messages.TopicGeneratePaymentCode, ""},
		{StepPaymentProcessing, messages.TopicProcessPayment, messages.TopicRefundPayment},
	}

	for _, tc := range cases {
		step, _ := definition.StepByName(tc.step)

		cmd := step.BuildCommand(record)
		if cmd.Topic() != tc.topic {
			t.Errorf("Step %s: expected command topic %s, got %s", tc.step, tc.topic, cmd.Topic())
		}
		if cmd.AggregateID() != record.TransactionID {
			t.Errorf("Step %s: expected transaction %s, got %s", tc.step, record.TransactionID, cmd.AggregateID())
		}

		comp := step.BuildCompensation(record)
		if tc.compTopic == "" {
			if comp != nil {
				t.Errorf("Step %s: expected no compensation command", tc.step)
			}
			continue
		}
		if comp == nil || comp.Topic() != tc.compTopic {
			t.Errorf("Step %s: expected compensation topic %s, got %v", tc.step, tc.compTopic, comp)
		}
	}

	// Команда оплаты несет сохраненный код и способ списания
	payment, _ := definition.StepByName(StepPaymentProcessing)
	process, ok := payment.BuildCommand(record).(*messages.ProcessPaymentCommand)
	if !ok {
		t.Fatal("Expected ProcessPaymentCommand")
	}
	if process.PaymentCode != "PIX-777" {
		t.Errorf("Expected payment code from record, got %s", process.PaymentCode)
	}
	if process.PaymentMethod != "pix" {
		t.Errorf("Expected pix payment method, got %s", process.PaymentMethod)
	}

	refund, ok := payment.BuildCompensation(record).(*messages.RefundPaymentCommand)
	if !ok {
		t.Fatal("Expected RefundPaymentCommand")
	}
	if refund.PaymentID != "pay-777" {
		t.Errorf("Expected payment ID from record, got %s", refund.PaymentID)
	}
}

func TestPurchaseDefinition_ApplySuccess(t *testing.T) {
	definition, err := NewPurchaseDefinition()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}
	record := NewPurchase(7, 42, PaymentTypeCash, 95000)

	// Подтвержденная резервом цена замещает цену из intake
	vehicleStep, _ := definition.StepByName(StepVehicleReservation)
	vehicleStep.ApplySuccess(record, &messages.VehicleReservedEvent{
		TransactionID: record.TransactionID,
		VehicleID:     42,
		VehiclePrice:  96500,
	})
	if record.Amount != 96500 {
		t.Errorf("Expected amount updated to reserved price, got %v", record.Amount)
	}
	vehicleStep.ApplySuccess(record, &messages.VehicleReservedEvent{
		TransactionID: record.TransactionID,
		VehicleID:     42,
	})
	if record.Amount != 96500 {
		t.Errorf("Expected zero price to leave amount untouched, got %v", record.Amount)
	}

	codeStep, _ := definition.StepByName(StepPaymentCodeGeneration)
	codeStep.ApplySuccess(record, &messages.PaymentCodeGeneratedEvent{
		TransactionID: record.TransactionID,
		PaymentCode:   "PIX-002",
	})
	if record.PaymentCode != "PIX-002" {
		t.Errorf("Expected payment code to be applied, got %q", record.PaymentCode)
	}

	payStep, _ := definition.StepByName(StepPaymentProcessing)
	payStep.ApplySuccess(record, &messages.PaymentProcessedEvent{
		TransactionID: record.TransactionID,
		PaymentID:     "pay-002",
	})
	if record.PaymentID != "pay-002" {
		t.Errorf("Expected payment ID to be applied, got %q", record.PaymentID)
	}

	// Чужое событие не затирает данные
	codeStep.ApplySuccess(record, &messages.CreditReservedEvent{TransactionID: record.TransactionID})
	if record.PaymentCode != "PIX-002" {
		t.Errorf("Expected payment code untouched, got %q", record.PaymentCode)
	}
}

func TestStepBuilder_Validation(t *testing.T) {
	command := func(p *Purchase) messages.Command {
		return &messages.ReserveCreditCommand{TransactionID: p.TransactionID}
	}

	_, err := NewStepBuilder("").WithCommand(command).WithSuccess("x", StatusCreditReserved).WithFailure("y").Build()
	if err == nil {
		t.Error("Expected error for empty name")
	}

	_, err = NewStepBuilder("s").WithSuccess("x", StatusCreditReserved).WithFailure("y").Build()
	if err == nil {
		t.Error("Expected error for missing command builder")
	}

	_, err = NewStepBuilder("s").WithCommand(command).WithFailure("y").Build()
	if err == nil {
		t.Error("Expected error for missing success event")
	}

	_, err = NewStepBuilder("s").WithCommand(command).WithSuccess("x", StatusCreditReserved).Build()
	if err == nil {
		t.Error("Expected error for missing failure event")
	}

	_, err = NewStepBuilder("s").WithCommand(command).WithSuccess("x", StatusFailed).WithFailure("y").Build()
	if err == nil {
		t.Error("Expected error for terminal status after success")
	}

	// Событие отказа компенсации без команды компенсации
	_, err = NewStepBuilder("s").WithCommand(command).
		WithSuccess("x", StatusCreditReserved).WithFailure("y").
		WithCompensationRefusal("z").Build()
	if err == nil {
		t.Error("Expected error for refusal event without compensation")
	}

	_, err = NewStepBuilder("s").WithCommand(command).
		WithSuccess("x", StatusCreditReserved).WithFailure("y").
		WithCompensation(command, "x.released").Build()
	if err != nil {
		t.Errorf("Expected valid step to build, got: %v", err)
	}
}

func TestNewDefinition_Validation(t *testing.T) {
	command := func(p *Purchase) messages.Command {
		return &messages.ReserveCreditCommand{TransactionID: p.TransactionID}
	}
	step := func(name string, before, after Status, success, failure string) *Step {
		s, err := NewStepBuilder(name).
			WithStatusBefore(before).
			WithCommand(command).
			WithSuccess(success, after).
			WithFailure(failure).
			Build()
		if err != nil {
			t.Fatalf("Failed to build step %s: %v", name, err)
		}
		return s
	}

	_, err := NewDefinition("empty")
	if err == nil {
		t.Error("Expected error for definition without steps")
	}

	// Дубликат имени шага
	_, err = NewDefinition("dup-name",
		step("a", StatusStarted, StatusCreditReserved, "e1", "f1"),
		step("a", StatusCreditReserved, StatusVehicleReserved, "e2", "f2"),
	)
	if err == nil {
		t.Error("Expected error for duplicate step names")
	}

	// Одно событие у двух шагов
	_, err = NewDefinition("dup-event",
		step("a", StatusStarted, StatusCreditReserved, "e1", "f1"),
		step("b", StatusCreditReserved, StatusVehicleReserved, "e1", "f2"),
	)
	if err == nil {
		t.Error("Expected error for event claimed twice")
	}

	// Разрыв цепочки статусов
	_, err = NewDefinition("gap",
		step("a", StatusStarted, StatusCreditReserved, "e1", "f1"),
		step("b", StatusVehicleReserved, StatusPaymentCodeGenerated, "e2", "f2"),
	)
	if err == nil {
		t.Error("Expected error for broken status chain")
	}

	// Первый шаг не со STARTED
	_, err = NewDefinition("late-start",
		step("a", StatusCreditReserved, StatusVehicleReserved, "e1", "f1"),
	)
	if err == nil {
		t.Error("Expected error for chain not starting at STARTED")
	}

	_, err = NewDefinition("ok",
		step("a", StatusStarted, StatusCreditReserved, "e1", "f1"),
		step("b", StatusCreditReserved, StatusVehicleReserved, "e2", "f2"),
	)
	if err != nil {
		t.Errorf("Expected valid definition to build, got: %v", err)
	}
}
