package saga

import (
	"testing"
)

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("Expected %s to be terminal", status)
		}
	}

	active := []Status{
		StatusStarted, StatusCreditReserved, StatusVehicleReserved,
		StatusPaymentCodeGenerated, StatusPaymentProcessed, StatusCompensating,
	}
	for _, status := range active {
		if status.IsTerminal() {
			t.Errorf("Expected %s to be active", status)
		}
	}
}

func TestStatus_Valid(t *testing.T) {
	if !StatusCompensating.Valid() {
		t.Error("Expected COMPENSATING to be valid")
	}
	if Status("UNKNOWN").Valid() {
		t.Error("Expected UNKNOWN to be invalid")
	}
	if Status("").Valid() {
		t.Error("Expected empty status to be invalid")
	}
}

func TestPaymentType_Valid(t *testing.T) {
	if !PaymentTypeCash.Valid() || !PaymentTypeCredit.Valid() {
		t.Error("Expected cash and credit to be valid")
	}
	if PaymentType("installments").Valid() {
		t.Error("Expected unknown payment type to be invalid")
	}
}

func TestNewPurchase(t *testing.T) {
	record := NewPurchase(7, 42, PaymentTypeCash, 95000)

	if record.TransactionID == "" {
		t.Error("Expected transaction ID to be generated")
	}
	if record.Status != StatusStarted {
		t.Errorf("Expected STARTED, got %s", record.Status)
	}
	if record.Version != 1 {
		t.Errorf("Expected version 1, got %d", record.Version)
	}
	if record.CompletedSteps == nil || len(record.CompletedSteps) != 0 {
		t.Errorf("Expected empty completed steps, got %v", record.CompletedSteps)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
	if record.CancelRequested {
		t.Error("Expected cancel flag to be unset")
	}

	other := NewPurchase(7, 42, PaymentTypeCash, 95000)
	if other.TransactionID == record.TransactionID {
		t.Error("Expected unique transaction IDs")
	}
}

func TestPurchase_CompletedSteps(t *testing.T) {
	record := NewPurchase(7, 42, PaymentTypeCash, 95000)

	if record.LastCompletedStep() != "" {
		t.Errorf("Expected no last step, got %s", record.LastCompletedStep())
	}

	record.AppendStep(StepCreditReservation)
	record.AppendStep(StepVehicleReservation)

	if !record.HasCompletedStep(StepCreditReservation) {
		t.Error("Expected credit reservation to be completed")
	}
	if record.HasCompletedStep(StepPaymentProcessing) {
		t.Error("Expected payment processing to be incomplete")
	}
	if record.LastCompletedStep() != StepVehicleReservation {
		t.Errorf("Expected %s last, got %s", StepVehicleReservation, record.LastCompletedStep())
	}

	record.PopStep()
	if record.LastCompletedStep() != StepCreditReservation {
		t.Errorf("Expected %s after pop, got %s", StepCreditReservation, record.LastCompletedStep())
	}

	record.PopStep()
	record.PopStep() // пустой список не паникует
	if len(record.CompletedSteps) != 0 {
		t.Errorf("Expected empty steps, got %v", record.CompletedSteps)
	}
}

func TestPurchase_Clone(t *testing.T) {
	record := NewPurchase(7, 42, PaymentTypeCash, 95000)
	record.AppendStep(StepCreditReservation)
	record.PaymentCode = "PIX-001"

	clone := record.Clone()
	clone.Status = StatusCompensating
	clone.AppendStep(StepVehicleReservation)
	clone.PaymentCode = "PIX-002"

	if record.Status != StatusStarted {
		t.Errorf("Expected original status untouched, got %s", record.Status)
	}
	if len(record.CompletedSteps) != 1 {
		t.Errorf("Expected original steps untouched, got %v", record.CompletedSteps)
	}
	if record.PaymentCode != "PIX-001" {
		t.Errorf("Expected original payment code untouched, got %s", record.PaymentCode)
	}
}
