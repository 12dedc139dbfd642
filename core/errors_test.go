package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	cause := errors.New("connection refused")
	err := &DomainError{
		Code:    ErrUnavailable,
		Message: "store is not reachable",
		Cause:   cause,
	}

	msg := err.Error()
	if msg != "[UNAVAILABLE] store is not reachable: connection refused" {
		t.Errorf("Unexpected message: %s", msg)
	}

	// Без cause
	err2 := &DomainError{
		Code:    ErrNotFound,
		Message: "saga not found",
	}
	if err2.Error() != "[NOT_FOUND] saga not found" {
		t.Errorf("Unexpected message: %s", err2.Error())
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, ErrInternal, "wrapped")

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return cause")
	}
}

func TestDomainError_Is(t *testing.T) {
	err := NewError(ErrVersionConflict, "stale version")

	// Коды сравниваются через errors.Is
	if !errors.Is(err, &DomainError{Code: ErrVersionConflict}) {
		t.Error("Expected errors with the same code to match")
	}
	if errors.Is(err, &DomainError{Code: ErrNotFound}) {
		t.Error("Expected errors with different codes to not match")
	}
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewError(ErrStepFailure, "reservation rejected")
	err = err.WithContext("transaction tx-1")

	if err.Message != "transaction tx-1: reservation rejected" {
		t.Errorf("Unexpected message: %s", err.Message)
	}
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(ErrInvalidRequest, "unknown payment type %q", "bitcoin")
	if err.Message != `unknown payment type "bitcoin"` {
		t.Errorf("Unexpected message: %s", err.Message)
	}
	if err.Code != ErrInvalidRequest {
		t.Errorf("Unexpected code: %s", err.Code)
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrInternal, "never") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}
	if WrapWithCode(nil, ErrInternal) != nil {
		t.Error("Expected WrapWithCode(nil) to return nil")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(NewError(ErrAlreadyExists, "duplicate")) != ErrAlreadyExists {
		t.Error("Expected ALREADY_EXISTS code")
	}

	// Обернутые ошибки сохраняют код
	wrapped := fmt.Errorf("outer: %w", NewError(ErrNotFound, "missing"))
	if CodeOf(wrapped) != ErrNotFound {
		t.Error("Expected NOT_FOUND code through the wrap chain")
	}

	// Обычные ошибки считаются внутренними
	if CodeOf(errors.New("plain")) != ErrInternal {
		t.Error("Expected INTERNAL code for plain errors")
	}
	if CodeOf(nil) != "" {
		t.Error("Expected empty code for nil")
	}
}

func TestHasCode(t *testing.T) {
	err := WrapWithCode(errors.New("boom"), ErrCompensationFailure)
	if !HasCode(err, ErrCompensationFailure) {
		t.Error("Expected HasCode to match")
	}
	if HasCode(err, ErrStepFailure) {
		t.Error("Expected HasCode to not match a different code")
	}
	if HasCode(nil, ErrInternal) {
		t.Error("Expected HasCode(nil) to be false")
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NewError(ErrNotFound, "missing")) {
		t.Error("Expected IsNotFound")
	}
	if !IsAlreadyExists(NewError(ErrAlreadyExists, "duplicate")) {
		t.Error("Expected IsAlreadyExists")
	}
	if !IsAlreadyTerminal(NewError(ErrAlreadyTerminal, "finished")) {
		t.Error("Expected IsAlreadyTerminal")
	}
	if !IsVersionConflict(NewError(ErrVersionConflict, "stale")) {
		t.Error("Expected IsVersionConflict")
	}
	if !IsInvalidRequest(NewError(ErrInvalidRequest, "bad input")) {
		t.Error("Expected IsInvalidRequest")
	}
	if IsNotFound(NewError(ErrInternal, "oops")) {
		t.Error("Expected IsNotFound to be false for other codes")
	}
}
