// Package core предоставляет систему ошибок сервиса.
package core

import (
	"errors"
	"fmt"
)

// Коды ошибок оркестратора
const (
	ErrInvalidRequest      = "INVALID_REQUEST"
	ErrNotFound            = "NOT_FOUND"
	ErrAlreadyExists       = "ALREADY_EXISTS"
	ErrAlreadyTerminal     = "ALREADY_TERMINAL"
	ErrVersionConflict     = "VERSION_CONFLICT"
	ErrStepFailure         = "STEP_FAILURE"
	ErrCompensationFailure = "COMPENSATION_FAILURE"
	ErrUnavailable         = "UNAVAILABLE"
	ErrInternal            = "INTERNAL"
)

// DomainError базовый тип ошибки сервиса
type DomainError struct {
	Code    string
	Message string
	Cause   error
}

// Error реализует интерфейс error
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is проверяет, соответствует ли ошибка коду
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext добавляет контекст к ошибке
func (e *DomainError) WithContext(context string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: fmt.Sprintf("%s: %s", context, e.Message),
		Cause:   e.Cause,
	}
}

// NewError создает новую ошибку сервиса
func NewError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewErrorf создает новую ошибку сервиса с форматированием
func NewErrorf(code, format string, args ...interface{}) *DomainError {
	return &DomainError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code, message string) *DomainError {
	if err == nil {
		return nil
	}
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode оборачивает ошибку с кодом
func WrapWithCode(err error, code string) *DomainError {
	if err == nil {
		return nil
	}
	return &DomainError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// CodeOf возвращает код ошибки или ErrInternal для неизвестных ошибок
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal
}

// HasCode проверяет, несет ли ошибка (или ее причина) указанный код
func HasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound проверяет ошибку на код NOT_FOUND
func IsNotFound(err error) bool {
	return HasCode(err, ErrNotFound)
}

// IsAlreadyExists проверяет ошибку на код ALREADY_EXISTS
func IsAlreadyExists(err error) bool {
	return HasCode(err, ErrAlreadyExists)
}

// IsAlreadyTerminal проверяет ошибку на код ALREADY_TERMINAL
func IsAlreadyTerminal(err error) bool {
	return HasCode(err, ErrAlreadyTerminal)
}

// IsVersionConflict проверяет ошибку на код VERSION_CONFLICT
func IsVersionConflict(err error) bool {
	return HasCode(err, ErrVersionConflict)
}

// IsInvalidRequest проверяет ошибку на код INVALID_REQUEST
func IsInvalidRequest(err error) bool {
	return HasCode(err, ErrInvalidRequest)
}
