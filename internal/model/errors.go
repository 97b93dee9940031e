package model

import (
	"errors"
	"fmt"
)

// Domain errors. All of them are expected, recoverable outcomes; callers
// match with errors.Is and decide whether to resubmit. ErrTimeout is the
// one ambiguous case: the backend's actual outcome is unknown and the
// caller must re-query the balance before trying again.
var (
	ErrConnection          = errors.New("settlement backend unreachable")
	ErrUnauthorized        = errors.New("credential mismatch")
	ErrInvalidCredential   = errors.New("invalid new credential")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrArithmeticOverflow  = errors.New("balance overflow")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrTimeout             = errors.New("no confirmation within the operation timeout")
	ErrAlreadyProcessed    = errors.New("operation already processed")
)

// ValidationError reports which loan or amount field failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Wire codes for confirmations crossing the settlement bus.
const (
	CodeConnection          = "connection_error"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidCredential   = "invalid_credential"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeArithmeticOverflow  = "arithmetic_overflow"
	CodeValidation          = "validation_error"
	CodeOperationInProgress = "operation_in_progress"
	CodeTimeout             = "timeout"
	CodeAlreadyProcessed    = "already_processed"
)

// CodeOf maps a domain error to its wire code. Unrecognized errors are
// reported as connection-class failures so the caller retries the flow.
func CodeOf(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return CodeValidation
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidCredential):
		return CodeInvalidCredential
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, ErrArithmeticOverflow):
		return CodeArithmeticOverflow
	case errors.Is(err, ErrOperationInProgress):
		return CodeOperationInProgress
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrAlreadyProcessed):
		return CodeAlreadyProcessed
	default:
		return CodeConnection
	}
}

// ErrFromCode rebuilds the domain error for a wire code received in a
// rejected confirmation.
func ErrFromCode(code, field, message string) error {
	switch code {
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeInvalidCredential:
		return ErrInvalidCredential
	case CodeInsufficientFunds:
		return ErrInsufficientFunds
	case CodeArithmeticOverflow:
		return ErrArithmeticOverflow
	case CodeOperationInProgress:
		return ErrOperationInProgress
	case CodeTimeout:
		return ErrTimeout
	case CodeAlreadyProcessed:
		return ErrAlreadyProcessed
	case CodeValidation:
		return &ValidationError{Field: field, Reason: message}
	default:
		if message == "" {
			return ErrConnection
		}
		return fmt.Errorf("%w: %s", ErrConnection, message)
	}
}
