package billing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrMalformedPayload = errors.New("webhook payload failed validation")
)

type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeDuplicateDelivery Code = "duplicate_delivery"
	CodeGateway           Code = "gateway_error"
	CodePersistence       Code = "persistence_error"
)

// Error carries a machine-readable code next to the human-readable message.
// DuplicateDelivery is special-cased at the HTTP boundary: it maps to a
// success response, never to a failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from err, defaulting to persistence.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodePersistence
}
