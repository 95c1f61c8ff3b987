package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Code identifies a client-side validation failure.
type Code string

const (
	CodeMalformedPayload    Code = "MalformedPayload"
	CodeInvalidIdentifier   Code = "InvalidIdentifier"
	CodeMissingClient       Code = "MissingClient"
	CodeInvalidClient       Code = "InvalidClient"
	CodeEmptyItems          Code = "EmptyItems"
	CodeInvalidTimestamp    Code = "InvalidTimestamp"
	CodeMissingSKU          Code = "MissingSku"
	CodeMissingUnitPrice    Code = "MissingUnitPrice"
	CodeInvalidUnitPrice    Code = "InvalidUnitPrice"
	CodeInvalidSKU          Code = "InvalidSku"
	CodePriceMismatch       Code = "PriceMismatch"
	CodeCatalogMalformed    Code = "CatalogMalformed"
	CodeMissingQuantity     Code = "MissingQuantity"
	CodeInvalidQuantity     Code = "InvalidQuantity"
	CodeNonPositiveQuantity Code = "NonPositiveQuantity"
)

// Payload field names used to tag validation errors.
const (
	FieldPayload   = "payload"
	FieldID        = "id"
	FieldClient    = "cliente"
	FieldItems     = "productos"
	FieldTimestamp = "fecha"
)

// ValidationError is a client error tied to one payload field. It is never
// retried.
type ValidationError struct {
	Field   string
	Code    Code
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field string, code Code, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsValidation returns the *ValidationError in err's chain, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// ExhaustedError is returned once every reconcile attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("reconcile failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
