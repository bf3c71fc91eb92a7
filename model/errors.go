// Package model holds the shared value types, error envelope, and request
// context used across the forms engine.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrNotFound      = "NOT_FOUND"
	ErrValidation    = "VALIDATION_ERROR"
	ErrIntegrity     = "INTEGRITY_ERROR"
	ErrConfiguration = "CONFIGURATION_ERROR"
	ErrInternal      = "INTERNAL_ERROR"
)

// ErrorEnvelope is the standard error response envelope.
// It implements the error interface.
type ErrorEnvelope struct {
	Code          string       `json:"code"`
	Message       string       `json:"message"`
	Details       []FieldError `json:"details,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a parameter-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Field error codes. "required but empty" and "wrong type" are distinct
// kinds and must stay distinguishable to callers.
const (
	FieldRequired = "REQUIRED"
	FieldType     = "TYPE_MISMATCH"
	FieldInvalid  = "INVALID_VALUE"
)

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details ...FieldError) *ErrorEnvelope {
	msg := "One or more parameters are invalid"
	if len(details) == 1 && details[0].Message != "" {
		msg = details[0].Message
	}
	return &ErrorEnvelope{Code: ErrValidation, Message: msg, Details: details}
}

// NewIntegrityError returns an INTEGRITY_ERROR carrying the custom message
// set by an action-level condition (uniqueness, referential preconditions).
func NewIntegrityError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrIntegrity, Message: msg}
}

// NewConfigurationError returns a CONFIGURATION_ERROR. The message is
// operator-facing (a form with no storable columns, a linked form missing
// its display column).
func NewConfigurationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConfiguration, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR with an opaque correlation id.
// The underlying cause is logged, never exposed to the caller.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:          ErrInternal,
		Message:       "An unexpected error occurred",
		CorrelationID: uuid.NewString(),
	}
}
