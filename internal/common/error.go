// Package common defines shared constants and sentinel errors used across
// repositories, services and transports. Callers should use errors.Is and
// errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrForbidden = errors.New("forbidden")

	// Identity errors.
	ErrInvalidInput       = errors.New("invalid input")
	ErrIdentifierTaken    = errors.New("identifier already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoLocalCredential  = errors.New("no local credential")
	ErrUnauthenticated    = errors.New("unauthenticated")

	// Token errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("token malformed")
	ErrTokenSigningFailure = errors.New("token signing failure")
)

// DuplicateIdentifierError reports a unique-constraint collision on an
// account identifier or any other uniquely indexed field.
type DuplicateIdentifierError struct {
	Field string
	Value string
}

func (e *DuplicateIdentifierError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("duplicate value for field '%s'", e.Field)
	}
	return fmt.Sprintf("Duplicate field value entered: '%s' for field '%s'. Please use another value.", e.Value, e.Field)
}

// Unwrap makes errors.Is(err, ErrIdentifierTaken) hold.
func (e *DuplicateIdentifierError) Unwrap() error { return ErrIdentifierTaken }

// IdentifierTakenError reports that an account already owns the identifier
// a caller tried to claim. Kind is a human label such as "email".
type IdentifierTakenError struct {
	Kind string
}

func (e *IdentifierTakenError) Error() string {
	return "User already exists with this " + e.Kind
}

func (e *IdentifierTakenError) Unwrap() error { return ErrIdentifierTaken }

// ValidationError carries field-level messages that are surfaced to the
// client verbatim.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is a single failed field rule.
type FieldError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError with a single message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field message.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, ", ")
}

// Unwrap makes errors.Is(err, ErrInvalidInput) hold.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
