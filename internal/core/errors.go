package core

import (
	"errors"
	"fmt"
)

// Failure kinds. Callers match with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service failure")
)

var (
	ErrEmptyPayload       = fmt.Errorf("%w: nothing to ingest", ErrValidation)
	ErrUserExists         = fmt.Errorf("%w: user already exists", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrValidation)
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidYear       = errors.New("invalid year")
	ErrInvalidDate       = errors.New("invalid date")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrEmptyMerchant     = errors.New("empty merchant")
	ErrEmptyUser         = errors.New("empty user id")
	ErrEmptyEmail        = errors.New("empty email")
	ErrWeakPassword      = errors.New("password too short")
	ErrInvalidSourceType = errors.New("invalid source type")
)

// ValidationError ties a field-level error to the field it concerns.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}
