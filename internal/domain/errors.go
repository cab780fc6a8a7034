package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")

	ErrNetwork          = errors.New("lookup network error")
	ErrAuth             = errors.New("lookup authorization failed")
	ErrService          = errors.New("lookup service error")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrSuperseded       = errors.New("selection superseded")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// NetworkError is a transport failure or timeout while querying the lookup
// service. It is transient: callers may retry.
type NetworkError struct {
	Token string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("lookup %q: network error: %v", e.Token, e.Err)
}

// Unwrap exposes both ErrNetwork and the underlying transport error, so
// errors.Is(err, context.DeadlineExceeded) keeps working.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// Timeout reports whether the failure was caused by a deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// AuthError means the lookup service rejected the configured credential.
// It is never retried automatically.
type AuthError struct {
	Token      string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("lookup %q: authorization failed (status %d)", e.Token, e.StatusCode)
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// ServiceError is any other unexpected status or payload from the lookup service.
type ServiceError struct {
	Token      string
	StatusCode int
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lookup %q: service error (status %d): %v", e.Token, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("lookup %q: service error (status %d)", e.Token, e.StatusCode)
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrService}
	}
	return []error{ErrService, e.Err}
}

// InvalidSelectionError is returned when a selection does not belong to the
// current token's result set (or the token is not part of the sentence).
type InvalidSelectionError struct {
	Token  string
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("invalid selection: %s", e.Reason)
	}
	return fmt.Sprintf("invalid selection for token %q: %s", e.Token, e.Reason)
}

func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }

// IsRetryable reports whether err is a transient lookup failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// UserMessage renders err as a short message suitable for an end user.
// Every lookup failure produces a distinct, recoverable message so that a
// failure is never mistaken for "no explanations".
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		netErr  *NetworkError
		authErr *AuthError
		svcErr  *ServiceError
		selErr  *InvalidSelectionError
		valErr  *ValidationError
	)

	switch {
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "The explanation service did not answer in time. Please try again."
		}
		return "Could not reach the explanation service. Check the connection and try again."
	case errors.As(err, &authErr):
		return "The explanation service rejected the configured API key. Update the credential and try again."
	case errors.As(err, &svcErr):
		return fmt.Sprintf("The explanation service returned an unexpected response (status %d). Please try again later.", svcErr.StatusCode)
	case errors.Is(err, ErrSuperseded):
		return "A newer token was selected before this lookup finished."
	case errors.As(err, &selErr):
		return "That selection is not available for the current token."
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.Is(err, ErrNotFound):
		return "Not found."
	default:
		return "Something went wrong while looking up explanations. Please try again."
	}
}
