package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LookupOutcome classifies the result of one fetch against the lookup service.
type LookupOutcome string

const (
	LookupOutcomeOK           LookupOutcome = "ok"
	LookupOutcomeNetworkError LookupOutcome = "network_error"
	LookupOutcomeAuthError    LookupOutcome = "auth_error"
	LookupOutcomeServiceError LookupOutcome = "service_error"
	LookupOutcomeCanceled     LookupOutcome = "canceled"
	LookupOutcomeOther        LookupOutcome = "other"
)

func (o LookupOutcome) String() string { return string(o) }

func (o LookupOutcome) IsValid() bool {
	switch o {
	case LookupOutcomeOK, LookupOutcomeNetworkError, LookupOutcomeAuthError,
		LookupOutcomeServiceError, LookupOutcomeCanceled, LookupOutcomeOther:
		return true
	}
	return false
}

// OutcomeOf maps a fetch error to its outcome kind.
func OutcomeOf(err error) LookupOutcome {
	switch {
	case err == nil:
		return LookupOutcomeOK
	case errors.Is(err, ErrAuth):
		return LookupOutcomeAuthError
	case errors.Is(err, ErrService):
		return LookupOutcomeServiceError
	case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		return LookupOutcomeCanceled
	case errors.Is(err, ErrNetwork):
		return LookupOutcomeNetworkError
	default:
		return LookupOutcomeOther
	}
}

// StatusCodeOf extracts the HTTP status carried by auth and service errors.
func StatusCodeOf(err error) *int {
	var (
		authErr *AuthError
		svcErr  *ServiceError
	)
	switch {
	case errors.As(err, &authErr):
		return &authErr.StatusCode
	case errors.As(err, &svcErr):
		return &svcErr.StatusCode
	}
	return nil
}

// LookupRecord is one entry of the lookup log.
type LookupRecord struct {
	ID          uuid.UUID
	Token       string
	Outcome     LookupOutcome
	ResultCount int
	StatusCode  *int
	Attempts    int
	Duration    time.Duration
	CreatedAt   time.Time
}
