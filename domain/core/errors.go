package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound              = errors.New("resource not found")
	ErrInvestigationNotFound = fmt.Errorf("%w: investigation", ErrNotFound)
	ErrHypothesisNotFound    = fmt.Errorf("%w: hypothesis", ErrNotFound)
	ErrStepNotFound          = fmt.Errorf("%w: step", ErrNotFound)
	ErrServiceNotFound       = fmt.Errorf("%w: service", ErrNotFound)

	// Fatal preconditions: the investigation cannot proceed at all
	ErrNoIntent         = errors.New("no usable intent extracted from question")
	ErrNoHypotheses     = errors.New("hypothesis generation returned no candidates")
	ErrNoMatchedService = errors.New("no service in the catalog matches the question")

	// Transient step errors: retried, never fatal to the investigation
	ErrQueryTimeout   = errors.New("query execution timed out")
	ErrQueryTransport = errors.New("query transport failure")

	// Validation errors
	ErrInvalidPlan       = errors.New("query plan failed validation")
	ErrEmptyPlan         = fmt.Errorf("%w: empty query text", ErrInvalidPlan)
	ErrPlanTooLong       = fmt.Errorf("%w: query exceeds maximum length", ErrInvalidPlan)
	ErrDangerousPlan     = fmt.Errorf("%w: dangerous command", ErrInvalidPlan)
	ErrWindowTooWide     = fmt.Errorf("%w: time range exceeds policy maximum", ErrInvalidPlan)
	ErrInvalidTimeWindow = errors.New("invalid time window expression")

	// State machine errors
	ErrInvalidTransition = errors.New("invalid investigation state transition")
	ErrAlreadyTerminal   = errors.New("investigation already reached a terminal state")
)

// NewNotFoundError builds a not-found error with resource context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError reports whether err is any not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatalPrecondition reports whether err should fail the whole investigation
func IsFatalPrecondition(err error) bool {
	return errors.Is(err, ErrNoIntent) ||
		errors.Is(err, ErrNoHypotheses) ||
		errors.Is(err, ErrNoMatchedService)
}

// IsTransientStepError reports whether err is retryable at the step level
func IsTransientStepError(err error) bool {
	return errors.Is(err, ErrQueryTimeout) ||
		errors.Is(err, ErrQueryTransport)
}

// IsPlanValidationError reports whether err came from query plan validation
func IsPlanValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPlan)
}
