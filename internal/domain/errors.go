package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned before any mutation when arguments are unusable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means a referenced user, movie or entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness rule rejected a create.
	ErrConflict = errors.New("conflict")
	// ErrExternalService marks failures of the metadata or suggestion providers.
	ErrExternalService = errors.New("external service failure")
	// ErrInvalidRating is the InvalidInput case for ratings outside [0,5].
	ErrInvalidRating = fmt.Errorf("%w: rating must be between 0 and 5", ErrInvalidInput)
)

// InvalidInput builds an ErrInvalidInput with a reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ExternalError carries a distinguishable reason for a provider failure.
type ExternalError struct {
	Service string
	Reason  string
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Reason)
}

func (e *ExternalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalService}
	}
	return []error{ErrExternalService, e.Err}
}

// External wraps err as an ExternalError for the named service.
func External(service, reason string, err error) error {
	return &ExternalError{Service: service, Reason: reason, Err: err}
}

// ExternalReason extracts the provider failure reason, if err carries one.
func ExternalReason(err error) (string, bool) {
	var ext *ExternalError
	if errors.As(err, &ext) {
		return ext.Reason, true
	}
	return "", false
}
