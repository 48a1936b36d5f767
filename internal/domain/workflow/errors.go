package workflow

import "errors"

var (
	// ErrNotFound is returned when an application, payment or permit does not exist
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor's role may not perform the action
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when the action is not valid from the current status
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrValidationFailed is returned when required data is missing before a transition
	ErrValidationFailed = errors.New("validation failed")

	// ErrInternal wraps storage and other unexpected failures
	ErrInternal = errors.New("internal error")
)

// IsKnown reports whether err belongs to the error taxonomy
func IsKnown(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInternal)
}
