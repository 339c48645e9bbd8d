package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a caller mistake: a bad id, a list of the wrong
// view type, a staging list without a start date. The message is safe to show
// to the caller and names the offending template or list.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ErrAlreadyReleased is returned by a store when the guarded promote finds
// the task released by a concurrent run. Callers count it as a skip, not a
// failure.
var ErrAlreadyReleased = errors.New("task already released")
