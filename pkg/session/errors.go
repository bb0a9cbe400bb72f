package session

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-ticketform/pkg/validate"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// UnknownFieldError reports an Update against a field id the schema does
// not declare. This is an integration error in the caller, not user input.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("session: unknown field %q", e.Field)
}

// ValidationError is returned by Submit while any visible field has
// errors. It carries the full per-field mapping so callers can surface
// every problem at once.
type ValidationError struct {
	Fields validate.Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: %d fields failed validation", len(e.Fields))
}
