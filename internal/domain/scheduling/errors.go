package scheduling

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("scheduling conflict")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state transition")
	ErrStorage    = errors.New("storage error")
)

// Error carries one of the kinds above plus a caller-facing message. Field is
// set for validation failures tied to a single input field.
type Error struct {
	Kind    error
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func validationError(field, format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...interface{}) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func stateError(format string, args ...interface{}) error {
	return &Error{Kind: ErrState, Message: fmt.Sprintf(format, args...)}
}

func storageError(op string, err error) error {
	return &Error{Kind: ErrStorage, Message: op, Err: err}
}

const (
	msgProfessionalBusy  = "the professional already has an appointment scheduled in that time range"
	msgEndBeforeStart    = "end_datetime must be after start_datetime"
	msgAlreadyCancelled  = "appointment is already cancelled"
	msgCancelCompleted   = "cannot cancel a completed appointment"
	msgCompleteCancelled = "cannot complete a cancelled appointment"
	msgAlreadyCompleted  = "appointment is already completed"
	msgWindowsOverlap    = "availability windows overlap"
)
