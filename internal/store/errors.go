package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// Error reports a failed store operation.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap builds an *Error for op. A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Message: err.Error(), Err: err}
}

// NotFound builds the *Error returned when op matched no row.
func NotFound(op, what string) error {
	return &Error{Op: op, Message: what + " not found", Err: ErrNotFound}
}

// InvalidRole builds the *Error returned when a message carries an unknown role.
func InvalidRole(op string, role string) error {
	return &Error{Op: op, Message: fmt.Sprintf("unknown message role %q", role)}
}

// Unavailable builds the *Error returned when the backend could not be reached.
func Unavailable(op string, cause error) error {
	return &Error{Op: op, Message: cause.Error(), Err: errors.Join(ErrRemoteUnavailable, cause)}
}
