// Package apperr holds the error sentinels and the classified error type
// shared by the client packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("session invalid")
	ErrServer       = errors.New("operation failed")
	ErrNetwork      = errors.New("connectivity error")
	ErrFileTooLarge = errors.New("file too large")
	ErrNoSession    = errors.New("no session")
)

// Kind classifies a failure by what the caller should do about it.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindServer     Kind = "server"
	KindNetwork    Kind = "network"
)

// Fallback messages used when the backend does not provide one.
const (
	MsgGeneric = "Request failed. Please try again."
	MsgNetwork = "Network error. Please check your internet connection."
	MsgAuth    = "Authentication error. Please log in again."
)

// Error is a classified failure. Status is zero when no response was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the kind sentinel and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func kindSentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuth:
		return ErrUnauthorized
	case KindNetwork:
		return ErrNetwork
	default:
		return ErrServer
	}
}

// Validation wraps err (usually ozzo validation.Errors) as a validation failure.
func Validation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the classification of err. Unclassified errors are server failures.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrFileTooLarge):
		return KindValidation
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNoSession):
		return KindAuth
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	}
	return KindServer
}

// Message returns the user-facing text for err, or fallback when none is attached.
func Message(err error, fallback string) string {
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	return fallback
}
