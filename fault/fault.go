// Package fault defines the error taxonomy shared across the forecast engine.
// Every failure crossing a package boundary carries an explicit Kind so the
// caller can map it to a transport response without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure classes of the engine.
type Kind string

const (
	// KindNotFound indicates a backing feature, config, or artifact file is absent.
	KindNotFound Kind = "not_found"
	// KindSchemaMismatch indicates required columns or artifact shapes are missing
	// or inconsistent with the loaded configuration.
	KindSchemaMismatch Kind = "schema_mismatch"
	// KindVehicleNotFound indicates no usable rows exist for the requested vehicle.
	KindVehicleNotFound Kind = "vehicle_not_found"
	// KindInsufficientHistory indicates fewer known months than n_known requires.
	KindInsufficientHistory Kind = "insufficient_history"
	// KindUnknownModel indicates an unrecognized model key.
	KindUnknownModel Kind = "unknown_model"
)

// Error is a tagged error carrying a taxonomy Kind, a formatted message, and
// an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s, %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a tagged error wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is or wraps an Error, otherwise the
// empty Kind.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Kind("")
}

// IsKind reports whether err is or wraps an Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
