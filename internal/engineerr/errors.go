// Package engineerr defines the engine's error-kind taxonomy (§7). Every
// error that crosses a component boundary is classified as one of these
// kinds, wrapped with %w so the original cause is never lost.
package engineerr

import "errors"

// Kind is a coarse error classification used to decide whether a unit
// failure is recorded and the task continues, or the task aborts.
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	AuthRequired      Kind = "auth_required"
	ProviderError     Kind = "provider_error"
	Timeout           Kind = "timeout"
	Cancelled         Kind = "cancelled"
	EncodingRepaired  Kind = "encoding_repaired"
	PersistenceError  Kind = "persistence_error"
	TableNotFound     Kind = "table_not_found"
)

// Error pairs a Kind with an underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a Kind.
func New(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Newf wraps a plain message with a Kind.
func Newf(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// KindOf extracts the Kind of err, if it (or something it wraps) is an
// *Error. Returns "" if no Kind is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
