// Package dberrors defines the error taxonomy shared across the processor,
// graph, and HTTP layers.
package dberrors

import "fmt"

// Kind classifies an error into the response/continuation policy it implies.
type Kind int

const (
	// ValidationFailure: payload shape/types wrong. Abort request, 405.
	ValidationFailure Kind = iota
	// NotJSON: request body undecodable. Abort, 405.
	NotJSON
	// MissingField: ingest row lacks a required key. Count row as error, continue batch.
	MissingField
	// DuplicateRecord: unique-hash collision. Count row as skipped, continue.
	DuplicateRecord
	// EdgeNotFound: affirm/deny referencing a non-existent pair. Fatal for that row, logged.
	EdgeNotFound
	// DatabaseError: row's transaction rolled back; row skipped; batch continues.
	DatabaseError
	// InternalError: unexpected. Caught by the Auditor's exit, logged; batch left non-COMPUTED.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case ValidationFailure:
		return "ValidationFailure"
	case NotJSON:
		return "NotJSON"
	case MissingField:
		return "MissingField"
	case DuplicateRecord:
		return "DuplicateRecord"
	case EdgeNotFound:
		return "EdgeNotFound"
	case DatabaseError:
		return "DatabaseError"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying the taxonomy Kind it belongs to.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if err == nil {
		return false
	}
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
