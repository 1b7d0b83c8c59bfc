package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation for callers and the HTTP layer.
type Kind int

const (
	// KindUnknown covers internal failures with no taxonomy mapping.
	KindUnknown Kind = iota
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindForbidden means the caller is authenticated but not authorized.
	KindForbidden
	// KindConflict covers duplicate membership and invalid states such as
	// removing the last admin, including lost concurrent-write races.
	KindConflict
	// KindInvalidTransition marks an illegal task status change.
	KindInvalidTransition
	// KindBadRequest covers malformed scope, e.g. assigning a non-member.
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

// Error carries a taxonomy kind alongside a caller-facing message.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the taxonomy classification.
func (e *Error) Kind() Kind { return e.kind }

// New builds a taxonomy error with a fixed message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf builds a taxonomy error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy kind to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf extracts the taxonomy kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
