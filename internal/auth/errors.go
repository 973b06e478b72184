package auth

import "errors"

// Kind classifies a failure of an auth operation.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is the outcome of a failed operation. Message is safe to show to the
// client, Reason and Err are for the server log only.
type Error struct {
	Kind    Kind
	Message string
	Reason  string

	// Fields holds per-field messages of a validation failure.
	Fields map[string][]string

	// Suspicious marks failures that look like an attack, e.g. a replayed
	// refresh token.
	Suspicious bool

	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors not produced by this package are
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns err as *Error, wrapping foreign errors as internal ones.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(msgInternal, err)
}

func validationError(msg string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func conflictError(msg, reason string) *Error {
	return &Error{Kind: KindConflict, Message: msg, Reason: reason}
}

func unauthorizedError(msg, reason string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Reason: reason}
}

func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}
