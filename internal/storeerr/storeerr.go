// Package storeerr defines the tagged error kinds surfaced by the datastore
// core. Every failure carries a machine-readable Kind so callers can decide
// on retry or reporting without string matching.
package storeerr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// UnsupportedPropertyKind indicates a model property that has no schema mapping.
	UnsupportedPropertyKind Kind = "unsupported_property_kind"
	// Connection indicates the session to the remote endpoint could not be
	// established or broke during a call.
	Connection Kind = "connection_error"
	// ToolInvocation indicates the remote endpoint reported an error for a call.
	ToolInvocation Kind = "tool_invocation_error"
	// MalformedResponse indicates a success response without the expected content.
	MalformedResponse Kind = "malformed_response"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrUnsupportedPropertyKind = &Error{Kind: UnsupportedPropertyKind}
	ErrConnection              = &Error{Kind: Connection}
	ErrToolInvocation          = &Error{Kind: ToolInvocation}
	ErrMalformedResponse       = &Error{Kind: MalformedResponse}
)

// Error wraps a failure with its kind, a human-friendly message and, for
// remote failures, the payload the endpoint returned.
type Error struct {
	Kind    Kind
	Message string
	Payload any
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. A target with an
// empty Kind never matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error             { return &Error{Kind: kind, Message: msg} }
func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Message: msg, Err: err} }

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithPayload attaches the remote error payload.
func (e *Error) WithPayload(payload any) *Error {
	e.Payload = payload
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
