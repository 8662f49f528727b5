package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how the application recovers from them.
type ErrorKind string

const (
	// KindValidation rejects user input before an asset exists.
	KindValidation ErrorKind = "validation"
	// KindLoad covers metadata and decoding failures.
	KindLoad ErrorKind = "load"
	// KindEncode covers negotiation, capture and recorder failures.
	KindEncode ErrorKind = "encode"
	// KindResource covers rendering surface failures.
	KindResource ErrorKind = "resource"
)

// Error is a kind-aware error with the operation that produced it.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewError builds an Error.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Error formats failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
