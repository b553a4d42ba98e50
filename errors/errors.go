// Package errors defines the error taxonomy of the authorization engine
// and the OAuth 2.0 wire representation the HTTP adapter maps it onto.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for the caller.
type Kind int

const (
	// KindAuthentication covers a missing or incorrect client secret or
	// missing caller identity. Never retried automatically.
	KindAuthentication Kind = iota
	// KindInvalidArgument covers client-correctable protocol violations:
	// unknown codes and tokens, expired codes, redirect-URI mismatches,
	// conflicting consent decisions, over-rotated refresh tokens.
	KindInvalidArgument
	// KindNotFound covers references to entities that do not exist, such
	// as an unknown client at code issuance.
	KindNotFound
	// KindIllegalState marks a violated internal invariant. It indicates
	// a store or logic bug, is fatal to the request, and must be logged
	// loudly rather than swallowed.
	KindIllegalState
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindIllegalState:
		return "illegal_state"
	default:
		return "unknown"
	}
}

// Error is a kinded engine error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is makes two engine errors of the same kind match under errors.Is,
// which keeps sentinel comparisons in tests and adapters simple.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func NewAuthentication(format string, args ...any) *Error {
	return &Error{Kind: KindAuthentication, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewIllegalState(format string, args ...any) *Error {
	return &Error{Kind: KindIllegalState, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
