package errors

import (
	"errors"
	"fmt"
)

// OAuth2Error is the standardized OAuth 2.0 error body returned by the
// HTTP adapter.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes.
const (
	InvalidRequest         = "invalid_request"
	UnauthorizedClient     = "unauthorized_client"
	AccessDenied           = "access_denied"
	UnsupportedGrantType   = "unsupported_grant_type"
	InvalidScope           = "invalid_scope"
	InvalidClient          = "invalid_client"
	InvalidGrant           = "invalid_grant"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// Wire translates an engine error into its OAuth2 wire form. Illegal
// states and unrecognized errors surface as server_error so that store
// bugs are never presented as client mistakes.
func Wire(err error) *OAuth2Error {
	var e *Error
	if !errors.As(err, &e) {
		return NewServerError("internal error")
	}
	switch e.Kind {
	case KindAuthentication:
		return NewInvalidClient(e.Message)
	case KindInvalidArgument:
		return NewInvalidGrant(e.Message)
	case KindNotFound:
		return NewInvalidRequest(e.Message)
	default:
		return NewServerError("internal error")
	}
}
