// Package provider defines the frozen Options/configuration, the protocol
// data model (messages, tickets, notification contexts), and the
// application-supplied ProviderHooks contract that the oidcmw dispatcher
// invokes at every decision point.
package provider

import (
	"fmt"
	"net/http"
)

// OAuth/OIDC error codes (RFC 6749 §5.2, OIDC Core §3.1.2.6).
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeServerError             = "server_error"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInvalidRedirectURI      = "invalid_redirect_uri"
	ErrorCodeLoginRequired           = "login_required"
)

// ProtocolError is the (error, error_description, error_uri) triple that
// every notification context carries and every endpoint surfaces, per
// spec.md §7.
type ProtocolError struct {
	Code        string
	Description string
	URI         string
	Status      int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewProtocolError builds a ProtocolError with an explicit HTTP status.
func NewProtocolError(code, description string, status int) *ProtocolError {
	return &ProtocolError{Code: code, Description: description, Status: status}
}

// Constructors for the errors endpoints raise by default, mirroring the
// grant-specific defaults in spec.md §4.5's table and §7.
var (
	ErrInvalidRequest = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}
	ErrInvalidGrant = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}
	ErrInvalidClient = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}
	ErrInvalidScope = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}
	ErrInvalidToken = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeInvalidToken, desc, http.StatusBadRequest)
	}
	ErrUnauthorizedClient = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
	}
	ErrUnsupportedGrantType = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}
	ErrUnsupportedResponseType = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
	}
	ErrServerError = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
	ErrAccessDenied = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}
	ErrInvalidRedirectURI = func(desc string) *ProtocolError {
		return NewProtocolError(ErrorCodeInvalidRedirectURI, desc, http.StatusBadRequest)
	}
)
