package provider

import "net/http"

// Outcome is the tri-state decision every notification context carries,
// per spec.md §4.8. The four bits are mutually exclusive in effect; a
// handler checks HandledResponse first, then Skipped, then proceeds.
type Outcome struct {
	validated       bool
	rejected        bool
	handledResponse bool
	skipped         bool
	requestCompleted bool
	err             *ProtocolError
}

// Validate marks the logical check as passed.
func (o *Outcome) Validate() { o.validated = true }

// IsValidated reports whether Validate was called.
func (o *Outcome) IsValidated() bool { return o.validated }

// Reject marks the check as failed and records the error triple surfaced
// to the client. If err is nil, the caller is expected to fill in a
// grant/endpoint-specific default later (spec.md §7).
func (o *Outcome) Reject(err *ProtocolError) {
	o.rejected = true
	o.err = err
}

// IsRejected reports whether Reject was called.
func (o *Outcome) IsRejected() bool { return o.rejected }

// Error returns the recorded protocol error, if any.
func (o *Outcome) Error() *ProtocolError { return o.err }

// HandleResponse marks that the hook already wrote the HTTP response.
func (o *Outcome) HandleResponse() { o.handledResponse = true }

// IsHandledResponse reports whether HandleResponse was called.
func (o *Outcome) IsHandledResponse() bool { return o.handledResponse }

// Skip marks that default processing should stop and control should pass
// to the next HTTP middleware.
func (o *Outcome) Skip() { o.skipped = true }

// IsSkipped reports whether Skip was called.
func (o *Outcome) IsSkipped() bool { return o.skipped }

// CompleteRequest marks that the application has fully taken over the
// request (used by HandleAuthorizationRequest, spec.md §4.4).
func (o *Outcome) CompleteRequest() { o.requestCompleted = true }

// IsRequestCompleted reports whether CompleteRequest was called.
func (o *Outcome) IsRequestCompleted() bool { return o.requestCompleted }

// baseContext carries the fields every notification variant shares, per
// spec.md §3 ("NotificationContext (variant per event)").
type baseContext struct {
	Outcome
	HTTPContext http.ResponseWriter
	Request     *http.Request
	Options     *Options
}

// MatchEndpointContext backs the MatchEndpoint notification (spec.md §4.1).
// Endpoint identifies which protocol endpoint the dispatcher matched; the
// provider may call SetEndpoint to override the classification.
type MatchEndpointContext struct {
	baseContext
	Endpoint EndpointKind
}

// SetEndpoint overrides the matched endpoint classification.
func (c *MatchEndpointContext) SetEndpoint(kind EndpointKind) { c.Endpoint = kind }

// EndpointKind enumerates the protocol endpoints the dispatcher recognizes.
type EndpointKind int

const (
	EndpointNone EndpointKind = iota
	EndpointConfiguration
	EndpointCryptography
	EndpointAuthorization
	EndpointToken
	EndpointUserinfo
	EndpointIntrospection
	EndpointRevocation
	EndpointLogout
)

// ConfigurationContext backs ValidateConfigurationRequest,
// HandleConfigurationRequest, and ApplyConfigurationResponse.
type ConfigurationContext struct {
	baseContext
	Metadata map[string]any
}

// CryptographyContext backs ValidateCryptographyRequest,
// HandleCryptographyRequest, and ApplyCryptographyResponse.
type CryptographyContext struct {
	baseContext
	Keys []map[string]any
}

// AuthorizationContext backs the authorization-endpoint notifications
// (spec.md §4.4): ValidateClientRedirectURI, ValidateAuthorizationRequest,
// HandleAuthorizationRequest, ApplyAuthorizationResponse.
type AuthorizationContext struct {
	baseContext
	RequestMessage  *Message
	ResponseMessage *Message
	Ticket          *AuthenticationTicket
	SignInScheme    string
}

// SignIn records a successful interactive authentication, to be picked up
// by the response-grant teardown step of spec.md §4.4.
func (c *AuthorizationContext) SignIn(scheme string, ticket *AuthenticationTicket) {
	c.SignInScheme = scheme
	c.Ticket = ticket
}

// TokenContext backs the token-endpoint notifications (spec.md §4.5):
// ValidateClientAuthentication, the per-grant Grant* hooks,
// HandleTokenRequest, ApplyTokenResponse.
type TokenContext struct {
	baseContext
	RequestMessage  *Message
	ResponseMessage *Message
	GrantType       string
	Ticket          *AuthenticationTicket
	ClientID        string
}

// UserinfoContext backs Validate/HandleUserinfoRequest (spec.md §4.6).
type UserinfoContext struct {
	baseContext
	Ticket *AuthenticationTicket
	Claims map[string]any
}

// IntrospectionContext backs the introspection endpoint (SPEC_FULL.md §4).
type IntrospectionContext struct {
	baseContext
	RequestMessage *Message
	Ticket         *AuthenticationTicket
	Active         bool
	Response       map[string]any
}

// RevocationContext backs the revocation endpoint (SPEC_FULL.md §4).
type RevocationContext struct {
	baseContext
	RequestMessage *Message
	Ticket         *AuthenticationTicket
}

// LogoutContext backs the logout endpoint (SPEC_FULL.md §4).
type LogoutContext struct {
	baseContext
	RequestMessage        *Message
	PostLogoutRedirectURI string
	ClientID              string
}
