package provider

import "net/url"

// Message is the typed view over a string -> []string parameter bag that
// every endpoint parses an incoming request into, per spec.md §3
// ("OpenIdConnectMessage"). RequestMessageKey/ResponseMessageKey are
// defined as context keys, but the dispatcher does not store messages in
// the request context; each endpoint handler passes its Message to the
// hooks through its notification context.
type Message struct {
	Parameters url.Values
}

// NewMessage builds an empty Message.
func NewMessage() *Message {
	return &Message{Parameters: url.Values{}}
}

// NewMessageFromValues wraps an existing parameter bag (e.g. from
// r.URL.Query() or r.ParseForm()'s r.Form).
func NewMessageFromValues(values url.Values) *Message {
	if values == nil {
		values = url.Values{}
	}
	return &Message{Parameters: values}
}

// Get returns the first value for key, or "".
func (m *Message) Get(key string) string {
	if m == nil || m.Parameters == nil {
		return ""
	}
	return m.Parameters.Get(key)
}

// Set stores a single value for key, replacing any existing values.
func (m *Message) Set(key, value string) {
	if m.Parameters == nil {
		m.Parameters = url.Values{}
	}
	m.Parameters.Set(key, value)
}

// Remove deletes key entirely from the bag.
func (m *Message) Remove(key string) {
	if m.Parameters != nil {
		m.Parameters.Del(key)
	}
}

// Named accessors for the parameters spec.md §3 calls out explicitly.
func (m *Message) ClientID() string         { return m.Get("client_id") }
func (m *Message) RedirectURI() string      { return m.Get("redirect_uri") }
func (m *Message) ResponseType() string     { return m.Get("response_type") }
func (m *Message) ResponseMode() string     { return m.Get("response_mode") }
func (m *Message) Scope() string            { return m.Get("scope") }
func (m *Message) State() string            { return m.Get("state") }
func (m *Message) Nonce() string            { return m.Get("nonce") }
func (m *Message) Code() string             { return m.Get("code") }
func (m *Message) GrantType() string        { return m.Get("grant_type") }
func (m *Message) RefreshToken() string     { return m.Get("refresh_token") }
func (m *Message) AccessToken() string      { return m.Get("access_token") }
func (m *Message) IDToken() string          { return m.Get("id_token") }
func (m *Message) Resource() string         { return m.Get("resource") }
func (m *Message) Error() string            { return m.Get("error") }
func (m *Message) ErrorDescription() string { return m.Get("error_description") }
func (m *Message) ErrorURI() string         { return m.Get("error_uri") }
func (m *Message) ExpiresIn() string        { return m.Get("expires_in") }
func (m *Message) TokenType() string        { return m.Get("token_type") }

// SetError populates the error triple parameters on the message, used when
// rendering an error response via one of the response-mode writers.
func (m *Message) SetError(err *ProtocolError) {
	if err == nil {
		return
	}
	m.Set("error", err.Code)
	if err.Description != "" {
		m.Set("error_description", err.Description)
	}
	if err.URI != "" {
		m.Set("error_uri", err.URI)
	}
}

// context keys under which the parsed request/response messages are
// stashed for the duration of a single HTTP request, per spec.md §3's
// Message lifecycle ("stored in request-scoped context under the keys
// oidc_request / oidc_response").
type contextKey string

const (
	RequestMessageKey  contextKey = "oidc_request"
	ResponseMessageKey contextKey = "oidc_response"
)
