package oidcmw

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ironvault/oidcmw/provider"
)

var validResponseTypes = map[string]bool{
	"code":                true,
	"id_token":            true,
	"token":               true,
	"code id_token":       true,
	"code token":          true,
	"id_token token":      true,
	"code id_token token": true,
}

var validResponseModes = map[string]bool{
	"query":     true,
	"fragment":  true,
	"form_post": true,
}

// serveAuthorization implements the authorization endpoint (spec.md §4.4).
func (m *Middleware) serveAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		m.renderAuthorizationErrorPage(w, provider.ErrInvalidRequest("method not allowed"))
		return
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			m.renderAuthorizationErrorPage(w, provider.ErrInvalidRequest("malformed form body"))
			return
		}
	}

	var values = r.URL.Query()
	if r.Method == http.MethodPost {
		values = r.Form
	}
	msg := provider.NewMessageFromValues(values)

	ctx := &provider.AuthorizationContext{RequestMessage: msg}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	redirectURI := msg.RedirectURI()
	redirectTrusted := false
	if redirectURI != "" {
		shapeErr := m.opts.ValidateRedirectURI(redirectURI)
		if shapeErr == nil {
			m.opts.Provider.ValidateClientRedirectURI(ctx)
		}
		if shapeErr != nil || !ctx.IsValidated() {
			msg.Remove("redirect_uri")
			redirectURI = ""
			desc := "redirect_uri rejected by provider"
			if shapeErr != nil {
				desc = shapeErr.Error()
			}
			m.renderAuthorizationErrorPage(w, provider.ErrInvalidRedirectURI(desc))
			return
		}
		redirectTrusted = true
	}

	responseType := msg.ResponseType()
	responseMode := msg.ResponseMode()
	if responseMode == "" {
		responseMode = "query"
	}
	state := msg.State()

	if !validResponseTypes[responseType] {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			provider.ErrUnsupportedResponseType("response_type is missing or unrecognized"))
		return
	}
	if !validResponseModes[responseMode] {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			provider.ErrInvalidRequest("response_mode must be one of query, fragment, form_post"))
		return
	}
	containsIDToken := responseTypeContains(responseType, "id_token")
	containsCode := responseTypeContains(responseType, "code")
	if containsIDToken && !scopeContains(msg.Scope(), "openid") {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			provider.ErrInvalidScope("scope must include openid for an id_token response"))
		return
	}
	if containsCode && m.opts.TokenEndpoint == "" {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			provider.ErrInvalidRequest("code response type requires a configured token endpoint"))
		return
	}
	if containsIDToken && len(m.opts.SigningCredentials) == 0 {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			provider.ErrServerError("id_token response type requires signing credentials"))
		return
	}

	m.opts.Provider.ValidateAuthorizationRequest(ctx)
	if ctx.IsRejected() {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			defaultErrorFor(ctx, provider.ErrInvalidRequest("authorization request rejected")))
		return
	}

	m.opts.Provider.HandleAuthorizationRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}
	if ctx.IsRequestCompleted() {
		return
	}
	if ctx.IsRejected() {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted,
			defaultErrorFor(ctx, provider.ErrAccessDenied("authorization denied")))
		return
	}

	if ctx.Ticket == nil {
		m.next.ServeHTTP(w, r)
		return
	}
	if metrics := m.metrics(); metrics != nil {
		metrics.RecordAuthorizationStarted(r.Context(), msg.ClientID())
	}

	respMsg, err := m.buildAuthorizationGrant(ctx, msg, redirectURI, containsCode, containsIDToken, responseTypeContains(responseType, "token"))
	if err != nil {
		m.writeAuthorizationError(w, r, redirectURI, responseMode, state, redirectTrusted, provider.ErrServerError(err.Error()))
		return
	}
	ctx.ResponseMessage = respMsg

	m.opts.Provider.ApplyAuthorizationResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	writeAuthorizationResponse(w, r, redirectURI, responseMode, ctx.ResponseMessage)
}

// buildAuthorizationGrant assembles the response-grant teardown described in
// spec.md §4.4: code/access-token/id_token issuance, with client_id and
// redirect_uri stamped into the ticket's properties so the token endpoint
// can later verify the match on redemption (invariant 6).
func (m *Middleware) buildAuthorizationGrant(ctx *provider.AuthorizationContext, req *provider.Message, redirectURI string, wantCode, wantIDToken, wantAccessToken bool) (*provider.Message, error) {
	ticket := ctx.Ticket
	ticket.Properties.Set(provider.PropertyClientID, req.ClientID())
	if redirectURI != "" {
		ticket.Properties.Set(provider.PropertyRedirectURI, redirectURI)
	}
	if res := req.Resource(); res != "" {
		ticket.Properties.Set(provider.PropertyAudiences, res)
	}

	resp := provider.NewMessage()
	if req.State() != "" {
		resp.Set("state", req.State())
	}

	var code, accessToken string
	var err error

	if wantCode {
		code, err = m.tokens.CreateAuthorizationCode(ticket)
		if err != nil {
			return nil, err
		}
		resp.Set("code", code)
	}
	if wantAccessToken {
		accessToken, err = m.tokens.CreateAccessToken(&provider.TokenContext{}, ticket, req.ClientID())
		if err != nil {
			return nil, err
		}
		resp.Set("access_token", accessToken)
		resp.Set("token_type", "Bearer")
		resp.Set("expires_in", strconv.FormatInt(int64(m.opts.AccessTokenLifetime.Seconds()), 10))
	}
	if wantIDToken {
		idToken, err := m.tokens.CreateIdentityToken(&provider.TokenContext{}, ticket, req.ClientID(), req.Nonce(), accessToken, code)
		if err != nil {
			return nil, err
		}
		resp.Set("id_token", idToken)
	}
	return resp, nil
}

func (m *Middleware) renderAuthorizationErrorPage(w http.ResponseWriter, err *provider.ProtocolError) {
	m.writeAuthorizationError(w, nil, "", "", "", false, err)
}

func responseTypeContains(responseType, token string) bool {
	for _, part := range strings.Fields(responseType) {
		if part == token {
			return true
		}
	}
	return false
}

func scopeContains(scope, token string) bool {
	for _, part := range strings.Fields(scope) {
		if part == token {
			return true
		}
	}
	return false
}
