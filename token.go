package oidcmw

import (
	"net/http"
	"strconv"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
)

// serveToken implements the token endpoint (spec.md §4.5): grant-type
// dispatch, authorization-code redemption invariants, and access/identity/
// refresh token issuance via tokenservice.Service.
func (m *Middleware) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("token endpoint only accepts POST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("malformed form body"))
		return
	}

	msg := provider.NewMessageFromValues(r.Form)
	ctx := &provider.TokenContext{RequestMessage: msg, GrantType: msg.GrantType()}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	m.opts.Provider.ValidateClientAuthentication(ctx)
	if !ctx.IsValidated() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrInvalidClient("client authentication failed")))
		return
	}
	ctx.ClientID = msg.ClientID()

	ticket, grantErr := m.resolveGrant(ctx, msg)
	if grantErr != nil {
		writeProtocolError(w, m.opts.Issuer, grantErr)
		return
	}
	ctx.Ticket = ticket
	if res := msg.Resource(); res != "" {
		if _, already := ticket.Properties.Get(provider.PropertyAudiences); !already {
			ticket.Properties.Set(provider.PropertyAudiences, res)
		}
	}

	m.opts.Provider.HandleTokenRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}
	if ctx.IsRejected() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrInvalidGrant("token request rejected")))
		return
	}

	now := m.opts.Clock.Now()
	ticket.Properties.IssuedUTC = now
	ticket.Properties.ExpiresUTC = now.Add(m.opts.AccessTokenLifetime)

	resp, err := m.issueTokens(ctx, ticket)
	if err != nil {
		writeProtocolError(w, m.opts.Issuer, provider.ErrServerError(err.Error()))
		return
	}
	ctx.ResponseMessage = resp

	m.opts.Provider.ApplyTokenResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	body := map[string]any{}
	for k, v := range resp.Parameters {
		if len(v) > 0 {
			body[k] = v[0]
		}
	}
	writeJSON(w, m.opts.Issuer, body)
}

// resolveGrant dispatches on grant_type per spec.md §4.5's table, returning
// the ticket to issue tokens for, or the default ProtocolError for that
// grant on failure.
func (m *Middleware) resolveGrant(ctx *provider.TokenContext, msg *provider.Message) (*provider.AuthenticationTicket, *provider.ProtocolError) {
	switch ctx.GrantType {
	case "authorization_code":
		return m.resolveAuthorizationCodeGrant(ctx, msg)
	case "client_credentials":
		m.opts.Provider.GrantClientCredentials(ctx)
		if ctx.Ticket == nil || !ctx.IsValidated() {
			return nil, defaultErrorFor(ctx, provider.ErrUnauthorizedClient("client_credentials grant rejected"))
		}
		return ctx.Ticket, nil
	case "password":
		m.opts.Provider.GrantResourceOwnerCredentials(ctx)
		if ctx.Ticket == nil || !ctx.IsValidated() {
			return nil, defaultErrorFor(ctx, provider.ErrInvalidGrant("password grant rejected"))
		}
		return ctx.Ticket, nil
	case "refresh_token":
		return m.resolveRefreshTokenGrant(ctx, msg)
	case "":
		return nil, provider.ErrUnsupportedGrantType("grant_type is required")
	default:
		m.opts.Provider.GrantCustomExtension(ctx)
		if ctx.Ticket == nil || !ctx.IsValidated() {
			return nil, defaultErrorFor(ctx, provider.ErrUnsupportedGrantType("grant_type is not supported"))
		}
		return ctx.Ticket, nil
	}
}

// resolveAuthorizationCodeGrant implements spec.md §4.5 invariant 6: the
// code must resolve, not be expired, and its stored client_id/redirect_uri
// must match the token request. The code is removed from the cache on
// lookup regardless of whether the later checks pass (one-shot).
func (m *Middleware) resolveAuthorizationCodeGrant(ctx *provider.TokenContext, msg *provider.Message) (*provider.AuthenticationTicket, *provider.ProtocolError) {
	code := msg.Code()
	if code == "" {
		return nil, provider.ErrInvalidRequest("code is required")
	}
	ticket, ok, err := m.tokens.ConsumeAuthorizationCode(code)
	if err != nil || !ok || ticket == nil {
		if metrics := m.metrics(); metrics != nil {
			metrics.RecordCodeReuseDetected(ctx.Request.Context())
		}
		return nil, provider.ErrInvalidGrant("authorization code is invalid or already used")
	}
	if security.IsTokenExpired(m.opts.Clock.Now(), ticket.Properties.ExpiresUTC) {
		return nil, provider.ErrInvalidGrant("authorization code has expired")
	}
	if storedClient, _ := ticket.Properties.Get(provider.PropertyClientID); storedClient != "" && storedClient != ctx.ClientID {
		return nil, provider.ErrInvalidGrant("client_id does not match the authorization request")
	}
	if storedRedirect, hasRedirect := ticket.Properties.Get(provider.PropertyRedirectURI); hasRedirect && storedRedirect != msg.RedirectURI() {
		return nil, provider.ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	ctx.Ticket = ticket
	m.opts.Provider.GrantAuthorizationCode(ctx)
	if ctx.IsRejected() {
		return nil, defaultErrorFor(ctx, provider.ErrInvalidGrant("authorization_code grant rejected"))
	}
	if metrics := m.metrics(); metrics != nil {
		metrics.RecordCodeExchange(ctx.Request.Context(), ctx.ClientID, "")
	}
	return ticket, nil
}

func (m *Middleware) resolveRefreshTokenGrant(ctx *provider.TokenContext, msg *provider.Message) (*provider.AuthenticationTicket, *provider.ProtocolError) {
	refreshToken := msg.RefreshToken()
	if refreshToken == "" {
		return nil, provider.ErrInvalidRequest("refresh_token is required")
	}
	ticket, err := m.tokens.ReceiveRefreshToken(ctx, refreshToken)
	if err != nil || ticket == nil {
		return nil, provider.ErrInvalidGrant("refresh_token is invalid or expired")
	}
	m.opts.Provider.GrantRefreshToken(ctx)
	if ctx.IsRejected() {
		return nil, defaultErrorFor(ctx, provider.ErrInvalidGrant("refresh_token grant rejected"))
	}
	if metrics := m.metrics(); metrics != nil {
		metrics.RecordTokenRefresh(ctx.Request.Context(), ctx.ClientID, m.opts.UseSlidingExpiration)
	}
	return ticket, nil
}

// issueTokens mints the access/identity/refresh tokens for ticket per
// spec.md §4.5's issuance rule: a refresh token is only reissued when the
// grant was not itself refresh-based, or when sliding expiration is on.
func (m *Middleware) issueTokens(ctx *provider.TokenContext, ticket *provider.AuthenticationTicket) (*provider.Message, error) {
	resp := provider.NewMessage()
	resp.Set("token_type", "Bearer")

	accessToken, err := m.tokens.CreateAccessToken(ctx, ticket, ctx.ClientID)
	if err != nil {
		return nil, err
	}
	resp.Set("access_token", accessToken)
	resp.Set("expires_in", strconv.FormatInt(int64(m.opts.AccessTokenLifetime.Seconds()), 10))

	if len(m.opts.SigningCredentials) > 0 {
		idToken, err := m.tokens.CreateIdentityToken(ctx, ticket, ctx.ClientID, "", accessToken, "")
		if err == nil {
			resp.Set("id_token", idToken)
		}
	}

	// RFC 6749 §4.4.3: a refresh token SHOULD NOT accompany a
	// client_credentials grant, since there is no user session to refresh.
	issueRefresh := ctx.GrantType != "client_credentials" && (ctx.GrantType != "refresh_token" || m.opts.UseSlidingExpiration)
	if issueRefresh {
		refreshToken, err := m.tokens.CreateRefreshToken(ctx, ticket)
		if err == nil {
			resp.Set("refresh_token", refreshToken)
		}
	}

	return resp, nil
}
