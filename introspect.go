package oidcmw

import (
	"net/http"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
)

// serveIntrospection implements RFC 7662 token introspection. It never
// reveals *why* a token is inactive (expired vs malformed vs never-issued
// all collapse to {"active": false}), matching the RFC's intent that
// introspection not become an oracle. The token's client is not compared
// with the calling client.
func (m *Middleware) serveIntrospection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("introspection endpoint only accepts POST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("malformed form body"))
		return
	}

	msg := provider.NewMessageFromValues(r.Form)
	ctx := &provider.IntrospectionContext{RequestMessage: msg}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	m.opts.Provider.ValidateIntrospectionRequest(ctx)
	if !ctx.IsValidated() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrInvalidClient("introspection client authentication failed")))
		return
	}

	token := msg.Get("token")
	ticket := m.resolveIntrospectedTicket(token)
	active := ticket != nil && !security.IsTokenExpired(m.opts.Clock.Now(), ticket.Properties.ExpiresUTC)
	ctx.Ticket = ticket
	ctx.Active = active

	m.opts.Provider.HandleIntrospectionRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	if !ctx.Active {
		ctx.Response = map[string]any{"active": false}
	} else {
		resp := map[string]any{"active": true}
		if ticket.Identity != nil {
			if c, ok := ticket.Identity.FindFirst(provider.ClaimTypeSubject); ok {
				resp["sub"] = c.Value
			}
		}
		if !ticket.Properties.ExpiresUTC.IsZero() {
			resp["exp"] = ticket.Properties.ExpiresUTC.Unix()
		}
		if !ticket.Properties.IssuedUTC.IsZero() {
			resp["iat"] = ticket.Properties.IssuedUTC.Unix()
		}
		resp["iss"] = m.opts.Issuer
		for k, v := range ctx.Response {
			resp[k] = v
		}
		ctx.Response = resp
	}

	m.opts.Provider.ApplyIntrospectionResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	writeJSON(w, m.opts.Issuer, ctx.Response)
}

// resolveIntrospectedTicket tries the token as an access token, then as a
// refresh token, returning the first that deserializes. Neither attempt's
// failure is distinguishable to the caller.
func (m *Middleware) resolveIntrospectedTicket(token string) *provider.AuthenticationTicket {
	if token == "" {
		return nil
	}
	if ticket, err := m.tokens.ReceiveAccessToken(&provider.TokenContext{}, token); err == nil && ticket != nil {
		return ticket
	}
	if ticket, err := m.tokens.ReceiveRefreshToken(&provider.TokenContext{}, token); err == nil && ticket != nil {
		return ticket
	}
	return nil
}
