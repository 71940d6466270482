package oidcmw

import (
	"net/http"
	"strings"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
)

// serveUserinfo implements the userinfo endpoint (spec.md §4.6). Failures
// return 400 invalid_grant rather than 401, to avoid colliding with an
// upstream authentication middleware's own 401 handling.
func (m *Middleware) serveUserinfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("method not allowed"))
		return
	}

	accessToken := bearerToken(r)
	if accessToken == "" {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidGrant("missing access token"))
		return
	}

	ctx := &provider.UserinfoContext{}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	ticket, err := m.tokens.ReceiveAccessToken(&provider.TokenContext{}, accessToken)
	if err != nil || ticket == nil {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidGrant("access token is invalid or expired"))
		return
	}
	if security.IsTokenExpired(m.opts.Clock.Now(), ticket.Properties.ExpiresUTC) {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidGrant("access token has expired"))
		return
	}
	ctx.Ticket = ticket

	m.opts.Provider.ValidateUserinfoRequest(ctx)
	if ctx.IsRejected() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrInvalidGrant("userinfo request rejected")))
		return
	}

	m.opts.Provider.HandleUserinfoRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	claims := m.buildUserinfoClaims(ticket)
	for k, v := range ctx.Claims {
		claims[k] = v
	}

	if _, ok := claims["sub"]; !ok {
		writeProtocolError(w, m.opts.Issuer, provider.ErrServerError("ticket is missing a subject claim"))
		return
	}

	writeJSON(w, m.opts.Issuer, claims)
}

// buildUserinfoClaims assembles the standard claims scope-gated per
// spec.md §4.6: profile/email/phone each unlock their own claim set; sub is
// always present.
func (m *Middleware) buildUserinfoClaims(ticket *provider.AuthenticationTicket) map[string]any {
	claims := map[string]any{}
	if ticket.Identity == nil {
		return claims
	}
	if c, ok := ticket.Identity.FindFirst(provider.ClaimTypeSubject); ok {
		claims["sub"] = c.Value
	} else if c, ok := ticket.Identity.FindFirst(provider.ClaimTypeNameIdentifier); ok {
		claims["sub"] = c.Value
	}

	if aud := audienceClaim(ticket); aud != nil {
		claims["aud"] = aud
	}

	scope, _ := ticket.Properties.Get("scope")
	want := map[string]bool{}
	for _, s := range strings.Fields(scope) {
		want[s] = true
	}

	profileClaims := map[string]bool{"name": true, "family_name": true, "given_name": true, "birthdate": true}
	emailClaims := map[string]bool{"email": true, "email_verified": true}
	phoneClaims := map[string]bool{"phone_number": true, "phone_number_verified": true}

	for _, c := range ticket.Identity.Claims {
		switch {
		case profileClaims[c.Type] && want["profile"]:
			claims[c.Type] = c.Value
		case emailClaims[c.Type] && want["email"]:
			claims[c.Type] = c.Value
		case phoneClaims[c.Type] && want["phone"]:
			claims[c.Type] = c.Value
		}
	}
	return claims
}

// audienceClaim derives userinfo's optional "aud" per spec.md §4.6: the
// ticket's recorded presenters (provider.PropertyAudiences), scalar if one,
// array if many, never the client itself as the sole audience — a presenter
// is who may present the token, not who it was scoped to.
func audienceClaim(ticket *provider.AuthenticationTicket) any {
	raw, ok := ticket.Properties.Get(provider.PropertyAudiences)
	if !ok || raw == "" {
		return nil
	}
	clientID, _ := ticket.Properties.Get(provider.PropertyClientID)
	var aud []string
	for _, a := range strings.Fields(raw) {
		aud = append(aud, a)
	}
	if len(aud) == 1 && aud[0] == clientID {
		return nil
	}
	if len(aud) == 1 {
		return aud[0]
	}
	return aud
}

// bearerToken resolves the access token from the access_token form/query
// parameter or an Authorization: Bearer header, per spec.md §4.6.
func bearerToken(r *http.Request) string {
	if v := r.URL.Query().Get("access_token"); v != "" {
		return v
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			if v := r.PostForm.Get("access_token"); v != "" {
				return v
			}
		}
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
