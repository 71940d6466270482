package oidcmw

import (
	"net/http"
	"net/url"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/tokenservice"
)

// serveLogout implements RP-Initiated Logout. An id_token_hint, if present,
// is signature-checked (its expiry is deliberately ignored — a logout
// request naturally arrives after the session, often after the token
// itself, has expired) purely to recover the client_id that vouches for
// post_logout_redirect_uri.
func (m *Middleware) serveLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("method not allowed"))
		return
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("malformed form body"))
			return
		}
	}

	var values = r.URL.Query()
	if r.Method == http.MethodPost {
		values = r.Form
	}
	msg := provider.NewMessageFromValues(values)

	clientID := ""
	if hint := msg.Get("id_token_hint"); hint != "" {
		if claims, err := (tokenservice.JWTHandler{}).ParseIgnoringExpiry(hint, m.opts.SigningCredentials); err == nil {
			if aud, ok := claims["aud"].(string); ok {
				clientID = aud
			}
		}
	}

	postLogoutRedirectURI := msg.Get("post_logout_redirect_uri")

	ctx := &provider.LogoutContext{RequestMessage: msg, ClientID: clientID, PostLogoutRedirectURI: postLogoutRedirectURI}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	redirectValidated := false
	if postLogoutRedirectURI != "" {
		m.opts.Provider.ValidateClientLogoutRedirectUri(ctx)
		redirectValidated = ctx.IsValidated()
		ctx.Outcome = provider.Outcome{}
	}

	m.opts.Provider.ValidateLogoutRequest(ctx)
	if ctx.IsRejected() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrInvalidRequest("logout request rejected")))
		return
	}

	m.opts.Provider.HandleLogoutRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	if postLogoutRedirectURI != "" && !redirectValidated {
		m.writeAuthorizationError(w, r, "", "", "", false, provider.ErrInvalidRequest("post_logout_redirect_uri is not registered for this client"))
		return
	}

	if postLogoutRedirectURI != "" {
		state := msg.Get("state")
		target := postLogoutRedirectURI
		if state != "" {
			if u, err := joinQueryParam(target, "state", state); err == nil {
				target = u
			}
		}

		m.opts.Provider.ApplyLogoutResponse(ctx)
		if ctx.IsHandledResponse() {
			return
		}

		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	m.opts.Provider.ApplyLogoutResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	_, _ = w.Write([]byte("<!DOCTYPE html><html><body><p>You have been signed out.</p></body></html>"))
}

// joinQueryParam appends key=value to raw's query string.
func joinQueryParam(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
