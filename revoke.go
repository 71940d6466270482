package oidcmw

import (
	"net/http"

	"github.com/ironvault/oidcmw/provider"
)

// serveRevocation implements RFC 7009 token revocation. Per RFC 7009 §2.2,
// the endpoint always answers 200 regardless of whether the token existed
// or was already invalid — only a non-POST or malformed request (400
// invalid_request) or a client authentication failure (401 invalid_client
// unless the hook supplies its own error) gets a distinct response. The
// token is resolved and handed to HandleRevocationRequest; the endpoint
// itself neither removes nor invalidates it, and does not check which
// client it was issued to.
func (m *Middleware) serveRevocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("revocation endpoint only accepts POST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeProtocolError(w, m.opts.Issuer, provider.ErrInvalidRequest("malformed form body"))
		return
	}

	msg := provider.NewMessageFromValues(r.Form)
	ctx := &provider.RevocationContext{RequestMessage: msg}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	m.opts.Provider.ValidateRevocationRequest(ctx)
	if !ctx.IsValidated() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrInvalidClient("revocation client authentication failed")))
		return
	}

	token := msg.Get("token")
	if token != "" {
		if ticket, err := m.tokens.ReceiveAccessToken(&provider.TokenContext{}, token); err == nil && ticket != nil {
			ctx.Ticket = ticket
		} else if ticket, err := m.tokens.ReceiveRefreshToken(&provider.TokenContext{}, token); err == nil && ticket != nil {
			ctx.Ticket = ticket
		}
	}

	m.opts.Provider.HandleRevocationRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	if ctx.Ticket != nil {
		if metrics := m.metrics(); metrics != nil {
			metrics.RecordTokenRevocation(r.Context(), ctx.RequestMessage.ClientID())
		}
	}

	m.opts.Provider.ApplyRevocationResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	writeJSON(w, m.opts.Issuer, map[string]any{})
}
