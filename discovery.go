package oidcmw

import (
	"net/http"

	"github.com/ironvault/oidcmw/jwks"
	"github.com/ironvault/oidcmw/provider"
)

// serveConfiguration implements the OpenID Provider Configuration /
// Authorization Server Metadata endpoint (spec.md §4.2), grounded on the
// teacher's buildAuthServerMetadata/addOptionalMetadata (handler.go): start
// from the always-present fields, then add each optional field only when
// its endpoint/capability is actually configured.
func (m *Middleware) serveConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeProtocolError(w, m.opts.Issuer, provider.NewProtocolError(provider.ErrorCodeInvalidRequest, "method not allowed", http.StatusMethodNotAllowed))
		return
	}

	ctx := &provider.ConfigurationContext{Metadata: m.buildConfigurationMetadata()}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	m.opts.Provider.ValidateConfigurationRequest(ctx)
	if ctx.IsRejected() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrServerError("configuration request rejected")))
		return
	}

	m.opts.Provider.HandleConfigurationRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}
	if ctx.IsSkipped() {
		m.next.ServeHTTP(w, r)
		return
	}

	m.opts.Provider.ApplyConfigurationResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = jsonEncode(w, ctx.Metadata)
}

func (m *Middleware) buildConfigurationMetadata() map[string]any {
	o := m.opts
	meta := map[string]any{
		"issuer":                   o.Issuer,
		"response_types_supported": m.supportedResponseTypes(),
		"response_modes_supported": []string{"query", "fragment", "form_post"},
		"subject_types_supported":  []string{"public"},
		"scopes_supported":         []string{"openid", "profile", "email", "offline_access"},
	}

	if o.AuthorizationEndpoint != "" {
		meta["authorization_endpoint"] = o.IssuerURL(o.AuthorizationEndpoint)
	}
	if o.TokenEndpoint != "" {
		meta["token_endpoint"] = o.IssuerURL(o.TokenEndpoint)
		meta["token_endpoint_auth_methods_supported"] = []string{"client_secret_basic", "client_secret_post", "none"}
	}
	if o.AuthorizationEndpoint != "" || o.TokenEndpoint != "" {
		meta["grant_types_supported"] = m.supportedGrantTypes()
	}
	if o.CryptographyEndpoint != "" {
		meta["jwks_uri"] = o.IssuerURL(o.CryptographyEndpoint)
	}
	if o.UserinfoEndpoint != "" {
		meta["userinfo_endpoint"] = o.IssuerURL(o.UserinfoEndpoint)
	}
	if o.IntrospectionEndpoint != "" {
		meta["introspection_endpoint"] = o.IssuerURL(o.IntrospectionEndpoint)
		meta["introspection_endpoint_auth_methods_supported"] = []string{"client_secret_basic", "client_secret_post"}
	}
	if o.RevocationEndpoint != "" {
		meta["revocation_endpoint"] = o.IssuerURL(o.RevocationEndpoint)
		meta["revocation_endpoint_auth_methods_supported"] = []string{"client_secret_basic", "client_secret_post"}
	}
	if o.LogoutEndpoint != "" {
		meta["end_session_endpoint"] = o.IssuerURL(o.LogoutEndpoint)
	}
	if len(o.SigningCredentials) > 0 {
		algs := make([]string, 0, len(o.SigningCredentials))
		seen := map[string]bool{}
		for _, c := range o.SigningCredentials {
			if !seen[c.Algorithm] {
				seen[c.Algorithm] = true
				algs = append(algs, c.Algorithm)
			}
		}
		meta["id_token_signing_alg_values_supported"] = algs
	}
	return meta
}

// supportedResponseTypes reports the OIDC response-type matrix gated by
// which of (authorization endpoint, token endpoint) are enabled, per
// spec.md §4.2: response types not requiring a code grant are available as
// soon as the authorization endpoint is; "code" and its hybrid
// combinations additionally require the token endpoint, since that is
// where a code is redeemed.
func (m *Middleware) supportedResponseTypes() []string {
	if m.opts.AuthorizationEndpoint == "" {
		return []string{}
	}
	types := []string{"id_token", "token", "id_token token"}
	if m.opts.TokenEndpoint != "" {
		types = append([]string{"code", "code id_token", "code token", "code id_token token"}, types...)
	}
	return types
}

// supportedGrantTypes implements spec.md §4.2's grant_types_supported rule
// verbatim: "implicit" whenever the authorization endpoint is enabled;
// "authorization_code" only when both endpoints are; "refresh_token"
// whenever the token endpoint is; "client_credentials"/"password" only when
// the token endpoint is enabled without an authorization endpoint (a
// deployment offering interactive sign-in has no business minting tokens
// from a bare password, per RFC 6749 §10.7's recommendation against it).
func (m *Middleware) supportedGrantTypes() []string {
	authz := m.opts.AuthorizationEndpoint != ""
	token := m.opts.TokenEndpoint != ""

	var grants []string
	if authz {
		grants = append(grants, "implicit")
	}
	if authz && token {
		grants = append(grants, "authorization_code")
	}
	if token {
		grants = append(grants, "refresh_token")
	}
	if token && !authz {
		grants = append(grants, "client_credentials", "password")
	}
	return grants
}

// serveCryptography implements the JWKS endpoint (spec.md §4.3).
func (m *Middleware) serveCryptography(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeProtocolError(w, m.opts.Issuer, provider.NewProtocolError(provider.ErrorCodeInvalidRequest, "method not allowed", http.StatusMethodNotAllowed))
		return
	}

	set := jwks.FromSigningCredentials(m.opts.SigningCredentials)
	set = append(set, jwks.FromEncryptingCredentials(m.opts.EncryptingCredentials)...)
	keys := make([]map[string]any, len(set))
	for i, k := range set {
		keys[i] = jwkToMap(k)
	}

	ctx := &provider.CryptographyContext{Keys: keys}
	ctx.HTTPContext = w
	ctx.Request = r
	ctx.Options = m.opts

	m.opts.Provider.ValidateCryptographyRequest(ctx)
	if ctx.IsRejected() {
		writeProtocolError(w, m.opts.Issuer, defaultErrorFor(ctx, provider.ErrServerError("cryptography request rejected")))
		return
	}

	m.opts.Provider.HandleCryptographyRequest(ctx)
	if ctx.IsHandledResponse() {
		return
	}
	if ctx.IsSkipped() {
		m.next.ServeHTTP(w, r)
		return
	}

	m.opts.Provider.ApplyCryptographyResponse(ctx)
	if ctx.IsHandledResponse() {
		return
	}

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = jsonEncode(w, map[string]any{"keys": ctx.Keys})
}
