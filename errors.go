package oidcmw

import (
	"encoding/json"
	"net/http"

	"github.com/ironvault/oidcmw/jwks"
	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
)

// writeProtocolError emits err as a JSON body per RFC 6749 §5.2 / OIDC Core
// §3.1.2.6: {"error", "error_description", "error_uri"}. Grounded on the
// teacher's Handler.writeError (handler.go): security headers first, then
// WWW-Authenticate for 401s, then the JSON body.
func writeProtocolError(w http.ResponseWriter, issuer string, err *provider.ProtocolError) {
	security.SetSecurityHeaders(w, issuer)
	status := err.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer error=\""+err.Code+"\"")
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "-1")
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)

	body := map[string]string{"error": err.Code}
	if err.Description != "" {
		body["error_description"] = err.Description
	}
	if err.URI != "" {
		body["error_uri"] = err.URI
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON writes v as a 200 JSON body with the no-cache headers every
// token/introspection/userinfo response carries.
func writeJSON(w http.ResponseWriter, issuer string, v any) {
	security.SetSecurityHeaders(w, issuer)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "-1")
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}

// defaultErrorFor returns the caller's fallback error when a hook rejected
// the context without supplying its own ProtocolError, per spec.md §7 ("every decision
// point that can reject supplies, or falls back to, a default error").
func defaultErrorFor(outcome interface{ Error() *provider.ProtocolError }, fallback *provider.ProtocolError) *provider.ProtocolError {
	if e := outcome.Error(); e != nil {
		return e
	}
	return fallback
}

// jsonEncode writes v to w's body without touching headers already set by
// the caller.
func jsonEncode(w http.ResponseWriter, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// jwkToMap flattens a jwks.JsonWebKey into a map so omitempty semantics
// apply the same way the struct's json tags would.
func jwkToMap(k jwks.JsonWebKey) map[string]any {
	b, err := json.Marshal(k)
	if err != nil {
		return map[string]any{"kty": k.Kty}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}
