// Package oidcmw implements an embeddable OpenID Connect 1.0 / OAuth 2.0
// authorization server core as an http.Handler middleware, following the
// notification-driven extensibility model described by provider.Options and
// provider.ProviderHooks: the dispatcher matches a request against its
// configured endpoint paths and, for a match, runs that endpoint's
// Validate/Handle/Apply hook triad before falling back to the library's own
// default protocol behavior.
package oidcmw

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ironvault/oidcmw/instrumentation"
	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/tokenservice"
)

// Middleware is the request dispatcher. It is safe for concurrent use by
// multiple goroutines; construct one with New per provider.Options and wrap
// the application's handler with it.
type Middleware struct {
	opts   *provider.Options
	next   http.Handler
	tokens *tokenservice.Service
	logger *slog.Logger
}

// New builds a Middleware from opts (already validated by provider.New) that
// falls through to next for any request not matched to a core endpoint.
func New(opts *provider.Options, next http.Handler) *Middleware {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return &Middleware{
		opts:   opts,
		next:   next,
		tokens: tokenservice.New(opts),
		logger: slog.Default(),
	}
}

// SetLogger overrides the default slog logger, mirroring the teacher's
// storage.Store.SetLogger convention.
func (m *Middleware) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// ServeHTTP matches the request path against the configured endpoints and
// dispatches, per spec.md §4.1. An unmatched request, or one a MatchEndpoint
// hook skips, passes through to the wrapped handler.
func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind := m.matchPath(r.URL.Path)

	matchCtx := &provider.MatchEndpointContext{Endpoint: kind}
	matchCtx.HTTPContext = w
	matchCtx.Request = r
	matchCtx.Options = m.opts
	m.opts.Provider.MatchEndpoint(matchCtx)
	if matchCtx.IsHandledResponse() {
		return
	}
	if matchCtx.IsSkipped() || matchCtx.Endpoint == provider.EndpointNone {
		m.next.ServeHTTP(w, r)
		return
	}

	// spec.md §4.1: a matched endpoint served over plain HTTP is abandoned
	// without a response unless the deployment opted into insecure HTTP —
	// writing an error here would itself leak protocol state over the
	// unencrypted channel.
	if !m.opts.AllowInsecureHTTP && !requestIsSecure(r) {
		return
	}

	m.recordRequest(r, matchCtx.Endpoint)

	switch matchCtx.Endpoint {
	case provider.EndpointConfiguration:
		m.serveConfiguration(w, r)
	case provider.EndpointCryptography:
		m.serveCryptography(w, r)
	case provider.EndpointAuthorization:
		m.serveAuthorization(w, r)
	case provider.EndpointToken:
		m.serveToken(w, r)
	case provider.EndpointUserinfo:
		m.serveUserinfo(w, r)
	case provider.EndpointIntrospection:
		m.serveIntrospection(w, r)
	case provider.EndpointRevocation:
		m.serveRevocation(w, r)
	case provider.EndpointLogout:
		m.serveLogout(w, r)
	default:
		m.next.ServeHTTP(w, r)
	}
}

// matchPath classifies a request path against the configured endpoint
// paths. An endpoint whose Options field is empty is never matched, so a
// deployment that leaves, say, IntrospectionEndpoint unset effectively
// disables that endpoint (spec.md §4.1).
func (m *Middleware) matchPath(path string) provider.EndpointKind {
	switch {
	case m.opts.ConfigurationEndpoint != "" && path == m.opts.ConfigurationEndpoint:
		return provider.EndpointConfiguration
	case m.opts.CryptographyEndpoint != "" && path == m.opts.CryptographyEndpoint:
		return provider.EndpointCryptography
	case m.opts.AuthorizationEndpoint != "" && path == m.opts.AuthorizationEndpoint:
		return provider.EndpointAuthorization
	case m.opts.TokenEndpoint != "" && path == m.opts.TokenEndpoint:
		return provider.EndpointToken
	case m.opts.UserinfoEndpoint != "" && path == m.opts.UserinfoEndpoint:
		return provider.EndpointUserinfo
	case m.opts.IntrospectionEndpoint != "" && path == m.opts.IntrospectionEndpoint:
		return provider.EndpointIntrospection
	case m.opts.RevocationEndpoint != "" && path == m.opts.RevocationEndpoint:
		return provider.EndpointRevocation
	case m.opts.LogoutEndpoint != "" && path == m.opts.LogoutEndpoint:
		return provider.EndpointLogout
	default:
		return provider.EndpointNone
	}
}

// requestIsSecure reports whether r arrived over TLS, directly or as
// recorded by a trusted terminating proxy's X-Forwarded-Proto header.
func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.EqualFold(strings.TrimSpace(first), "https")
	}
	return false
}

// recordRequest emits the HTTP request counter when instrumentation is
// configured (nil-safe: spec.md's AMBIENT STACK note that observability is
// always optional).
func (m *Middleware) recordRequest(r *http.Request, kind provider.EndpointKind) {
	if m.opts.Instrumentation == nil {
		return
	}
	metrics := m.opts.Instrumentation.Metrics()
	if metrics == nil || metrics.HTTPRequestsTotal == nil {
		return
	}
	metrics.HTTPRequestsTotal.Add(r.Context(), 1)
}

// metrics returns the configured Metrics holder, or nil when instrumentation
// isn't set up; every flow-metric call site in this package goes through
// this nil-safe accessor rather than poking at m.opts.Instrumentation directly.
func (m *Middleware) metrics() *instrumentation.Metrics {
	if m.opts.Instrumentation == nil {
		return nil
	}
	return m.opts.Instrumentation.Metrics()
}
