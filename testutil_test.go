package oidcmw

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
	"github.com/ironvault/oidcmw/storage"
	"github.com/ironvault/oidcmw/tokenservice"
)

// fixedRNG feeds deterministic, distinct byte sequences to the RNG
// interface, so tests can assert on generated authorization codes without
// needing real entropy.
type fixedRNG struct{ n byte }

func (r *fixedRNG) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = r.n
		r.n++
	}
	return len(b), nil
}

// stepClock lets a test advance "now" deterministically, e.g. to simulate
// an authorization code or access token expiring.
type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

// testHooks embeds NoopProviderHooks and lets each test override exactly
// the methods it cares about, matching how a real embedder only implements
// the hooks it needs (provider/hooks.go's doc comment).
type testHooks struct {
	provider.NoopProviderHooks

	onValidateClientRedirectURI       func(*provider.AuthorizationContext)
	onHandleAuthorizationRequest      func(*provider.AuthorizationContext)
	onValidateClientAuthentication    func(*provider.TokenContext)
	onGrantClientCredentials          func(*provider.TokenContext)
	onGrantResourceOwnerCredentials   func(*provider.TokenContext)
	onGrantCustomExtension            func(*provider.TokenContext)
	onValidateIntrospectionRequest    func(*provider.IntrospectionContext)
	onValidateRevocationRequest       func(*provider.RevocationContext)
	onValidateLogoutRequest           func(*provider.LogoutContext)
	onMatchEndpoint                   func(*provider.MatchEndpointContext)
}

func (h *testHooks) MatchEndpoint(ctx *provider.MatchEndpointContext) {
	if h.onMatchEndpoint != nil {
		h.onMatchEndpoint(ctx)
	}
}

func (h *testHooks) ValidateClientRedirectURI(ctx *provider.AuthorizationContext) {
	if h.onValidateClientRedirectURI != nil {
		h.onValidateClientRedirectURI(ctx)
		return
	}
	ctx.Validate()
}

func (h *testHooks) HandleAuthorizationRequest(ctx *provider.AuthorizationContext) {
	if h.onHandleAuthorizationRequest != nil {
		h.onHandleAuthorizationRequest(ctx)
		return
	}
	ticket := provider.NewTicket("test")
	ticket.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, "alice"))
	ctx.SignIn("test", ticket)
}

func (h *testHooks) ValidateClientAuthentication(ctx *provider.TokenContext) {
	if h.onValidateClientAuthentication != nil {
		h.onValidateClientAuthentication(ctx)
		return
	}
	ctx.Validate()
}

func (h *testHooks) GrantClientCredentials(ctx *provider.TokenContext) {
	if h.onGrantClientCredentials != nil {
		h.onGrantClientCredentials(ctx)
		return
	}
	ticket := provider.NewTicket("client")
	ticket.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, "service-account"))
	ctx.Ticket = ticket
	ctx.Validate()
}

func (h *testHooks) GrantResourceOwnerCredentials(ctx *provider.TokenContext) {
	if h.onGrantResourceOwnerCredentials != nil {
		h.onGrantResourceOwnerCredentials(ctx)
	}
}

func (h *testHooks) GrantCustomExtension(ctx *provider.TokenContext) {
	if h.onGrantCustomExtension != nil {
		h.onGrantCustomExtension(ctx)
	}
}

func (h *testHooks) ValidateIntrospectionRequest(ctx *provider.IntrospectionContext) {
	if h.onValidateIntrospectionRequest != nil {
		h.onValidateIntrospectionRequest(ctx)
		return
	}
	ctx.Validate()
}

func (h *testHooks) ValidateRevocationRequest(ctx *provider.RevocationContext) {
	if h.onValidateRevocationRequest != nil {
		h.onValidateRevocationRequest(ctx)
		return
	}
	ctx.Validate()
}

func (h *testHooks) ValidateLogoutRequest(ctx *provider.LogoutContext) {
	if h.onValidateLogoutRequest != nil {
		h.onValidateLogoutRequest(ctx)
		return
	}
	ctx.Validate()
}

func (h *testHooks) ValidateClientLogoutRedirectUri(ctx *provider.LogoutContext) {
	ctx.Validate()
}

// testFixture bundles a ready-to-use Middleware plus its Options and hooks
// for assertions, backed by an in-memory cache and a fresh RSA signing key.
type testFixture struct {
	mw    *Middleware
	opts  *provider.Options
	hooks *testHooks
	clock *stepClock
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}

	encKey := make([]byte, 32)
	for i := range encKey {
		encKey[i] = byte(i)
	}
	encryptor, err := security.NewEncryptor(encKey)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	opaque := tokenservice.NewOpaqueFormat(encryptor)

	cache := storage.New()
	t.Cleanup(cache.Stop)

	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	hooks := &testHooks{}

	opts, err := provider.New(provider.Options{
		Issuer:                "https://issuer.example.test",
		AuthorizationEndpoint: "/connect/authorize",
		ConfigurationEndpoint: "/.well-known/openid-configuration",
		CryptographyEndpoint:  "/connect/jwks",
		TokenEndpoint:         "/connect/token",
		UserinfoEndpoint:      "/connect/userinfo",
		IntrospectionEndpoint: "/connect/introspect",
		RevocationEndpoint:    "/connect/revoke",
		LogoutEndpoint:        "/connect/logout",

		AccessTokenLifetime:       time.Hour,
		AuthorizationCodeLifetime: 5 * time.Minute,
		RefreshTokenLifetime:      14 * 24 * time.Hour,
		IdentityTokenLifetime:     20 * time.Minute,

		SigningCredentials: []provider.SigningCredentials{
			{Kid: "test-key-1", Algorithm: "RS256", PrivateKey: key},
		},

		Cache: cache,

		AccessTokenFormat:       opaque,
		AuthorizationCodeFormat: opaque,
		RefreshTokenFormat:      opaque,
		AccessTokenJWTHandler:   tokenservice.JWTHandler{},
		IdentityTokenJWTHandler: tokenservice.JWTHandler{},

		Clock: clock,
		RNG:   &fixedRNG{},

		Provider: hooks,
	})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}

	return &testFixture{
		mw:    New(opts, nil),
		opts:  opts,
		hooks: hooks,
		clock: clock,
	}
}

func newRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
