package tokenservice

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
	"github.com/ironvault/oidcmw/storage"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testOptions(t *testing.T, withJWT bool) (*provider.Options, *storage.Store) {
	t.Helper()

	store := storage.New()
	t.Cleanup(store.Stop)

	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("security.GenerateKey() error = %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("security.NewEncryptor() error = %v", err)
	}
	opaque := NewOpaqueFormat(enc)

	opts := provider.Options{
		Issuer:                    "https://issuer.example.test",
		AccessTokenLifetime:       time.Hour,
		IdentityTokenLifetime:     20 * time.Minute,
		RefreshTokenLifetime:      24 * time.Hour,
		AuthorizationCodeLifetime: 5 * time.Minute,
		Cache:                     store,
		AccessTokenFormat:         opaque,
		RefreshTokenFormat:        opaque,
		AuthorizationCodeFormat:   opaque,
		Clock:                     fixedClock{now: time.Unix(1_700_000_000, 0).UTC()},
		RNG:                       rand.Reader,
		Provider:                  provider.NoopProviderHooks{},
	}

	if withJWT {
		rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("rsa.GenerateKey() error = %v", err)
		}
		opts.SigningCredentials = []provider.SigningCredentials{{Kid: "kid-1", Algorithm: "RS256", PrivateKey: rsaKey}}
		opts.AccessTokenJWTHandler = JWTHandler{}
		opts.IdentityTokenJWTHandler = JWTHandler{}
	}

	o, err := provider.New(opts)
	if err != nil {
		t.Fatalf("provider.New() error = %v", err)
	}
	return o, store
}

func testOptionsWithEncryption(t *testing.T) *provider.Options {
	t.Helper()
	opts, _ := testOptions(t, true)

	encKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	opts.EncryptingCredentials = []provider.EncryptingCredentials{{
		Kid:        "enc-1",
		Algorithm:  "RSA-OAEP",
		Encryption: "A128CBC-HS256",
		PrivateKey: encKey,
	}}
	return opts
}

func testTicket() *provider.AuthenticationTicket {
	t := provider.NewTicket("test")
	t.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, "user-123"))
	t.Identity.AddClaim(provider.NewClaim("email", "user@example.test"))
	return t
}

// destinationTestTicket carries one claim of each destination shape: always
// kept (sub), unmarked, opted into the access token only, and opted into the
// id_token only.
func destinationTestTicket() *provider.AuthenticationTicket {
	t := provider.NewTicket("test")
	t.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, "user-123"))
	t.Identity.AddClaim(provider.NewClaim("unmarked", "v-unmarked"))
	t.Identity.AddClaim(provider.NewClaim("access_only", "v-access").WithDestinations(provider.DestinationAccessToken))
	t.Identity.AddClaim(provider.NewClaim("id_only", "v-id").WithDestinations(provider.DestinationIdentityToken))
	return t
}

func hasClaimType(t *provider.AuthenticationTicket, claimType string) bool {
	_, ok := t.Identity.FindFirst(claimType)
	return ok
}

func TestFilterForAccessToken_JWT_RequiresExplicitOptIn(t *testing.T) {
	scoped := filterForAccessToken(destinationTestTicket(), true)

	if !hasClaimType(scoped, provider.ClaimTypeSubject) {
		t.Error("sub claim dropped, want always kept")
	}
	if hasClaimType(scoped, "unmarked") {
		t.Error("unmarked claim kept for JWT access token, want dropped (opt-in only)")
	}
	if !hasClaimType(scoped, "access_only") {
		t.Error("access_only claim dropped, want kept (destinations includes token)")
	}
	if hasClaimType(scoped, "id_only") {
		t.Error("id_only claim kept for access token, want dropped")
	}
}

func TestFilterForAccessToken_Opaque_DefaultsToKept(t *testing.T) {
	scoped := filterForAccessToken(destinationTestTicket(), false)

	if !hasClaimType(scoped, provider.ClaimTypeSubject) {
		t.Error("sub claim dropped, want always kept")
	}
	if !hasClaimType(scoped, "unmarked") {
		t.Error("unmarked claim dropped for opaque access token, want kept (default-keep)")
	}
	if !hasClaimType(scoped, "access_only") {
		t.Error("access_only claim dropped, want kept")
	}
	if hasClaimType(scoped, "id_only") {
		t.Error("id_only claim kept for opaque access token, want dropped (destinations excludes token)")
	}
}

func TestFilterForIdentityToken_RequiresExplicitOptIn(t *testing.T) {
	scoped := filterForIdentityToken(destinationTestTicket())

	if !hasClaimType(scoped, provider.ClaimTypeSubject) {
		t.Error("sub claim dropped, want always kept")
	}
	if hasClaimType(scoped, "unmarked") {
		t.Error("unmarked claim kept for id_token, want dropped (opt-in only)")
	}
	if hasClaimType(scoped, "access_only") {
		t.Error("access_only claim kept for id_token, want dropped")
	}
	if !hasClaimType(scoped, "id_only") {
		t.Error("id_only claim dropped, want kept (destinations includes id_token)")
	}
}

func TestService_AccessToken_Opaque_RoundTrip(t *testing.T) {
	opts, _ := testOptions(t, false)
	svc := New(opts)

	ctx := &provider.TokenContext{}
	got, err := svc.CreateAccessToken(ctx, testTicket(), "https://api.example.test")
	if err != nil {
		t.Fatalf("CreateAccessToken() error = %v", err)
	}
	if got == "" {
		t.Fatal("CreateAccessToken() returned empty token")
	}

	recvCtx := &provider.TokenContext{}
	ticket, err := svc.ReceiveAccessToken(recvCtx, got)
	if err != nil {
		t.Fatalf("ReceiveAccessToken() error = %v", err)
	}
	claim, ok := ticket.Identity.FindFirst(provider.ClaimTypeSubject)
	if !ok || claim.Value != "user-123" {
		t.Fatalf("recovered ticket subject = %+v, want user-123", claim)
	}
}

func TestService_AccessToken_JWT_RoundTrip(t *testing.T) {
	opts, _ := testOptions(t, true)
	svc := New(opts)

	ctx := &provider.TokenContext{}
	got, err := svc.CreateAccessToken(ctx, testTicket(), "https://api.example.test")
	if err != nil {
		t.Fatalf("CreateAccessToken() error = %v", err)
	}

	recvCtx := &provider.TokenContext{}
	ticket, err := svc.ReceiveAccessToken(recvCtx, got)
	if err != nil {
		t.Fatalf("ReceiveAccessToken() error = %v", err)
	}
	claim, ok := ticket.Identity.FindFirst(provider.ClaimTypeSubject)
	if !ok || claim.Value != "user-123" {
		t.Fatalf("recovered ticket subject = %+v, want user-123", claim)
	}
}

func TestService_AccessToken_JWE_RoundTrip(t *testing.T) {
	opts := testOptionsWithEncryption(t)
	svc := New(opts)

	ctx := &provider.TokenContext{}
	got, err := svc.CreateAccessToken(ctx, testTicket(), "https://api.example.test")
	if err != nil {
		t.Fatalf("CreateAccessToken() error = %v", err)
	}
	if dots := strings.Count(got, "."); dots != 4 {
		t.Fatalf("CreateAccessToken() produced %d dot-separated parts, want 4 (compact JWE)", dots+1)
	}

	recvCtx := &provider.TokenContext{}
	ticket, err := svc.ReceiveAccessToken(recvCtx, got)
	if err != nil {
		t.Fatalf("ReceiveAccessToken() error = %v", err)
	}
	claim, ok := ticket.Identity.FindFirst(provider.ClaimTypeSubject)
	if !ok || claim.Value != "user-123" {
		t.Fatalf("recovered ticket subject = %+v, want user-123", claim)
	}
}

func TestService_AuthorizationCode_OneShot(t *testing.T) {
	opts, _ := testOptions(t, false)
	svc := New(opts)

	code, err := svc.CreateAuthorizationCode(testTicket())
	if err != nil {
		t.Fatalf("CreateAuthorizationCode() error = %v", err)
	}

	ticket, ok, err := svc.ConsumeAuthorizationCode(code)
	if err != nil {
		t.Fatalf("ConsumeAuthorizationCode() error = %v", err)
	}
	if !ok || ticket == nil {
		t.Fatalf("first ConsumeAuthorizationCode() ok = %v, want true", ok)
	}

	_, ok, err = svc.ConsumeAuthorizationCode(code)
	if err != nil {
		t.Fatalf("second ConsumeAuthorizationCode() error = %v", err)
	}
	if ok {
		t.Fatal("second ConsumeAuthorizationCode() ok = true, want false (one-shot)")
	}
}

func TestService_IdentityToken_HasAtHashAndCHash(t *testing.T) {
	opts, _ := testOptions(t, true)
	svc := New(opts)

	ctx := &provider.TokenContext{}
	idToken, err := svc.CreateIdentityToken(ctx, testTicket(), "client-1", "nonce-xyz", "access-token-value", "auth-code-value")
	if err != nil {
		t.Fatalf("CreateIdentityToken() error = %v", err)
	}
	if idToken == "" {
		t.Fatal("CreateIdentityToken() returned empty token")
	}

	claims, err := JWTHandler{}.Parse(idToken, opts.SigningCredentials)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := claims["at_hash"]; !ok {
		t.Error("missing at_hash claim")
	}
	if _, ok := claims["c_hash"]; !ok {
		t.Error("missing c_hash claim")
	}
	if claims["nonce"] != "nonce-xyz" {
		t.Errorf("nonce claim = %v, want nonce-xyz", claims["nonce"])
	}
}

func TestService_IdentityToken_HasNbfAndTrailingSlashIssuer(t *testing.T) {
	opts, _ := testOptions(t, true)
	svc := New(opts)

	ctx := &provider.TokenContext{}
	idToken, err := svc.CreateIdentityToken(ctx, testTicket(), "client-1", "", "", "")
	if err != nil {
		t.Fatalf("CreateIdentityToken() error = %v", err)
	}

	claims, err := JWTHandler{}.Parse(idToken, opts.SigningCredentials)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		t.Fatal("missing iat claim")
	}
	nbf, ok := claims["nbf"].(float64)
	if !ok {
		t.Fatal("missing nbf claim")
	}
	if nbf != iat {
		t.Errorf("nbf = %v, want iat = %v", nbf, iat)
	}

	iss, _ := claims["iss"].(string)
	wantIss := strings.TrimSuffix(opts.Issuer, "/") + "/"
	if iss != wantIss {
		t.Errorf("iss = %q, want %q (trailing slash)", iss, wantIss)
	}
}

func TestService_RefreshToken_RoundTrip(t *testing.T) {
	opts, _ := testOptions(t, false)
	svc := New(opts)

	ctx := &provider.TokenContext{}
	rt, err := svc.CreateRefreshToken(ctx, testTicket())
	if err != nil {
		t.Fatalf("CreateRefreshToken() error = %v", err)
	}

	recvCtx := &provider.TokenContext{}
	ticket, err := svc.ReceiveRefreshToken(recvCtx, rt)
	if err != nil {
		t.Fatalf("ReceiveRefreshToken() error = %v", err)
	}
	if _, ok := ticket.Identity.FindFirst(provider.ClaimTypeSubject); !ok {
		t.Fatal("recovered refresh ticket missing subject claim")
	}
}
