package tokenservice

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/ironvault/oidcmw/jwks"
	"github.com/ironvault/oidcmw/provider"
)

// Purpose strings distinguish what an opaque or signed ticket was minted
// for, so one can never be replayed as another (spec.md §6, item 3).
const (
	PurposeAccessToken       = "access_token"
	PurposeIdentityToken     = "id_token"
	PurposeRefreshToken      = "refresh_token"
	PurposeAuthorizationCode = "authorization_code"
)

// Service mints and recovers the four ticket-backed token kinds. It holds
// no state of its own beyond the Options it was built from; every method
// takes the ticket and emits/consumes the wire representation configured
// for that token kind (JWT when a JWTHandler + signing credential are
// configured, opaque otherwise).
type Service struct {
	opts *provider.Options
}

// New builds a Service bound to opts.
func New(opts *provider.Options) *Service {
	return &Service{opts: opts}
}

// selectSigningCredential returns the first configured signing credential,
// or an error if none exist.
func (s *Service) selectSigningCredential() (provider.SigningCredentials, error) {
	if len(s.opts.SigningCredentials) == 0 {
		return provider.SigningCredentials{}, fmt.Errorf("tokenservice: no signing credentials configured")
	}
	return s.opts.SigningCredentials[0], nil
}

// selectEncryptingCredential returns the first configured encrypting
// credential, or nil when none is configured — access tokens are only
// JWE-nested when the deployment opts in by configuring one.
func (s *Service) selectEncryptingCredential() *provider.EncryptingCredentials {
	if len(s.opts.EncryptingCredentials) == 0 {
		return nil
	}
	return &s.opts.EncryptingCredentials[0]
}

// nestedParser is implemented by tokenservice.JWTHandler; the Service only
// depends on provider.JWTHandler, so this optional-interface check lets a
// caller-supplied JWTHandler that never nests JWEs still satisfy the
// contract without a ParseNested method.
type nestedParser interface {
	ParseNested(token string, sigCreds []provider.SigningCredentials, encCreds []provider.EncryptingCredentials) (map[string]any, error)
}

// isAlwaysKeptClaimType reports whether c's type is exempt from the
// destination filter entirely, per spec.md §4.7: "sub and name-identifier
// are always kept" for both access and identity tokens.
func isAlwaysKeptClaimType(claimType string) bool {
	return claimType == provider.ClaimTypeSubject || claimType == provider.ClaimTypeNameIdentifier
}

// filterForAccessToken returns a copy of ticket with claims filtered per
// spec.md §4.7's access-token rule and testable invariant 5. sub/
// name-identifier are always kept. When useJWT is true (the access token
// will be emitted as a signed JWT), an unmarked claim is dropped — only
// explicit opt-in via destinations=token survives. When useJWT is false
// (the access token will be the opaque protected ticket), an unmarked
// claim is kept by default, and only an explicit destination set that
// excludes token drops it.
func filterForAccessToken(t *provider.AuthenticationTicket, useJWT bool) *provider.AuthenticationTicket {
	out := t.Clone()
	if out.Identity == nil {
		return out
	}
	filtered := make([]provider.Claim, 0, len(out.Identity.Claims))
	for _, c := range out.Identity.Claims {
		if isAlwaysKeptClaimType(c.Type) {
			filtered = append(filtered, c)
			continue
		}
		if useJWT {
			if c.HasDestination(provider.DestinationAccessToken) {
				filtered = append(filtered, c)
			}
			continue
		}
		if len(c.Destinations()) == 0 || c.HasDestination(provider.DestinationAccessToken) {
			filtered = append(filtered, c)
		}
	}
	out.Identity.Claims = filtered
	return out
}

// filterForIdentityToken returns a copy of ticket with claims filtered per
// spec.md §4.7's identity-token rule: sub/name-identifier always kept;
// every other claim is kept only when destinations explicitly includes
// id_token — an unmarked claim never leaks into the id_token, unlike the
// opaque access-token rule.
func filterForIdentityToken(t *provider.AuthenticationTicket) *provider.AuthenticationTicket {
	out := t.Clone()
	if out.Identity == nil {
		return out
	}
	filtered := make([]provider.Claim, 0, len(out.Identity.Claims))
	for _, c := range out.Identity.Claims {
		if isAlwaysKeptClaimType(c.Type) {
			filtered = append(filtered, c)
			continue
		}
		if c.HasDestination(provider.DestinationIdentityToken) {
			filtered = append(filtered, c)
		}
	}
	out.Identity.Claims = filtered
	return out
}

func claimsToMap(t *provider.AuthenticationTicket, issuer, audience, subject string, issuedAt, expiresAt time.Time) map[string]any {
	m := map[string]any{
		"iss": issuer,
		"sub": subject,
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
	}
	if audience != "" {
		m["aud"] = audience
	}
	if t.Identity != nil {
		for _, c := range t.Identity.Claims {
			if c.Type == provider.ClaimTypeSubject || c.Type == provider.ClaimTypeNameIdentifier {
				continue
			}
			m[c.Type] = c.Value
		}
	}
	return m
}

// issuerWithTrailingSlash normalizes issuer to carry exactly one trailing
// slash, per spec.md §4.7's identity-token iss claim requirement.
func issuerWithTrailingSlash(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/"
}

func subjectOf(t *provider.AuthenticationTicket) string {
	if t.Identity == nil {
		return ""
	}
	if c, ok := t.Identity.FindFirst(provider.ClaimTypeSubject); ok {
		return c.Value
	}
	if c, ok := t.Identity.FindFirst(provider.ClaimTypeNameIdentifier); ok {
		return c.Value
	}
	return ""
}

// CreateAccessToken mints an access token for ticket, scoped to audience,
// running the CreateAccessToken provider hook first so the application can
// add or remove claims.
func (s *Service) CreateAccessToken(ctx *provider.TokenContext, ticket *provider.AuthenticationTicket, audience string) (string, error) {
	s.opts.Provider.CreateAccessToken(ctx)
	if ctx.IsRejected() {
		return "", ctx.Error()
	}

	useJWT := s.opts.AccessTokenJWTHandler != nil && len(s.opts.SigningCredentials) > 0

	now := s.opts.Clock.Now()
	expires := now.Add(s.opts.AccessTokenLifetime)
	scoped := filterForAccessToken(ticket, useJWT)
	scoped.Properties.IssuedUTC = now
	scoped.Properties.ExpiresUTC = expires

	if useJWT {
		cred, err := s.selectSigningCredential()
		if err != nil {
			return "", err
		}
		claims := claimsToMap(scoped, s.opts.Issuer, audience, subjectOf(scoped), now, expires)
		claims["jti"] = randomID(s.opts)
		return s.opts.AccessTokenJWTHandler.Sign(claims, cred, s.selectEncryptingCredential())
	}
	if s.opts.AccessTokenFormat != nil {
		return s.opts.AccessTokenFormat.Protect(scoped, PurposeAccessToken)
	}
	return "", fmt.Errorf("tokenservice: no access token format configured")
}

// ReceiveAccessToken recovers the ticket bound to an access token string,
// running the ReceiveAccessToken hook afterward.
func (s *Service) ReceiveAccessToken(ctx *provider.TokenContext, token string) (*provider.AuthenticationTicket, error) {
	var ticket *provider.AuthenticationTicket
	var err error

	if s.opts.AccessTokenJWTHandler != nil && len(s.opts.SigningCredentials) > 0 {
		var claims map[string]any
		if h, ok := s.opts.AccessTokenJWTHandler.(nestedParser); ok {
			claims, err = h.ParseNested(token, s.opts.SigningCredentials, s.opts.EncryptingCredentials)
		} else {
			claims, err = s.opts.AccessTokenJWTHandler.Parse(token, s.opts.SigningCredentials)
		}
		if err != nil {
			return nil, err
		}
		ticket = ticketFromClaims(claims)
	} else if s.opts.AccessTokenFormat != nil {
		ticket, err = s.opts.AccessTokenFormat.Unprotect(token, PurposeAccessToken)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("tokenservice: no access token format configured")
	}

	ctx.Ticket = ticket
	s.opts.Provider.ReceiveAccessToken(ctx)
	if ctx.IsRejected() {
		return nil, ctx.Error()
	}
	return ticket, nil
}

// CreateIdentityToken mints an ID token, computing at_hash/c_hash over
// accessToken/code when provided (OIDC Core §3.3.2.11).
func (s *Service) CreateIdentityToken(ctx *provider.TokenContext, ticket *provider.AuthenticationTicket, audience, nonce, accessToken, code string) (string, error) {
	s.opts.Provider.CreateIdentityToken(ctx)
	if ctx.IsRejected() {
		return "", ctx.Error()
	}

	cred, err := s.selectSigningCredential()
	if err != nil {
		return "", err
	}

	now := s.opts.Clock.Now()
	expires := now.Add(s.opts.IdentityTokenLifetime)
	scoped := filterForIdentityToken(ticket)
	scoped.Properties.IssuedUTC = now
	scoped.Properties.ExpiresUTC = expires

	claims := claimsToMap(scoped, issuerWithTrailingSlash(s.opts.Issuer), audience, subjectOf(scoped), now, expires)
	claims["nbf"] = now.Unix()
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if accessToken != "" {
		if h, herr := jwks.LeftHalfHash(cred.Algorithm, accessToken); herr == nil {
			claims["at_hash"] = base64.RawURLEncoding.EncodeToString(h)
		}
	}
	if code != "" {
		if h, herr := jwks.LeftHalfHash(cred.Algorithm, code); herr == nil {
			claims["c_hash"] = base64.RawURLEncoding.EncodeToString(h)
		}
	}

	handler := s.opts.IdentityTokenJWTHandler
	if handler == nil {
		handler = JWTHandler{}
	}
	return handler.Sign(claims, cred, nil)
}

// CreateRefreshToken mints a refresh token.
func (s *Service) CreateRefreshToken(ctx *provider.TokenContext, ticket *provider.AuthenticationTicket) (string, error) {
	s.opts.Provider.CreateRefreshToken(ctx)
	if ctx.IsRejected() {
		return "", ctx.Error()
	}
	if s.opts.RefreshTokenFormat == nil {
		return "", fmt.Errorf("tokenservice: no refresh token format configured")
	}

	now := s.opts.Clock.Now()
	scoped := ticket.Clone()
	scoped.Properties.IssuedUTC = now
	scoped.Properties.ExpiresUTC = now.Add(s.opts.RefreshTokenLifetime)
	return s.opts.RefreshTokenFormat.Protect(scoped, PurposeRefreshToken)
}

// ReceiveRefreshToken recovers the ticket bound to a refresh token string.
func (s *Service) ReceiveRefreshToken(ctx *provider.TokenContext, token string) (*provider.AuthenticationTicket, error) {
	if s.opts.RefreshTokenFormat == nil {
		return nil, fmt.Errorf("tokenservice: no refresh token format configured")
	}
	ticket, err := s.opts.RefreshTokenFormat.Unprotect(token, PurposeRefreshToken)
	if err != nil {
		return nil, err
	}
	ctx.Ticket = ticket
	s.opts.Provider.ReceiveRefreshToken(ctx)
	if ctx.IsRejected() {
		return nil, ctx.Error()
	}
	return ticket, nil
}

// CreateAuthorizationCode mints a one-shot authorization code, storing the
// protected ticket in the cache under the code's key (spec.md §9's atomic
// Take resolves the one-shot redemption race; this only writes).
func (s *Service) CreateAuthorizationCode(ticket *provider.AuthenticationTicket) (string, error) {
	if s.opts.AuthorizationCodeFormat == nil {
		return "", fmt.Errorf("tokenservice: no authorization code format configured")
	}
	code, err := randomCode(s.opts)
	if err != nil {
		return "", err
	}

	now := s.opts.Clock.Now()
	scoped := ticket.Clone()
	scoped.Properties.IssuedUTC = now
	scoped.Properties.ExpiresUTC = now.Add(s.opts.AuthorizationCodeLifetime)

	protected, err := s.opts.AuthorizationCodeFormat.Protect(scoped, PurposeAuthorizationCode)
	if err != nil {
		return "", err
	}
	if err := s.opts.Cache.Set(code, []byte(protected), s.opts.AuthorizationCodeLifetime); err != nil {
		return "", fmt.Errorf("tokenservice: store authorization code: %w", err)
	}
	return code, nil
}

// ConsumeAuthorizationCode atomically redeems code: a second redemption of
// the same code observes ok == false (spec.md §4.5 invariant 5, "one-shot
// code consumption").
func (s *Service) ConsumeAuthorizationCode(code string) (*provider.AuthenticationTicket, bool, error) {
	if s.opts.AuthorizationCodeFormat == nil {
		return nil, false, fmt.Errorf("tokenservice: no authorization code format configured")
	}
	raw, ok, err := s.opts.Cache.Take(code)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	ticket, err := s.opts.AuthorizationCodeFormat.Unprotect(string(raw), PurposeAuthorizationCode)
	if err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

func randomCode(opts *provider.Options) (string, error) {
	b := make([]byte, 32)
	if _, err := opts.RNG.Read(b); err != nil {
		return "", fmt.Errorf("tokenservice: generate code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomID(opts *provider.Options) string {
	b := make([]byte, 16)
	if _, err := opts.RNG.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ticketFromClaims rebuilds a minimal AuthenticationTicket view from a
// parsed JWT's claim map, for the ReceiveAccessToken JWT path.
func ticketFromClaims(claims map[string]any) *provider.AuthenticationTicket {
	t := provider.NewTicket("jwt")
	for k, v := range claims {
		switch k {
		case "iss", "iat", "exp", "aud", "jti":
			continue
		case "sub":
			if s, ok := v.(string); ok {
				t.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, s))
			}
		default:
			if s, ok := v.(string); ok {
				t.Identity.AddClaim(provider.NewClaim(k, s))
			}
		}
	}
	return t
}
