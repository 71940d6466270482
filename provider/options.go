package provider

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ironvault/oidcmw/instrumentation"
	"github.com/ironvault/oidcmw/internal/helpers"
)

// Cache is the minimal TTL key-value store the core needs to persist
// authorization codes (spec.md §1 Non-goals: the backing implementation —
// in-memory or distributed — is an external collaborator). Take resolves
// Open Question 1 from spec.md §9: it MUST be an atomic get-and-delete so
// that "one-shot" redemption holds even against a distributed backend.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration) error
	Take(key string) (value []byte, ok bool, err error)
}

// Clock supplies the current time, injected so tests can control it and so
// a single issuance observes one consistent "now" (spec.md §5).
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// RNG is the source of cryptographically secure random bytes the core uses
// for authorization-code keys (spec.md §5: "thread-safe").
type RNG interface {
	Read(b []byte) (int, error)
}

// SigningCredentials pairs a private key with the key identifier and
// algorithm used to sign tokens, per spec.md §3's JsonWebKey model.
type SigningCredentials struct {
	Kid         string
	Algorithm   string
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// EncryptingCredentials pairs a private key with the algorithms this core
// may use to encrypt tokens addressed to it (JWE "alg"/"enc").
type EncryptingCredentials struct {
	Kid         string
	Algorithm   string
	Encryption  string
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// JWTHandler abstracts signing/verifying a set of claims into a compact
// JWT, letting the token service stay agnostic of which JWT library
// backs it (tokenservice.JWTHandler implements this using golang-jwt/jwt/v5).
type JWTHandler interface {
	Sign(claims map[string]any, cred SigningCredentials, encrypting *EncryptingCredentials) (string, error)
	Parse(token string, creds []SigningCredentials) (map[string]any, error)
}

// TicketFormat serializes/deserializes an AuthenticationTicket to/from the
// opaque wire representation used when no JWTHandler is configured for a
// given token kind (spec.md §6).
type TicketFormat interface {
	Protect(t *AuthenticationTicket, purpose string) (string, error)
	Unprotect(data string, purpose string) (*AuthenticationTicket, error)
}

// Options is the frozen configuration described in spec.md §3. It is
// validated eagerly by New and never mutated afterward.
type Options struct {
	Issuer string

	AuthorizationEndpoint string
	ConfigurationEndpoint string
	CryptographyEndpoint  string
	TokenEndpoint         string
	UserinfoEndpoint      string
	IntrospectionEndpoint string
	RevocationEndpoint    string
	LogoutEndpoint        string

	AccessTokenLifetime        time.Duration
	AuthorizationCodeLifetime  time.Duration
	RefreshTokenLifetime       time.Duration
	IdentityTokenLifetime      time.Duration

	SigningCredentials    []SigningCredentials
	EncryptingCredentials []EncryptingCredentials

	Cache Cache

	AccessTokenFormat       TicketFormat
	AuthorizationCodeFormat TicketFormat
	RefreshTokenFormat      TicketFormat
	AccessTokenJWTHandler   JWTHandler
	IdentityTokenJWTHandler JWTHandler

	Clock Clock
	RNG   RNG

	Provider ProviderHooks

	// Instrumentation is optional; when nil, the dispatcher and token
	// service skip metric/span emission entirely.
	Instrumentation *instrumentation.Instrumentation

	AllowInsecureHTTP           bool
	UseSlidingExpiration        bool
	ApplicationCanDisplayErrors bool
}

// Default lifetimes applied by New when the caller leaves a duration zero.
const (
	DefaultAccessTokenLifetime       = 1 * time.Hour
	DefaultAuthorizationCodeLifetime = 5 * time.Minute
	DefaultRefreshTokenLifetime      = 14 * 24 * time.Hour
	DefaultIdentityTokenLifetime     = 20 * time.Minute
)

// New validates opts and returns a ready-to-use Options, or an error if a
// required field is missing or malformed. Construction-time validation
// matches spec.md §7 ("Invariants about options are checked at middleware
// construction time").
func New(opts Options) (*Options, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("provider: issuer is required")
	}
	u, err := url.Parse(opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("provider: invalid issuer: %w", err)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("provider: issuer must not contain a query or fragment")
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("provider: issuer must be an absolute URI")
	}
	if u.Scheme != "https" && !opts.AllowInsecureHTTP {
		return nil, fmt.Errorf("provider: issuer must use https unless AllowInsecureHTTP is set")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider: Provider is required")
	}
	if opts.RNG == nil {
		return nil, fmt.Errorf("provider: RNG is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.AccessTokenLifetime == 0 {
		opts.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if opts.AuthorizationCodeLifetime == 0 {
		opts.AuthorizationCodeLifetime = DefaultAuthorizationCodeLifetime
	}
	if opts.RefreshTokenLifetime == 0 {
		opts.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	if opts.IdentityTokenLifetime == 0 {
		opts.IdentityTokenLifetime = DefaultIdentityTokenLifetime
	}

	o := opts
	return &o, nil
}

// IssuerURL returns the issuer joined with path, e.g. for building endpoint
// URLs in the discovery document (spec.md §4.2).
func (o *Options) IssuerURL(path string) string {
	base := strings.TrimSuffix(o.Issuer, "/")
	if path == "" {
		return base
	}
	return base + path
}

// ValidateRedirectURI checks the absolute/no-fragment/HTTPS invariant
// spec.md §3 places on redirect_uri, adapted from the teacher pack's
// SSRF-aware URL validation pattern (providers/oidc/validation.go in
// giantswarm-mcp-oauth) generalized here to "no private-network bypass of
// the scheme rule" rather than blocking private IPs outright, since
// redirect URIs legitimately point at developer machines. The one
// exception to the HTTPS requirement is a loopback host, per RFC 8252
// §7.3: native-app clients redirect to an ephemeral localhost listener
// that cannot hold a TLS certificate.
func (o *Options) ValidateRedirectURI(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect_uri is not a valid URI: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("redirect_uri must be absolute")
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment")
	}
	if u.Scheme != "https" && !o.AllowInsecureHTTP {
		if u.Scheme != "http" || !helpers.IsLoopbackHostname(u.Hostname()) {
			return fmt.Errorf("redirect_uri must use https")
		}
	}
	return nil
}
