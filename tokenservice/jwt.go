// Package tokenservice implements the ~25% "Token service" component of
// spec.md §4.7: minting and consuming the four ticket-backed token kinds
// (access, identity, refresh, authorization code), branching between
// signed JWTs and opaque AEAD-protected envelopes depending on which
// credentials the caller configured.
package tokenservice

import (
	"fmt"

	josejwt "github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ironvault/oidcmw/provider"
)

// JWTHandler implements provider.JWTHandler using golang-jwt/jwt/v5 for the
// signing layer, grounded on OpenCHAMI-tokensmith's TokenManager.
// GenerateToken/ParseToken (jwt.NewWithClaims + SignedString for issuance,
// jwt.ParseWithClaims + Keyfunc for verification), and go-jose/go-jose/v3
// for the optional JWE nesting layer (irai-oidcd and stacklok-toolhive both
// carry go-jose for RSA-OAEP/RSA1_5 JWE), grounded on spec.md §4.7's
// "emit a signed JWT with ... the configured signing/encrypting
// credentials" — a signed JWT becomes the plaintext of a nested JWE per
// RFC 7519 §5.2 when encrypting credentials are configured.
type JWTHandler struct{}

var _ provider.JWTHandler = JWTHandler{}

// Sign signs claims as a compact JWT using cred's algorithm and private
// key, then, if encrypting is non-nil, nests the result inside a JWE
// compact serialization addressed to encrypting's public key.
func (JWTHandler) Sign(claims map[string]any, cred provider.SigningCredentials, encrypting *provider.EncryptingCredentials) (string, error) {
	if cred.PrivateKey == nil {
		return "", fmt.Errorf("tokenservice: signing credentials have no private key")
	}
	method := jwt.GetSigningMethod(cred.Algorithm)
	if method == nil {
		return "", fmt.Errorf("tokenservice: unsupported signing algorithm %q", cred.Algorithm)
	}
	token := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	token.Header["kid"] = cred.Kid
	signed, err := token.SignedString(cred.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("tokenservice: sign token: %w", err)
	}
	if encrypting == nil {
		return signed, nil
	}
	return encryptNested(signed, *encrypting)
}

// encryptNested wraps a compact JWS in a compact JWE, marking the
// plaintext's content type "JWT" so a conformant consumer knows to parse
// the decrypted payload as a nested token (RFC 7519 §5.2).
func encryptNested(signed string, cred provider.EncryptingCredentials) (string, error) {
	if cred.PrivateKey == nil {
		return "", fmt.Errorf("tokenservice: encrypting credentials have no private key")
	}
	alg := josejwt.KeyAlgorithm(cred.Algorithm)
	enc := josejwt.ContentEncryption(cred.Encryption)
	if enc == "" {
		enc = josejwt.A128CBC_HS256
	}
	encrypter, err := josejwt.NewEncrypter(enc, josejwt.Recipient{
		Algorithm: alg,
		Key:       &cred.PrivateKey.PublicKey,
		KeyID:     cred.Kid,
	}, (&josejwt.EncrypterOptions{}).WithContentType("JWT").WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("tokenservice: build JWE encrypter: %w", err)
	}
	obj, err := encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", fmt.Errorf("tokenservice: encrypt nested JWT: %w", err)
	}
	out, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("tokenservice: serialize JWE: %w", err)
	}
	return out, nil
}

// decryptNested reverses encryptNested: it decrypts a compact JWE and
// returns the enclosed compact JWS for JWTHandler.Parse to verify.
func decryptNested(token string, creds []provider.EncryptingCredentials) (string, error) {
	obj, err := josejwt.ParseEncrypted(token)
	if err != nil {
		return "", fmt.Errorf("tokenservice: parse JWE: %w", err)
	}
	for _, c := range creds {
		if c.PrivateKey == nil {
			continue
		}
		plaintext, err := obj.Decrypt(c.PrivateKey)
		if err == nil {
			return string(plaintext), nil
		}
	}
	return "", fmt.Errorf("tokenservice: no encrypting credential could decrypt token")
}

// Parse verifies tokenString against creds (selecting by the token's "kid"
// header when present, otherwise using the first credential) and returns its
// claims as a map.
func (JWTHandler) Parse(tokenString string, creds []provider.SigningCredentials) (map[string]any, error) {
	if len(creds) == 0 {
		return nil, fmt.Errorf("tokenservice: no verification credentials configured")
	}

	keyfunc := func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid != "" {
			for _, c := range creds {
				if c.Kid == kid && c.PrivateKey != nil {
					return &c.PrivateKey.PublicKey, nil
				}
			}
			return nil, fmt.Errorf("tokenservice: no verification key for kid %q", kid)
		}
		return &creds[0].PrivateKey.PublicKey, nil
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, keyfunc)
	if err != nil {
		return nil, fmt.Errorf("tokenservice: parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("tokenservice: token failed validation")
	}
	return map[string]any(claims), nil
}

// ParseNested decrypts tokenString with encCreds if it is a compact JWE,
// then verifies the enclosed (or, if tokenString was never encrypted,
// the original) compact JWS against sigCreds. It lets ReceiveAccessToken
// stay agnostic of whether CreateAccessToken nested a JWE.
func (h JWTHandler) ParseNested(tokenString string, sigCreds []provider.SigningCredentials, encCreds []provider.EncryptingCredentials) (map[string]any, error) {
	inner := tokenString
	if len(encCreds) > 0 && looksLikeJWE(tokenString) {
		decrypted, err := decryptNested(tokenString, encCreds)
		if err != nil {
			return nil, err
		}
		inner = decrypted
	}
	return h.Parse(inner, sigCreds)
}

// looksLikeJWE distinguishes a 5-part compact JWE from a 3-part compact
// JWS without fully parsing either.
func looksLikeJWE(token string) bool {
	dots := 0
	for _, r := range token {
		if r == '.' {
			dots++
		}
	}
	return dots == 4
}

// ParseIgnoringExpiry verifies the signature but skips the exp/nbf/iat
// checks, for logout's id_token_hint (OIDC RP-Initiated Logout 1.0 §2: the
// hint is expected to arrive after the session, and often the token itself,
// has expired — only its signature is checked here).
func (h JWTHandler) ParseIgnoringExpiry(tokenString string, creds []provider.SigningCredentials) (map[string]any, error) {
	if len(creds) == 0 {
		return nil, fmt.Errorf("tokenservice: no verification credentials configured")
	}
	keyfunc := func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid != "" {
			for _, c := range creds {
				if c.Kid == kid && c.PrivateKey != nil {
					return &c.PrivateKey.PublicKey, nil
				}
			}
			return nil, fmt.Errorf("tokenservice: no verification key for kid %q", kid)
		}
		return &creds[0].PrivateKey.PublicKey, nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(tokenString, claims, keyfunc); err != nil {
		return nil, fmt.Errorf("tokenservice: parse token: %w", err)
	}
	return map[string]any(claims), nil
}
