// Package jwks builds the JSON Web Key Set the cryptography endpoint
// serves and the digest table used to compute c_hash/at_hash, following
// the field layout spec.md §3 lays out for JsonWebKey rather than a raw
// jose.JSONWebKeySet marshal.
package jwks

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"

	"github.com/ironvault/oidcmw/provider"
)

// JsonWebKey is the wire shape of one entry in the JWKS response, matching
// spec.md §3 field-for-field.
type JsonWebKey struct {
	Kty     string   `json:"kty"`
	Use     string   `json:"use,omitempty"`
	Alg     string   `json:"alg,omitempty"`
	Kid     string   `json:"kid,omitempty"`
	E       string   `json:"e,omitempty"`
	N       string   `json:"n,omitempty"`
	X5T     string   `json:"x5t,omitempty"`
	X5U     string   `json:"x5u,omitempty"`
	X5C     []string `json:"x5c,omitempty"`
	KeyOps  []string `json:"key_ops,omitempty"`
}

// Set is the top-level `{"keys": [...]}` document the endpoint serves.
type Set struct {
	Keys []JsonWebKey `json:"keys"`
}

// FromSigningCredentials builds the `sig`-use entries for the JWKS
// response, per spec.md §4.3: only RS256 credentials that carry a private
// key are emitted; any other credential is skipped here.
func FromSigningCredentials(creds []provider.SigningCredentials) []JsonWebKey {
	var keys []JsonWebKey
	for _, c := range creds {
		if c.PrivateKey == nil || c.Algorithm != "RS256" {
			continue
		}
		jwk := JsonWebKey{
			Kty: "RSA",
			Use: "sig",
			Alg: c.Algorithm,
			Kid: c.Kid,
			N:   base64.RawURLEncoding.EncodeToString(c.PrivateKey.PublicKey.N.Bytes()),
			E:   encodeExponent(c.PrivateKey.PublicKey.E),
		}
		attachCertificate(&jwk, c.Certificate)
		keys = append(keys, jwk)
	}
	return keys
}

// FromEncryptingCredentials builds the `enc`-use entries, per spec.md
// §4.3: only RSA-OAEP or RSA1_5 algorithms are accepted.
func FromEncryptingCredentials(creds []provider.EncryptingCredentials) []JsonWebKey {
	var keys []JsonWebKey
	for _, c := range creds {
		if c.PrivateKey == nil {
			continue
		}
		if c.Algorithm != "RSA-OAEP" && c.Algorithm != "RSA1_5" {
			continue
		}
		jwk := JsonWebKey{
			Kty: "RSA",
			Use: "enc",
			Alg: c.Algorithm,
			Kid: c.Kid,
			N:   base64.RawURLEncoding.EncodeToString(c.PrivateKey.PublicKey.N.Bytes()),
			E:   encodeExponent(c.PrivateKey.PublicKey.E),
		}
		attachCertificate(&jwk, c.Certificate)
		keys = append(keys, jwk)
	}
	return keys
}

func encodeExponent(e int) string {
	b := big3(e)
	return base64.RawURLEncoding.EncodeToString(b)
}

// big3 encodes a small positive int (RSA public exponent, typically 65537)
// as big-endian bytes with no leading zero byte.
func big3(e int) []byte {
	if e == 0 {
		return []byte{0}
	}
	var b []byte
	for e > 0 {
		b = append([]byte{byte(e & 0xff)}, b...)
		e >>= 8
	}
	return b
}

func attachCertificate(jwk *JsonWebKey, cert *x509.Certificate) {
	if cert == nil {
		return
	}
	sum := sha1.Sum(cert.Raw)
	jwk.X5T = base64.RawURLEncoding.EncodeToString(sum[:])
	jwk.X5C = []string{base64.StdEncoding.EncodeToString(cert.Raw)}
}
