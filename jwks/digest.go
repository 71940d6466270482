package jwks

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
)

// DigestForAlg resolves Open Question 3 from spec.md §9: c_hash and
// at_hash are computed by left-half-truncating the hash named by the
// signing algorithm's bit size (OIDC Core §3.3.2.11), not a fixed SHA-256.
// RS256/ES256/PS256 hash with SHA-256, the 384 variants with SHA-384, the
// 512 variants with SHA-512.
func DigestForAlg(alg string) (crypto.Hash, error) {
	switch alg {
	case "RS256", "ES256", "PS256", "HS256":
		return crypto.SHA256, nil
	case "RS384", "ES384", "PS384", "HS384":
		return crypto.SHA384, nil
	case "RS512", "ES512", "PS512", "HS512":
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("jwks: no digest mapping for algorithm %q", alg)
	}
}

// LeftHalfHash computes the left-half-hash of token as used for c_hash and
// at_hash: hash the ASCII bytes of the token with the algorithm's digest,
// then take the first half of the output.
func LeftHalfHash(alg string, token string) ([]byte, error) {
	h, err := DigestForAlg(alg)
	if err != nil {
		return nil, err
	}
	var sum []byte
	switch h {
	case crypto.SHA256:
		s := sha256.Sum256([]byte(token))
		sum = s[:]
	case crypto.SHA384:
		s := sha512.Sum384([]byte(token))
		sum = s[:]
	case crypto.SHA512:
		s := sha512.Sum512([]byte(token))
		sum = s[:]
	default:
		return nil, fmt.Errorf("jwks: unsupported digest %v", h)
	}
	return sum[:len(sum)/2], nil
}
