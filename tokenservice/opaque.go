package tokenservice

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
)

// OpaqueFormat implements provider.TicketFormat by serializing a ticket
// through provider's versioned binary envelope (spec.md §6) and protecting
// it with an AES-256-GCM Encryptor, reusing the teacher's at-rest
// encryption layer as the envelope's AEAD layer rather than inventing a
// second one.
type OpaqueFormat struct {
	encryptor *security.Encryptor
}

var _ provider.TicketFormat = (*OpaqueFormat)(nil)

// NewOpaqueFormat builds an OpaqueFormat backed by encryptor. encryptor
// must be non-nil; callers that want encryption disabled should pass one
// built from security.NewEncryptor(nil).
func NewOpaqueFormat(encryptor *security.Encryptor) *OpaqueFormat {
	return &OpaqueFormat{encryptor: encryptor}
}

// Protect encodes t into the binary envelope, prefixes it with purpose so
// a ticket minted for one purpose (e.g. "access_token") can't be replayed
// as another ("refresh_token") even if both share a cache, then encrypts
// the result.
func (f *OpaqueFormat) Protect(t *provider.AuthenticationTicket, purpose string) (string, error) {
	envelope, err := provider.EncodeEnvelope(t)
	if err != nil {
		return "", fmt.Errorf("tokenservice: encode envelope: %w", err)
	}
	tagged := purpose + "\x00" + base64.RawURLEncoding.EncodeToString(envelope)
	return f.encryptor.Encrypt(tagged)
}

// Unprotect decrypts data, verifies the purpose tag matches, and decodes
// the recovered envelope back into a ticket.
func (f *OpaqueFormat) Unprotect(data string, purpose string) (*provider.AuthenticationTicket, error) {
	tagged, err := f.encryptor.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("tokenservice: decrypt: %w", err)
	}
	parts := strings.SplitN(tagged, "\x00", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("tokenservice: malformed opaque ticket")
	}
	if parts[0] != purpose {
		return nil, fmt.Errorf("tokenservice: ticket purpose mismatch: got %q, want %q", parts[0], purpose)
	}
	envelope, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("tokenservice: decode envelope: %w", err)
	}
	t, err := provider.DecodeEnvelope(envelope)
	if err != nil {
		return nil, fmt.Errorf("tokenservice: decode ticket: %w", err)
	}
	return t, nil
}
