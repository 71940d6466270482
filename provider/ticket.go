package provider

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Well-known claim types and defaults used by the opaque ticket envelope's
// sentinel-substitution scheme (spec.md §6, item 2).
const (
	DefaultNameClaimType = "name"
	DefaultRoleClaimType = "role"
	DefaultValueType     = "http://www.w3.org/2001/XMLSchema#string"
	DefaultIssuer        = "LOCAL AUTHORITY"

	ClaimTypeNameIdentifier = "nameidentifier"
	ClaimTypeSubject        = "sub"

	// DestinationAccessToken and DestinationIdentityToken are the two
	// tokens a claim's "destinations" property may contain, per spec.md §3.
	DestinationAccessToken   = "token"
	DestinationIdentityToken = "id_token"

	// destinationsPropertyKey is the well-known Claim.Properties key
	// holding a space-separated list of destination tokens.
	destinationsPropertyKey = "destinations"
)

// Claim is a single assertion inside an Identity, per spec.md §3.
type Claim struct {
	Type            string
	Value           string
	ValueType       string
	Issuer          string
	OriginalIssuer  string
	Properties      map[string]string
}

// NewClaim builds a Claim defaulting ValueType/Issuer/OriginalIssuer to the
// envelope's well-known sentinels.
func NewClaim(claimType, value string) Claim {
	return Claim{
		Type:           claimType,
		Value:          value,
		ValueType:      DefaultValueType,
		Issuer:         DefaultIssuer,
		OriginalIssuer: DefaultIssuer,
		Properties:     map[string]string{},
	}
}

// Destinations parses the claim's destinations property.
func (c Claim) Destinations() []string {
	raw, ok := c.Properties[destinationsPropertyKey]
	if !ok || raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ' ' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// HasDestination reports whether dest is among the claim's destinations.
func (c Claim) HasDestination(dest string) bool {
	for _, d := range c.Destinations() {
		if d == dest {
			return true
		}
	}
	return false
}

// WithDestinations returns a copy of c with its destinations property set.
func (c Claim) WithDestinations(dests ...string) Claim {
	props := make(map[string]string, len(c.Properties)+1)
	for k, v := range c.Properties {
		props[k] = v
	}
	joined := ""
	for i, d := range dests {
		if i > 0 {
			joined += " "
		}
		joined += d
	}
	props[destinationsPropertyKey] = joined
	c.Properties = props
	return c
}

// Identity is a claims-bearing principal authenticated under scheme, per
// spec.md §3.
type Identity struct {
	AuthenticationScheme string
	NameClaimType        string
	RoleClaimType        string
	Claims               []Claim
}

// NewIdentity builds an Identity with the envelope's default claim types.
func NewIdentity(scheme string) *Identity {
	return &Identity{
		AuthenticationScheme: scheme,
		NameClaimType:        DefaultNameClaimType,
		RoleClaimType:        DefaultRoleClaimType,
	}
}

// FindFirst returns the first claim of the given type, if any.
func (id *Identity) FindFirst(claimType string) (Claim, bool) {
	if id == nil {
		return Claim{}, false
	}
	for _, c := range id.Claims {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

// AddClaim appends a claim to the identity.
func (id *Identity) AddClaim(c Claim) {
	id.Claims = append(id.Claims, c)
}

// Properties is the ticket-level string dictionary plus the two well-known
// timestamps, per spec.md §3.
type Properties struct {
	Items      map[string]string
	IssuedUTC  time.Time
	ExpiresUTC time.Time
}

// NewProperties returns an initialized, empty Properties.
func NewProperties() *Properties {
	return &Properties{Items: map[string]string{}}
}

// Get returns a stored property value.
func (p *Properties) Get(key string) (string, bool) {
	if p == nil || p.Items == nil {
		return "", false
	}
	v, ok := p.Items[key]
	return v, ok
}

// Set stores a property value.
func (p *Properties) Set(key, value string) {
	if p.Items == nil {
		p.Items = map[string]string{}
	}
	p.Items[key] = value
}

// Well-known Properties keys used to remember the client/redirect bound to
// an authorization code so the token endpoint can verify the match on
// redemption, per spec.md §4.4 and §4.5, invariant 6.
const (
	PropertyClientID    = "client_id"
	PropertyRedirectURI = "redirect_uri"

	// PropertyAudiences holds a space-separated list of resource
	// indicators (spec.md §3's "resource" field) the ticket was scoped
	// to, distinct from PropertyClientID: the client is the token's
	// presenter, not necessarily one of its audiences (GLOSSARY,
	// "Presenter"). The userinfo endpoint (spec.md §4.6) derives its
	// optional "aud" claim from this property.
	PropertyAudiences = "audiences"
)

// AuthenticationTicket is the (Identity, Properties) pair the core passes
// between hooks and the token service, with optional delegation via Actor,
// per spec.md §3 and §9 ("Cyclic reference from ticket to actor").
type AuthenticationTicket struct {
	Identity   *Identity
	Properties *Properties
	Actor      *AuthenticationTicket
}

// NewTicket builds a ticket for scheme with fresh, empty properties.
func NewTicket(scheme string) *AuthenticationTicket {
	return &AuthenticationTicket{
		Identity:   NewIdentity(scheme),
		Properties: NewProperties(),
	}
}

// Clone returns a deep-enough copy of the ticket safe for a token creator
// to mutate (claims slice and properties map are copied; the Actor chain is
// cloned recursively since it is owned, not shared, per spec.md §9).
func (t *AuthenticationTicket) Clone() *AuthenticationTicket {
	if t == nil {
		return nil
	}
	out := &AuthenticationTicket{}
	if t.Identity != nil {
		claims := make([]Claim, len(t.Identity.Claims))
		for i, c := range t.Identity.Claims {
			props := make(map[string]string, len(c.Properties))
			for k, v := range c.Properties {
				props[k] = v
			}
			c.Properties = props
			claims[i] = c
		}
		out.Identity = &Identity{
			AuthenticationScheme: t.Identity.AuthenticationScheme,
			NameClaimType:        t.Identity.NameClaimType,
			RoleClaimType:        t.Identity.RoleClaimType,
			Claims:               claims,
		}
	}
	if t.Properties != nil {
		items := make(map[string]string, len(t.Properties.Items))
		for k, v := range t.Properties.Items {
			items[k] = v
		}
		out.Properties = &Properties{Items: items, IssuedUTC: t.Properties.IssuedUTC, ExpiresUTC: t.Properties.ExpiresUTC}
	}
	out.Actor = t.Actor.Clone()
	return out
}

// --- Opaque ticket binary envelope (spec.md §6) ---

// EnvelopeVersion is the current format version written by EncodeEnvelope.
const EnvelopeVersion int32 = 3

func writeString(buf *bytes.Buffer, def, s string) {
	if s == def {
		s = "\x00"
	}
	b := []byte(s)
	_ = binary.Write(buf, binary.LittleEndian, int32(len(b)))
	buf.Write(b)
}

func readString(r *bytes.Reader, def string) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("provider: negative string length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	s := string(b)
	if s == "\x00" {
		return def, nil
	}
	return s, nil
}

// EncodeEnvelope serializes a ticket into the versioned binary envelope
// described in spec.md §6, ready to be handed to an AEAD layer.
func EncodeEnvelope(t *AuthenticationTicket) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, EnvelopeVersion); err != nil {
		return nil, err
	}

	id := t.Identity
	if id == nil {
		id = NewIdentity("")
	}
	writeString(buf, "", id.AuthenticationScheme)
	writeString(buf, DefaultNameClaimType, id.NameClaimType)
	writeString(buf, DefaultRoleClaimType, id.RoleClaimType)

	_ = binary.Write(buf, binary.LittleEndian, int32(len(id.Claims)))
	for _, c := range id.Claims {
		writeString(buf, id.NameClaimType, c.Type)
		writeString(buf, "", c.Value)
		writeString(buf, DefaultValueType, c.ValueType)
		writeString(buf, DefaultIssuer, c.Issuer)
		writeString(buf, c.Issuer, c.OriginalIssuer)
		_ = binary.Write(buf, binary.LittleEndian, int32(len(c.Properties)))
		for k, v := range c.Properties {
			writeString(buf, "", k)
			writeString(buf, "", v)
		}
	}

	// Bootstrap-context token: unused by this core, length 0 = absent.
	_ = binary.Write(buf, binary.LittleEndian, int32(0))

	if t.Actor != nil {
		_ = binary.Write(buf, binary.LittleEndian, true)
		actorBytes, err := EncodeEnvelope(t.Actor)
		if err != nil {
			return nil, err
		}
		_ = binary.Write(buf, binary.LittleEndian, int32(len(actorBytes)))
		buf.Write(actorBytes)
	} else {
		_ = binary.Write(buf, binary.LittleEndian, false)
	}

	props := t.Properties
	if props == nil {
		props = NewProperties()
	}
	_ = binary.Write(buf, binary.LittleEndian, int32(len(props.Items)))
	for k, v := range props.Items {
		writeString(buf, "", k)
		writeString(buf, "", v)
	}
	issuedUnix := int64(0)
	if !props.IssuedUTC.IsZero() {
		issuedUnix = props.IssuedUTC.Unix()
	}
	expiresUnix := int64(0)
	if !props.ExpiresUTC.IsZero() {
		expiresUnix = props.ExpiresUTC.Unix()
	}
	_ = binary.Write(buf, binary.LittleEndian, issuedUnix)
	_ = binary.Write(buf, binary.LittleEndian, expiresUnix)

	return buf.Bytes(), nil
}

// DecodeEnvelope parses the binary envelope produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (*AuthenticationTicket, error) {
	r := bytes.NewReader(data)

	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("provider: reading envelope version: %w", err)
	}
	if version != EnvelopeVersion {
		return nil, fmt.Errorf("provider: unsupported envelope version %d", version)
	}

	scheme, err := readString(r, "")
	if err != nil {
		return nil, err
	}
	nameClaimType, err := readString(r, DefaultNameClaimType)
	if err != nil {
		return nil, err
	}
	roleClaimType, err := readString(r, DefaultRoleClaimType)
	if err != nil {
		return nil, err
	}

	var claimCount int32
	if err := binary.Read(r, binary.LittleEndian, &claimCount); err != nil {
		return nil, err
	}
	if claimCount < 0 {
		return nil, fmt.Errorf("provider: negative claim count %d", claimCount)
	}
	claims := make([]Claim, 0, claimCount)
	for i := int32(0); i < claimCount; i++ {
		claimType, err := readString(r, nameClaimType)
		if err != nil {
			return nil, err
		}
		value, err := readString(r, "")
		if err != nil {
			return nil, err
		}
		valueType, err := readString(r, DefaultValueType)
		if err != nil {
			return nil, err
		}
		issuer, err := readString(r, DefaultIssuer)
		if err != nil {
			return nil, err
		}
		originalIssuer, err := readString(r, issuer)
		if err != nil {
			return nil, err
		}
		var propCount int32
		if err := binary.Read(r, binary.LittleEndian, &propCount); err != nil {
			return nil, err
		}
		props := make(map[string]string, propCount)
		for j := int32(0); j < propCount; j++ {
			k, err := readString(r, "")
			if err != nil {
				return nil, err
			}
			v, err := readString(r, "")
			if err != nil {
				return nil, err
			}
			props[k] = v
		}
		claims = append(claims, Claim{
			Type: claimType, Value: value, ValueType: valueType,
			Issuer: issuer, OriginalIssuer: originalIssuer, Properties: props,
		})
	}

	var bootstrapLen int32
	if err := binary.Read(r, binary.LittleEndian, &bootstrapLen); err != nil {
		return nil, err
	}
	if bootstrapLen > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(bootstrapLen)); err != nil {
			return nil, err
		}
	}

	var hasActor bool
	if err := binary.Read(r, binary.LittleEndian, &hasActor); err != nil {
		return nil, err
	}
	var actor *AuthenticationTicket
	if hasActor {
		var actorLen int32
		if err := binary.Read(r, binary.LittleEndian, &actorLen); err != nil {
			return nil, err
		}
		actorBytes := make([]byte, actorLen)
		if _, err := io.ReadFull(r, actorBytes); err != nil {
			return nil, err
		}
		actor, err = DecodeEnvelope(actorBytes)
		if err != nil {
			return nil, err
		}
	}

	var propCount int32
	if err := binary.Read(r, binary.LittleEndian, &propCount); err != nil {
		return nil, err
	}
	items := make(map[string]string, propCount)
	for i := int32(0); i < propCount; i++ {
		k, err := readString(r, "")
		if err != nil {
			return nil, err
		}
		v, err := readString(r, "")
		if err != nil {
			return nil, err
		}
		items[k] = v
	}
	var issuedUnix, expiresUnix int64
	if err := binary.Read(r, binary.LittleEndian, &issuedUnix); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &expiresUnix); err != nil {
		return nil, err
	}

	props := &Properties{Items: items}
	if issuedUnix != 0 {
		props.IssuedUTC = time.Unix(issuedUnix, 0).UTC()
	}
	if expiresUnix != 0 {
		props.ExpiresUTC = time.Unix(expiresUnix, 0).UTC()
	}

	return &AuthenticationTicket{
		Identity: &Identity{
			AuthenticationScheme: scheme,
			NameClaimType:        nameClaimType,
			RoleClaimType:        roleClaimType,
			Claims:               claims,
		},
		Properties: props,
		Actor:      actor,
	}, nil
}

