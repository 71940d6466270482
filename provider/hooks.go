package provider

// ProviderHooks is the application-supplied contract the dispatcher invokes
// at every decision point named in spec.md §4. Each endpoint exposes a
// Validate*/Handle*/Apply* triad: Validate checks preconditions, Handle
// performs the application-specific work (authenticating a resource owner,
// looking up a client, minting claims), and Apply gives the application a
// last chance to edit the outgoing response before it is written.
//
// Embed NoopProviderHooks to implement only the hooks a given deployment
// cares about; every other hook defaults to "not touched" (the context is
// left neither validated, rejected, handled nor skipped), which
// tells the dispatcher to fall through to its own default behavior where
// one exists, or to reject the request where no safe default exists.
type ProviderHooks interface {
	// MatchEndpoint lets the application override which endpoint a request
	// was classified as (SetEndpoint), write the response itself
	// (HandleResponse), or pass the request on to the next handler (Skip);
	// rejecting the context has no effect here (spec.md §4.1).
	MatchEndpoint(ctx *MatchEndpointContext)

	// Configuration (discovery) endpoint, spec.md §4.2.
	ValidateConfigurationRequest(ctx *ConfigurationContext)
	HandleConfigurationRequest(ctx *ConfigurationContext)
	ApplyConfigurationResponse(ctx *ConfigurationContext)

	// Cryptography (JWKS) endpoint, spec.md §4.3.
	ValidateCryptographyRequest(ctx *CryptographyContext)
	HandleCryptographyRequest(ctx *CryptographyContext)
	ApplyCryptographyResponse(ctx *CryptographyContext)

	// Authorization endpoint, spec.md §4.4.
	ValidateClientRedirectURI(ctx *AuthorizationContext)
	ValidateAuthorizationRequest(ctx *AuthorizationContext)
	HandleAuthorizationRequest(ctx *AuthorizationContext)
	ApplyAuthorizationResponse(ctx *AuthorizationContext)

	// Token endpoint, spec.md §4.5.
	ValidateClientAuthentication(ctx *TokenContext)
	GrantAuthorizationCode(ctx *TokenContext)
	GrantRefreshToken(ctx *TokenContext)
	GrantClientCredentials(ctx *TokenContext)
	GrantResourceOwnerCredentials(ctx *TokenContext)
	GrantCustomExtension(ctx *TokenContext)
	HandleTokenRequest(ctx *TokenContext)
	ApplyTokenResponse(ctx *TokenContext)

	// Userinfo endpoint, spec.md §4.6.
	ValidateUserinfoRequest(ctx *UserinfoContext)
	HandleUserinfoRequest(ctx *UserinfoContext)

	// Introspection endpoint, SPEC_FULL.md §4.
	ValidateIntrospectionRequest(ctx *IntrospectionContext)
	HandleIntrospectionRequest(ctx *IntrospectionContext)
	ApplyIntrospectionResponse(ctx *IntrospectionContext)

	// Revocation endpoint, SPEC_FULL.md §4.
	ValidateRevocationRequest(ctx *RevocationContext)
	HandleRevocationRequest(ctx *RevocationContext)
	ApplyRevocationResponse(ctx *RevocationContext)

	// Logout endpoint, SPEC_FULL.md §4.
	ValidateClientLogoutRedirectUri(ctx *LogoutContext)
	ValidateLogoutRequest(ctx *LogoutContext)
	HandleLogoutRequest(ctx *LogoutContext)
	ApplyLogoutResponse(ctx *LogoutContext)

	// Token-lifecycle hooks invoked while building/consuming a ticket,
	// spec.md §4.8: CreateAccessToken and friends let the application
	// inspect or augment claims just before signing; Receive* hooks run
	// just after a presented token's ticket has been recovered.
	CreateAccessToken(ctx *TokenContext)
	CreateIdentityToken(ctx *TokenContext)
	CreateRefreshToken(ctx *TokenContext)
	ReceiveAccessToken(ctx *TokenContext)
	ReceiveIdentityToken(ctx *TokenContext)
	ReceiveRefreshToken(ctx *TokenContext)
}

// NoopProviderHooks implements every ProviderHooks method as a no-op that
// leaves the context unvalidated and unrejected, so the dispatcher applies
// its built-in default for that step. Embed it in an application's hooks
// type to override only the methods that need custom behavior.
type NoopProviderHooks struct{}

func (NoopProviderHooks) MatchEndpoint(ctx *MatchEndpointContext) {}

func (NoopProviderHooks) ValidateConfigurationRequest(ctx *ConfigurationContext) {}
func (NoopProviderHooks) HandleConfigurationRequest(ctx *ConfigurationContext)   {}
func (NoopProviderHooks) ApplyConfigurationResponse(ctx *ConfigurationContext)   {}

func (NoopProviderHooks) ValidateCryptographyRequest(ctx *CryptographyContext) {}
func (NoopProviderHooks) HandleCryptographyRequest(ctx *CryptographyContext)   {}
func (NoopProviderHooks) ApplyCryptographyResponse(ctx *CryptographyContext)   {}

func (NoopProviderHooks) ValidateClientRedirectURI(ctx *AuthorizationContext)    {}
func (NoopProviderHooks) ValidateAuthorizationRequest(ctx *AuthorizationContext) {}
func (NoopProviderHooks) HandleAuthorizationRequest(ctx *AuthorizationContext)   {}
func (NoopProviderHooks) ApplyAuthorizationResponse(ctx *AuthorizationContext)   {}

func (NoopProviderHooks) ValidateClientAuthentication(ctx *TokenContext)  {}
func (NoopProviderHooks) GrantAuthorizationCode(ctx *TokenContext)        {}
func (NoopProviderHooks) GrantRefreshToken(ctx *TokenContext)             {}
func (NoopProviderHooks) GrantClientCredentials(ctx *TokenContext)        {}
func (NoopProviderHooks) GrantResourceOwnerCredentials(ctx *TokenContext) {}
func (NoopProviderHooks) GrantCustomExtension(ctx *TokenContext)          {}
func (NoopProviderHooks) HandleTokenRequest(ctx *TokenContext)            {}
func (NoopProviderHooks) ApplyTokenResponse(ctx *TokenContext)            {}

func (NoopProviderHooks) ValidateUserinfoRequest(ctx *UserinfoContext) {}
func (NoopProviderHooks) HandleUserinfoRequest(ctx *UserinfoContext)   {}

func (NoopProviderHooks) ValidateIntrospectionRequest(ctx *IntrospectionContext) {}
func (NoopProviderHooks) HandleIntrospectionRequest(ctx *IntrospectionContext)   {}
func (NoopProviderHooks) ApplyIntrospectionResponse(ctx *IntrospectionContext)   {}

func (NoopProviderHooks) ValidateRevocationRequest(ctx *RevocationContext) {}
func (NoopProviderHooks) HandleRevocationRequest(ctx *RevocationContext)   {}
func (NoopProviderHooks) ApplyRevocationResponse(ctx *RevocationContext)   {}

func (NoopProviderHooks) ValidateClientLogoutRedirectUri(ctx *LogoutContext) {}
func (NoopProviderHooks) ValidateLogoutRequest(ctx *LogoutContext)           {}
func (NoopProviderHooks) HandleLogoutRequest(ctx *LogoutContext)             {}
func (NoopProviderHooks) ApplyLogoutResponse(ctx *LogoutContext)             {}

func (NoopProviderHooks) CreateAccessToken(ctx *TokenContext)    {}
func (NoopProviderHooks) CreateIdentityToken(ctx *TokenContext)  {}
func (NoopProviderHooks) CreateRefreshToken(ctx *TokenContext)   {}
func (NoopProviderHooks) ReceiveAccessToken(ctx *TokenContext)   {}
func (NoopProviderHooks) ReceiveIdentityToken(ctx *TokenContext) {}
func (NoopProviderHooks) ReceiveRefreshToken(ctx *TokenContext)  {}
