package main

import (
	"crypto/subtle"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
)

// demoClient is a statically registered relying party, standing in for
// whatever persistence layer a real deployment would put behind
// ValidateClientAuthentication and ValidateClientRedirectURI.
type demoClient struct {
	ID           string
	SecretHash   []byte
	RedirectURIs map[string]bool
}

// demoUser is a statically registered resource owner, authenticated by the
// login form HandleAuthorizationRequest serves when no session exists yet.
type demoUser struct {
	Subject      string
	Username     string
	PasswordHash []byte
	Email        string
	Name         string
}

// demoHooks implements provider.ProviderHooks against the two registries
// above plus an in-memory session table keyed by a browser cookie, the way
// the teacher pack's devauth.go stands a login flow in front of an
// otherwise headless authorization server. It embeds NoopProviderHooks so
// the endpoints it doesn't care about (configuration, cryptography,
// userinfo, introspection, logout) fall through to oidcmw's built-in
// defaults; for revocation it only audits in HandleRevocationRequest.
type demoHooks struct {
	provider.NoopProviderHooks

	mu       sync.RWMutex
	clients  map[string]*demoClient
	users    map[string]*demoUser
	sessions map[string]*demoUser // cookie value -> authenticated user

	loginPage *template.Template
	auditor   *security.Auditor
}

func newDemoHooks(auditor *security.Auditor) *demoHooks {
	return &demoHooks{
		clients:   map[string]*demoClient{},
		users:     map[string]*demoUser{},
		sessions:  map[string]*demoUser{},
		loginPage: template.Must(template.New("login").Parse(loginPageHTML)),
		auditor:   auditor,
	}
}

func (h *demoHooks) registerClient(id, secret string, redirectURIs ...string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("demo: hash client secret: %w", err)
	}
	allowed := make(map[string]bool, len(redirectURIs))
	for _, u := range redirectURIs {
		allowed[u] = true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = &demoClient{ID: id, SecretHash: hash, RedirectURIs: allowed}
	return nil
}

func (h *demoHooks) registerUser(subject, username, password, email, name string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("demo: hash user password: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[username] = &demoUser{Subject: subject, Username: username, PasswordHash: hash, Email: email, Name: name}
	return nil
}

// ValidateClientRedirectURI confirms redirect_uri belongs to the client
// named in the request, per spec.md §4.4's invariant that an unrecognized
// redirect_uri must never be used to deliver an error response.
func (h *demoHooks) ValidateClientRedirectURI(ctx *provider.AuthorizationContext) {
	clientID := ctx.RequestMessage.ClientID()
	redirectURI := ctx.RequestMessage.RedirectURI()

	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok || !client.RedirectURIs[redirectURI] {
		ctx.Reject(provider.ErrInvalidRedirectURI("redirect_uri is not registered for this client"))
		return
	}
	ctx.Validate()
}

// HandleAuthorizationRequest serves an HTML login form on GET, and on POST
// verifies the submitted credentials against the user registry and, on
// success, calls ctx.SignIn with a ticket carrying the resource owner's
// claims. This is the interactive step spec.md leaves entirely to the
// application (§4.4: "authenticating the resource owner ... is outside the
// dispatcher's concerns").
func (h *demoHooks) HandleAuthorizationRequest(ctx *provider.AuthorizationContext) {
	r := ctx.Request
	if r.Method == http.MethodGet {
		if cookie, err := r.Cookie("demo_session"); err == nil {
			h.mu.RLock()
			user, ok := h.sessions[cookie.Value]
			h.mu.RUnlock()
			if ok {
				ctx.SignIn("demo", ticketForUser(user))
				return
			}
		}
		ctx.CompleteRequest()
		ctx.HTTPContext.Header().Set("Content-Type", "text/html; charset=UTF-8")
		_ = h.loginPage.Execute(ctx.HTTPContext, map[string]any{
			"Query": r.URL.RawQuery,
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		ctx.Reject(provider.ErrInvalidRequest("malformed login form"))
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	h.mu.RLock()
	user, ok := h.users[username]
	h.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		h.auditor.LogAuthFailure(username, "", security.GetClientIP(r, false, 0), "invalid username or password")
		ctx.Reject(provider.ErrAccessDenied("invalid username or password"))
		return
	}

	sessionID, err := newSessionID()
	if err != nil {
		ctx.Reject(provider.ErrServerError("could not start session"))
		return
	}
	h.mu.Lock()
	h.sessions[sessionID] = user
	h.mu.Unlock()
	http.SetCookie(ctx.HTTPContext, &http.Cookie{
		Name:     "demo_session",
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   !ctx.Options.AllowInsecureHTTP,
	})

	ctx.SignIn("demo", ticketForUser(user))
}

// ValidateClientAuthentication checks client_id/client_secret from the
// token request's form body against the bcrypt-hashed registry, using
// constant-time comparison on the client_id lookup key to avoid timing
// leakage of which client IDs exist.
func (h *demoHooks) ValidateClientAuthentication(ctx *provider.TokenContext) {
	// RFC 6749 §2.3.1 permits either HTTP Basic auth or client_id/
	// client_secret in the request body; golang.org/x/oauth2's client picks
	// whichever it auto-detects for the token endpoint, so both are honored.
	clientID, clientSecret, ok := ctx.Request.BasicAuth()
	if !ok {
		clientID = ctx.RequestMessage.ClientID()
		clientSecret = ctx.RequestMessage.Get("client_secret")
	}

	h.mu.RLock()
	var matched *demoClient
	for id, client := range h.clients {
		if subtle.ConstantTimeCompare([]byte(id), []byte(clientID)) == 1 {
			matched = client
		}
	}
	h.mu.RUnlock()

	if matched == nil || bcrypt.CompareHashAndPassword(matched.SecretHash, []byte(clientSecret)) != nil {
		ctx.Reject(provider.ErrInvalidClient("unknown client or bad client_secret"))
		return
	}
	ctx.Validate()
}

// CreateAccessToken audits token issuance; the default minting behavior is
// untouched, since NoopProviderHooks.CreateAccessToken leaves ctx
// unrejected and tokenservice.Service proceeds to mint regardless.
func (h *demoHooks) CreateAccessToken(ctx *provider.TokenContext) {
	h.auditor.LogTokenIssued(subjectOfTicket(ctx.Ticket), ctx.ClientID, security.GetClientIP(ctx.Request, false, 0), "")
}

// CreateRefreshToken audits refresh token issuance, distinguishing a fresh
// grant from a sliding-expiration reissue by GrantType.
func (h *demoHooks) CreateRefreshToken(ctx *provider.TokenContext) {
	h.auditor.LogTokenRefreshed(subjectOfTicket(ctx.Ticket), ctx.ClientID, security.GetClientIP(ctx.Request, false, 0), ctx.GrantType == "refresh_token")
}

// HandleRevocationRequest audits a successful revocation; serveRevocation
// has already resolved ctx.Ticket from the submitted token (if any) before
// calling this hook, per RFC 7009 §2.2's always-200 contract.
func (h *demoHooks) HandleRevocationRequest(ctx *provider.RevocationContext) {
	if ctx.Ticket == nil {
		return
	}
	tokenType := ctx.RequestMessage.Get("token_type_hint")
	if tokenType == "" {
		tokenType = "unknown"
	}
	h.auditor.LogTokenRevoked(subjectOfTicket(ctx.Ticket), ctx.RequestMessage.ClientID(), security.GetClientIP(ctx.Request, false, 0), tokenType)
}

func subjectOfTicket(t *provider.AuthenticationTicket) string {
	if t == nil || t.Identity == nil {
		return ""
	}
	if c, ok := t.Identity.FindFirst(provider.ClaimTypeSubject); ok {
		return c.Value
	}
	return ""
}

// GrantClientCredentials mints a ticket identifying the calling client
// itself as the subject, for the machine-to-machine client_credentials
// grant (RFC 6749 §4.4).
func (h *demoHooks) GrantClientCredentials(ctx *provider.TokenContext) {
	ticket := provider.NewTicket("client_credentials")
	ticket.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, ctx.ClientID))
	ctx.Ticket = ticket
	ctx.Validate()
}

func ticketForUser(user *demoUser) *provider.AuthenticationTicket {
	ticket := provider.NewTicket("demo")
	ticket.Identity.AddClaim(provider.NewClaim(provider.ClaimTypeSubject, user.Subject))
	ticket.Identity.AddClaim(provider.NewClaim("email", user.Email).WithDestinations("id_token", "token"))
	ticket.Identity.AddClaim(provider.NewClaim("name", user.Name).WithDestinations("id_token"))
	return ticket
}

const loginPageHTML = `<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<form method="POST" action="?{{.Query}}">
  <label>Username <input type="text" name="username" autocomplete="username"></label><br>
  <label>Password <input type="password" name="password" autocomplete="current-password"></label><br>
  <button type="submit">Sign in</button>
</form>
</body>
</html>
`
