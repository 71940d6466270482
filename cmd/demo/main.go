// Command demo wires every package in this module into a runnable
// authorization server, the way the teacher pack's examples/basic and
// examples/production mains do for giantswarm-mcp-oauth: enough
// configuration to start a server against real (if self-signed, in-memory)
// credentials, plus an optional end-to-end relying-party walkthrough
// against the server it just started.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ironvault/oidcmw"
	"github.com/ironvault/oidcmw/instrumentation"
	"github.com/ironvault/oidcmw/provider"
	"github.com/ironvault/oidcmw/security"
	"github.com/ironvault/oidcmw/storage"
	"github.com/ironvault/oidcmw/tokenservice"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	issuer := flag.String("issuer", "http://localhost:8080", "issuer URL (http allowed only for this demo)")
	walkthrough := flag.Bool("walkthrough", false, "run the relying-party walkthrough against the server and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler, hooks, err := buildHandler(*issuer, logger)
	if err != nil {
		log.Fatalf("build handler: %v", err)
	}

	if err := hooks.registerClient("demo-client", "demo-secret",
		*issuer+"/callback", "http://127.0.0.1/callback"); err != nil {
		log.Fatalf("register demo client: %v", err)
	}
	if err := hooks.registerUser("user-1", "alice", "correct-horse-battery-staple",
		"alice@example.test", "Alice Example"); err != nil {
		log.Fatalf("register demo user: %v", err)
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "addr", *addr, "issuer", *issuer)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	if *walkthrough {
		waitForServer(*addr)
		if err := runWalkthrough(*issuer, logger); err != nil {
			logger.Error("walkthrough failed", "error", err)
			_ = srv.Close()
			os.Exit(1)
		}
		logger.Info("walkthrough succeeded")
		_ = srv.Close()
		return
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildHandler assembles the chi-routed demo server: security middleware
// (request IDs, rate limiting, security headers, audit logging) wrapping
// the oidcmw middleware, which in turn falls through to a 404 for anything
// it doesn't recognize as a protocol endpoint.
func buildHandler(issuer string, logger *slog.Logger) (http.Handler, *demoHooks, error) {
	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}
	encryptingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	store := storage.New()
	store.SetLogger(logger)

	encryptionKey, err := security.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	encryptor, err := security.NewEncryptor(encryptionKey)
	if err != nil {
		return nil, nil, err
	}
	opaque := tokenservice.NewOpaqueFormat(encryptor)

	instr, err := instrumentation.New(instrumentation.Config{ServiceName: "oidcmw-demo"})
	if err != nil {
		logger.Warn("instrumentation disabled", "error", err)
		instr = nil
	}
	if instr != nil {
		if err := store.SetInstrumentation(instr); err != nil {
			logger.Warn("storage size gauge not registered", "error", err)
		}
		encryptor.SetInstrumentation(instr)
	}

	auditor := security.NewAuditor(logger, true)
	auditor.SetInstrumentation(instr)

	hooks := newDemoHooks(auditor)

	opts, err := provider.New(provider.Options{
		Issuer: issuer,

		ConfigurationEndpoint: "/.well-known/openid-configuration",
		CryptographyEndpoint:  "/.well-known/jwks.json",
		AuthorizationEndpoint: "/authorize",
		TokenEndpoint:         "/token",
		UserinfoEndpoint:      "/userinfo",
		IntrospectionEndpoint: "/introspect",
		RevocationEndpoint:    "/revoke",
		LogoutEndpoint:        "/logout",

		SigningCredentials: []provider.SigningCredentials{{
			Kid: "demo-sig-1", Algorithm: "RS256", PrivateKey: signingKey,
		}},
		EncryptingCredentials: []provider.EncryptingCredentials{{
			Kid: "demo-enc-1", Algorithm: "RSA-OAEP", Encryption: "A128CBC-HS256", PrivateKey: encryptingKey,
		}},

		Cache:                   store,
		AccessTokenFormat:       opaque,
		AuthorizationCodeFormat: opaque,
		RefreshTokenFormat:      opaque,
		AccessTokenJWTHandler:   tokenservice.JWTHandler{},
		IdentityTokenJWTHandler: tokenservice.JWTHandler{},

		RNG:               rand.Reader,
		Provider:          hooks,
		Instrumentation:   instr,
		AllowInsecureHTTP: issuerIsInsecure(issuer),
	})
	if err != nil {
		return nil, nil, err
	}

	limiter := security.NewRateLimiter(20, 40, logger)

	mw := oidcmw.New(opts, http.NotFoundHandler())
	mw.SetLogger(logger)

	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware)
	r.Use(rateLimitMiddleware(limiter, auditor, instr))
	r.Use(securityHeadersMiddleware(issuer))
	r.Handle("/*", mw)

	return r, hooks, nil
}

// rateLimitMiddleware adapts security.RateLimiter, keyed by client IP, into
// chi's middleware signature, auditing rejections the way the teacher pack
// logs LogRateLimitExceeded events, and recording the same decision against
// instr's oidcmw.rate_limit.exceeded counter.
func rateLimitMiddleware(limiter *security.RateLimiter, auditor *security.Auditor, instr *instrumentation.Instrumentation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := security.GetClientIP(r, false, 0)
			if !limiter.Allow(ip) {
				auditor.LogRateLimitExceeded(ip, "")
				if instr != nil {
					instr.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			security.SetSecurityHeaders(w, issuer)
			next.ServeHTTP(w, r)
		})
	}
}

func issuerIsInsecure(issuer string) bool {
	return len(issuer) >= 5 && issuer[:5] == "http:"
}

// waitForServer gives the listen goroutine a moment to bind before the
// walkthrough starts dialing it.
func waitForServer(addr string) {
	dialAddr := addr
	if strings.HasPrefix(dialAddr, ":") {
		dialAddr = "127.0.0.1" + dialAddr
	}
	for i := 0; i < 50; i++ {
		conn, err := net.DialTimeout("tcp", dialAddr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
