package oidcmw

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ironvault/oidcmw/provider"
)

func TestServeAuthorizationCodeGrantQueryMode(t *testing.T) {
	fx := newTestFixture(t)

	target := "https://issuer.example.test/connect/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"web-client"},
		"redirect_uri":  {"https://app.example.test/callback"},
		"scope":         {"openid profile"},
		"state":         {"xyz"},
	}.Encode()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := newRecorder()

	fx.mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body = %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Query().Get("state") != "xyz" {
		t.Errorf("state = %q, want xyz", loc.Query().Get("state"))
	}
	if loc.Query().Get("code") == "" {
		t.Error("expected a code parameter in the redirect")
	}
	if loc.Query().Get("error") != "" {
		t.Errorf("unexpected error in redirect: %s", loc.Query().Get("error"))
	}
}

func TestServeAuthorizationUntrustedRedirectURIRendersErrorPage(t *testing.T) {
	fx := newTestFixture(t)
	fx.hooks.onValidateClientRedirectURI = func(ctx *provider.AuthorizationContext) {
		ctx.Reject(provider.ErrInvalidRedirectURI("not on the client's allow-list"))
	}

	target := "https://issuer.example.test/connect/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"web-client"},
		"redirect_uri":  {"https://evil.example.test/callback"},
	}.Encode()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := newRecorder()

	fx.mw.ServeHTTP(rec, req)

	if rec.Code == http.StatusFound {
		t.Fatalf("must not redirect to an untrusted redirect_uri; got Location=%s", rec.Header().Get("Location"))
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeAuthorizationUnsupportedResponseType(t *testing.T) {
	fx := newTestFixture(t)

	target := "https://issuer.example.test/connect/authorize?" + url.Values{
		"response_type": {"unknown_type"},
		"client_id":     {"web-client"},
		"redirect_uri":  {"https://app.example.test/callback"},
	}.Encode()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := newRecorder()

	fx.mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (redirect carrying the error)", rec.Code)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	if loc.Query().Get("error") != provider.ErrorCodeUnsupportedResponseType {
		t.Errorf("error = %q, want %q", loc.Query().Get("error"), provider.ErrorCodeUnsupportedResponseType)
	}
}

func TestServeAuthorizationIDTokenRequiresOpenIDScope(t *testing.T) {
	fx := newTestFixture(t)

	target := "https://issuer.example.test/connect/authorize?" + url.Values{
		"response_type": {"id_token"},
		"client_id":     {"web-client"},
		"redirect_uri":  {"https://app.example.test/callback"},
		"scope":         {"profile"},
		"response_mode": {"fragment"},
	}.Encode()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := newRecorder()

	fx.mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	frag, err := url.ParseQuery(loc.Fragment)
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	if frag.Get("error") != provider.ErrorCodeInvalidScope {
		t.Errorf("error = %q, want %q", frag.Get("error"), provider.ErrorCodeInvalidScope)
	}
}

func TestServeAuthorizationHookRejectionRedirectsError(t *testing.T) {
	fx := newTestFixture(t)
	fx.hooks.onHandleAuthorizationRequest = func(ctx *provider.AuthorizationContext) {
		ctx.Reject(provider.ErrAccessDenied("user declined consent"))
	}

	target := "https://issuer.example.test/connect/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"web-client"},
		"redirect_uri":  {"https://app.example.test/callback"},
	}.Encode()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := newRecorder()

	fx.mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	if loc.Query().Get("error") != provider.ErrorCodeAccessDenied {
		t.Errorf("error = %q, want %q", loc.Query().Get("error"), provider.ErrorCodeAccessDenied)
	}
}
