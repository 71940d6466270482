package oidcmw

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ironvault/oidcmw/provider"
)

func postRevoke(t *testing.T, fx *testFixture, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://issuer.example.test/connect/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := newRecorder()
	fx.mw.ServeHTTP(rec, req)
	return rec
}

func TestRevocationAlwaysReturns200(t *testing.T) {
	fx := newTestFixture(t)
	accessToken := obtainAccessToken(t, fx, "openid")

	tests := []string{accessToken, "", "not-a-real-token"}
	for _, tok := range tests {
		rec := postRevoke(t, fx, url.Values{"token": {tok}})
		if rec.Code != http.StatusOK {
			t.Errorf("token %q: status = %d, want 200 (RFC 7009 sec 2.2); body = %s", tok, rec.Code, rec.Body.String())
		}
	}
}

func TestRevocationTwiceStillReturns200(t *testing.T) {
	fx := newTestFixture(t)
	accessToken := obtainAccessToken(t, fx, "openid")

	first := postRevoke(t, fx, url.Values{"token": {accessToken}})
	if first.Code != http.StatusOK {
		t.Fatalf("first revocation status = %d, want 200", first.Code)
	}
	second := postRevoke(t, fx, url.Values{"token": {accessToken}})
	if second.Code != http.StatusOK {
		t.Fatalf("second revocation status = %d, want 200", second.Code)
	}
}

func TestRevocationClientAuthFailure(t *testing.T) {
	fx := newTestFixture(t)
	fx.hooks.onValidateRevocationRequest = func(ctx *provider.RevocationContext) {
		ctx.Reject(provider.ErrInvalidClient("unknown revocation client"))
	}

	rec := postRevoke(t, fx, url.Values{"token": {"anything"}})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401; body = %s", rec.Code, rec.Body.String())
	}
}
