package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// runWalkthrough drives the full authorization_code grant against a
// running server as a relying party would, using golang.org/x/oauth2.Config
// the way a real client integration does rather than hand-rolling HTTP
// calls: AuthCodeURL to build the authorization request, a plain HTTP
// client (with a cookie jar, to carry the demo login session across the
// login-form POST and the subsequent authorization redirect) to play the
// resource owner's browser, and Exchange to redeem the returned code.
func runWalkthrough(issuer string, logger *slog.Logger) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("walkthrough: build cookie jar: %w", err)
	}
	browser := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	conf := &oauth2.Config{
		ClientID:     "demo-client",
		ClientSecret: "demo-secret",
		RedirectURL:  issuer + "/callback",
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  issuer + "/authorize",
			TokenURL: issuer + "/token",
		},
	}

	authURL := conf.AuthCodeURL("walkthrough-state", oauth2.SetAuthURLParam("response_type", "code"))
	logger.Info("walkthrough: requesting authorization endpoint", "url", authURL)

	resp, err := browser.Get(authURL)
	if err != nil {
		return fmt.Errorf("walkthrough: GET authorize: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("walkthrough: authorize returned %d, want 200 (login form)", resp.StatusCode)
	}

	form := url.Values{"username": {"alice"}, "password": {"correct-horse-battery-staple"}}
	resp, err = browser.PostForm(authURL, form)
	if err != nil {
		return fmt.Errorf("walkthrough: POST login form: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("walkthrough: login POST returned %d, want 302: %s", resp.StatusCode, string(body))
	}

	location := resp.Header.Get("Location")
	redirectedTo, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("walkthrough: parse redirect Location %q: %w", location, err)
	}
	code := redirectedTo.Query().Get("code")
	if code == "" {
		return fmt.Errorf("walkthrough: redirect %q carried no authorization code", location)
	}
	if state := redirectedTo.Query().Get("state"); state != "walkthrough-state" {
		return fmt.Errorf("walkthrough: redirect state %q does not match request", state)
	}
	logger.Info("walkthrough: resource owner signed in", "redirect", location)

	token, err := conf.Exchange(context.Background(), code)
	if err != nil {
		return fmt.Errorf("walkthrough: exchange code: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("walkthrough: token response carried no access_token")
	}
	idToken, _ := token.Extra("id_token").(string)
	logger.Info("walkthrough: exchanged code for tokens",
		"token_type", token.TokenType, "has_id_token", idToken != "", "has_refresh_token", token.RefreshToken != "")

	userinfoReq, err := http.NewRequest(http.MethodGet, issuer+"/userinfo", nil)
	if err != nil {
		return fmt.Errorf("walkthrough: build userinfo request: %w", err)
	}
	userinfoReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
	resp, err = http.DefaultClient.Do(userinfoReq)
	if err != nil {
		return fmt.Errorf("walkthrough: GET userinfo: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("walkthrough: userinfo returned %d: %s", resp.StatusCode, string(body))
	}
	logger.Info("walkthrough: userinfo responded", "body", strings.TrimSpace(string(body)))

	if token.RefreshToken != "" {
		refreshed, err := conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
		if err != nil {
			return fmt.Errorf("walkthrough: refresh token: %w", err)
		}
		logger.Info("walkthrough: refreshed access token", "token_type", refreshed.TokenType)
	}

	return nil
}
