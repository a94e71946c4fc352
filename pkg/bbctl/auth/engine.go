package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

// Engine drives the provider's OAuth 2.0 grant flows against its fixed
// authorize and token endpoints. It is stateless between calls; the
// ephemeral PKCE/state pair lives with the caller for the duration of
// one authorization round trip.
//
// Token-endpoint calls are never retried: they fail fast and surface
// to the interactive user.
type Engine struct {
	AuthorizeURL string
	TokenURL     string

	// HTTPClient overrides the default 30-second-timeout client.
	HTTPClient *http.Client
}

func (e *Engine) oauthConfig(app App) oauth2.Config {
	return oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  app.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  e.AuthorizeURL,
			TokenURL: e.TokenURL,
			// The provider wants client credentials as HTTP Basic auth.
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (e *Engine) httpContext(ctx context.Context) context.Context {
	client := e.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// AuthorizationURL builds the authorization-code URL. It performs no
// I/O. A state token is generated when state is empty. With usePKCE a
// fresh verifier/challenge pair is generated and the challenge
// parameters are appended; the returned verifier must be presented to
// ExchangeCode and is otherwise never persisted.
func (e *Engine) AuthorizationURL(app App, state string, usePKCE bool) (authURL, verifier, outState string, err error) {
	if state == "" {
		state, err = GenerateState()
		if err != nil {
			return "", "", "", err
		}
	}

	var opts []oauth2.AuthCodeOption
	if app.Scopes != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", app.Scopes))
	}
	if usePKCE {
		var challenge string
		verifier, challenge, err = GeneratePKCE()
		if err != nil {
			return "", "", "", err
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}

	cfg := e.oauthConfig(app)
	return cfg.AuthCodeURL(state, opts...), verifier, state, nil
}

// ExchangeCode trades an authorization code for a token. verifier is
// the PKCE code verifier from AuthorizationURL, empty when PKCE was
// not used.
func (e *Engine) ExchangeCode(ctx context.Context, app App, code, verifier string) (*Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", verifier))
	}
	cfg := e.oauthConfig(app)
	tk, err := cfg.Exchange(e.httpContext(ctx), code, opts...)
	if err != nil {
		return nil, tokenEndpointError(err, "token exchange",
			"Check your OAuth app configuration and try again")
	}
	return fromOAuth2(tk), nil
}

// Refresh trades a refresh token for a new access token. When the
// provider omits a new refresh token the old one is preserved.
func (e *Engine) Refresh(ctx context.Context, app App, refreshToken string) (*Token, error) {
	cfg := e.oauthConfig(app)
	src := cfg.TokenSource(e.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tk, err := src.Token()
	if err != nil {
		return nil, tokenEndpointError(err, "token refresh",
			"Run 'bbctl oauth login' to re-authenticate")
	}
	token := fromOAuth2(tk)
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// ClientCredentials performs the client-credentials grant. No user
// context is involved; this is service-level access only.
func (e *Engine) ClientCredentials(ctx context.Context, app App) (*Token, error) {
	cc := &clientcredentials.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		TokenURL:     e.TokenURL,
		Scopes:       app.scopeList(),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tk, err := cc.Token(e.httpContext(ctx))
	if err != nil {
		return nil, tokenEndpointError(err, "client credentials flow",
			"Check your OAuth app client ID and secret")
	}
	return fromOAuth2(tk), nil
}

func (a App) scopeList() []string {
	return strings.FieldsFunc(a.Scopes, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

func fromOAuth2(tk *oauth2.Token) *Token {
	token := &Token{
		AccessToken:  tk.AccessToken,
		TokenType:    tk.Type(),
		RefreshToken: tk.RefreshToken,
		CreatedAt:    timeNow().Unix(),
	}
	if tk.ExpiresIn > 0 {
		expiresIn := tk.ExpiresIn
		token.ExpiresIn = &expiresIn
	} else if !tk.Expiry.IsZero() {
		if secs := int64(time.Until(tk.Expiry) / time.Second); secs > 0 {
			token.ExpiresIn = &secs
		}
	}
	if scope, ok := tk.Extra("scope").(string); ok {
		token.Scope = scope
	}
	return token
}

// tokenEndpointError maps a token-endpoint failure to an AuthError.
// Non-2xx responses carry the provider's error_description when one is
// parseable; transport failures get a connectivity suggestion.
func tokenEndpointError(err error, action, suggestion string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		desc := retrieveErr.ErrorDescription
		if desc == "" && len(retrieveErr.Body) > 0 {
			var body struct {
				ErrorDescription string `json:"error_description"`
			}
			if json.Unmarshal(retrieveErr.Body, &body) == nil {
				desc = body.ErrorDescription
			}
		}
		if desc == "" {
			desc = fmt.Sprintf("%s failed", action)
		}
		return &errs.AuthError{
			Message:    fmt.Sprintf("OAuth %s failed: %s", action, desc),
			Suggestion: suggestion,
			Err:        err,
		}
	}
	return &errs.AuthError{
		Message:    fmt.Sprintf("Network error during %s: %v", action, err),
		Suggestion: "Check your internet connection and try again",
		Err:        err,
	}
}
