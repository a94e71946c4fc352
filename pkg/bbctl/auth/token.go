package auth

import (
	"time"
)

// timeNow is a test seam.
var timeNow = time.Now

// expiryBufferSeconds is subtracted from the nominal lifetime so a
// token is treated as expired slightly before the provider rejects it.
const expiryBufferSeconds = 60

// Token is an OAuth 2.0 token as issued by the provider's token
// endpoint, plus the creation timestamp needed to evaluate expiry.
// It round-trips through JSON field for field.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// NewToken builds a token, stamping CreatedAt with the current time
// when it is unset.
func NewToken(accessToken, tokenType string, expiresIn *int64, refreshToken, scope string) *Token {
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Token{
		AccessToken:  accessToken,
		TokenType:    tokenType,
		ExpiresIn:    expiresIn,
		RefreshToken: refreshToken,
		Scope:        scope,
		CreatedAt:    timeNow().Unix(),
	}
}

// IsExpired reports whether the token is past its lifetime, with a
// 60-second safety buffer. Tokens without expires_in never expire.
func (t *Token) IsExpired() bool {
	if t.ExpiresIn == nil {
		return false
	}
	return timeNow().Unix() > t.CreatedAt+*t.ExpiresIn-expiryBufferSeconds
}

// ExpiresAt returns the nominal expiry time, or the zero time when the
// token has no expiry.
func (t *Token) ExpiresAt() time.Time {
	if t.ExpiresIn == nil {
		return time.Time{}
	}
	return time.Unix(t.CreatedAt+*t.ExpiresIn, 0)
}

// Credentials is a basic-auth username and app password pair.
type Credentials struct {
	Username    string `json:"username"`
	AppPassword string `json:"app_password"`
}

// App is a registered OAuth 2.0 consumer. It must be stored before any
// OAuth login attempt.
type App struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	Scopes       string `json:"scopes,omitempty"`
}

// DefaultRedirectURI matches the callback receiver's default port.
const DefaultRedirectURI = "http://localhost:8080/callback"
