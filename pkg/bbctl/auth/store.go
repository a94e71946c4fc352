package auth

import (
	"encoding/json"

	"github.com/forgecli/bbctl/pkg/bbctl/secrets"
)

const (
	appKey   = "oauth_app"
	tokenKey = "oauth_token"
)

// Store persists the OAuth app registration and the current token.
// At most one of each exists at a time; a later store supersedes the
// previous value. The same soft-fail contract as Vault applies.
type Store struct {
	Backend secrets.Backend
}

func (s *Store) StoreApp(app App) bool {
	payload, err := json.Marshal(app)
	if err != nil {
		return false
	}
	return s.Backend.Set(secrets.Namespace, appKey, string(payload)) == nil
}

func (s *Store) GetApp() (App, bool, error) {
	payload, found, err := s.Backend.Get(secrets.Namespace, appKey)
	if err != nil || !found {
		return App{}, false, err
	}
	var app App
	if json.Unmarshal([]byte(payload), &app) != nil {
		return App{}, false, nil
	}
	return app, true, nil
}

func (s *Store) DeleteApp() bool {
	return s.Backend.Delete(secrets.Namespace, appKey) == nil
}

func (s *Store) HasApp() bool {
	_, found, err := s.GetApp()
	return err == nil && found
}

func (s *Store) StoreToken(token *Token) bool {
	if token == nil {
		return false
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return false
	}
	return s.Backend.Set(secrets.Namespace, tokenKey, string(payload)) == nil
}

func (s *Store) GetToken() (*Token, bool, error) {
	payload, found, err := s.Backend.Get(secrets.Namespace, tokenKey)
	if err != nil || !found {
		return nil, false, err
	}
	var token Token
	if json.Unmarshal([]byte(payload), &token) != nil {
		return nil, false, nil
	}
	return &token, true, nil
}

func (s *Store) DeleteToken() bool {
	return s.Backend.Delete(secrets.Namespace, tokenKey) == nil
}

func (s *Store) HasToken() bool {
	_, found, err := s.GetToken()
	return err == nil && found
}

// ValidToken returns the stored token only while it is unexpired.
// Absent means "re-authenticate": no automatic refresh happens on the
// request path; refresh is an explicit operation.
func (s *Store) ValidToken() (*Token, bool, error) {
	token, found, err := s.GetToken()
	if err != nil || !found {
		return nil, false, err
	}
	if token.IsExpired() {
		return nil, false, nil
	}
	return token, true, nil
}

// ClearAll removes both the app registration and the token.
func (s *Store) ClearAll() bool {
	appDeleted := s.DeleteApp()
	tokenDeleted := s.DeleteToken()
	return appDeleted && tokenDeleted
}

// HasAny reports whether any OAuth data is stored.
func (s *Store) HasAny() bool {
	return s.HasApp() || s.HasToken()
}

// Info describes where secrets live, for status output.
func (s *Store) Info() string {
	return s.Backend.Description()
}
