package client

import (
	"encoding/base64"
	"os"

	"github.com/forgecli/bbctl/pkg/bbctl/auth"
)

// EnvNames holds the environment variables the resolver consults. The
// names come from configuration.
type EnvNames struct {
	Username string
	Password string
	Token    string
}

func DefaultEnvNames() EnvNames {
	return EnvNames{
		Username: "BBCTL_USERNAME",
		Password: "BBCTL_PASSWORD",
		Token:    "BBCTL_OAUTH_TOKEN",
	}
}

// Kind says how a resolved credential is presented to the API.
type Kind int

const (
	KindNone Kind = iota
	KindBearer
	KindBasic
)

// Source records which tier supplied the credential. It drives the
// remediation text on a 401.
type Source int

const (
	SourceNone Source = iota
	SourceExplicit
	SourceEnvironment
	SourceStored
)

// Credential is the outcome of resolution.
type Credential struct {
	Kind     Kind
	Source   Source
	Token    string
	Username string
	Password string
}

// Header renders the Authorization header value, or "" for KindNone.
func (c Credential) Header() string {
	switch c.Kind {
	case KindBearer:
		return "Bearer " + c.Token
	case KindBasic:
		pair := c.Username + ":" + c.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(pair))
	}
	return ""
}

// Resolver decides which single credential to present, from explicit
// construction-time values, the process environment, and the secret
// stores, in that order per category. A valid bearer candidate beats
// any basic candidate while PreferOAuth is set, regardless of the tier
// the basic candidate came from.
type Resolver struct {
	// Explicit construction-time credentials.
	Username   string
	Password   string
	OAuthToken string

	PreferOAuth bool
	Env         EnvNames
	Vault       *auth.Vault
	Tokens      *auth.Store
}

func (r *Resolver) bearer() (string, Source, error) {
	if r.OAuthToken != "" {
		return r.OAuthToken, SourceExplicit, nil
	}
	if r.Env.Token != "" {
		if token := os.Getenv(r.Env.Token); token != "" {
			return token, SourceEnvironment, nil
		}
	}
	if r.Tokens != nil {
		token, found, err := r.Tokens.ValidToken()
		if err != nil {
			return "", SourceNone, err
		}
		if found {
			return token.AccessToken, SourceStored, nil
		}
	}
	return "", SourceNone, nil
}

func (r *Resolver) basic() (auth.Credentials, Source, error) {
	if r.Username != "" && r.Password != "" {
		return auth.Credentials{Username: r.Username, AppPassword: r.Password}, SourceExplicit, nil
	}
	if r.Env.Username != "" && r.Env.Password != "" {
		username := os.Getenv(r.Env.Username)
		password := os.Getenv(r.Env.Password)
		if username != "" && password != "" {
			return auth.Credentials{Username: username, AppPassword: password}, SourceEnvironment, nil
		}
	}
	if r.Vault != nil {
		creds, found, err := r.Vault.Get()
		if err != nil {
			return auth.Credentials{}, SourceNone, err
		}
		if found {
			return creds, SourceStored, nil
		}
	}
	return auth.Credentials{}, SourceNone, nil
}

// Resolve returns the credential to attach, or a KindNone credential
// when nothing is available. The preferred category is evaluated
// first and the other only when it comes up empty, so a winning
// candidate never triggers a store read (or passphrase prompt) for
// the losing category. Decrypt failures from the consulted stores
// propagate; they are not "nothing stored".
func (r *Resolver) Resolve() (Credential, error) {
	if r.PreferOAuth {
		cred, err := r.resolveBearer()
		if err != nil || cred.Kind != KindNone {
			return cred, err
		}
		return r.resolveBasic()
	}
	cred, err := r.resolveBasic()
	if err != nil || cred.Kind != KindNone {
		return cred, err
	}
	return r.resolveBearer()
}

func (r *Resolver) resolveBearer() (Credential, error) {
	token, source, err := r.bearer()
	if err != nil {
		return Credential{}, err
	}
	if token == "" {
		return Credential{Kind: KindNone, Source: SourceNone}, nil
	}
	return Credential{Kind: KindBearer, Source: source, Token: token}, nil
}

func (r *Resolver) resolveBasic() (Credential, error) {
	creds, source, err := r.basic()
	if err != nil {
		return Credential{}, err
	}
	if creds.Username == "" || creds.AppPassword == "" {
		return Credential{Kind: KindNone, Source: SourceNone}, nil
	}
	return Credential{
		Kind:     KindBasic,
		Source:   source,
		Username: creds.Username,
		Password: creds.AppPassword,
	}, nil
}

// HasCredentials reports whether any credential can be resolved.
func (r *Resolver) HasCredentials() bool {
	cred, err := r.Resolve()
	return err == nil && cred.Kind != KindNone
}
