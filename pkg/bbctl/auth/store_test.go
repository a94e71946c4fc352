package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecli/bbctl/pkg/bbctl/errs"
	"github.com/forgecli/bbctl/pkg/bbctl/secrets"
)

// failingBackend simulates unusable storage.
type failingBackend struct{}

func (failingBackend) Set(_, _, _ string) error { return errors.New("storage broken") }

func (failingBackend) Get(_, _ string) (string, bool, error) {
	return "", false, errs.NewAuth("Failed to decrypt stored data", "")
}

func (failingBackend) Delete(_, _ string) error { return errors.New("storage broken") }

func (failingBackend) Description() string { return "broken" }

func TestVaultRoundTrip(t *testing.T) {
	vault := &Vault{Backend: secrets.NewMemory()}

	assert.False(t, vault.Has())

	require.True(t, vault.Store(Credentials{Username: "alice", AppPassword: "s3cret"}))

	creds, found, err := vault.Get()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", creds.Username)
	assert.Equal(t, "s3cret", creds.AppPassword)
	assert.True(t, vault.Has())

	assert.True(t, vault.Delete())
	assert.False(t, vault.Has())
}

func TestVaultOverwriteLastWins(t *testing.T) {
	vault := &Vault{Backend: secrets.NewMemory()}
	require.True(t, vault.Store(Credentials{Username: "alice", AppPassword: "one"}))
	require.True(t, vault.Store(Credentials{Username: "bob", AppPassword: "two"}))

	creds, found, err := vault.Get()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "bob", creds.Username)
}

func TestVaultSoftFailOnBrokenStorage(t *testing.T) {
	vault := &Vault{Backend: failingBackend{}}
	assert.False(t, vault.Store(Credentials{Username: "alice", AppPassword: "x"}))
	assert.False(t, vault.Delete())
}

func TestVaultGetPropagatesDecryptError(t *testing.T) {
	vault := &Vault{Backend: failingBackend{}}
	_, _, err := vault.Get()

	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestVaultUnparseableRecordIsAbsent(t *testing.T) {
	backend := secrets.NewMemory()
	require.NoError(t, backend.Set(secrets.Namespace, "credentials", "not json"))

	vault := &Vault{Backend: backend}
	_, found, err := vault.Get()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreAppRoundTrip(t *testing.T) {
	store := &Store{Backend: secrets.NewMemory()}

	assert.False(t, store.HasApp())

	app := App{ClientID: "id", ClientSecret: "secret", RedirectURI: DefaultRedirectURI, Scopes: "repository"}
	require.True(t, store.StoreApp(app))

	got, found, err := store.GetApp()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, app, got)

	assert.True(t, store.DeleteApp())
	assert.False(t, store.HasApp())
}

func TestStoreTokenRoundTrip(t *testing.T) {
	store := &Store{Backend: secrets.NewMemory()}

	token := &Token{
		AccessToken: "access",
		TokenType:   "Bearer",
		ExpiresIn:   int64ptr(3600),
		CreatedAt:   timeNow().Unix(),
	}
	require.True(t, store.StoreToken(token))

	got, found, err := store.GetToken()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, token, got)
}

func TestStoreTokenSupersedes(t *testing.T) {
	store := &Store{Backend: secrets.NewMemory()}
	require.True(t, store.StoreToken(&Token{AccessToken: "first", CreatedAt: 1}))
	require.True(t, store.StoreToken(&Token{AccessToken: "second", CreatedAt: 2}))

	got, found, err := store.GetToken()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", got.AccessToken)
}

func TestValidToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	withFrozenTime(t, now)

	store := &Store{Backend: secrets.NewMemory()}

	// Nothing stored.
	_, found, err := store.ValidToken()
	require.NoError(t, err)
	assert.False(t, found)

	// Expired token: absent, not an error.
	require.True(t, store.StoreToken(&Token{
		AccessToken: "stale",
		ExpiresIn:   int64ptr(3600),
		CreatedAt:   now.Unix() - 7200,
	}))
	_, found, err = store.ValidToken()
	require.NoError(t, err)
	assert.False(t, found)

	// Fresh token.
	require.True(t, store.StoreToken(&Token{
		AccessToken: "fresh",
		ExpiresIn:   int64ptr(3600),
		CreatedAt:   now.Unix(),
	}))
	token, found, err := store.ValidToken()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fresh", token.AccessToken)
}

func TestStoreClearAll(t *testing.T) {
	store := &Store{Backend: secrets.NewMemory()}
	require.True(t, store.StoreApp(App{ClientID: "id"}))
	require.True(t, store.StoreToken(&Token{AccessToken: "tok"}))
	assert.True(t, store.HasAny())

	assert.True(t, store.ClearAll())
	assert.False(t, store.HasAny())
}

func TestStoreSoftFail(t *testing.T) {
	store := &Store{Backend: failingBackend{}}
	assert.False(t, store.StoreApp(App{ClientID: "id"}))
	assert.False(t, store.StoreToken(&Token{AccessToken: "tok"}))
	assert.False(t, store.StoreToken(nil))
}
