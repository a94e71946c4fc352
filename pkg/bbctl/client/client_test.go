package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecli/bbctl/pkg/bbctl/auth"
	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

// failingBackend simulates a store whose payload cannot be decrypted.
type failingBackend struct{}

func (failingBackend) Set(namespace, key, value string) error { return nil }

func (failingBackend) Get(namespace, key string) (string, bool, error) {
	return "", false, errs.NewAuth("Failed to decrypt stored data", "")
}

func (failingBackend) Delete(namespace, key string) error { return nil }
func (failingBackend) Description() string                { return "failing" }

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []Option{
		WithBaseURL(server.URL),
		WithResolver(&Resolver{OAuthToken: "test-token", PreferOAuth: true, Env: DefaultEnvNames()}),
	}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	c.sleep = func(time.Duration) {}
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestNewRejectsNegativeRetries(t *testing.T) {
	_, err := New(WithBaseURL("https://example.test"), WithMaxRetries(-1))
	require.Error(t, err)
}

func TestDoRawSendsHeaders(t *testing.T) {
	var got http.Header
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.RequestURI()
		fmt.Fprint(w, `{"ok":true}`)
	}))

	query := url.Values{"page": {"2"}}
	body, status, err := c.DoRaw(context.Background(), http.MethodGet, "repositories", query, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "/repositories?page=2", gotPath)
	assert.Equal(t, "Bearer test-token", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "bbctl", got.Get("User-Agent"))
}

func TestDoRawMarshalsBody(t *testing.T) {
	var gotBody map[string]string
	var contentType string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))

	_, status, err := c.DoRaw(context.Background(), http.MethodPost, "/issues", nil, map[string]string{"title": "bug"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "bug", gotBody["title"])
}

func TestDoRawNoCredentialSendsNoHeader(t *testing.T) {
	var authHeader string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
	}), WithResolver(&Resolver{Env: DefaultEnvNames()}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/public", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, authHeader)
}

func TestDoRawPropagatesResolverError(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), WithResolver(&Resolver{
		PreferOAuth: true,
		Env:         DefaultEnvNames(),
		Tokens:      &auth.Store{Backend: failingBackend{}},
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestRetryIdempotentOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{}`)
	}))

	_, status, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), WithMaxRetries(2))

	_, status, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestNoRetryForNonIdempotentMethods(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodPost, "/issues", nil, map[string]string{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNoRetryOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnauthorizedMessageByCredentialSource(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	cases := []struct {
		name     string
		resolver *Resolver
		env      map[string]string
		want     string
	}{
		{
			name:     "no credentials",
			resolver: &Resolver{Env: DefaultEnvNames()},
			want:     "No authentication credentials found.",
		},
		{
			name:     "explicit credentials",
			resolver: &Resolver{Username: "alice", Password: "pw", Env: DefaultEnvNames()},
			want:     "Authentication failed with provided credentials.",
		},
		{
			name:     "environment credentials",
			resolver: &Resolver{PreferOAuth: true, Env: DefaultEnvNames()},
			env:      map[string]string{"BBCTL_OAUTH_TOKEN": "env-token"},
			want:     "Authentication failed with environment variable credentials.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			c := newTestClient(t, handler, WithResolver(tc.resolver))

			_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
			var authErr *errs.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tc.want, authErr.Message)
			assert.Equal(t, errs.ExitAuth, errs.ExitCode(err))
		})
	}
}

func TestUnauthorizedExplicitBearerSuggestsToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), WithResolver(&Resolver{OAuthToken: "bad-token", PreferOAuth: true, Env: DefaultEnvNames()}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Authentication failed with provided credentials.", authErr.Message)
	assert.Equal(t, "Check the OAuth token you provided", authErr.Suggestion)
}

func TestRateLimitUsesRetryAfterHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}), WithMaxRetries(0))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Rate limit exceeded. Retry after 120 seconds. (HTTP 429)", apiErr.Message)
}

func TestRateLimitDefaultsToSixtySeconds(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}), WithMaxRetries(0))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "Retry after 60 seconds")
}

func TestErrorEnvelopeMessageExtracted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid pagination cursor"}}`)
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/repositories/x", nil, nil)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "Invalid pagination cursor")
	assert.Equal(t, errs.ExitAPI, errs.ExitCode(err))
}

func TestForbiddenIsPermissionError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"Repository access forbidden"}}`)
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/repositories/x", nil, nil)
	var permErr *errs.PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "Repository access forbidden", permErr.Message)
	assert.Equal(t, errs.ExitPermission, errs.ExitCode(err))

	c = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, _, err = c.DoRaw(context.Background(), http.MethodGet, "/repositories/x", nil, nil)
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "Permission denied", permErr.Message)
}

func TestGenericHTTPErrorWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "not json")
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/nope", nil, nil)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "HTTP 404: Not Found")
	assert.Equal(t, "not json", apiErr.Body)
}

func TestConnectionFailure(t *testing.T) {
	c, err := New(
		WithBaseURL("http://127.0.0.1:1"),
		WithResolver(&Resolver{Env: DefaultEnvNames()}),
		WithTimeout(2*time.Second),
	)
	require.NoError(t, err)

	_, _, err = c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Failed to connect to the API", apiErr.Message)
}

func TestDoDecodesResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"username":"alice","uuid":"{abc}"}`)
	}))

	var out struct {
		Username string `json:"username"`
	}
	require.NoError(t, c.Get(context.Background(), "/user", nil, &out))
	assert.Equal(t, "alice", out.Username)
}

func TestDoRejectsMalformedJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>garbage</html>")
	}))

	var out map[string]any
	err := c.Get(context.Background(), "/user", nil, &out)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "Failed to parse API response")
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		fmt.Fprint(w, `{"username":"alice"}`)
	}))

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user["username"])
}

func TestVerboseNeverLogsAuthorization(t *testing.T) {
	var lines []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}), WithVerbose(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}))

	_, _, err := c.DoRaw(context.Background(), http.MethodGet, "/user", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.NotContains(t, line, "test-token")
	}
}

func TestDefaultIsIdempotent(t *testing.T) {
	defaultMu.Lock()
	defaultClient, defaultErr, defaultBuilt = nil, nil, false
	defaultMu.Unlock()
	t.Cleanup(func() {
		defaultMu.Lock()
		defaultClient, defaultErr, defaultBuilt = nil, nil, false
		defaultMu.Unlock()
	})

	first, err := Default(WithBaseURL("https://api.example.test"))
	require.NoError(t, err)
	second, err := Default(WithBaseURL("https://other.example.test"))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "https://api.example.test", second.baseURL)

	replacement, err := New(WithBaseURL("https://replacement.example.test"))
	require.NoError(t, err)
	SetDefault(replacement)
	got, err := Default()
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}
