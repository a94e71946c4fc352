package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"auth", NewAuth("bad credentials", ""), ExitAuth},
		{"api", NewAPI("server exploded", 500), ExitAPI},
		{"validation", NewValidation("bad slug", ""), ExitValidation},
		{"not found", NewNotFound("repository", "foo"), ExitNotFound},
		{"config", NewConfig("storage unusable", ""), ExitConfig},
		{"permission", NewPermission("", ""), ExitPermission},
		{"plain", errors.New("boom"), ExitGeneric},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestExitCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("login failed: %w", NewAuth("bad credentials", ""))
	assert.Equal(t, ExitAuth, ExitCode(err))

	err = fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", NewAPI("oops", 503)))
	assert.Equal(t, ExitAPI, ExitCode(err))
}

func TestAuthErrorDefaultSuggestion(t *testing.T) {
	err := NewAuth("bad credentials", "")
	assert.Equal(t, "Run 'bbctl auth login' to set up authentication", err.Suggestion)

	err = NewAuth("bad credentials", "check the env vars")
	assert.Equal(t, "check the env vars", err.Suggestion)
}

func TestSuggestion(t *testing.T) {
	assert.Empty(t, Suggestion(errors.New("boom")))
	assert.Empty(t, Suggestion(nil))

	wrapped := fmt.Errorf("wrap: %w", NewValidation("bad input", "fix the input"))
	assert.Equal(t, "fix the input", Suggestion(wrapped))
}

func TestAPIErrorMessage(t *testing.T) {
	err := NewAPI("rate limit exceeded", 429)
	assert.Equal(t, "rate limit exceeded (HTTP 429)", err.Error())
	assert.Equal(t, 429, err.StatusCode)

	err = NewAPI("connection refused", 0)
	assert.Equal(t, "connection refused", err.Error())
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("project", "PROJ")
	assert.Equal(t, "project 'PROJ' not found", err.Error())
	assert.Contains(t, err.Suggestion, "project exists")
}

func TestPermissionErrorDefaults(t *testing.T) {
	err := NewPermission("", "")
	assert.Equal(t, "Permission denied", err.Error())
	assert.Equal(t, "Check that you have the required permissions for this operation", err.Suggestion)

	err = NewPermission("cannot delete repository", "ask a workspace admin")
	assert.Equal(t, "cannot delete repository", err.Error())
	assert.Equal(t, "ask a workspace admin", Suggestion(err))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &APIError{Message: "request failed", Err: cause}
	require.ErrorIs(t, err, cause)
}
