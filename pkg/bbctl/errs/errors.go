package errs

import (
	"errors"
	"fmt"
)

// Exit codes by error category. Scripted callers branch on these.
const (
	ExitGeneric    = 1
	ExitAuth       = 2
	ExitAPI        = 3
	ExitValidation = 4
	ExitNotFound   = 5
	ExitConfig     = 6
	ExitPermission = 7
)

// AuthError indicates that authentication failed or credentials are
// invalid or unreadable. It always carries a remediation suggestion.
type AuthError struct {
	Message    string
	Suggestion string
	Err        error
}

func NewAuth(message, suggestion string) *AuthError {
	if suggestion == "" {
		suggestion = "Run 'bbctl auth login' to set up authentication"
	}
	return &AuthError{Message: message, Suggestion: suggestion}
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// APIError indicates that the remote API returned an error or could not
// be reached. StatusCode is zero for transport-level failures.
type APIError struct {
	Message    string
	StatusCode int
	Body       string
	Suggestion string
	Err        error
}

func NewAPI(message string, statusCode int) *APIError {
	if statusCode != 0 {
		message = fmt.Sprintf("%s (HTTP %d)", message, statusCode)
	}
	return &APIError{Message: message, StatusCode: statusCode}
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

// ValidationError indicates that input was rejected before any network
// call was made.
type ValidationError struct {
	Message    string
	Suggestion string
}

func NewValidation(message, suggestion string) *ValidationError {
	return &ValidationError{Message: message, Suggestion: suggestion}
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError indicates that a requested resource does not exist.
type NotFoundError struct {
	Resource   string
	ID         string
	Suggestion string
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource:   resource,
		ID:         id,
		Suggestion: fmt.Sprintf("Check that the %s exists and you have permission to access it", resource),
	}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}

// ConfigError indicates that local configuration or storage is unusable.
type ConfigError struct {
	Message    string
	Suggestion string
	Err        error
}

func NewConfig(message, suggestion string) *ConfigError {
	return &ConfigError{Message: message, Suggestion: suggestion}
}

func (e *ConfigError) Error() string { return e.Message }

func (e *ConfigError) Unwrap() error { return e.Err }

// PermissionError indicates that the authenticated user lacks
// permission for the operation.
type PermissionError struct {
	Message    string
	Suggestion string
	Err        error
}

func NewPermission(message, suggestion string) *PermissionError {
	if message == "" {
		message = "Permission denied"
	}
	if suggestion == "" {
		suggestion = "Check that you have the required permissions for this operation"
	}
	return &PermissionError{Message: message, Suggestion: suggestion}
}

func (e *PermissionError) Error() string { return e.Message }

func (e *PermissionError) Unwrap() error { return e.Err }

// ExitCode returns the exit code declared by the error's category, or
// ExitGeneric for errors outside the taxonomy.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		authErr       *AuthError
		apiErr        *APIError
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		configErr     *ConfigError
		permErr       *PermissionError
	)
	switch {
	case errors.As(err, &authErr):
		return ExitAuth
	case errors.As(err, &apiErr):
		return ExitAPI
	case errors.As(err, &validationErr):
		return ExitValidation
	case errors.As(err, &notFoundErr):
		return ExitNotFound
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &permErr):
		return ExitPermission
	}
	return ExitGeneric
}

// Suggestion returns the remediation suggestion carried by the error,
// or an empty string if it has none.
func Suggestion(err error) string {
	var (
		authErr       *AuthError
		apiErr        *APIError
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		configErr     *ConfigError
		permErr       *PermissionError
	)
	switch {
	case errors.As(err, &authErr):
		return authErr.Suggestion
	case errors.As(err, &apiErr):
		return apiErr.Suggestion
	case errors.As(err, &validationErr):
		return validationErr.Suggestion
	case errors.As(err, &notFoundErr):
		return notFoundErr.Suggestion
	case errors.As(err, &configErr):
		return configErr.Suggestion
	case errors.As(err, &permErr):
		return permErr.Suggestion
	}
	return ""
}
