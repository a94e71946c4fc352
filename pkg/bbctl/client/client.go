package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

// VerboseFunc receives debug lines when verbose output is enabled.
// Secret values are never passed to it.
type VerboseFunc func(format string, args ...any)

// retryStatuses are retried for idempotent methods only.
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Client executes authenticated API requests: it resolves the
// credential per call, attaches it as an Authorization header, and
// classifies failures into the error taxonomy.
type Client struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	userAgent  string
	resolver   *Resolver
	http       *http.Client
	verbose    VerboseFunc

	// sleep is a test seam for the backoff delay.
	sleep func(time.Duration)
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:    30 * time.Second,
		maxRetries: 3,
		userAgent:  "bbctl",
		resolver:   &Resolver{PreferOAuth: true, Env: DefaultEnvNames()},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if baseURL == "" {
			return errors.New("base URL is required")
		}
		if _, err := url.Parse(baseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		c.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.timeout = timeout
		return nil
	}
}

func WithMaxRetries(maxRetries int) Option {
	return func(c *Client) error {
		if maxRetries < 0 {
			return errors.New("max retries must not be negative")
		}
		c.maxRetries = maxRetries
		return nil
	}
}

func WithResolver(resolver *Resolver) Option {
	return func(c *Client) error {
		c.resolver = resolver
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithVerbose(verbose VerboseFunc) Option {
	return func(c *Client) error {
		c.verbose = verbose
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		c.http = httpClient
		return nil
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.verbose != nil {
		c.verbose(format, args...)
	}
}

// DoRaw executes one API call and returns the response body and status
// code. Idempotent methods are retried on 429/500/502/503/504 with
// exponential backoff; everything else gets exactly one attempt.
func (c *Client) DoRaw(ctx context.Context, method, endpoint string, query url.Values, body any) ([]byte, int, error) {
	cred, err := c.resolver.Resolve()
	if err != nil {
		return nil, 0, err
	}

	fullURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	correlationID := uuid.NewString()[:8]
	c.logf("[%s] %s %s", correlationID, method, fullURL)

	retryable := idempotentMethods[method]
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, method, fullURL, payload, cred)
		if err != nil {
			return nil, 0, err
		}

		if retryable && retryStatuses[resp.status] && attempt < c.maxRetries {
			delay := time.Second << attempt
			c.logf("[%s] HTTP %d, retrying in %s (attempt %d/%d)",
				correlationID, resp.status, delay, attempt+1, c.maxRetries)
			c.sleep(delay)
			continue
		}

		c.logf("[%s] HTTP %d (%d bytes)", correlationID, resp.status, len(resp.body))
		if resp.status >= 400 {
			return nil, resp.status, c.classify(resp, cred)
		}
		return resp.body, resp.status, nil
	}
}

type response struct {
	status     int
	body       []byte
	retryAfter string
}

func (c *Client) attempt(ctx context.Context, method, fullURL string, payload []byte, cred Credential) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if header := cred.Header(); header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}
	return &response{
		status:     resp.StatusCode,
		body:       body,
		retryAfter: resp.Header.Get("Retry-After"),
	}, nil
}

// transportError distinguishes timeouts from connection failures by
// error shape, not status code.
func (c *Client) transportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &errs.APIError{
			Message:    fmt.Sprintf("Request timed out after %s", c.timeout),
			Suggestion: "Try again or increase the timeout in configuration",
			Err:        err,
		}
	}
	return &errs.APIError{
		Message:    "Failed to connect to the API",
		Suggestion: "Check your internet connection and try again",
		Err:        err,
	}
}

func (c *Client) classify(resp *response, cred Credential) error {
	switch resp.status {
	case http.StatusUnauthorized:
		return unauthorizedError(cred, c.resolver.Env)
	case http.StatusForbidden:
		message := errorEnvelopeMessage(resp.body)
		if message == "" {
			message = "Permission denied"
		}
		return errs.NewPermission(message, "")
	case http.StatusTooManyRequests:
		retryAfter := 60
		if secs, err := strconv.Atoi(resp.retryAfter); err == nil && secs > 0 {
			retryAfter = secs
		}
		return &errs.APIError{
			Message:    fmt.Sprintf("Rate limit exceeded. Retry after %d seconds. (HTTP 429)", retryAfter),
			StatusCode: resp.status,
			Suggestion: fmt.Sprintf("Wait %d seconds before retrying", retryAfter),
		}
	}

	message := errorEnvelopeMessage(resp.body)
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", resp.status, http.StatusText(resp.status))
	}
	apiErr := errs.NewAPI(message, resp.status)
	apiErr.Body = string(resp.body)
	return apiErr
}

// errorEnvelopeMessage extracts the message from the provider's JSON
// error envelope, returning "" when the body holds no such envelope.
func errorEnvelopeMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	return envelope.Error.Message
}

func unauthorizedError(cred Credential, env EnvNames) *errs.AuthError {
	switch cred.Source {
	case SourceExplicit:
		suggestion := "Check your username and app password"
		if cred.Kind == KindBearer {
			suggestion = "Check the OAuth token you provided"
		}
		return &errs.AuthError{
			Message:    "Authentication failed with provided credentials.",
			Suggestion: suggestion,
		}
	case SourceEnvironment:
		return &errs.AuthError{
			Message: "Authentication failed with environment variable credentials.",
			Suggestion: fmt.Sprintf("Check the %s, %s and %s environment variables",
				env.Username, env.Password, env.Token),
		}
	case SourceStored:
		return &errs.AuthError{
			Message:    "Authentication failed with stored credentials.",
			Suggestion: "Run 'bbctl auth login' to re-authenticate",
		}
	}
	return &errs.AuthError{
		Message:    "No authentication credentials found.",
		Suggestion: "Run 'bbctl auth login' to set up authentication",
	}
}

// Do executes a call and decodes the JSON response into out when out
// is non-nil and the response has a body.
func (c *Client) Do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	raw, _, err := c.DoRaw(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &errs.APIError{
			Message: fmt.Sprintf("Failed to parse API response: %v", err),
			Body:    string(raw),
			Err:     err,
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, query, nil, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, http.MethodPost, endpoint, nil, body, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, http.MethodPut, endpoint, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, nil, nil)
}

// CurrentUser fetches the authenticated user, which doubles as the
// credential validity probe.
func (c *Client) CurrentUser(ctx context.Context) (map[string]any, error) {
	var user map[string]any
	if err := c.Get(ctx, "/user", nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}
