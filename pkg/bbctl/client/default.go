package client

import "sync"

var (
	defaultMu     sync.Mutex
	defaultClient *Client
	defaultErr    error
	defaultBuilt  bool
)

// Default returns the process-wide client, building it from opts on
// first call. Later calls return the same instance and ignore their
// options; construction is idempotent.
func Default(opts ...Option) (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if !defaultBuilt {
		defaultClient, defaultErr = New(opts...)
		defaultBuilt = true
	}
	return defaultClient, defaultErr
}

// SetDefault replaces the process-wide client.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient, defaultErr, defaultBuilt = c, nil, true
}
