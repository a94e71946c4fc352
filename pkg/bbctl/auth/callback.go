package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

const callbackSuccessHTML = `<html><body>
<h1>Authentication Successful</h1>
<p>You can now close this window and return to the terminal.</p>
</body></html>
`

const callbackFailureHTML = `<html><body>
<h1>Authentication Failed</h1>
<p>There was an error during authentication. You can close this window.</p>
</body></html>
`

// CallbackResult carries the query parameters of the one redirect the
// receiver accepts.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider returned an error instead of an
// authorization code.
func (r CallbackResult) IsError() bool { return r.Error != "" }

// CallbackReceiver is a single-use local HTTP listener capturing the
// authorization-server redirect during interactive login. Exactly one
// callback is ever accepted; the receiver assumes a single honest
// redirect.
type CallbackReceiver struct {
	listener net.Listener
	server   *http.Server
	resultCh chan CallbackResult
	once     sync.Once
}

func NewCallbackReceiver() *CallbackReceiver {
	return &CallbackReceiver{resultCh: make(chan CallbackResult, 1)}
}

// Listen binds localhost:port (an ephemeral port when port is 0) and
// starts serving. It returns the redirect URI to register with the
// authorization request.
func (r *CallbackReceiver) Listen(port int) (string, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return "", fmt.Errorf("failed to start callback listener: %w", err)
	}
	r.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", r.handleCallback)
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		_ = r.server.Serve(listener)
	}()

	boundPort := listener.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("http://localhost:%d/callback", boundPort), nil
}

// Wait blocks until the callback arrives or ctx is cancelled, then
// closes the listener. Without a deadline on ctx the wait is
// indefinite.
func (r *CallbackReceiver) Wait(ctx context.Context) (CallbackResult, error) {
	defer r.Close()
	select {
	case result := <-r.resultCh:
		return result, nil
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Close shuts the listener down. Safe to call more than once.
func (r *CallbackReceiver) Close() {
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.server.Shutdown(ctx)
	}
	if r.listener != nil {
		_ = r.listener.Close()
	}
}

func (r *CallbackReceiver) handleCallback(w http.ResponseWriter, req *http.Request) {
	var accepted bool
	r.once.Do(func() {
		accepted = true

		query := req.URL.Query()
		result := CallbackResult{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if result.IsError() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, callbackFailureHTML)
		} else {
			_, _ = fmt.Fprint(w, callbackSuccessHTML)
		}

		r.resultCh <- result
	})
	if !accepted {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}
