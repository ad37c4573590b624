package oidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStateMismatch   = errors.New("oauth callback state mismatch")
	ErrCallbackTimeout = errors.New("timed out waiting for oauth callback")
	ErrMissingState    = errors.New("expected state is required")
	ErrMissingCode     = errors.New("missing authorization code")
)

const redirectPath = "/auth/callback"

const signedInPage = `<!doctype html><title>lsc</title><p>Signed in. You can close this window.</p>`

func newState() string {
	return uuid.NewString()
}

// Redirect is a loopback listener that accepts exactly one authorization redirect.
type Redirect struct {
	state    string
	listener net.Listener
	server   *http.Server
	results  chan redirectResult

	closeOnce sync.Once
	closeErr  error
}

type redirectResult struct {
	code string
	err  error
}

// ListenRedirect binds addr (an ephemeral loopback port when empty) and serves the redirect path.
func ListenRedirect(addr, state string) (*Redirect, error) {
	if state == "" {
		return nil, ErrMissingState
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for redirect: %w", err)
	}

	r := &Redirect{
		state:    state,
		listener: listener,
		results:  make(chan redirectResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(redirectPath, r.serveRedirect)
	r.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.deliver(redirectResult{err: err})
		}
	}()

	return r, nil
}

// URL is the redirect_uri to register with the authorization request.
func (r *Redirect) URL() string {
	port := 0
	if addr, ok := r.listener.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	return (&url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", port), Path: redirectPath}).String()
}

// Await returns the authorization code once the browser comes back. The listener is shut down
// before it returns.
func (r *Redirect) Await(ctx context.Context, timeout time.Duration) (string, error) {
	defer func() { _ = r.Close() }()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case result := <-r.results:
		return result.code, result.err
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrCallbackTimeout
	}
}

func (r *Redirect) Close() error {
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.closeErr = r.server.Shutdown(ctx)
	})
	return r.closeErr
}

func (r *Redirect) serveRedirect(w http.ResponseWriter, req *http.Request) {
	code, err := parseRedirect(req.URL.Query(), r.state)
	r.deliver(redirectResult{code: code, err: err})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(signedInPage))
}

// deliver keeps only the first result; later redirects are answered but ignored.
func (r *Redirect) deliver(result redirectResult) {
	select {
	case r.results <- result:
	default:
	}
}

func parseRedirect(query url.Values, state string) (string, error) {
	if query.Get("state") != state {
		return "", ErrStateMismatch
	}
	if code := query.Get("error"); code != "" {
		if description := query.Get("error_description"); description != "" {
			return "", fmt.Errorf("%s: %s", code, description)
		}
		return "", errors.New(code)
	}

	code := query.Get("code")
	if code == "" {
		return "", ErrMissingCode
	}
	return code, nil
}
