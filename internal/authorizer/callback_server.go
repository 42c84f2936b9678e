package authorizer

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/time/rate"
)

// Callback requests are limited so a local process cannot guess states by
// hammering the redirect host.
const (
	callbackRateLimit = rate.Limit(5)
	callbackRateBurst = 10
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	callbackSuccessTemplate = template.Must(template.New("success").Funcs(sprig.HtmlFuncMap()).Parse(callbackSuccessHTML))
	callbackErrorTemplate   = template.Must(template.New("error").Funcs(sprig.HtmlFuncMap()).Parse(callbackErrorHTML))
)

// CallbackHandler is the part of the Coordinator a RedirectServer drives.
type CallbackHandler interface {
	ContinueWith(ctx context.Context, rawURL string) bool
	IsAuthorized() bool
	Issuer() string
}

// RedirectServer is a loopback HTTP listener that hands redirects arriving
// at the redirect URI to ContinueWith. Requests that no pending flow claims
// get a 404.
type RedirectServer struct {
	redirect *url.URL
	handler  CallbackHandler

	server   *http.Server
	listener net.Listener
	stopOnce sync.Once
	errCh    chan error
	limiter  *rate.Limiter
}

// NewRedirectServer creates a server for a loopback redirect URI such as
// http://127.0.0.1:8085/callback.
func NewRedirectServer(redirectURI string, handler CallbackHandler) (*RedirectServer, error) {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if redirect.Scheme != "http" {
		return nil, fmt.Errorf("redirect URI %s is not a loopback http URI", redirectURI)
	}
	if !isLoopbackHost(redirect.Hostname()) {
		return nil, fmt.Errorf("redirect URI host %q is not a loopback address", redirect.Hostname())
	}
	if redirect.Port() == "" {
		return nil, fmt.Errorf("redirect URI %s has no port", redirectURI)
	}

	return &RedirectServer{
		redirect: redirect,
		handler:  handler,
		errCh:    make(chan error, 1),
		limiter:  rate.NewLimiter(callbackRateLimit, callbackRateBurst),
	}, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// listenAddr maps the redirect host to the address to bind. "localhost" is
// bound on IPv4 loopback only.
func (s *RedirectServer) listenAddr() string {
	host := s.redirect.Hostname()
	if host == "localhost" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, s.redirect.Port())
}

// Handler returns the HTTP handler serving the redirect path.
func (s *RedirectServer) Handler() http.Handler {
	mux := http.NewServeMux()
	path := s.redirect.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, s.handleCallback)
	return mux
}

// Start binds the listener and serves in the background until Stop is called
// or ctx is cancelled.
func (s *RedirectServer) Start(ctx context.Context) error {
	addr := s.listenAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	slog.Debug("Callback server listening", "addr", listener.Addr().String(), "path", s.redirect.Path)
	return nil
}

// Run starts the server and blocks until ctx is done or serving fails.
func (s *RedirectServer) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Wait blocks until ctx is done or the started server fails.
func (s *RedirectServer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.errCh:
		return err
	}
}

// Addr returns the bound address, or "" before Start.
func (s *RedirectServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *RedirectServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

func (s *RedirectServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	// The listener is bound to the redirect URI, so the URL is rebuilt from it
	// rather than trusting the Host header.
	callbackURL := *s.redirect
	callbackURL.Path = r.URL.Path
	callbackURL.RawQuery = r.URL.RawQuery

	if !s.handler.ContinueWith(r.Context(), callbackURL.String()) {
		http.NotFound(w, r)
		return
	}

	tmpl := callbackSuccessTemplate
	data := map[string]string{"Issuer": s.handler.Issuer()}
	if !s.handler.IsAuthorized() {
		tmpl = callbackErrorTemplate
		query := r.URL.Query()
		data["Error"] = query.Get("error")
		data["Description"] = query.Get("error_description")
		if data["Error"] == "" {
			data["Error"] = "token_exchange_failed"
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		slog.Debug("Failed to render callback page", "error", err)
	}
}
