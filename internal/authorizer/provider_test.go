package authorizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

const (
	testClientID     = "test-client"
	testClientSecret = "test-secret"
	testRedirectURI  = "http://127.0.0.1:8085/callback"
	testGoodCode     = "good-code"
)

// fakeProvider is an OAuth provider serving discovery, the token endpoint and
// a protected resource.
type fakeProvider struct {
	server *httptest.Server

	mu              sync.Mutex
	discoveryHits   int
	tokenRequests   int
	refreshRequests int
	issued          int
	refreshErr      string
	shortLived      bool
	lastForm        url.Values
	validTokens     map[string]bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{validTokens: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/api", p.handleAPI)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) URL() string {
	return p.server.URL
}

func (p *fakeProvider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.discoveryHits++
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"issuer":                   p.server.URL,
		"authorization_endpoint":   p.server.URL + "/authorize",
		"token_endpoint":           p.server.URL + "/token",
		"response_types_supported": []string{"code"},
		"scopes_supported":         []string{"openid", "profile", "email"},
	})
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, "invalid_request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastForm = r.PostForm

	if r.PostForm.Get("client_id") != testClientID {
		writeTokenError(w, "invalid_client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.tokenRequests++
		if r.PostForm.Get("code") != testGoodCode {
			writeTokenError(w, "invalid_grant")
			return
		}
		if p.shortLived {
			p.writeShortLivedToken(w)
			return
		}
		p.writeToken(w, "refresh-token")
	case "refresh_token":
		p.refreshRequests++
		if p.refreshErr != "" {
			writeTokenError(w, p.refreshErr)
			return
		}
		p.writeToken(w, "")
	default:
		writeTokenError(w, "unsupported_grant_type")
	}
}

// writeToken issues a new access token. REQUIRES: p.mu held.
func (p *fakeProvider) writeToken(w http.ResponseWriter, refreshToken string) {
	p.issued++
	accessToken := fmt.Sprintf("access-%d", p.issued)
	p.validTokens[accessToken] = true

	body := map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     "id-token",
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// writeShortLivedToken issues a token that expires within the refresh buffer
// and cannot be refreshed. REQUIRES: p.mu held.
func (p *fakeProvider) writeShortLivedToken(w http.ResponseWriter) {
	p.issued++
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": fmt.Sprintf("access-%d", p.issued),
		"token_type":   "Bearer",
		"expires_in":   30,
	})
}

func writeTokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func (p *fakeProvider) handleAPI(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !p.validTokens[auth[len(prefix):]] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (p *fakeProvider) setRefreshError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshErr = code
}

func (p *fakeProvider) counts() (discovery, exchange, refresh int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryHits, p.tokenRequests, p.refreshRequests
}

// recordingAgent remembers every session it was asked to present.
type recordingAgent struct {
	mu        sync.Mutex
	sessions  []*FlowSession
	err       error
	onPresent func(session *FlowSession)
}

func (a *recordingAgent) Present(_ context.Context, session *FlowSession, _ Presentation) error {
	a.mu.Lock()
	a.sessions = append(a.sessions, session)
	err := a.err
	onPresent := a.onPresent
	a.mu.Unlock()

	if err != nil {
		return err
	}
	if onPresent != nil {
		onPresent(session)
	}
	return nil
}

func (a *recordingAgent) session(t *testing.T, i int) *FlowSession {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= len(a.sessions) {
		t.Fatalf("agent presented %d sessions, want at least %d", len(a.sessions), i+1)
	}
	return a.sessions[i]
}

// failingDiscoverer always fails.
type failingDiscoverer struct {
	err error
}

func (d failingDiscoverer) Discover(context.Context, string) (*Endpoints, error) {
	return nil, d.err
}

func newTestCoordinator(t *testing.T, p *fakeProvider, agent ExternalAgent, store CredentialStore) *Coordinator {
	t.Helper()

	if store == nil {
		store = NewMemoryCredentialStore()
	}

	c, err := NewCoordinator(Config{
		Issuer:       p.URL(),
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURI:  testRedirectURI,
		Store:        store,
		Agent:        agent,
		HTTPClient:   p.server.Client(),
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	return c
}

// callbackURL builds the redirect the provider would send for session.
func callbackURL(session *FlowSession, params map[string]string) string {
	u := session.RedirectURL()
	q := url.Values{}
	q.Set("state", session.Request().State)
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// recordCompletions installs a completion callback that records outcomes.
func recordCompletions(c *Coordinator) <-chan bool {
	ch := make(chan bool, 10)
	c.SetCompletion(func(succeeded bool) {
		ch <- succeeded
	})
	return ch
}

// expectCompletion waits for exactly one outcome and fails on a second one.
func expectCompletion(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()

	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("completion = %t, want %t", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback was not invoked")
	}

	expectNoCompletion(t, ch)
}

func expectNoCompletion(t *testing.T, ch <-chan bool) {
	t.Helper()

	select {
	case got := <-ch:
		t.Fatalf("unexpected completion callback with %t", got)
	case <-time.After(100 * time.Millisecond):
	}
}
