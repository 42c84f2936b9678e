package authorizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	pkgoauth "authflow/pkg/oauth"
)

// DefaultCredentialName is the logical name the credential is stored under.
const DefaultCredentialName = "authflow.authorization"

// State represents the phase of the current authorization attempt.
type State int

const (
	// StateIdle means no attempt is running.
	StateIdle State = iota
	// StateDiscovering means the issuer's endpoints are being resolved.
	StateDiscovering
	// StateRequesting means the request is built and the agent is launching.
	StateRequesting
	// StatePending means the flow waits for its callback.
	StatePending
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDiscovering:
		return "Discovering"
	case StateRequesting:
		return "Requesting"
	case StatePending:
		return "Pending"
	default:
		return "Unknown"
	}
}

// CompletionFunc is notified of the outcome of an authorization attempt.
type CompletionFunc func(succeeded bool)

// Config configures a Coordinator.
type Config struct {
	// Issuer is the OAuth issuer whose endpoints are discovered.
	Issuer string

	// ClientID and ClientSecret identify this application at the provider.
	// Installed applications commonly have a non-confidential secret.
	ClientID     string
	ClientSecret string

	// RedirectURI is where the provider sends the user back to.
	RedirectURI string

	// Scopes are requested in addition to the baseline scopes.
	Scopes []string

	// CredentialName is the logical name in the store.
	// Defaults to DefaultCredentialName.
	CredentialName string

	// Store persists the credential. Defaults to an in-memory store.
	Store CredentialStore

	// Discoverer resolves the issuer. Defaults to a MetadataDiscoverer.
	Discoverer EndpointDiscoverer

	// Agent runs the consent step. Defaults to a BrowserAgent.
	Agent ExternalAgent

	// HTTPClient is used for discovery, code exchange and refresh.
	// Defaults to a client with pkg/oauth.DefaultHTTPTimeout.
	HTTPClient *http.Client
}

// Coordinator drives the authorization code flow and owns the authorization
// state of the process: the current credential, the pending flow and the
// requested scopes.
//
// Every change of the in-memory credential is mirrored to the store before
// the change is complete: authorizable credentials are saved, anything else
// removes the record. Store failures are logged and do not block the
// in-memory transition.
//
// The completion callback is always invoked on its own goroutine.
type Coordinator struct {
	issuer         string
	clientID       string
	clientSecret   string
	redirectURI    string
	credentialName string

	store      CredentialStore
	discoverer EndpointDiscoverer
	agent      ExternalAgent
	httpClient *http.Client

	mu         sync.Mutex
	state      State
	credential *Credential
	pending    *FlowSession
	scopes     *ScopeSet
	completion CompletionFunc
}

// NewCoordinator creates a coordinator. It does not load stored state; call
// LoadState for that.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("redirect URI is required")
	}

	c := &Coordinator{
		issuer:         pkgoauth.NormalizeIssuer(cfg.Issuer),
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		redirectURI:    cfg.RedirectURI,
		credentialName: cfg.CredentialName,
		store:          cfg.Store,
		discoverer:     cfg.Discoverer,
		agent:          cfg.Agent,
		httpClient:     cfg.HTTPClient,
		scopes:         NewScopeSet(cfg.Scopes...),
	}

	if c.credentialName == "" {
		c.credentialName = DefaultCredentialName
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: pkgoauth.DefaultHTTPTimeout}
	}
	if c.store == nil {
		c.store = NewMemoryCredentialStore()
	}
	if c.discoverer == nil {
		c.discoverer = NewMetadataDiscoverer(pkgoauth.NewClient(pkgoauth.WithHTTPClient(c.httpClient)))
	}
	if c.agent == nil {
		c.agent = NewBrowserAgent(DefaultCallbackTimeout)
	}

	return c, nil
}

// Issuer returns the configured issuer.
func (c *Coordinator) Issuer() string {
	return c.issuer
}

// ClientID returns the configured client ID.
func (c *Coordinator) ClientID() string {
	return c.clientID
}

// RedirectURI returns the configured redirect URI.
func (c *Coordinator) RedirectURI() string {
	return c.redirectURI
}

// CredentialName returns the logical name the credential is stored under.
func (c *Coordinator) CredentialName() string {
	return c.credentialName
}

// AddScope adds a scope to future authorization requests. Adding a scope that
// is already present has no effect.
func (c *Coordinator) AddScope(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes.Add(scope)
}

// Scopes returns the scopes the next authorization will request.
func (c *Coordinator) Scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopes.Slice()
}

// SetCompletion sets the callback notified of authorization outcomes,
// replacing any previous one. Nil disables notification.
func (c *Coordinator) SetCompletion(fn CompletionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completion = fn
}

// State returns the phase of the current authorization attempt.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether a flow is waiting for its callback.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// IsAuthorized reports whether the current credential can authorize requests.
func (c *Coordinator) IsAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential.CanAuthorize()
}

// Credential returns a copy of the current credential, or nil.
func (c *Coordinator) Credential() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential.Clone()
}

// Authorize starts a new authorization attempt and returns once the external
// agent is launched. The outcome is delivered to the completion callback.
//
// A discovery failure clears the current credential and returns a
// *DiscoveryError without notifying the callback. A flow that is still
// pending is replaced by the new one.
func (c *Coordinator) Authorize(ctx context.Context, presentation Presentation) error {
	c.mu.Lock()
	c.state = StateDiscovering
	scopes := c.scopes.Slice()
	c.mu.Unlock()

	slog.Debug("Starting authorization", "issuer", c.issuer, "scopes", scopes)

	endpoints, err := c.discoverer.Discover(ctx, c.issuer)
	if err != nil {
		c.mu.Lock()
		// Any attempt still in flight is abandoned together with the credential.
		c.pending = nil
		c.setIdleLocked()
		c.setCredentialLocked(nil)
		c.mu.Unlock()

		slog.Info("Endpoint discovery failed", "issuer", c.issuer, "error", err)
		return &DiscoveryError{Issuer: c.issuer, Err: err}
	}

	for _, scope := range unsupportedScopes(endpoints, scopes) {
		slog.Debug("Scope is not advertised by the issuer", "issuer", c.issuer, "scope", scope)
	}

	req, err := newAuthorizationRequest(endpoints, c.clientID, c.clientSecret, c.redirectURI, scopes)
	if err != nil {
		c.mu.Lock()
		c.setIdleLocked()
		c.mu.Unlock()
		return fmt.Errorf("failed to build authorization request: %w", err)
	}

	session, err := newFlowSession(req, c.httpClient, c.handleFlowResult)
	if err != nil {
		c.mu.Lock()
		c.setIdleLocked()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.pending != nil {
		slog.Debug("Replacing pending authorization flow",
			"stale_flow_id", c.pending.ID(),
			"flow_id", session.ID())
	}
	c.pending = session
	c.state = StateRequesting
	c.mu.Unlock()

	if err := c.agent.Present(ctx, session, presentation); err != nil {
		c.mu.Lock()
		if c.pending == session {
			c.pending = nil
		}
		c.setIdleLocked()
		c.mu.Unlock()
		return fmt.Errorf("failed to launch authorization agent: %w", err)
	}

	c.mu.Lock()
	if c.pending == session {
		c.state = StatePending
	}
	c.mu.Unlock()

	slog.Debug("Authorization pending", "flow_id", session.ID())
	return nil
}

// ContinueWith hands a redirect URL to the pending flow. It returns true when
// the URL belonged to the pending flow, whether or not the authorization
// succeeded; the outcome goes to the completion callback. URLs that do not
// belong to the pending flow return false and leave it pending.
func (c *Coordinator) ContinueWith(ctx context.Context, rawURL string) bool {
	c.mu.Lock()
	session := c.pending
	c.mu.Unlock()

	if session == nil {
		return false
	}

	result := session.Resume(ctx, rawURL)
	slog.Debug("Resumed authorization flow", "flow_id", session.ID(), "result", result.String())
	return result.Consumed()
}

// handleFlowResult is the single outcome handler shared by the redirect path
// and the agent path.
func (c *Coordinator) handleFlowResult(session *FlowSession, token *oauth2.Token, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != session {
		slog.Debug("Ignoring outcome of superseded flow", "flow_id", session.ID())
		return
	}
	c.pending = nil
	c.setIdleLocked()

	var cred *Credential
	if token != nil {
		cred = NewCredential(token, session.Request())
		// A token that cannot authorize even once is a failed flow.
		if !cred.CanAuthorize() && err == nil {
			err = errUnusableToken
		}
	}

	switch {
	case cred != nil && cred.CanAuthorize():
		c.setCredentialLocked(cred)
		slog.Info("Authorization succeeded", "flow_id", session.ID(), "credential", cred)
		c.notifyLocked(true)
	case err != nil:
		c.setCredentialLocked(nil)
		slog.Info("Authorization failed", "flow_id", session.ID(), "error", err)
		c.notifyLocked(false)
	default:
		// Neither token nor error: the agent's outcome is unknown. The
		// credential is cleared but nobody is notified.
		c.setCredentialLocked(nil)
		slog.Warn("Authorization ended without result or error", "flow_id", session.ID())
	}
}

// LoadState reads the stored credential. A missing record leaves the
// coordinator unauthorized and the store untouched.
func (c *Coordinator) LoadState() error {
	cred, err := c.store.Load(c.credentialName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cred == nil {
		c.credential = nil
		return nil
	}

	if !cred.CanAuthorize() {
		c.setCredentialLocked(nil)
		return nil
	}

	// Already persisted; only the in-memory copy changes.
	c.credential = cred
	return nil
}

// ResetState removes the stored credential and forgets the in-memory one.
// It is safe to call repeatedly.
func (c *Coordinator) ResetState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.store.Remove(c.credentialName)
	c.credential = nil
	if err != nil {
		slog.Warn("Failed to remove stored credential", "name", c.credentialName, "error", err)
	}
	return err
}

// setCredentialLocked replaces the current credential and mirrors the change
// to the store. REQUIRES: c.mu held.
func (c *Coordinator) setCredentialLocked(cred *Credential) {
	if cred != nil && !cred.CanAuthorize() {
		cred = nil
	}
	changed := !c.credential.Equal(cred)
	c.credential = cred

	if cred != nil {
		// Unchanged credentials are not rewritten.
		if !changed {
			return
		}
		if err := c.store.Save(c.credentialName, cred); err != nil {
			slog.Warn("Failed to persist credential", "name", c.credentialName, "error", err)
		}
		return
	}

	if err := c.store.Remove(c.credentialName); err != nil {
		slog.Warn("Failed to remove stored credential", "name", c.credentialName, "error", err)
	}
}

// setIdleLocked ends the running phase. A flow that is still outstanding
// keeps the coordinator pending. REQUIRES: c.mu held.
func (c *Coordinator) setIdleLocked() {
	if c.pending != nil {
		c.state = StatePending
		return
	}
	c.state = StateIdle
}

// notifyLocked dispatches the completion callback on its own goroutine.
// REQUIRES: c.mu held.
func (c *Coordinator) notifyLocked(succeeded bool) {
	if fn := c.completion; fn != nil {
		go fn(succeeded)
	}
}
