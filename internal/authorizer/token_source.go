package authorizer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// TokenSource returns a token source backed by the current credential.
// Refreshed tokens replace the coordinator's credential and are persisted;
// a refresh rejected with invalid_grant clears it.
//
// ctx is used for refresh requests and must outlive the token source.
func (c *Coordinator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	c.mu.Lock()
	cred := c.credential.Clone()
	c.mu.Unlock()

	if !cred.CanAuthorize() {
		return nil, ErrNotAuthorized
	}

	cfg := oauth2Config(cred.ClientID, c.clientSecret, cred.AuthorizationEndpoint, cred.TokenEndpoint, c.redirectURI, cred.Scopes)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return &coordinatorTokenSource{
		coordinator: c,
		base:        cfg.TokenSource(ctx, cred.Token()),
		credential:  cred,
	}, nil
}

// HTTPClient returns an HTTP client that authorizes its requests with the
// current credential.
func (c *Coordinator) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := c.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, ts), nil
}

// coordinatorTokenSource feeds refreshed tokens back into the coordinator.
type coordinatorTokenSource struct {
	coordinator *Coordinator
	base        oauth2.TokenSource

	mu         sync.Mutex
	credential *Credential
}

// Token implements oauth2.TokenSource.
func (s *coordinatorTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.base.Token()
	if err != nil {
		if isInvalidGrant(err) {
			slog.Info("Refresh token rejected, clearing credential", "issuer", s.credential.Issuer)
			s.coordinator.clearCredential(s.credential)
		}
		return nil, err
	}

	if token.AccessToken != s.credential.AccessToken {
		slog.Debug("Access token refreshed", "issuer", s.credential.Issuer, "expiry", token.Expiry)
		next := s.credential.WithToken(token)
		s.coordinator.replaceCredential(s.credential, next)
		s.credential = next
	}

	return token, nil
}

// replaceCredential swaps prev for next unless the credential has changed
// in the meantime, e.g. by a new authorization or a reset.
func (c *Coordinator) replaceCredential(prev, next *Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.credential.Equal(prev) {
		return
	}
	c.setCredentialLocked(next)
}

// clearCredential drops prev if it is still the current credential.
func (c *Coordinator) clearCredential(prev *Credential) {
	c.replaceCredential(prev, nil)
}
