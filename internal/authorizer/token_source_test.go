package authorizer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// seedCredential stores cred and loads it into a new coordinator.
func seedCredential(t *testing.T, p *fakeProvider, store CredentialStore, cred *Credential) *Coordinator {
	t.Helper()
	require.NoError(t, store.Save(DefaultCredentialName, cred))
	c := newTestCoordinator(t, p, &recordingAgent{}, store)
	require.NoError(t, c.LoadState())
	return c
}

func TestCoordinator_TokenSource_NotAuthorized(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestCoordinator(t, p, &recordingAgent{}, nil)

	_, err := c.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = c.HTTPClient(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCoordinator_TokenSource_ValidToken(t *testing.T) {
	p := newFakeProvider(t)
	c := seedCredential(t, p, NewMemoryCredentialStore(), &Credential{
		AccessToken:   "still-valid",
		RefreshToken:  "refresh-token",
		TokenType:     "Bearer",
		Expiry:        time.Now().Add(time.Hour),
		ClientID:      testClientID,
		TokenEndpoint: p.URL() + "/token",
	})

	ts, err := c.TokenSource(context.Background())
	require.NoError(t, err)

	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-valid", token.AccessToken)

	_, _, refreshes := p.counts()
	assert.Zero(t, refreshes)
}

func TestCoordinator_TokenSource_RefreshPersists(t *testing.T) {
	p := newFakeProvider(t)
	store := NewMemoryCredentialStore()
	c := seedCredential(t, p, store, &Credential{
		AccessToken:   "expired",
		RefreshToken:  "refresh-token",
		TokenType:     "Bearer",
		Expiry:        time.Now().Add(-time.Hour),
		Issuer:        p.URL(),
		ClientID:      testClientID,
		TokenEndpoint: p.URL() + "/token",
	})
	require.True(t, c.IsAuthorized())

	ts, err := c.TokenSource(context.Background())
	require.NoError(t, err)

	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)

	cred := c.Credential()
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-token", cred.RefreshToken, "refresh token survives a refresh without rotation")

	stored, err := store.Load(DefaultCredentialName)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)

	// The refreshed token is reused.
	_, err = ts.Token()
	require.NoError(t, err)
	_, _, refreshes := p.counts()
	assert.Equal(t, 1, refreshes)
}

func TestCoordinator_TokenSource_InvalidGrantClearsCredential(t *testing.T) {
	p := newFakeProvider(t)
	p.setRefreshError("invalid_grant")
	store := NewMemoryCredentialStore()
	c := seedCredential(t, p, store, &Credential{
		AccessToken:   "expired",
		RefreshToken:  "revoked",
		Expiry:        time.Now().Add(-time.Hour),
		ClientID:      testClientID,
		TokenEndpoint: p.URL() + "/token",
	})

	ts, err := c.TokenSource(context.Background())
	require.NoError(t, err)

	_, err = ts.Token()
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)

	assert.False(t, c.IsAuthorized())
	stored, err := store.Load(DefaultCredentialName)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCoordinator_TokenSource_TransientErrorKeepsCredential(t *testing.T) {
	p := newFakeProvider(t)
	p.setRefreshError("temporarily_unavailable")
	c := seedCredential(t, p, NewMemoryCredentialStore(), &Credential{
		AccessToken:   "expired",
		RefreshToken:  "refresh-token",
		Expiry:        time.Now().Add(-time.Hour),
		ClientID:      testClientID,
		TokenEndpoint: p.URL() + "/token",
	})

	ts, err := c.TokenSource(context.Background())
	require.NoError(t, err)

	_, err = ts.Token()
	require.Error(t, err)
	assert.True(t, c.IsAuthorized())
}

func TestCoordinator_HTTPClient_AuthorizesRequests(t *testing.T) {
	p := newFakeProvider(t)
	c := seedCredential(t, p, NewMemoryCredentialStore(), &Credential{
		AccessToken:   "expired",
		RefreshToken:  "refresh-token",
		Expiry:        time.Now().Add(-time.Hour),
		ClientID:      testClientID,
		TokenEndpoint: p.URL() + "/token",
	})

	client, err := c.HTTPClient(context.Background())
	require.NoError(t, err)

	resp, err := client.Get(p.URL() + "/api")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCoordinator_TokenSource_DoesNotOverwriteNewerCredential(t *testing.T) {
	p := newFakeProvider(t)
	c := seedCredential(t, p, NewMemoryCredentialStore(), &Credential{
		AccessToken:   "expired",
		RefreshToken:  "refresh-token",
		Expiry:        time.Now().Add(-time.Hour),
		ClientID:      testClientID,
		TokenEndpoint: p.URL() + "/token",
	})

	ts, err := c.TokenSource(context.Background())
	require.NoError(t, err)

	// A reset happens while the token source is still in use.
	require.NoError(t, c.ResetState())

	_, err = ts.Token()
	require.NoError(t, err)
	assert.False(t, c.IsAuthorized())
}
