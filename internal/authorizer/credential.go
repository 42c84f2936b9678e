package authorizer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// tokenExpiryBuffer is the margin added when checking access token validity.
// This accounts for clock skew, network latency, and long-running operations.
const tokenExpiryBuffer = 60 * time.Second

// Credential is the persisted authorization state: the tokens plus the
// provider metadata needed to refresh them after a process restart.
//
// A Credential is never mutated in place once handed to the Coordinator;
// refreshes and re-authorizations replace it wholesale.
type Credential struct {
	// AccessToken is the OAuth access token.
	AccessToken string `json:"access_token"`

	// RefreshToken is the OAuth refresh token (if available).
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// Expiry is when the access token expires. Zero means it does not expire.
	Expiry time.Time `json:"expiry,omitempty"`

	// IDToken is the OIDC ID token (if available).
	IDToken string `json:"id_token,omitempty"`

	// Scopes are the scopes requested for this credential.
	Scopes []string `json:"scopes,omitempty"`

	// Issuer is the OAuth issuer that issued the tokens.
	Issuer string `json:"issuer"`

	// ClientID is the OAuth client the tokens were issued to.
	ClientID string `json:"client_id"`

	// AuthorizationEndpoint and TokenEndpoint are kept so the credential can
	// be refreshed without repeating discovery.
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint"`

	// CreatedAt is when the credential was obtained.
	CreatedAt time.Time `json:"created_at"`
}

// NewCredential wraps the token returned by a code exchange or refresh into
// a Credential carrying the endpoint metadata of the request it came from.
func NewCredential(token *oauth2.Token, req *AuthorizationRequest) *Credential {
	if token == nil {
		return nil
	}

	cred := &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		Expiry:       token.Expiry,
		CreatedAt:    time.Now().UTC(),
	}

	if idToken, ok := token.Extra("id_token").(string); ok {
		cred.IDToken = idToken
	}

	if req != nil {
		cred.Issuer = req.Issuer
		cred.ClientID = req.ClientID
		cred.AuthorizationEndpoint = req.AuthorizationEndpoint
		cred.TokenEndpoint = req.TokenEndpoint
		cred.Scopes = slices.Clone(req.Scopes)
	}

	return cred
}

// CanAuthorize reports whether the credential can authorize a request, either
// with a still-valid access token or by refreshing it.
func (c *Credential) CanAuthorize() bool {
	if c == nil {
		return false
	}
	if c.RefreshToken != "" && c.TokenEndpoint != "" {
		return true
	}
	return c.AccessToken != "" && !c.Expired()
}

// Expired reports whether the access token is expired or about to expire.
func (c *Credential) Expired() bool {
	if c == nil {
		return true
	}
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(tokenExpiryBuffer).After(c.Expiry)
}

// Token converts the credential to an oauth2.Token.
func (c *Credential) Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}

	if c.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": c.IDToken,
		})
	}

	return token
}

// WithToken returns a copy of the credential with the tokens replaced by a
// refreshed token. Refresh responses usually omit the refresh token and the
// ID token; the previous values are kept in that case.
func (c *Credential) WithToken(token *oauth2.Token) *Credential {
	next := c.Clone()
	next.AccessToken = token.AccessToken
	next.TokenType = token.Type()
	next.Expiry = token.Expiry
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		next.IDToken = idToken
	}
	return next
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Scopes = slices.Clone(c.Scopes)
	return &clone
}

// Equal reports whether two credentials hold the same authorization state.
// Two nil credentials are equal.
func (c *Credential) Equal(other *Credential) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	return c.AccessToken == other.AccessToken &&
		c.RefreshToken == other.RefreshToken &&
		c.TokenType == other.TokenType &&
		c.Expiry.Equal(other.Expiry) &&
		c.IDToken == other.IDToken &&
		c.Issuer == other.Issuer &&
		c.ClientID == other.ClientID &&
		c.TokenEndpoint == other.TokenEndpoint &&
		c.AuthorizationEndpoint == other.AuthorizationEndpoint &&
		slices.Equal(c.Scopes, other.Scopes)
}

// MarshalCredential serializes a credential into the opaque blob kept by a
// CredentialStore.
func MarshalCredential(c *Credential) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot marshal nil credential")
	}
	return json.MarshalIndent(c, "", "  ")
}

// UnmarshalCredential parses a blob produced by MarshalCredential.
func UnmarshalCredential(data []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &c, nil
}

// redacted replaces token values wherever a credential is printed or logged.
const redacted = "[REDACTED]"

// String implements fmt.Stringer without exposing token values.
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Credential{issuer=%s client=%s access_token=%s expiry=%s}",
		c.Issuer, c.ClientID, redacted, c.Expiry.Format(time.RFC3339))
}

// GoString implements fmt.GoStringer for %#v formatting.
func (c *Credential) GoString() string {
	return c.String()
}

// LogValue implements slog.LogValuer. Tokens are reduced to whether they
// are present.
func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("issuer", c.Issuer),
		slog.String("client_id", c.ClientID),
		slog.Time("expiry", c.Expiry),
		slog.Bool("refreshable", c.RefreshToken != ""),
		slog.Any("scopes", c.Scopes),
	)
}
