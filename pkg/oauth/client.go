package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// maxMetadataBytes bounds the size of a discovery document we are willing to read.
const maxMetadataBytes = 1 << 20

// Well-known discovery document paths, in the order they are tried.
const (
	WellKnownOpenIDConfiguration = "/.well-known/openid-configuration"
	WellKnownAuthorizationServer = "/.well-known/oauth-authorization-server"
)

// Client handles OAuth 2.0 protocol operations that are not covered by
// golang.org/x/oauth2, which is metadata discovery.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	// discoveryGroup collapses concurrent discoveries of the same issuer.
	// No result outlives the in-flight request.
	discoveryGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// HTTPClient returns the underlying HTTP client so token exchange can reuse
// the same transport and timeouts.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// DiscoverMetadata fetches OAuth metadata from the issuer's well-known endpoint.
// It tries OpenID Connect discovery (/.well-known/openid-configuration) first,
// then falls back to RFC 8414 (/.well-known/oauth-authorization-server).
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = NormalizeIssuer(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("issuer URL is empty")
	}

	result, err, shared := c.discoveryGroup.Do(issuer, func() (interface{}, error) {
		return c.doDiscoverMetadata(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Shared in-flight OAuth metadata discovery", "issuer", issuer)
	}

	// Hand every caller its own copy; callers are free to mutate it.
	metadata := *result.(*Metadata)
	return &metadata, nil
}

// doDiscoverMetadata performs the actual HTTP fetch for OAuth metadata.
func (c *Client) doDiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	wellKnownURL := issuer + WellKnownOpenIDConfiguration
	metadata, err := c.fetchMetadata(ctx, wellKnownURL)
	if err == nil {
		c.logDiscovered(issuer, metadata)
		return metadata, nil
	}

	c.logger.Debug("OIDC metadata fetch failed, trying RFC 8414",
		"issuer", issuer,
		"error", err)

	wellKnownURL = issuer + WellKnownAuthorizationServer
	metadata, err = c.fetchMetadata(ctx, wellKnownURL)
	if err == nil {
		c.logDiscovered(issuer, metadata)
		return metadata, nil
	}

	return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, err)
}

// fetchMetadata fetches metadata from a specific URL.
func (c *Client) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata at %s: %w", metadataURL, err)
	}

	return &metadata, nil
}

func (c *Client) logDiscovered(issuer string, metadata *Metadata) {
	c.logger.Debug("Discovered OAuth metadata",
		"issuer", issuer,
		"authorization_endpoint", metadata.AuthorizationEndpoint,
		"token_endpoint", metadata.TokenEndpoint)
}
