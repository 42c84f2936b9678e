package authorizer

import (
	"context"

	pkgoauth "authflow/pkg/oauth"
)

// Endpoints is the endpoint configuration an authorization request is built from.
type Endpoints struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	ScopesSupported       []string
}

// EndpointDiscoverer resolves an issuer into its endpoint configuration.
// Implementations perform a single attempt per call: no caching, no retry.
type EndpointDiscoverer interface {
	Discover(ctx context.Context, issuer string) (*Endpoints, error)
}

// MetadataDiscoverer is the default EndpointDiscoverer, backed by well-known
// metadata documents.
type MetadataDiscoverer struct {
	client *pkgoauth.Client
}

// NewMetadataDiscoverer creates a discoverer using the given protocol client.
// A nil client gets a default one.
func NewMetadataDiscoverer(client *pkgoauth.Client) *MetadataDiscoverer {
	if client == nil {
		client = pkgoauth.NewClient()
	}
	return &MetadataDiscoverer{client: client}
}

// Discover implements EndpointDiscoverer.
func (d *MetadataDiscoverer) Discover(ctx context.Context, issuer string) (*Endpoints, error) {
	metadata, err := d.client.DiscoverMetadata(ctx, issuer)
	if err != nil {
		return nil, err
	}

	endpoints := &Endpoints{
		Issuer:                metadata.Issuer,
		AuthorizationEndpoint: metadata.AuthorizationEndpoint,
		TokenEndpoint:         metadata.TokenEndpoint,
		ScopesSupported:       metadata.ScopesSupported,
	}
	if endpoints.Issuer == "" {
		endpoints.Issuer = pkgoauth.NormalizeIssuer(issuer)
	}
	return endpoints, nil
}

// StaticDiscoverer returns a fixed endpoint configuration. It serves providers
// without discovery documents and tests.
type StaticDiscoverer struct {
	Endpoints Endpoints
}

// Discover implements EndpointDiscoverer.
func (d StaticDiscoverer) Discover(_ context.Context, _ string) (*Endpoints, error) {
	endpoints := d.Endpoints
	return &endpoints, nil
}
