// Package oauth provides the OAuth 2.0 protocol pieces shared by authflow's
// authorization coordinator and command line.
//
// # Core Components
//
//   - Metadata: OAuth/OIDC server metadata (RFC 8414, OpenID Discovery)
//   - Client: metadata discovery over HTTP
//   - GenerateState: unguessable per-request state values
//   - NormalizeIssuer: canonical issuer form used as discovery key
//
// # Usage
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	metadata, err := client.DiscoverMetadata(ctx, "https://accounts.google.com")
//
//	state, err := oauth.GenerateState()
//
// Discovery is single-shot: every call performs the well-known fetch again.
// Concurrent calls for the same issuer share one in-flight request.
package oauth
