package oauth

import (
	"errors"
	"slices"
	"strings"
)

// ResponseTypeCode is the only response type the authorization code flow uses.
const ResponseTypeCode = "code"

// DefaultCredentialStorageDir is the default directory for stored credentials,
// relative to the user's home directory. This follows XDG conventions.
const DefaultCredentialStorageDir = ".config/authflow/credentials"

// NormalizeIssuer strips surrounding whitespace and trailing slashes so that
// "https://accounts.google.com/" and "https://accounts.google.com" resolve to
// the same well-known documents.
func NormalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in
// RFC 8414, which is a superset of what OpenID Connect Discovery returns for
// the fields used here.
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// UserinfoEndpoint is the URL of the userinfo endpoint (OIDC).
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`

	// RevocationEndpoint is the URL of the token revocation endpoint.
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// JwksURI is the URL of the JSON Web Key Set.
	JwksURI string `json:"jwks_uri,omitempty"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the response_type values supported.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists the grant types supported.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods.
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// Validate checks that the metadata carries the endpoints the authorization
// code flow cannot work without.
func (m *Metadata) Validate() error {
	if m == nil {
		return errors.New("metadata is nil")
	}
	if m.AuthorizationEndpoint == "" {
		return errors.New("metadata has no authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		return errors.New("metadata has no token_endpoint")
	}
	return nil
}

// SupportsCodeFlow returns true if the server advertises the "code" response
// type. Servers that omit response_types_supported are assumed to support it.
func (m *Metadata) SupportsCodeFlow() bool {
	if len(m.ResponseTypesSupported) == 0 {
		return true
	}
	return slices.Contains(m.ResponseTypesSupported, ResponseTypeCode)
}

// SupportsClientSecretPost returns true when the token endpoint accepts client
// credentials in the request body.
func (m *Metadata) SupportsClientSecretPost() bool {
	return slices.Contains(m.TokenEndpointAuthMethodsSupported, "client_secret_post")
}
