package config

import "time"

// AuthflowConfig is the top-level configuration structure for authflow.
type AuthflowConfig struct {
	// Issuer is the OAuth issuer whose endpoints are discovered.
	Issuer string `yaml:"issuer"`

	// ClientID is the OAuth client registered for this installation.
	ClientID string `yaml:"clientID"`

	// ClientSecret is the (non-confidential) secret of installed-app clients.
	// AUTHFLOW_CLIENT_SECRET overrides it.
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// RedirectURI is the loopback address the provider redirects back to.
	RedirectURI string `yaml:"redirectURI,omitempty"`

	// Scopes are requested in addition to "openid" and "profile".
	Scopes []string `yaml:"scopes,omitempty"`

	// CredentialName is the logical name the credential is stored under.
	CredentialName string `yaml:"credentialName,omitempty"`

	// Storage configures credential persistence.
	Storage StorageConfig `yaml:"storage,omitempty"`

	// CallbackTimeout bounds how long login waits for the browser to return.
	CallbackTimeout time.Duration `yaml:"callbackTimeout,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel,omitempty"`
}

// StorageConfig defines where credentials are kept.
type StorageConfig struct {
	// Driver selects the backend: "file" (one JSON file per credential) or
	// "sqlite" (a credentials.db database in Dir).
	Driver string `yaml:"driver,omitempty"`

	// Dir overrides ~/.config/authflow/credentials.
	Dir string `yaml:"dir,omitempty"`

	// InMemory disables persistence; credentials are lost on exit.
	InMemory bool `yaml:"inMemory,omitempty"`
}
