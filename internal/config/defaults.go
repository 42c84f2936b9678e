package config

import "time"

const (
	// DefaultIssuer is the issuer used when none is configured.
	DefaultIssuer = "https://accounts.google.com"

	// DefaultRedirectURI is the loopback address of the callback server.
	DefaultRedirectURI = "http://127.0.0.1:8085/callback"

	// DefaultCredentialName is the logical name of the stored credential.
	DefaultCredentialName = "authflow.authorization"

	// DefaultCallbackTimeout matches the time a user gets to finish consent.
	DefaultCallbackTimeout = 10 * time.Minute

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"
)

// Storage drivers.
const (
	StorageDriverFile   = "file"
	StorageDriverSQLite = "sqlite"
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() AuthflowConfig {
	return AuthflowConfig{
		Issuer:          DefaultIssuer,
		RedirectURI:     DefaultRedirectURI,
		CredentialName:  DefaultCredentialName,
		Storage:         StorageConfig{Driver: StorageDriverFile},
		CallbackTimeout: DefaultCallbackTimeout,
		LogLevel:        DefaultLogLevel,
	}
}
