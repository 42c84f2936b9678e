package authorizer

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNotAuthorized is returned when an operation needs a credential and the
// coordinator has none that can authorize.
var ErrNotAuthorized = errors.New("not authorized")

// ErrNoPendingFlow is returned by operations that need an outstanding
// authorization flow.
var ErrNoPendingFlow = errors.New("no authorization flow in progress")

// errUnusableToken marks a flow whose token expires within the refresh buffer
// and carries no refresh token.
var errUnusableToken = errors.New("issued token expires immediately and cannot be refreshed")

// DiscoveryError indicates that the issuer's metadata could not be retrieved.
type DiscoveryError struct {
	Issuer string
	Err    error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover endpoints for issuer %s: %v", e.Issuer, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// AuthorizationError is an error response delivered on the redirect callback
// (RFC 6749 section 4.1.2.1), e.g. "access_denied" when the user declines.
type AuthorizationError struct {
	Code        string
	Description string
	URI         string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

// IsAccessDenied reports whether the user declined the consent.
func (e *AuthorizationError) IsAccessDenied() bool {
	return e.Code == "access_denied"
}

// ExchangeError indicates that the token endpoint rejected the code exchange.
type ExchangeError struct {
	TokenEndpoint string
	Err           error
}

// Error implements the error interface.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange with %s failed: %v", e.TokenEndpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// StoreError indicates a credential storage error.
type StoreError struct {
	Operation string // "load", "save", "remove"
	Name      string
	Err       error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Operation + " credential"
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// isInvalidGrant reports whether err is a token endpoint "invalid_grant"
// response, which means the refresh token was revoked or expired.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode == "invalid_grant"
	}
	return false
}
