package cli

import (
	"errors"
	"fmt"

	"authflow/internal/authorizer"
)

// AuthRequiredError indicates no usable credential is stored for an issuer.
type AuthRequiredError struct {
	// Issuer is the authorization server the credential belongs to.
	Issuer string
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Authorization required for %s

To authorize, run:
  authflow auth login

To check current authorization status:
  authflow auth status`, e.Issuer)
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthRequiredError) Is(target error) bool {
	_, ok := target.(*AuthRequiredError)
	return ok
}

// AuthFailedError indicates the authorization flow did not produce a credential.
type AuthFailedError struct {
	// Issuer is the authorization server the flow ran against.
	Issuer string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthFailedError) Error() string {
	reason := e.Reason
	if reason == nil {
		reason = errors.New("authorization was not granted")
	}
	return fmt.Sprintf(`Authorization failed for %s: %v

To retry, run:
  authflow auth login`, e.Issuer, reason)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthFailedError) Is(target error) bool {
	_, ok := target.(*AuthFailedError)
	return ok
}

// ClassifyAuthError wraps errors coming out of the authorizer package into
// the CLI error types so that callers can map them onto exit codes.
// Errors that are not authorization related are returned unchanged.
func ClassifyAuthError(issuer string, err error) error {
	if err == nil {
		return nil
	}

	var required *AuthRequiredError
	var failed *AuthFailedError
	if errors.As(err, &required) || errors.As(err, &failed) {
		return err
	}

	if errors.Is(err, authorizer.ErrNotAuthorized) {
		return &AuthRequiredError{Issuer: issuer}
	}

	var discoveryErr *authorizer.DiscoveryError
	var authzErr *authorizer.AuthorizationError
	var exchangeErr *authorizer.ExchangeError
	switch {
	case errors.As(err, &discoveryErr),
		errors.As(err, &authzErr),
		errors.As(err, &exchangeErr),
		errors.Is(err, authorizer.ErrCallbackTimeout):
		return &AuthFailedError{Issuer: issuer, Reason: err}
	}

	return err
}
