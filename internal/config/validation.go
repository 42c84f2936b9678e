package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidStorageDrivers lists the accepted storage.driver values.
var ValidStorageDrivers = []string{StorageDriverFile, StorageDriverSQLite}

// ValidLogLevels lists the accepted logLevel values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration and returns every problem found, or nil.
func (c AuthflowConfig) Validate() error {
	var errs ValidationErrors

	if err := ValidateAbsoluteURL("issuer", c.Issuer); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if strings.TrimSpace(c.ClientID) == "" {
		errs.Add("clientID", "is required; register an OAuth client and set clientID in config.yaml or pass --client-id")
	}
	if err := ValidateAbsoluteURL("redirectURI", c.RedirectURI); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if strings.TrimSpace(c.CredentialName) == "" {
		errs.Add("credentialName", "must not be empty")
	}
	if c.CallbackTimeout < 0 {
		errs.Add("callbackTimeout", "must not be negative", c.CallbackTimeout)
	}
	if c.LogLevel != "" {
		if err := ValidateOneOf("logLevel", strings.ToLower(c.LogLevel), ValidLogLevels); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}
	if c.Storage.Driver != "" {
		if err := ValidateOneOf("storage.driver", c.Storage.Driver, ValidStorageDrivers); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}
	for i, scope := range c.Scopes {
		if strings.TrimSpace(scope) == "" || strings.ContainsAny(scope, " \t\n") {
			errs.Add(fmt.Sprintf("scopes[%d]", i), "must be a single non-empty scope", scope)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidateAbsoluteURL checks that value is an absolute URL with a host.
func ValidateAbsoluteURL(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Value: value, Message: "is required"}
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ValidationError{Field: field, Value: value, Message: "must be an absolute URL"}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}
