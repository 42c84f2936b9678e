package authorizer

import (
	"slices"
	"strings"
)

// Baseline scopes every authorization requests. They cannot be removed.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
)

// BaselineScopes returns the scopes every ScopeSet starts with.
func BaselineScopes() []string {
	return []string{ScopeOpenID, ScopeProfile}
}

// ScopeSet is an ordered set of scope identifiers, unique by value.
// Scopes are plain strings so callers can add provider specific scopes
// (e.g. "https://www.googleapis.com/auth/drive.file") without changes here.
//
// ScopeSet is not safe for concurrent use; the Coordinator guards it.
type ScopeSet struct {
	scopes []string
}

// NewScopeSet creates a scope set with the baseline scopes followed by extra.
func NewScopeSet(extra ...string) *ScopeSet {
	s := &ScopeSet{scopes: BaselineScopes()}
	for _, scope := range extra {
		s.Add(scope)
	}
	return s
}

// Add appends scope if it is not present yet. Blank scopes are ignored.
// It reports whether the set changed.
func (s *ScopeSet) Add(scope string) bool {
	scope = strings.TrimSpace(scope)
	if scope == "" || s.Contains(scope) {
		return false
	}
	s.scopes = append(s.scopes, scope)
	return true
}

// Contains reports whether scope is in the set.
func (s *ScopeSet) Contains(scope string) bool {
	return slices.Contains(s.scopes, scope)
}

// Len returns the number of scopes.
func (s *ScopeSet) Len() int {
	return len(s.scopes)
}

// Slice returns a copy of the scopes in insertion order.
func (s *ScopeSet) Slice() []string {
	return slices.Clone(s.scopes)
}

// String returns the space-delimited form used in authorization requests.
func (s *ScopeSet) String() string {
	return strings.Join(s.scopes, " ")
}

// unsupportedScopes returns the scopes the issuer does not advertise. Issuers
// that advertise nothing support everything as far as we can tell.
func unsupportedScopes(endpoints *Endpoints, scopes []string) []string {
	if len(endpoints.ScopesSupported) == 0 {
		return nil
	}
	var unsupported []string
	for _, scope := range scopes {
		if !slices.Contains(endpoints.ScopesSupported, scope) {
			unsupported = append(unsupported, scope)
		}
	}
	return unsupported
}
