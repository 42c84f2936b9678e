package authorizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	pkgoauth "authflow/pkg/oauth"
)

// ErrMissingCode is reported when a callback matches a flow but carries
// neither an authorization code nor an error.
var ErrMissingCode = errors.New("callback did not include an authorization code")

// AuthorizationRequest is everything needed to start one authorization code
// flow and to redeem its code afterwards.
type AuthorizationRequest struct {
	// ID correlates log lines of one attempt. It never leaves the process.
	ID string

	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	ClientID              string
	ClientSecret          string
	Scopes                []string
	RedirectURI           string

	// ResponseType is always "code".
	ResponseType string

	// State is the unguessable per-request value the callback must echo.
	State string
}

// newAuthorizationRequest builds a request with a fresh state parameter.
func newAuthorizationRequest(endpoints *Endpoints, clientID, clientSecret, redirectURI string, scopes []string) (*AuthorizationRequest, error) {
	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, err
	}

	return &AuthorizationRequest{
		ID:                    uuid.NewString(),
		Issuer:                endpoints.Issuer,
		AuthorizationEndpoint: endpoints.AuthorizationEndpoint,
		TokenEndpoint:         endpoints.TokenEndpoint,
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		Scopes:                slices.Clone(scopes),
		RedirectURI:           redirectURI,
		ResponseType:          pkgoauth.ResponseTypeCode,
		State:                 state,
	}, nil
}

// oauth2Config returns the x/oauth2 view of the request.
func (r *AuthorizationRequest) oauth2Config() *oauth2.Config {
	return oauth2Config(r.ClientID, r.ClientSecret, r.AuthorizationEndpoint, r.TokenEndpoint, r.RedirectURI, r.Scopes)
}

func oauth2Config(clientID, clientSecret, authURL, tokenURL, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
			// Public clients have no secret to put in a Basic header.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

// URL returns the authorization URL the external agent has to visit.
func (r *AuthorizationRequest) URL() string {
	return r.oauth2Config().AuthCodeURL(r.State)
}

// ResumeResult is the outcome of handing a callback URL to a FlowSession.
type ResumeResult int

const (
	// ResumeNotMine means the URL is not the continuation of this flow.
	ResumeNotMine ResumeResult = iota
	// ResumeSucceeded means the URL was consumed and the code was redeemed.
	ResumeSucceeded
	// ResumeFailed means the URL was consumed but the authorization failed.
	ResumeFailed
)

// String returns a human-readable representation of the result.
func (r ResumeResult) String() string {
	switch r {
	case ResumeNotMine:
		return "NotMine"
	case ResumeSucceeded:
		return "Succeeded"
	case ResumeFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Consumed reports whether the URL belonged to the flow.
func (r ResumeResult) Consumed() bool {
	return r == ResumeSucceeded || r == ResumeFailed
}

// resultHandler receives the single outcome of a session.
type resultHandler func(session *FlowSession, token *oauth2.Token, err error)

// FlowSession is one in-flight consent interaction. It reports exactly one
// outcome, either from Resume or from the external agent through Report.
type FlowSession struct {
	request    *AuthorizationRequest
	redirect   *url.URL
	httpClient *http.Client
	onResult   resultHandler

	claimed  atomic.Bool
	once     sync.Once
	finished chan struct{}
}

func newFlowSession(req *AuthorizationRequest, httpClient *http.Client, onResult resultHandler) (*FlowSession, error) {
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}

	return &FlowSession{
		request:    req,
		redirect:   redirect,
		httpClient: httpClient,
		onResult:   onResult,
		finished:   make(chan struct{}),
	}, nil
}

// ID returns the flow id used in log lines.
func (s *FlowSession) ID() string {
	return s.request.ID
}

// Request returns the request this session was created for.
func (s *FlowSession) Request() *AuthorizationRequest {
	return s.request
}

// AuthorizationURL returns the URL the external agent has to visit.
func (s *FlowSession) AuthorizationURL() string {
	return s.request.URL()
}

// RedirectURL returns the parsed redirect URI of the request.
func (s *FlowSession) RedirectURL() *url.URL {
	u := *s.redirect
	return &u
}

// Done is closed once the session has reported its outcome.
func (s *FlowSession) Done() <-chan struct{} {
	return s.finished
}

// Matches reports whether rawURL is the redirect for this session: same
// scheme, host and path as the redirect URI and the session's state value.
func (s *FlowSession) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if !strings.EqualFold(u.Scheme, s.redirect.Scheme) ||
		!strings.EqualFold(u.Host, s.redirect.Host) ||
		normalizePath(u.Path) != normalizePath(s.redirect.Path) {
		return false
	}

	if !pkgoauth.StatesEqual(s.request.State, u.Query().Get("state")) {
		slog.Warn("OAuth callback state mismatch - possible CSRF attack",
			"flow_id", s.request.ID)
		return false
	}

	return true
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Resume interprets a callback URL. When the URL belongs to this session the
// code is redeemed synchronously and the outcome is reported before Resume
// returns; the caller learns it from the result handler, not from the return
// value beyond succeeded/failed.
func (s *FlowSession) Resume(ctx context.Context, rawURL string) ResumeResult {
	if !s.Matches(rawURL) {
		return ResumeNotMine
	}

	// A session consumes at most one callback.
	if !s.claimed.CompareAndSwap(false, true) {
		return ResumeNotMine
	}

	u, _ := url.Parse(rawURL)
	query := u.Query()

	if errCode := query.Get("error"); errCode != "" {
		authErr := &AuthorizationError{
			Code:        errCode,
			Description: query.Get("error_description"),
			URI:         query.Get("error_uri"),
		}
		slog.Info("OAuth provider returned an error",
			"flow_id", s.request.ID,
			"error", authErr.Code)
		s.finish(nil, authErr)
		return ResumeFailed
	}

	code := query.Get("code")
	if code == "" {
		s.finish(nil, ErrMissingCode)
		return ResumeFailed
	}

	token, err := s.exchange(ctx, code)
	if err != nil {
		s.finish(nil, err)
		return ResumeFailed
	}

	s.finish(token, nil)
	return ResumeSucceeded
}

// Report delivers the external agent's outcome. Either value may be nil; a
// nil token together with a nil error is an ambiguous outcome. Report returns
// false when the session already has an outcome.
func (s *FlowSession) Report(token *oauth2.Token, err error) bool {
	if !s.claimed.CompareAndSwap(false, true) {
		return false
	}
	s.finish(token, err)
	return true
}

func (s *FlowSession) finish(token *oauth2.Token, err error) {
	s.once.Do(func() {
		defer close(s.finished)
		if s.onResult != nil {
			s.onResult(s, token, err)
		}
	})
}

// exchange redeems the authorization code at the token endpoint.
func (s *FlowSession) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	slog.Debug("Exchanging authorization code",
		"flow_id", s.request.ID,
		"token_endpoint", s.request.TokenEndpoint)

	token, err := s.request.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{TokenEndpoint: s.request.TokenEndpoint, Err: err}
	}

	return token, nil
}
