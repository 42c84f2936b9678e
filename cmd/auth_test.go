package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"authflow/internal/authorizer"
	"authflow/internal/cli"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cmdTestClientID = "cli-client"
	cmdTestCode     = "cli-code"
)

// syncBuffer is a bytes.Buffer safe for a command writing while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newCLIProvider serves discovery and an authorization_code/refresh token endpoint.
func newCLIProvider(t *testing.T) *httptest.Server {
	t.Helper()

	var (
		mu     sync.Mutex
		issued int
	)

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") != cmdTestCode {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		mu.Lock()
		issued++
		n := issued
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  fmt.Sprintf("cli-access-%d", n),
			"refresh_token": "cli-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func freeRedirectURI(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return fmt.Sprintf("http://127.0.0.1:%d/callback", port)
}

type cliFixture struct {
	configDir   string
	storageDir  string
	issuer      string
	redirectURI string
}

// newCLIFixture writes a config.yaml pointing at a fake provider and makes
// every command build its own coordinator.
func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	return newCLIFixtureWithDriver(t, "file")
}

func newCLIFixtureWithDriver(t *testing.T, driver string) *cliFixture {
	t.Helper()

	provider := newCLIProvider(t)
	f := &cliFixture{
		configDir:   t.TempDir(),
		storageDir:  filepath.Join(t.TempDir(), "credentials"),
		issuer:      provider.URL,
		redirectURI: freeRedirectURI(t),
	}

	content := fmt.Sprintf(`issuer: %s
clientID: %s
redirectURI: %s
callbackTimeout: 5s
logLevel: error
storage:
  driver: %s
  dir: %s
`, f.issuer, cmdTestClientID, f.redirectURI, driver, f.storageDir)
	require.NoError(t, os.WriteFile(filepath.Join(f.configDir, "config.yaml"), []byte(content), 0600))

	original := newCoordinator
	newCoordinator = authorizer.NewCoordinator
	t.Cleanup(func() { newCoordinator = original })

	return f
}

// run executes the root command with fresh flag state.
func (f *cliFixture) run(ctx context.Context, out io.Writer, args ...string) error {
	authIssuer = ""
	authClientID = ""
	authQuiet = false
	loginNoBrowser = false
	loginScopes = nil
	loginForce = false
	statusWatch = false
	tokenHeader = false

	// Subcommands keep the context of their first execution.
	setCommandContext(ctx, rootCmd)

	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, "--config-path", f.configDir))
	return rootCmd.ExecuteContext(ctx)
}

func setCommandContext(ctx context.Context, c *cobra.Command) {
	c.SetContext(ctx)
	for _, sub := range c.Commands() {
		setCommandContext(ctx, sub)
	}
}

var authURLPattern = regexp.MustCompile(`https?://\S+/authorize\?\S+`)

// login runs `auth login --no-browser` and completes it through the redirect host.
func (f *cliFixture) login(t *testing.T, code string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &syncBuffer{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.run(ctx, out, "auth", "login", "--no-browser")
	}()

	var authURL string
	require.Eventually(t, func() bool {
		authURL = authURLPattern.FindString(out.String())
		return authURL != ""
	}, 5*time.Second, 20*time.Millisecond, "authorization URL was not printed")

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, cmdTestClientID, parsed.Query().Get("client_id"))
	assert.Equal(t, f.redirectURI, parsed.Query().Get("redirect_uri"))

	callback := f.redirectURI + "?" + url.Values{"code": {code}, "state": {state}}.Encode()
	resp, err := http.Get(callback)
	require.NoError(t, err)
	_ = resp.Body.Close()

	select {
	case err := <-errCh:
		return out.String(), err
	case <-ctx.Done():
		t.Fatal("login did not finish")
		return "", nil
	}
}

func TestAuthLogin_StoresCredential(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.login(t, cmdTestCode)
	require.NoError(t, err)
	assert.Contains(t, out, "Authorized with")

	entries, err := os.ReadDir(f.storageDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var tokenOut bytes.Buffer
	require.NoError(t, f.run(context.Background(), &tokenOut, "auth", "token"))
	assert.Equal(t, "cli-access-1\n", tokenOut.String())

	tokenOut.Reset()
	require.NoError(t, f.run(context.Background(), &tokenOut, "auth", "token", "--header"))
	assert.Equal(t, "Authorization: Bearer cli-access-1\n", tokenOut.String())

	var statusOut bytes.Buffer
	require.NoError(t, f.run(context.Background(), &statusOut, "auth", "status"))
	assert.Contains(t, statusOut.String(), f.issuer)
	assert.Contains(t, statusOut.String(), "Yes")
	assert.Contains(t, statusOut.String(), f.storageDir)
}

func TestAuthLogin_AlreadyAuthorized(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.login(t, cmdTestCode)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, f.run(context.Background(), &out, "auth", "login"))
	assert.Contains(t, out.String(), "Already authorized")
}

func TestAuthLogin_ExchangeFailure(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.login(t, "wrong-code")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))

	entries, _ := os.ReadDir(f.storageDir)
	assert.Empty(t, entries)
}

func TestAuthLogin_RepeatedRunsUseFreshContext(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.login(t, "wrong-code")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))

	out, err := f.login(t, cmdTestCode)
	require.NoError(t, err)
	assert.Contains(t, out, "Authorized with")
}

func TestAuthLogout(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.login(t, cmdTestCode)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, f.run(context.Background(), &out, "auth", "logout"))
	assert.Contains(t, out.String(), "Logged out from")

	entries, err := os.ReadDir(f.storageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	out.Reset()
	require.NoError(t, f.run(context.Background(), &out, "auth", "logout"))
	assert.Contains(t, out.String(), "No stored credential")

	err = f.run(context.Background(), &out, "auth", "token")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestAuthToken_NotAuthorized(t *testing.T) {
	f := newCLIFixture(t)

	err := f.run(context.Background(), io.Discard, "auth", "token")
	require.Error(t, err)

	var required *cli.AuthRequiredError
	require.ErrorAs(t, err, &required)
	assert.Equal(t, f.issuer, required.Issuer)
}

func TestAuthStatus_Unauthorized(t *testing.T) {
	f := newCLIFixture(t)

	var out bytes.Buffer
	require.NoError(t, f.run(context.Background(), &out, "auth", "status"))
	assert.Contains(t, out.String(), "No")
	assert.Contains(t, out.String(), "openid profile")
}

func TestAuthCommands_InvalidConfiguration(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.configDir, "config.yaml"), []byte("issuer: not-a-url\n"), 0600))

	err := f.run(context.Background(), io.Discard, "auth", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Equal(t, ExitCodeError, getExitCode(err))
}

func TestAuthCmdProperties(t *testing.T) {
	for _, c := range []struct {
		use  string
		runE bool
	}{
		{"login", authLoginCmd.RunE != nil},
		{"logout", authLogoutCmd.RunE != nil},
		{"status", authStatusCmd.RunE != nil},
		{"token", authTokenCmd.RunE != nil},
	} {
		if !c.runE {
			t.Errorf("expected RunE to be set on %s", c.use)
		}
	}

	for _, name := range []string{"config-path", "issuer", "client-id", "quiet"} {
		if authCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag --%s", name)
		}
	}
	if authLoginCmd.Flags().Lookup("no-browser") == nil {
		t.Error("expected --no-browser flag on login")
	}
	if authStatusCmd.Flags().Lookup("watch") == nil {
		t.Error("expected --watch flag on status")
	}
}

func TestAuthCommands_SQLiteStorage(t *testing.T) {
	f := newCLIFixtureWithDriver(t, "sqlite")

	_, err := f.login(t, cmdTestCode)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(f.storageDir, authorizer.SQLiteDatabaseFile))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, f.run(context.Background(), &out, "auth", "token"))
	assert.Equal(t, "cli-access-1\n", out.String())

	out.Reset()
	require.NoError(t, f.run(context.Background(), &out, "auth", "status"))
	assert.Contains(t, out.String(), authorizer.SQLiteDatabaseFile)

	require.NoError(t, f.run(context.Background(), io.Discard, "auth", "logout"))
	err = f.run(context.Background(), io.Discard, "auth", "token")
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}
