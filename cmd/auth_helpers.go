package cmd

import (
	"fmt"
	"io"

	"authflow/internal/authorizer"
	"authflow/internal/config"
	"authflow/pkg/logging"

	"github.com/spf13/cobra"
)

// newCoordinator builds the coordinator used by the auth commands. Tests swap
// it for authorizer.NewCoordinator so that every command gets a fresh one.
var newCoordinator = authorizer.Shared

// authEnv bundles what an auth subcommand needs.
type authEnv struct {
	config      config.AuthflowConfig
	store       authorizer.CredentialStore
	coordinator *authorizer.Coordinator
}

// credentialPath returns the file holding the credential, or "" for
// in-memory storage.
func (e *authEnv) credentialPath() string {
	switch store := e.store.(type) {
	case *authorizer.FileCredentialStore:
		if !store.FileMode() {
			return ""
		}
		return store.Path(e.coordinator.CredentialName())
	case *authorizer.SQLiteCredentialStore:
		return store.Path()
	default:
		return ""
	}
}

// close releases the store's resources, if it holds any.
func (e *authEnv) close() {
	if closer, ok := e.store.(io.Closer); ok {
		_ = closer.Close()
	}
}

// newCredentialStore builds the store selected by the storage configuration.
func newCredentialStore(cfg config.StorageConfig) (authorizer.CredentialStore, error) {
	if cfg.InMemory {
		return authorizer.NewMemoryCredentialStore(), nil
	}
	switch cfg.Driver {
	case config.StorageDriverSQLite:
		return authorizer.NewSQLiteCredentialStore(cfg.Dir)
	case "", config.StorageDriverFile:
		return authorizer.NewCredentialStore(authorizer.CredentialStoreConfig{
			StorageDir: cfg.Dir,
			FileMode:   true,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// loadAuthEnv loads the configuration, applies flag overrides, initializes
// logging and returns a coordinator with the stored credential loaded.
func loadAuthEnv(cmd *cobra.Command) (*authEnv, error) {
	cfg, err := config.LoadConfig(authConfigPath)
	if err != nil {
		return nil, err
	}
	if authIssuer != "" {
		cfg.Issuer = authIssuer
	}
	if authClientID != "" {
		cfg.ClientID = authClientID
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	store, err := newCredentialStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	coordinator, err := newCoordinator(authorizer.Config{
		Issuer:         cfg.Issuer,
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		RedirectURI:    cfg.RedirectURI,
		Scopes:         cfg.Scopes,
		CredentialName: cfg.CredentialName,
		Store:          store,
		Agent:          authorizer.NewBrowserAgent(cfg.CallbackTimeout),
	})
	if err != nil {
		return nil, err
	}

	if err := coordinator.LoadState(); err != nil {
		logging.Warn("Auth", "Failed to load stored credential: %v", err)
	}

	return &authEnv{config: cfg, store: store, coordinator: coordinator}, nil
}
