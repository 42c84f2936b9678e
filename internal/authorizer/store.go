package authorizer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"authflow/pkg/logging"
	pkgoauth "authflow/pkg/oauth"
)

// CredentialStore persists a Credential under a logical name.
//
// Implementations must make Save and Remove atomic with respect to each other
// so that a subsequent Load never observes a partially written record.
type CredentialStore interface {
	// Save stores the credential under name, replacing any previous record.
	Save(name string, cred *Credential) error

	// Load returns the credential stored under name, or nil if there is none.
	Load(name string) (*Credential, error)

	// Remove deletes the record stored under name. Removing an absent record
	// is not an error.
	Remove(name string) error
}

// CredentialStoreConfig configures the file credential store.
type CredentialStoreConfig struct {
	// StorageDir is the directory for credential files.
	// Defaults to ~/.config/authflow/credentials
	StorageDir string

	// FileMode enables file-based persistence. If false, credentials are kept
	// in memory only.
	FileMode bool
}

// FileCredentialStore is the default CredentialStore. It keeps one JSON file
// per logical name.
//
// SECURITY: This store handles sensitive OAuth credentials:
//   - Files are created with 0600 permissions (owner read/write only)
//   - Storage directory is created with 0700 permissions (owner only)
//   - Writes go to a temporary file that is renamed into place
//   - Token values are NEVER logged (only names and issuers)
type FileCredentialStore struct {
	mu         sync.Mutex
	storageDir string
	records    map[string][]byte // In-memory copy, keyed by file key
	fileMode   bool
}

// NewCredentialStore creates a credential store with the given configuration.
func NewCredentialStore(cfg CredentialStoreConfig) (*FileCredentialStore, error) {
	storageDir := cfg.StorageDir
	if storageDir == "" {
		dir, err := DefaultStorageDir()
		if err != nil {
			return nil, err
		}
		storageDir = dir
	}

	if cfg.FileMode {
		if err := os.MkdirAll(storageDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
		}
	}

	return &FileCredentialStore{
		storageDir: storageDir,
		records:    make(map[string][]byte),
		fileMode:   cfg.FileMode,
	}, nil
}

// DefaultStorageDir returns ~/.config/authflow/credentials.
func DefaultStorageDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, pkgoauth.DefaultCredentialStorageDir), nil
}

// NewMemoryCredentialStore creates a store that never touches the disk.
func NewMemoryCredentialStore() *FileCredentialStore {
	return &FileCredentialStore{records: make(map[string][]byte)}
}

// StorageDir returns the directory credential files are written to.
func (s *FileCredentialStore) StorageDir() string {
	return s.storageDir
}

// FileMode reports whether credentials are persisted to disk.
func (s *FileCredentialStore) FileMode() bool {
	return s.fileMode
}

// Path returns the file a credential with the given name is stored in.
func (s *FileCredentialStore) Path(name string) string {
	return filepath.Join(s.storageDir, credentialKey(name)+".json")
}

// Save implements CredentialStore.
func (s *FileCredentialStore) Save(name string, cred *Credential) error {
	data, err := MarshalCredential(cred)
	if err != nil {
		return &StoreError{Operation: "save", Name: name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileMode {
		if err := s.writeFileAtomic(s.Path(name), data); err != nil {
			logging.Audit(logging.AuditEvent{
				Action:  "credential_save",
				Outcome: "failure",
				Target:  name,
				Issuer:  cred.Issuer,
				Error:   err,
			})
			return &StoreError{Operation: "save", Name: name, Err: err}
		}
	}
	s.records[credentialKey(name)] = data

	logging.Audit(logging.AuditEvent{
		Action:  "credential_save",
		Outcome: "success",
		Target:  name,
		Issuer:  cred.Issuer,
	})
	return nil
}

// Load implements CredentialStore. In file mode the file is authoritative so
// that writes made by other processes are observed.
func (s *FileCredentialStore) Load(name string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(name)

	if !s.fileMode {
		data, ok := s.records[key]
		if !ok {
			return nil, nil
		}
		return s.decode(name, data)
	}

	// #nosec G304 -- path is derived from a hash of the name, not user input
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		delete(s.records, key)
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Operation: "load", Name: name, Err: err}
	}
	s.records[key] = data

	return s.decode(name, data)
}

// Remove implements CredentialStore.
func (s *FileCredentialStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, credentialKey(name))

	if s.fileMode {
		err := os.Remove(s.Path(name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Audit(logging.AuditEvent{
				Action:  "credential_remove",
				Outcome: "failure",
				Target:  name,
				Error:   err,
			})
			return &StoreError{Operation: "remove", Name: name, Err: err}
		}
	}

	logging.Audit(logging.AuditEvent{
		Action:  "credential_remove",
		Outcome: "success",
		Target:  name,
	})
	return nil
}

func (s *FileCredentialStore) decode(name string, data []byte) (*Credential, error) {
	cred, err := UnmarshalCredential(data)
	if err != nil {
		slog.Warn("Stored credential is unreadable", "name", name, "error", err)
		return nil, &StoreError{Operation: "load", Name: name, Err: err}
	}
	return cred, nil
}

// writeFileAtomic writes data next to path and renames it into place, so a
// concurrent reader sees either the old or the new record.
func (s *FileCredentialStore) writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.storageDir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move credential file into place: %w", err)
	}
	return nil
}

// credentialKey derives a filesystem-safe identifier from a logical name.
func credentialKey(name string) string {
	hash := sha256.Sum256([]byte(name))
	return hex.EncodeToString(hash[:16]) // First 16 bytes (32 hex chars)
}
