package authorizer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"authflow/pkg/logging"

	_ "modernc.org/sqlite"
)

// SQLiteDatabaseFile is the database file name used inside the storage directory.
const SQLiteDatabaseFile = "credentials.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	name       TEXT PRIMARY KEY,
	issuer     TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteCredentialStore keeps credentials in a single SQLite database. It
// suits hosts that already back up or share one database file instead of a
// directory of JSON files.
type SQLiteCredentialStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteCredentialStore opens (creating if needed) the database at
// dir/credentials.db. An empty dir uses the default credential directory.
func NewSQLiteCredentialStore(dir string) (*SQLiteCredentialStore, error) {
	if dir == "" {
		defaultDir, err := DefaultStorageDir()
		if err != nil {
			return nil, err
		}
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
	}

	path := filepath.Join(dir, SQLiteDatabaseFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}
	// Writers are serialized on a single connection.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure credential database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create credential table: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to restrict credential database permissions: %w", err)
	}

	return &SQLiteCredentialStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteCredentialStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteCredentialStore) Close() error {
	return s.db.Close()
}

// Save implements CredentialStore.
func (s *SQLiteCredentialStore) Save(name string, cred *Credential) error {
	data, err := MarshalCredential(cred)
	if err != nil {
		return &StoreError{Operation: "save", Name: name, Err: err}
	}

	_, err = s.db.ExecContext(context.Background(), `
INSERT INTO credentials (name, issuer, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET issuer = excluded.issuer, data = excluded.data, updated_at = excluded.updated_at`,
		name, cred.Issuer, data, time.Now().Unix())
	if err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "credential_save",
			Outcome: "failure",
			Target:  name,
			Issuer:  cred.Issuer,
			Error:   err,
		})
		return &StoreError{Operation: "save", Name: name, Err: err}
	}

	logging.Audit(logging.AuditEvent{
		Action:  "credential_save",
		Outcome: "success",
		Target:  name,
		Issuer:  cred.Issuer,
	})
	return nil
}

// Load implements CredentialStore.
func (s *SQLiteCredentialStore) Load(name string) (*Credential, error) {
	var data []byte
	err := s.db.QueryRowContext(context.Background(),
		`SELECT data FROM credentials WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Operation: "load", Name: name, Err: err}
	}

	cred, err := UnmarshalCredential(data)
	if err != nil {
		return nil, &StoreError{Operation: "load", Name: name, Err: err}
	}
	return cred, nil
}

// Remove implements CredentialStore.
func (s *SQLiteCredentialStore) Remove(name string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM credentials WHERE name = ?`, name); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "credential_remove",
			Outcome: "failure",
			Target:  name,
			Error:   err,
		})
		return &StoreError{Operation: "remove", Name: name, Err: err}
	}

	logging.Audit(logging.AuditEvent{
		Action:  "credential_remove",
		Outcome: "success",
		Target:  name,
	})
	return nil
}
