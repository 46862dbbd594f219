package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/eldtechnologies/buddychat/internal/crypto"
)

// fileRecord is the on-disk shape of the credential file.
type fileRecord struct {
	Token  string `json:"token"`
	Sealed bool   `json:"sealed,omitempty"`
}

// FileStore keeps the credential in a JSON file, optionally sealed with a secret.
type FileStore struct {
	path   string
	secret string
	mu     sync.Mutex
}

// NewFileStore creates a file store at path.
// If path is empty, defaults to "./credentials.json"
func NewFileStore(path, secret string) *FileStore {
	if path == "" {
		path = "./credentials.json"
	}
	return &FileStore{path: path, secret: secret}
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// Ping checks that the credential directory is usable.
func (s *FileStore) Ping(ctx context.Context) error {
	return os.MkdirAll(filepath.Dir(s.path), 0700)
}

// Get reads the credential from disk.
func (s *FileStore) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	if !rec.Sealed {
		return rec.Token, nil
	}
	return crypto.Unseal(rec.Token, s.secret)
}

// Set writes the credential to disk with owner-only permissions.
func (s *FileStore) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	rec := fileRecord{Token: token}
	if s.secret != "" {
		sealed, err := crypto.Seal(token, s.secret)
		if err != nil {
			return err
		}
		rec = fileRecord{Token: sealed, Sealed: true}
	}

	data, _ := json.MarshalIndent(rec, "", "  ")
	return os.WriteFile(s.path, data, 0600)
}

// Delete removes the credential file.
func (s *FileStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
