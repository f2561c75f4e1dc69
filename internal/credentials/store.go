package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// TokenEnvVar names the environment variable acting as the secret store.
const TokenEnvVar = "PAGEPUB_TOKEN"

// Store persists non-secret credential fields and retrieves the secret token.
type Store interface {
	// SecretToken returns the host-managed secret token, or ok=false when unset.
	SecretToken() (token string, ok bool)

	// Load returns the persisted non-secret credential fields.
	// A missing file yields an empty Partial and no error.
	Load() (Partial, error)

	// Save persists the non-secret credential fields. Tokens never pass
	// through this method.
	Save(Partial) error
}

// FileStore is a YAML-file implementation of Store with the token sourced
// from the environment.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the given YAML file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) SecretToken() (string, bool) {
	token := os.Getenv(TokenEnvVar)
	return token, token != ""
}

func (s *FileStore) Load() (Partial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Partial{}, nil
		}
		return Partial{}, fmt.Errorf("read credentials file: %w", err)
	}

	var p Partial
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Partial{}, fmt.Errorf("parse credentials file: %w", err)
	}
	return p, nil
}

// Save writes the fields atomically (temp file + rename) with 0600 perms.
func (s *FileStore) Save(p Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

// LoadInfo assembles a full credential snapshot: the built-in default
// template, overlaid with the secret-store token, overlaid with the
// persisted non-secret fields.
func LoadInfo(store Store) (Info, error) {
	info := Default()
	if token, ok := store.SecretToken(); ok {
		info.Token = token
	}
	persisted, err := store.Load()
	if err != nil {
		return info, err
	}
	return info.Merge(persisted), nil
}
