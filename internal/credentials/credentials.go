// Package credentials persists the session credential between CLI runs so a
// user does not re-enter the token on every invocation.
package credentials

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tradepost/chatkit/internal/transport"
)

// DefaultFilename is the credential file name inside the config directory.
const DefaultFilename = "credentials.json"

// Store reads and writes the saved credential. The filesystem is injected so
// tests run against an in-memory one.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore creates a credential store rooted at dir.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, path: filepath.Join(dir, DefaultFilename)}
}

// Save writes the credential, creating the directory if needed. The file is
// user-only readable since it carries a bearer token.
func (s *Store) Save(cred transport.Credential) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Load reads the saved credential. The boolean is false when no credential
// has been saved yet.
func (s *Store) Load() (transport.Credential, bool, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if exists, _ := afero.Exists(s.fs, s.path); !exists {
			return transport.Credential{}, false, nil
		}
		return transport.Credential{}, false, fmt.Errorf("failed to read credential file: %w", err)
	}
	var cred transport.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return transport.Credential{}, false, fmt.Errorf("failed to decode credential file: %w", err)
	}
	return cred, true, nil
}

// Clear removes the saved credential. Clearing an absent file is not an
// error.
func (s *Store) Clear() error {
	if exists, _ := afero.Exists(s.fs, s.path); !exists {
		return nil
	}
	return s.fs.Remove(s.path)
}
