package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// CredStore persists the opaque credential blob for one local profile.
// The gateway replays the blob on reconnect to resume the authenticated
// session without a fresh pairing.
type CredStore struct {
	dir       string
	profileID string
}

// NewCredStore creates a credential store rooted at dir.
func NewCredStore(dir, profileID string) *CredStore {
	return &CredStore{dir: dir, profileID: profileID}
}

// Path returns the blob location for this profile.
func (s *CredStore) Path() string {
	return filepath.Join(s.dir, s.profileID+".creds")
}

// Save writes the blob. Callers must not continue processing the event
// that carried the blob until Save returns.
func (s *CredStore) Save(blob []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create creds dir: %w", err)
	}
	if err := os.WriteFile(s.Path(), blob, 0o600); err != nil {
		return fmt.Errorf("write creds: %w", err)
	}
	return nil
}

// Load returns the stored blob, or nil when none exists.
func (s *CredStore) Load() ([]byte, error) {
	blob, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read creds: %w", err)
	}
	return blob, nil
}

// Delete removes the blob. Missing files are not an error.
func (s *CredStore) Delete() error {
	err := os.Remove(s.Path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete creds: %w", err)
	}
	return nil
}
