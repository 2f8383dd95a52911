package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"invoicechat/internal/backend"
)

// Session is everything persisted between runs. It is the CLI counterpart
// of the browser's local storage keys.
type Session struct {
	AccessToken      string        `json:"access_token,omitempty"`
	RefreshToken     string        `json:"refresh_token,omitempty"`
	TokenExpiresAt   time.Time     `json:"token_expires_at,omitempty"`
	User             *backend.User `json:"user,omitempty"`
	CurrentSessionID backend.Ref   `json:"current_session_id,omitempty"`
}

// TokenStore persists a Session as a JSON file readable only by the owner.
type TokenStore struct {
	path string
}

// NewTokenStore creates a store backed by path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the session file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the session. A missing file is an empty session.
func (s *TokenStore) Load() (Session, error) {
	const op = "TokenStore.Load"

	var sess Session
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return sess, nil
	}
	if err != nil {
		return sess, fmt.Errorf("%s: failed to read %s: %w", op, s.path, err)
	}
	if err := json.Unmarshal(b, &sess); err != nil {
		return Session{}, fmt.Errorf("%s: corrupt session file %s: %w", op, s.path, err)
	}
	return sess, nil
}

// Save writes the session atomically.
func (s *TokenStore) Save(sess Session) error {
	const op = "TokenStore.Save"

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%s: failed to create directory: %w", op, err)
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: failed to encode session: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("%s: failed to create temp file: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: failed to write session: %w", op, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: failed to set permissions: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: failed to close temp file: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%s: failed to replace session file: %w", op, err)
	}
	return nil
}

// Clear removes the session file.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("TokenStore.Clear: %w", err)
	}
	return nil
}
