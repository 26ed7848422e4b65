package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockWait bounds how long one process waits for another's refresh to
// finish before giving up.
const lockWait = 5 * time.Second

// lockRetry is the poll interval while waiting for the lock.
const lockRetry = 100 * time.Millisecond

// FileStore persists credentials as a restrictive-permission JSON file
// with an adjacent lock file guarding cross-process mutation.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore creates a store at path. The lock file lives next to the
// credentials file.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// WithLock runs fn while holding the cross-process advisory lock,
// waiting at most lockWait to acquire it. All credential mutation goes
// through here so concurrent CLI invocations cannot interleave a
// refresh (lost-update risk on the file).
func (s *FileStore) WithLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetry)
	if err != nil {
		return fmt.Errorf("acquire credentials lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("credentials file locked by another process")
	}
	defer s.lock.Unlock()

	return fn()
}

// Load reads the stored credentials. Returns ErrNoCredentials if none
// are stored. Reading does not take the lock: writes are atomic
// (temp file + rename), so a reader always sees a complete file.
func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// Save persists credentials with 0600 permissions via atomic rename.
// Caller must hold the lock (see WithLock).
func (s *FileStore) Save(_ context.Context, c *Credentials) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// Clear removes the stored credentials. Caller must hold the lock.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
