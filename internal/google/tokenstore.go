package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teemow/inboxindex/internal/logging"
)

// TokenStore persists the single OAuth credential.
//
// Load returns nil without error when nothing usable is stored. Clear is
// idempotent. String describes the backend for log output only; callers
// never branch on the concrete type.
type TokenStore interface {
	Load(ctx context.Context) (*Token, error)
	Save(ctx context.Context, t *Token) error
	Clear(ctx context.Context) error
	String() string
}

// FileTokenStore keeps the token as one JSON document on disk.
type FileTokenStore struct {
	path   string
	logger *slog.Logger
}

var _ TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore returns a store for the JSON document at path.
func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTokenStore{path: path, logger: logger}
}

// DefaultTokenPath returns <user cache dir>/inboxindex/token.json.
func DefaultTokenPath() string {
	return filepath.Join(cacheDir(), "token.json")
}

// DefaultPendingDir returns <user cache dir>/inboxindex/pending.
func DefaultPendingDir() string {
	return filepath.Join(cacheDir(), "pending")
}

func cacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "inboxindex")
}

// Path returns the location of the token document.
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) String() string {
	return "file:" + s.path
}

// Load reads the token. Missing and corrupt files both yield nil.
func (s *FileTokenStore) Load(ctx context.Context) (*Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		s.logger.Warn("ignoring unparsable token file", logging.Store(s.String()), logging.Err(err))
		return nil, nil
	}
	return &t, nil
}

// Save writes the token to a temporary file and renames it into place.
func (s *FileTokenStore) Save(ctx context.Context, t *Token) error {
	if t == nil {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	s.logger.Debug("saved token", logging.Store(s.String()), slog.Int("bytes", len(data)))
	return nil
}

// Clear removes the token file.
func (s *FileTokenStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
