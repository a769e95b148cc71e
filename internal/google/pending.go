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
	"regexp"
	"time"

	"github.com/teemow/inboxindex/internal/logging"
)

// PendingStore keeps PKCE verifiers keyed by OAuth state so a callback can
// complete in a process that never saw the authorization URL.
//
// Load returns "" when the state is unknown. Entries are not expired by the
// file store; an external reaper or the Redis TTL bounds retention.
type PendingStore interface {
	Save(ctx context.Context, state, verifier string) error
	Load(ctx context.Context, state string) (string, error)
	Clear(ctx context.Context, state string) error
}

type pendingEntry struct {
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

var stateRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FilePendingStore writes one JSON document per state into a directory.
type FilePendingStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

var _ PendingStore = (*FilePendingStore)(nil)

// NewFilePendingStore returns a store rooted at dir.
func NewFilePendingStore(dir string, logger *slog.Logger) *FilePendingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePendingStore{dir: dir, logger: logger, now: time.Now}
}

// path returns the file for state, or "" if state is not a plain token.
// Callback states are attacker controlled and must not escape dir.
func (s *FilePendingStore) path(state string) string {
	if !stateRe.MatchString(state) {
		return ""
	}
	return filepath.Join(s.dir, state+".json")
}

func (s *FilePendingStore) Save(ctx context.Context, state, verifier string) error {
	p := s.path(state)
	if p == "" {
		return fmt.Errorf("invalid state value")
	}
	data, err := json.Marshal(pendingEntry{Verifier: verifier, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode pending authorization: %w", err)
	}
	if err := writeFileAtomic(p, data); err != nil {
		return fmt.Errorf("failed to write pending authorization: %w", err)
	}
	s.logger.Debug("saved pending verifier", logging.State(state))
	return nil
}

func (s *FilePendingStore) Load(ctx context.Context, state string) (string, error) {
	p := s.path(state)
	if p == "" {
		return "", nil
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read pending authorization: %w", err)
	}
	var e pendingEntry
	if err := json.Unmarshal(data, &e); err != nil {
		s.logger.Warn("ignoring unparsable pending authorization", logging.State(state), logging.Err(err))
		return "", nil
	}
	return e.Verifier, nil
}

func (s *FilePendingStore) Clear(ctx context.Context, state string) error {
	p := s.path(state)
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove pending authorization: %w", err)
	}
	return nil
}
