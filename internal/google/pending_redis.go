package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxindex/internal/logging"
)

// DefaultPendingKeyPrefix namespaces pending authorizations in Redis.
const DefaultPendingKeyPrefix = "inboxindex:pending:"

// RedisPendingStore keeps pending authorizations in Redis, optionally with
// a TTL so abandoned attempts expire on their own.
type RedisPendingStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

var _ PendingStore = (*RedisPendingStore)(nil)

// NewRedisPendingStore returns a Redis-backed store. A zero ttl keeps
// entries until they are consumed.
func NewRedisPendingStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisPendingStore {
	if prefix == "" {
		prefix = DefaultPendingKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPendingStore{client: client, prefix: prefix, ttl: ttl, logger: logger, now: time.Now}
}

func (s *RedisPendingStore) key(state string) string {
	return s.prefix + state
}

func (s *RedisPendingStore) Save(ctx context.Context, state, verifier string) error {
	payload, err := json.Marshal(pendingEntry{Verifier: verifier, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode pending authorization: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist pending authorization: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Load(ctx context.Context, state string) (string, error) {
	data, err := s.client.Get(ctx, s.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load pending authorization: %w", err)
	}
	var e pendingEntry
	if err := json.Unmarshal(data, &e); err != nil {
		s.logger.Warn("ignoring unparsable pending authorization", logging.State(state), logging.Err(err))
		return "", nil
	}
	return e.Verifier, nil
}

func (s *RedisPendingStore) Clear(ctx context.Context, state string) error {
	if err := s.client.Del(ctx, s.key(state)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete pending authorization: %w", err)
	}
	return nil
}
