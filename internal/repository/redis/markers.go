package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/canvasvault/auth-service/internal/core/port"
)

const defaultMarkerPrefix = "auth:marker"

// SessionMarkerStore persists existence-only session markers in Redis. An access
// token is honored only while its marker exists, so deleting the marker revokes
// the token ahead of its natural expiry. Marker TTL tracks the access token TTL,
// which keeps the keyspace self-cleaning.
type SessionMarkerStore struct {
	client *red.Client
	prefix string
}

// NewSessionMarkerStore constructs a Redis-backed marker store.
func NewSessionMarkerStore(client *red.Client, keyPrefix string) *SessionMarkerStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultMarkerPrefix
	}

	return &SessionMarkerStore{client: client, prefix: prefix}
}

// Activate writes the marker with the supplied TTL.
func (s *SessionMarkerStore) Activate(ctx context.Context, markerKey string, ttl time.Duration) error {
	key := s.key(markerKey)
	if key == "" {
		return fmt.Errorf("marker key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set session marker: %w", err)
	}

	return nil
}

// IsActive reports whether the marker still exists.
func (s *SessionMarkerStore) IsActive(ctx context.Context, markerKey string) (bool, error) {
	key := s.key(markerKey)
	if key == "" {
		return false, fmt.Errorf("marker key is required")
	}

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists session marker: %w", err)
	}

	return exists > 0, nil
}

// Deactivate removes the marker, invalidating the bound access token. Deleting a
// marker that already lapsed is not an error.
func (s *SessionMarkerStore) Deactivate(ctx context.Context, markerKey string) error {
	key := s.key(markerKey)
	if key == "" {
		return fmt.Errorf("marker key is required")
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete session marker: %w", err)
	}

	return nil
}

func (s *SessionMarkerStore) key(markerKey string) string {
	trimmed := strings.TrimSpace(markerKey)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}

var _ port.SessionMarkerStore = (*SessionMarkerStore)(nil)
