package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/canvasvault/auth-service/internal/core/port"
	"github.com/canvasvault/auth-service/internal/repository"
)

const (
	defaultOTPPrefix = "auth:otp"

	fieldCode      = "code"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// OTPStore persists short-lived verification codes in Redis hashes. Storing a code
// overwrites any outstanding one for the user and resets the attempt counter, so
// a single code is live per account at any time.
type OTPStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewOTPStore constructs an OTP store with the provided Redis client and key prefix.
func NewOTPStore(client *red.Client, keyPrefix string) *OTPStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOTPPrefix
	}

	return &OTPStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Store persists a code for the user with the supplied TTL.
func (s *OTPStore) Store(ctx context.Context, userID int64, code string, ttl time.Duration) error {
	code = strings.TrimSpace(code)

	switch {
	case userID <= 0:
		return errors.New("user id is required")
	case code == "":
		return errors.New("code is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	now := s.now().UTC()
	key := s.key(userID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      code,
		fieldCreatedAt: strconv.FormatInt(now.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(now.Add(ttl).Unix(), 10),
		fieldAttempts:  "0",
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store otp: %w", err)
	}

	return nil
}

// Fetch retrieves the outstanding code for the user. Expiry is handled by the key
// TTL; a missing or empty hash maps to repository.ErrNotFound.
func (s *OTPStore) Fetch(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("user id is required")
	}

	values, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return "", fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 {
		return "", repository.ErrNotFound
	}

	code := strings.TrimSpace(values[fieldCode])
	if code == "" {
		return "", repository.ErrNotFound
	}

	return code, nil
}

// IncrementAttempts increments the attempt counter and returns the new value.
func (s *OTPStore) IncrementAttempts(ctx context.Context, userID int64) (int, error) {
	if _, err := s.Fetch(ctx, userID); err != nil {
		return 0, err
	}

	count, err := s.client.HIncrBy(ctx, s.key(userID), fieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby otp attempts: %w", err)
	}

	return int(count), nil
}

// Delete removes the code, enforcing single-use semantics.
func (s *OTPStore) Delete(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("user id is required")
	}

	deleted, err := s.client.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete otp: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// WithClock overrides the internal clock, used in tests.
func (s *OTPStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func (s *OTPStore) key(userID int64) string {
	return fmt.Sprintf("%s:%d", s.prefix, userID)
}

var _ port.OTPStore = (*OTPStore)(nil)
