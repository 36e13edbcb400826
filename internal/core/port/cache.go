package port

import (
	"context"
	"time"
)

// OTPStore keeps short-lived verification codes keyed by user id. Storing a new code
// overwrites any outstanding one, so at most one code is live per user.
type OTPStore interface {
	Store(ctx context.Context, userID int64, code string, ttl time.Duration) error
	Fetch(ctx context.Context, userID int64) (string, error)
	IncrementAttempts(ctx context.Context, userID int64) (int, error)
	Delete(ctx context.Context, userID int64) error
}

// SessionMarkerStore holds existence-only markers that make access tokens revocable
// before their natural expiry. The key is a hash of (user id, device id, jti); its
// absence is the sole revocation signal the verifier consults.
type SessionMarkerStore interface {
	Activate(ctx context.Context, markerKey string, ttl time.Duration) error
	IsActive(ctx context.Context, markerKey string) (bool, error)
	Deactivate(ctx context.Context, markerKey string) error
}

// RateLimitStore persists sliding-window attempt counters. Injected so a single-process
// deployment can swap in an in-memory implementation.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
