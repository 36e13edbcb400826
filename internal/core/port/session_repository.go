package port

import (
	"context"

	"github.com/canvasvault/auth-service/internal/core/domain"
)

// SessionRepository is the refresh token ledger. Sessions are never deleted; rotation
// and revocation only flip revoked_at and set the replacement pointer.
type SessionRepository interface {
	Create(ctx context.Context, session domain.RefreshSession) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.RefreshSession, error)

	// Rotate atomically inserts the successor row and revokes the predecessor,
	// conditional on the predecessor still being active. Exactly one concurrent
	// caller wins; losers receive repository.ErrNotFound.
	Rotate(ctx context.Context, oldTokenHash string, successor domain.RefreshSession) error

	// Revoke marks the session revoked if it is still active.
	Revoke(ctx context.Context, tokenHash string) (*domain.RefreshSession, error)

	ListActiveByUser(ctx context.Context, userID int64) ([]domain.RefreshSession, error)
}
