package port

import (
	"context"

	"github.com/canvasvault/auth-service/internal/core/domain"
)

// CreditRepository manages shared-key usage balances.
type CreditRepository interface {
	GetAccount(ctx context.Context, userID int64) (*domain.CreditAccount, error)

	// Deduct decrements the balance only when it covers the amount
	// (conditional update), returning repository.ErrInsufficient otherwise.
	Deduct(ctx context.Context, userID int64, amount int64) error

	Grant(ctx context.Context, userID int64, amount int64) error
}

// ProviderKeyRepository stores encrypted user-supplied upstream API keys.
type ProviderKeyRepository interface {
	Upsert(ctx context.Context, key domain.ProviderKey) error
	Get(ctx context.Context, userID int64, provider domain.AIProvider) (*domain.ProviderKey, error)
	Delete(ctx context.Context, userID int64, provider domain.AIProvider) error
}
