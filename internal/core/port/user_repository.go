package port

import (
	"context"

	"github.com/canvasvault/auth-service/internal/core/domain"
)

// UserRepository is the credential store contract. All mutations are scoped to the
// owning user id at the SQL layer.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkVerified(ctx context.Context, id int64) error
	Block(ctx context.Context, id int64) error
	TouchLastLogin(ctx context.Context, id int64) error
}
