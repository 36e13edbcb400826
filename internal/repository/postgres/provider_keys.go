package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/core/port"
	"github.com/canvasvault/auth-service/internal/repository"
)

// ProviderKeyRepository implements port.ProviderKeyRepository backed by PostgreSQL.
// Only ciphertext ever reaches this layer.
type ProviderKeyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewProviderKeyRepository constructs a repository from any executor that satisfies pgExecutor.
func NewProviderKeyRepository(exec pgExecutor) *ProviderKeyRepository {
	return &ProviderKeyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert stores or replaces the encrypted key for a (user, provider) pair.
func (r *ProviderKeyRepository) Upsert(ctx context.Context, key domain.ProviderKey) error {
	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}

	stmt, args, err := r.builder.Insert("auth.ai_provider_keys").
		Columns("id", "user_id", "provider", "encrypted_key", "created_at", "updated_at").
		Values(key.ID, key.UserID, string(key.Provider), key.EncryptedKey, key.CreatedAt, now).
		Suffix("ON CONFLICT (user_id, provider) DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert provider key sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert provider key: %w", err)
	}

	return nil
}

// Get retrieves the encrypted key for a (user, provider) pair.
func (r *ProviderKeyRepository) Get(ctx context.Context, userID int64, provider domain.AIProvider) (*domain.ProviderKey, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "provider", "encrypted_key", "created_at", "updated_at").
		From("auth.ai_provider_keys").
		Where(squirrel.Eq{"user_id": userID, "provider": string(provider)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select provider key sql: %w", err)
	}

	var key domain.ProviderKey
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&key.ID,
		&key.UserID,
		&key.Provider,
		&key.EncryptedKey,
		&key.CreatedAt,
		&key.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan provider key: %w", err)
	}

	return &key, nil
}

// Delete removes the stored key for a (user, provider) pair.
func (r *ProviderKeyRepository) Delete(ctx context.Context, userID int64, provider domain.AIProvider) error {
	stmt, args, err := r.builder.Delete("auth.ai_provider_keys").
		Where(squirrel.Eq{"user_id": userID, "provider": string(provider)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete provider key sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete provider key: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.ProviderKeyRepository = (*ProviderKeyRepository)(nil)
