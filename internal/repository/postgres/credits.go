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

// CreditRepository implements port.CreditRepository backed by PostgreSQL.
type CreditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCreditRepository constructs a repository from any executor that satisfies pgExecutor.
func NewCreditRepository(exec pgExecutor) *CreditRepository {
	return &CreditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetAccount retrieves the credit balance row for a user.
func (r *CreditRepository) GetAccount(ctx context.Context, userID int64) (*domain.CreditAccount, error) {
	stmt, args, err := r.builder.Select("user_id", "balance", "updated_at").
		From("auth.ai_credits").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credits sql: %w", err)
	}

	var account domain.CreditAccount
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&account.UserID,
		&account.Balance,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan credit account: %w", err)
	}

	return &account, nil
}

// Deduct decrements the balance only when it covers the amount. The guard lives in
// the WHERE clause so concurrent requests cannot drive the balance negative; a zero
// row count means the balance was short and nothing changed.
func (r *CreditRepository) Deduct(ctx context.Context, userID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deduct amount must be positive")
	}

	stmt, args, err := r.builder.Update("auth.ai_credits").
		Set("balance", squirrel.Expr("balance - ?", amount)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		Where("balance >= ?", amount).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deduct credits sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deduct credits: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrInsufficient
	}

	return nil
}

// Grant adds credits to a user's balance, creating the account row on first grant.
func (r *CreditRepository) Grant(ctx context.Context, userID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}

	stmt, args, err := r.builder.Insert("auth.ai_credits").
		Columns("user_id", "balance", "updated_at").
		Values(userID, amount, time.Now().UTC()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET balance = auth.ai_credits.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build grant credits sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}

	return nil
}

var _ port.CreditRepository = (*CreditRepository)(nil)
