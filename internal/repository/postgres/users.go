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

// UserRepository implements port.UserRepository backed by PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository from any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var userColumns = []string{
	"id",
	"email",
	"name",
	"password_hash",
	"password_algo",
	"verified",
	"blocked",
	"blocked_at",
	"avatar_url",
	"created_at",
	"updated_at",
	"last_login",
}

// Create inserts a new account row and returns the assigned id. A unique violation
// on email surfaces as repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (int64, error) {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	stmt, args, err := r.builder.Insert("auth.users").
		Columns(
			"email",
			"name",
			"password_hash",
			"password_algo",
			"verified",
			"blocked",
			"avatar_url",
			"created_at",
			"updated_at",
		).
		Values(
			user.Email,
			user.Name,
			user.PasswordHash,
			user.PasswordAlgo,
			user.Verified,
			user.Blocked,
			optionalString(user.AvatarURL),
			user.CreatedAt,
			user.UpdatedAt,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert user sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, repository.ErrDuplicate
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("auth.users").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("auth.users").
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		blockedAt sql.NullTime
		avatarURL sql.NullString
		lastLogin sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.Verified,
		&user.Blocked,
		&blockedAt,
		&avatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.BlockedAt = nullableTimePtr(blockedAt)
	user.AvatarURL = nullableStringPtr(avatarURL)
	user.LastLogin = nullableTimePtr(lastLogin)

	return &user, nil
}

// MarkVerified flips the verified flag for a user.
func (r *UserRepository) MarkVerified(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("verified", true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark verified sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Block marks an account blocked and records when.
func (r *UserRepository) Block(ctx context.Context, id int64) error {
	now := time.Now().UTC()

	stmt, args, err := r.builder.Update("auth.users").
		Set("blocked", true).
		Set("blocked_at", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build block user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// TouchLastLogin records a successful authentication timestamp.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("last_login", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch last login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
