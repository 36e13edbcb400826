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

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
// Rows are an append-mostly ledger: revocation and rotation only flip
// revoked_at and set the replacement pointer, nothing is deleted.
type SessionRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository over a pool-like executor.
// Rotate requires transaction support, so a bare pgx.Tx is not sufficient here.
func NewSessionRepository(pool pgPool) *SessionRepository {
	return &SessionRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var sessionColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"device_id",
	"access_jti",
	"ip",
	"user_agent",
	"created_at",
	"expires_at",
	"revoked_at",
	"replaced_by",
}

// Create inserts a new refresh session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.RefreshSession) error {
	return r.create(ctx, r.pool, session)
}

func (r *SessionRepository) create(ctx context.Context, exec pgExecutor, session domain.RefreshSession) error {
	stmt, args, err := r.builder.Insert("auth.refresh_sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.DeviceID,
			session.AccessJTI,
			optionalString(session.IP),
			optionalString(session.UserAgent),
			session.CreatedAt,
			session.ExpiresAt,
			optionalTime(session.RevokedAt),
			optionalString(session.ReplacedBy),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh session sql: %w", err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert refresh session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a refresh session by its hashed token value.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, hash string) (*domain.RefreshSession, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("auth.refresh_sessions").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh session sql: %w", err)
	}

	return scanSession(r.pool.QueryRow(ctx, stmt, args...))
}

// Rotate exchanges a session for its successor in one transaction: the successor
// row is inserted, then the predecessor is revoked conditional on still being
// active. When the conditional update hits zero rows another caller already won
// the exchange; the transaction rolls back and ErrNotFound is returned.
func (r *SessionRepository) Rotate(ctx context.Context, oldTokenHash string, successor domain.RefreshSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := r.create(ctx, tx, successor); err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("auth.refresh_sessions").
		Set("revoked_at", time.Now().UTC()).
		Set("replaced_by", successor.ID).
		Where(squirrel.Eq{"token_hash": oldTokenHash}).
		Where("revoked_at IS NULL").
		Where("expires_at > now()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build rotate refresh session sql: %w", err)
	}

	ct, err := tx.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke predecessor session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotate tx: %w", err)
	}

	return nil
}

// Revoke marks an active session revoked and returns the updated row.
func (r *SessionRepository) Revoke(ctx context.Context, tokenHash string) (*domain.RefreshSession, error) {
	stmt, args, err := r.builder.Update("auth.refresh_sessions").
		Set("revoked_at", time.Now().UTC()).
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Where("revoked_at IS NULL").
		Suffix("RETURNING " + joinColumns(sessionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build revoke refresh session sql: %w", err)
	}

	return scanSession(r.pool.QueryRow(ctx, stmt, args...))
}

// ListActiveByUser returns all unexpired, unrevoked sessions for a user,
// newest first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]domain.RefreshSession, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("auth.refresh_sessions").
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		Where("expires_at > now()").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active sessions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.RefreshSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.RefreshSession, error) {
	var (
		session    domain.RefreshSession
		ip         sql.NullString
		userAgent  sql.NullString
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.DeviceID,
		&session.AccessJTI,
		&ip,
		&userAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
		&revokedAt,
		&replacedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh session: %w", err)
	}

	session.IP = nullableStringPtr(ip)
	session.UserAgent = nullableStringPtr(userAgent)
	session.RevokedAt = nullableTimePtr(revokedAt)
	session.ReplacedBy = nullableStringPtr(replacedBy)

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
