package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/canvasvault/auth-service/internal/core/domain"
	"github.com/canvasvault/auth-service/internal/repository"
)

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	ip := "203.0.113.7"
	session := domain.RefreshSession{
		ID:        "session-1",
		UserID:    42,
		TokenHash: "hash-1",
		DeviceID:  "device-1",
		AccessJTI: "jti-1",
		IP:        &ip,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(720 * time.Hour),
	}

	mock.ExpectExec(`INSERT INTO auth\.refresh_sessions`).
		WithArgs(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.DeviceID,
			session.AccessJTI,
			ip,
			nil,
			session.CreatedAt,
			session.ExpiresAt,
			nil,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	expiresAt := createdAt.Add(720 * time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "device_id", "access_jti", "ip", "user_agent", "created_at", "expires_at", "revoked_at", "replaced_by",
	}).AddRow(
		"session-1", int64(42), "hash-1", "device-1", "jti-1", nil, "UA", createdAt, expiresAt, nil, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.refresh_sessions`).WithArgs("hash-1").WillReturnRows(rows)

	session, err := repo.GetByTokenHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetByTokenHash returned error: %v", err)
	}
	if session.ID != "session-1" || session.UserID != 42 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.DeviceID != "device-1" || session.AccessJTI != "jti-1" {
		t.Fatalf("expected marker triple persisted, got %+v", session)
	}
	if session.UserAgent == nil || *session.UserAgent != "UA" {
		t.Fatalf("expected user agent populated")
	}
	if !session.IsActive(createdAt) {
		t.Fatalf("expected session to be active")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByTokenHashNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "device_id", "access_jti", "ip", "user_agent", "created_at", "expires_at", "revoked_at", "replaced_by",
	})

	mock.ExpectQuery(`SELECT .*FROM auth\.refresh_sessions`).WithArgs("missing").WillReturnRows(rows)

	if _, err := repo.GetByTokenHash(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Rotate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	successor := domain.RefreshSession{
		ID:        "session-2",
		UserID:    42,
		TokenHash: "hash-2",
		DeviceID:  "device-1",
		AccessJTI: "jti-2",
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(720 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO auth\.refresh_sessions`).
		WithArgs(
			successor.ID,
			successor.UserID,
			successor.TokenHash,
			successor.DeviceID,
			successor.AccessJTI,
			nil,
			nil,
			successor.CreatedAt,
			successor.ExpiresAt,
			nil,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE auth\.refresh_sessions`).
		WithArgs(pgxmock.AnyArg(), successor.ID, "hash-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if err := repo.Rotate(context.Background(), "hash-1", successor); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_RotateLoserRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	successor := domain.RefreshSession{
		ID:        "session-3",
		UserID:    42,
		TokenHash: "hash-3",
		DeviceID:  "device-1",
		AccessJTI: "jti-3",
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(720 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO auth\.refresh_sessions`).
		WithArgs(
			successor.ID,
			successor.UserID,
			successor.TokenHash,
			successor.DeviceID,
			successor.AccessJTI,
			nil,
			nil,
			successor.CreatedAt,
			successor.ExpiresAt,
			nil,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Predecessor already revoked by a concurrent exchange.
	mock.ExpectExec(`UPDATE auth\.refresh_sessions`).
		WithArgs(pgxmock.AnyArg(), successor.ID, "hash-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	if err := repo.Rotate(context.Background(), "hash-1", successor); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for losing rotation, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Revoke(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	revokedAt := createdAt.Add(time.Minute)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "device_id", "access_jti", "ip", "user_agent", "created_at", "expires_at", "revoked_at", "replaced_by",
	}).AddRow(
		"session-1", int64(42), "hash-1", "device-1", "jti-1", nil, nil, createdAt, createdAt.Add(720*time.Hour), revokedAt, nil,
	)

	mock.ExpectQuery(`UPDATE auth\.refresh_sessions`).
		WithArgs(pgxmock.AnyArg(), "hash-1").
		WillReturnRows(rows)

	session, err := repo.Revoke(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if session.RevokedAt == nil {
		t.Fatalf("expected revoked_at populated")
	}
	if session.IsActive(createdAt) {
		t.Fatalf("revoked session must not be active")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
