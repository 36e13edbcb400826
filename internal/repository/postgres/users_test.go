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

func TestUserRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	createdAt := time.Now().UTC()
	user := domain.User{
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "salt:hash",
		PasswordAlgo: "argon2id",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	rows := pgxmock.NewRows([]string{"id"}).AddRow(int64(7))

	mock.ExpectQuery(`INSERT INTO auth\.users`).
		WithArgs(
			user.Email,
			user.Name,
			user.PasswordHash,
			user.PasswordAlgo,
			false,
			false,
			nil,
			user.CreatedAt,
			user.UpdatedAt,
		).
		WillReturnRows(rows)

	id, err := repo.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByEmailNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "email", "name", "password_hash", "password_algo", "verified", "blocked",
		"blocked_at", "avatar_url", "created_at", "updated_at", "last_login",
	})

	mock.ExpectQuery(`SELECT .*FROM auth\.users`).WithArgs("ghost@example.com").WillReturnRows(rows)

	if _, err := repo.GetByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	createdAt := time.Now().UTC()
	lastLogin := createdAt.Add(-time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "email", "name", "password_hash", "password_algo", "verified", "blocked",
		"blocked_at", "avatar_url", "created_at", "updated_at", "last_login",
	}).AddRow(
		int64(7), "ada@example.com", "Ada", "salt:hash", "argon2id", true, false,
		nil, "https://cdn.example.com/a.png", createdAt, createdAt, lastLogin,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.users`).WithArgs("ada@example.com").WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if user.ID != 7 || !user.Verified || user.Blocked {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !user.CanAuthenticate() {
		t.Fatalf("verified unblocked user must be able to authenticate")
	}
	if user.AvatarURL == nil || user.LastLogin == nil {
		t.Fatalf("expected nullable fields populated")
	}
}

func TestUserRepository_MarkVerified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectExec(`UPDATE auth\.users`).
		WithArgs(true, pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.MarkVerified(context.Background(), 7); err != nil {
		t.Fatalf("MarkVerified returned error: %v", err)
	}
}

func TestUserRepository_MarkVerifiedNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectExec(`UPDATE auth\.users`).
		WithArgs(true, pgxmock.AnyArg(), int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.MarkVerified(context.Background(), 404); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
