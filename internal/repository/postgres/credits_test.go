package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/canvasvault/auth-service/internal/repository"
)

func TestCreditRepository_Deduct(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCreditRepository(mock)

	mock.ExpectExec(`UPDATE auth\.ai_credits`).
		WithArgs(int64(5), pgxmock.AnyArg(), int64(42), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Deduct(context.Background(), 42, 5); err != nil {
		t.Fatalf("Deduct returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreditRepository_DeductInsufficient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCreditRepository(mock)

	mock.ExpectExec(`UPDATE auth\.ai_credits`).
		WithArgs(int64(5), pgxmock.AnyArg(), int64(42), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Deduct(context.Background(), 42, 5); !errors.Is(err, repository.ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
}

func TestCreditRepository_GetAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCreditRepository(mock)

	updatedAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"user_id", "balance", "updated_at"}).
		AddRow(int64(42), int64(120), updatedAt)

	mock.ExpectQuery(`SELECT .*FROM auth\.ai_credits`).WithArgs(int64(42)).WillReturnRows(rows)

	account, err := repo.GetAccount(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if account.Balance != 120 {
		t.Fatalf("expected balance 120, got %d", account.Balance)
	}
}

func TestCreditRepository_Grant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCreditRepository(mock)

	mock.ExpectExec(`INSERT INTO auth\.ai_credits`).
		WithArgs(int64(42), int64(50), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Grant(context.Background(), 42, 50); err != nil {
		t.Fatalf("Grant returned error: %v", err)
	}
}
