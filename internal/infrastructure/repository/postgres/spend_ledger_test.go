package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func newLedgerWithMock(t *testing.T) (*SpendLedger, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SpendLedger{db: db}, mock, func() { _ = db.Close() }
}

func TestAddSpendUpsertsDailyRow(t *testing.T) {
	ledger, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO provider_spend").
		WithArgs("brave", "2025-06-01", "0.003", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	day := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	err := ledger.AddSpend(context.Background(), "brave", day, decimal.RequireFromString("0.003"))
	if err != nil {
		t.Fatalf("AddSpend() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDailySpendReturnsZeroWhenNoRow(t *testing.T) {
	ledger, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT amount").
		WithArgs("brave", "2025-06-01").
		WillReturnError(sql.ErrNoRows)

	got, err := ledger.DailySpend(context.Background(), "brave", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailySpend() error = %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("DailySpend() = %s, want 0", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDailySpendParsesAmount(t *testing.T) {
	ledger, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT amount").
		WithArgs("serp", "2025-06-02").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow("1.250000"))

	got, err := ledger.DailySpend(context.Background(), "serp", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailySpend() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("DailySpend() = %s, want 1.25", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMonthlySpendSumsMonthRows(t *testing.T) {
	ledger, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("brave", "2025-06-01").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("4.500000"))

	got, err := ledger.MonthlySpend(context.Background(), "brave", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MonthlySpend() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("MonthlySpend() = %s, want 4.5", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
