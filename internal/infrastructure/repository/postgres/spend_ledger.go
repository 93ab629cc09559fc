package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

// SpendLedger persists per-provider daily spend so budget windows survive
// restarts. One row per provider per day; monthly spend is the sum of the
// month's rows.
type SpendLedger struct {
	db *sql.DB
}

func NewSpendLedger(db *sql.DB) *SpendLedger {
	return &SpendLedger{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (l *SpendLedger) EnsureSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent instance startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS provider_spend (
	provider_id TEXT NOT NULL,
	day DATE NOT NULL,
	amount NUMERIC(14,6) NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider_id, day)
);

CREATE INDEX IF NOT EXISTS idx_provider_spend_day ON provider_spend(day);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (l *SpendLedger) AddSpend(ctx context.Context, providerID string, day time.Time, amount decimal.Decimal) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO provider_spend (provider_id, day, amount, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider_id, day)
DO UPDATE SET amount = provider_spend.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at
`, providerID, day.UTC().Format("2006-01-02"), amount.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert provider spend: %w", err)
	}
	return nil
}

func (l *SpendLedger) DailySpend(ctx context.Context, providerID string, day time.Time) (decimal.Decimal, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT amount::text
FROM provider_spend
WHERE provider_id = $1 AND day = $2
`, providerID, day.UTC().Format("2006-01-02"))

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("scan daily spend: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse daily spend %q: %w", raw, err)
	}
	return amount, nil
}

func (l *SpendLedger) MonthlySpend(ctx context.Context, providerID string, monthStart time.Time) (decimal.Decimal, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount), 0)::text
FROM provider_spend
WHERE provider_id = $1 AND day >= $2
`, providerID, monthStart.UTC().Format("2006-01-02"))

	var raw string
	if err := row.Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("scan monthly spend: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse monthly spend %q: %w", raw, err)
	}
	return amount, nil
}
