// Package sqlstore serves the analysis queries from PostgreSQL or SQLite
// through sqlx.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/migrations"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a sqlx-backed repository and result archive.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// Open connects to dsn. dialect is migrations.DialectSQLite or
// migrations.DialectPostgres.
func Open(ctx context.Context, dialect, dsn string) (*Store, error) {
	var driverName string
	switch dialect {
	case migrations.DialectSQLite:
		driverName = "sqlite3"
	case migrations.DialectPostgres:
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("Open: unsupported dialect %q", dialect)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	if dialect == migrations.DialectSQLite {
		// One connection keeps in-memory databases alive and serialises writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	return New(db, dialect), nil
}

// New wraps an open connection.
func New(db *sqlx.DB, dialect string) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ListTransactions returns the user's transactions in [start, end].
func (s *Store) ListTransactions(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
	q := s.db.Rebind(`
		SELECT transaction_id, user_id, transaction_date, amount, transaction_type, category, raw_description
		FROM transactions
		WHERE user_id = ? AND transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date, transaction_id`)

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, q, userID, start.String(), end.String()); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.toDomain())
	}
	return txs, nil
}

// ListActiveBudgets returns the user's active budget lines.
func (s *Store) ListActiveBudgets(ctx context.Context, userID string) ([]domain.Budget, error) {
	q := s.db.Rebind(`
		SELECT budget_id, user_id, name, category, planned_amount, period, is_active
		FROM budgets
		WHERE user_id = ? AND is_active = ?
		ORDER BY name`)

	var rows []budgetRow
	if err := s.db.SelectContext(ctx, &rows, q, userID, true); err != nil {
		return nil, fmt.Errorf("ListActiveBudgets: %w", err)
	}

	budgets := make([]domain.Budget, 0, len(rows))
	for _, r := range rows {
		budgets = append(budgets, r.toDomain())
	}
	return budgets, nil
}

// ListRecentTrends returns at most limit descriptors, newest first.
func (s *Store) ListRecentTrends(ctx context.Context, userID string, limit int) ([]domain.TrendDescriptor, error) {
	q := s.db.Rebind(`
		SELECT trend_id, user_id, label, category, direction, change_pct, period, observed_date
		FROM trends
		WHERE user_id = ?
		ORDER BY observed_date DESC, trend_id
		LIMIT ?`)

	var rows []trendRow
	if err := s.db.SelectContext(ctx, &rows, q, userID, limit); err != nil {
		return nil, fmt.Errorf("ListRecentTrends: %w", err)
	}

	trends := make([]domain.TrendDescriptor, 0, len(rows))
	for _, r := range rows {
		trends = append(trends, r.toDomain())
	}
	return trends, nil
}

// Save archives result in analysis_runs.
func (s *Store) Save(ctx context.Context, result *domain.AnalysisResult) error {
	row, err := newAnalysisRunRow(result)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_runs (
			analysis_id, user_id, kind, success, reason, message,
			error_class, model_name, transaction_count, raw_text,
			insights, analyzed_ts
		) VALUES (
			:analysis_id, :user_id, :kind, :success, :reason, :message,
			:error_class, :model_name, :transaction_count, :raw_text,
			:insights, :analyzed_ts
		)`, row)
	if err != nil {
		return fmt.Errorf("Save: inserting analysis run: %w", err)
	}
	return nil
}

// CountAnalysisRuns returns the number of archived results for userID.
func (s *Store) CountAnalysisRuns(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM analysis_runs WHERE user_id = ?`), userID); err != nil {
		return 0, fmt.Errorf("CountAnalysisRuns: %w", err)
	}
	return n, nil
}

// InsertTransactions stores txs in one transaction, replacing rows with the
// same ID.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return s.inTx(ctx, "InsertTransactions", func(tx *sqlx.Tx) error {
		for _, t := range txs {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO transactions (transaction_id, user_id, transaction_date, amount, transaction_type, category, raw_description)
				VALUES (:transaction_id, :user_id, :transaction_date, :amount, :transaction_type, :category, :raw_description)
				ON CONFLICT (transaction_id) DO UPDATE SET
					transaction_date = excluded.transaction_date,
					amount = excluded.amount,
					transaction_type = excluded.transaction_type,
					category = excluded.category,
					raw_description = excluded.raw_description`, newTransactionRow(t)); err != nil {
				return fmt.Errorf("transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// UpsertBudget stores a budget line for userID.
func (s *Store) UpsertBudget(ctx context.Context, userID string, b domain.Budget) error {
	row := budgetRow{
		BudgetID:      b.ID,
		UserID:        userID,
		Name:          b.Name,
		Category:      nullString(b.Category),
		PlannedAmount: b.PlannedAmount,
		Period:        nullString(b.Period),
		IsActive:      b.Active,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO budgets (budget_id, user_id, name, category, planned_amount, period, is_active)
		VALUES (:budget_id, :user_id, :name, :category, :planned_amount, :period, :is_active)
		ON CONFLICT (budget_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			planned_amount = excluded.planned_amount,
			period = excluded.period,
			is_active = excluded.is_active`, row)
	if err != nil {
		return fmt.Errorf("UpsertBudget: %w", err)
	}
	return nil
}

// InsertTrend stores a trend descriptor for userID.
func (s *Store) InsertTrend(ctx context.Context, userID string, t domain.TrendDescriptor) error {
	row := trendRow{
		TrendID:      t.ID,
		UserID:       userID,
		Label:        t.Label,
		Category:     nullString(t.Category),
		Direction:    string(t.Direction),
		Period:       nullString(t.Period),
		ObservedDate: sqlDate(t.ObservedOn),
	}
	if t.ChangePct != nil {
		row.ChangePct.Float64, row.ChangePct.Valid = *t.ChangePct, true
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO trends (trend_id, user_id, label, category, direction, change_pct, period, observed_date)
		VALUES (:trend_id, :user_id, :label, :category, :direction, :change_pct, :period, :observed_date)`, row)
	if err != nil {
		return fmt.Errorf("InsertTrend: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
