package sqlstore

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/migrations"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, migrations.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Migrate(ctx, "test")
	require.NoError(t, err)
	return s
}

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	applied, err := s.AppliedMigrations(ctx)
	require.NoError(t, err)
	all, err := migrations.Load(migrations.DialectSQLite)
	require.NoError(t, err)
	assert.Len(t, applied, len(all))
	assert.Equal(t, "test", applied[0].AppliedBy)

	n, err := s.Migrate(ctx, "test")
	require.NoError(t, err)
	assert.Zero(t, n, "second run should apply nothing")
}

func TestListTransactions_RangeAndUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTransactions(ctx, []domain.Transaction{
		{ID: "feb", UserID: "u1", Date: date(2024, 2, 28), Amount: decimal.NewFromInt(50), Type: domain.TransactionTypeExpense, Category: "repas"},
		{ID: "t1", UserID: "u1", Date: date(2024, 3, 1), Amount: decimal.NewFromInt(1000), Type: domain.TransactionTypeIncome, Category: "salaire"},
		{ID: "t2", UserID: "u1", Date: date(2024, 3, 5), Amount: decimal.RequireFromString("400.25"), Type: domain.TransactionTypeExpense, Category: "loyer", Description: "Loyer mars"},
		{ID: "t3", UserID: "u1", Date: date(2024, 3, 31), Amount: decimal.NewFromInt(100), Type: domain.TransactionTypeExpense},
		{ID: "other", UserID: "u2", Date: date(2024, 3, 10), Amount: decimal.NewFromInt(10), Type: domain.TransactionTypeExpense},
	}))

	txs, err := s.ListTransactions(ctx, "u1", date(2024, 3, 1), date(2024, 3, 31))
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, "t1", txs[0].ID)
	assert.Equal(t, date(2024, 3, 5), txs[1].Date)
	assert.True(t, txs[1].Amount.Equal(decimal.RequireFromString("400.25")))
	assert.Equal(t, "Loyer mars", txs[1].Description)
	assert.Equal(t, "", txs[2].Category)
}

func TestListTransactions_EmptyIsNotNil(t *testing.T) {
	s := newTestStore(t)

	txs, err := s.ListTransactions(context.Background(), "nobody", date(2024, 1, 1), date(2024, 1, 31))
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

func TestListActiveBudgets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBudget(ctx, "u1", domain.Budget{ID: "b1", Name: "Logement", Category: "loyer", PlannedAmount: decimal.NewFromInt(450), Period: "monthly", Active: true}))
	require.NoError(t, s.UpsertBudget(ctx, "u1", domain.Budget{ID: "b2", Name: "Voyages", PlannedAmount: decimal.NewFromInt(200), Active: false}))

	budgets, err := s.ListActiveBudgets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, "Logement", budgets[0].Name)
	assert.True(t, budgets[0].PlannedAmount.Equal(decimal.NewFromInt(450)))
}

func TestListRecentTrends_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pct := 12.5
	for i, day := range []int{1, 15, 8, 20, 3, 28} {
		tr := domain.TrendDescriptor{
			ID:         uuid.NewString(),
			Label:      "trend",
			Direction:  domain.TrendStable,
			ObservedOn: date(2024, 3, day),
		}
		if i == 5 {
			tr.ChangePct = &pct
			tr.Direction = domain.TrendUp
		}
		require.NoError(t, s.InsertTrend(ctx, "u1", tr))
	}

	trends, err := s.ListRecentTrends(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, trends, 5)
	assert.Equal(t, date(2024, 3, 28), trends[0].ObservedOn)
	require.NotNil(t, trends[0].ChangePct)
	assert.Equal(t, 12.5, *trends[0].ChangePct)
	assert.Nil(t, trends[1].ChangePct)
	assert.Equal(t, date(2024, 3, 3), trends[4].ObservedOn)
}

func TestSave_ArchivesResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := &domain.AnalysisResult{
		ID:         uuid.New(),
		UserID:     "u1",
		Kind:       domain.KindPatterns,
		Success:    true,
		AnalyzedAt: "2024-04-01T10:00:00Z",
		Patterns:   domain.NewPatternInsights(),
	}
	require.NoError(t, s.Save(ctx, res))

	n, err := s.CountAnalysisRuns(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, s.Save(ctx, res), "duplicate analysis id should fail")
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn")
	assert.Error(t, err)
}
