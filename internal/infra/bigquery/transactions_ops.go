package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	budgetsTable      = "budgets"
	trendsTable       = "trends"
	analysisRunsTable = "analysis_runs"
)

// tableRef returns the backquoted fully qualified table name.
func tableRef(dataset, table string) string {
	return fmt.Sprintf("`%s.%s`", dataset, table)
}

// ListTransactionsWithClient queries a user's transactions within the inclusive
// date range using the provided BigQuery client. dataset is "project.dataset".
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string, start, end civil.Date) ([]domain.Transaction, error) {
	q := client.Query(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			amount,
			transaction_type,
			category,
			raw_description
		FROM ` + tableRef(dataset, transactionsTable) + `
		WHERE user_id = @user_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	txs := []domain.Transaction{}
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		txs = append(txs, r.ToDomain())
	}

	return txs, nil
}

// ListActiveBudgetsWithClient returns the user's active budget lines.
func ListActiveBudgetsWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string) ([]domain.Budget, error) {
	q := client.Query(`
		SELECT budget_id, user_id, name, category, planned_amount, period, is_active
		FROM ` + tableRef(dataset, budgetsTable) + `
		WHERE user_id = @user_id AND is_active = TRUE
		ORDER BY name
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveBudgets: query read: %w", err)
	}

	budgets := []domain.Budget{}
	for {
		var r BudgetRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveBudgets: iter next: %w", err)
		}
		budgets = append(budgets, r.ToDomain())
	}
	return budgets, nil
}

// ListRecentTrendsWithClient returns at most limit trend descriptors, newest first.
func ListRecentTrendsWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string, limit int) ([]domain.TrendDescriptor, error) {
	q := client.Query(`
		SELECT trend_id, user_id, label, category, direction, change_pct, period, observed_date
		FROM ` + tableRef(dataset, trendsTable) + `
		WHERE user_id = @user_id
		ORDER BY observed_date DESC, trend_id
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentTrends: query read: %w", err)
	}

	trends := []domain.TrendDescriptor{}
	for {
		var r TrendRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentTrends: iter next: %w", err)
		}
		trends = append(trends, r.ToDomain())
	}
	return trends, nil
}

// InsertAnalysisRunWithClient archives one result. Uses DML INSERT to avoid
// streaming buffer issues.
func InsertAnalysisRunWithClient(ctx context.Context, client *bigquery.Client, dataset string, row *AnalysisRunRow) error {
	q := client.Query(`
		INSERT INTO ` + tableRef(dataset, analysisRunsTable) + ` (
			analysis_id, user_id, kind, success, reason, message,
			error_class, model_name, transaction_count, raw_text,
			insights, analyzed_ts
		)
		VALUES (
			@analysis_id, @user_id, @kind, @success, @reason, @message,
			@error_class, @model_name, @transaction_count, @raw_text,
			SAFE.PARSE_JSON(@insights), @analyzed_ts
		)
	`)

	var insights bigquery.NullString
	if row.Insights.Valid {
		insights = bigquery.NullString{StringVal: row.Insights.JSONVal, Valid: true}
	}

	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_id", Value: row.AnalysisID},
		{Name: "user_id", Value: row.UserID},
		{Name: "kind", Value: row.Kind},
		{Name: "success", Value: row.Success},
		{Name: "reason", Value: row.Reason},
		{Name: "message", Value: row.Message},
		{Name: "error_class", Value: row.ErrorClass},
		{Name: "model_name", Value: row.ModelName},
		{Name: "transaction_count", Value: row.TransactionCount},
		{Name: "raw_text", Value: row.RawText},
		{Name: "insights", Value: insights},
		{Name: "analyzed_ts", Value: row.AnalyzedTS},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertAnalysisRun: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertAnalysisRun: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertAnalysisRun: job error: %w", err)
	}

	return nil
}
