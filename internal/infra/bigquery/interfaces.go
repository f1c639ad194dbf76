package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
)

// BigQueryInsightsRepository serves the analysis queries from BigQuery. It
// holds a shared BigQuery client to avoid creating a new connection for each
// operation.
type BigQueryInsightsRepository struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryInsightsRepository creates a repository over projectID.datasetID.
func NewBigQueryInsightsRepository(ctx context.Context, projectID, datasetID string) (*BigQueryInsightsRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryInsightsRepository: creating client: %w", err)
	}
	return NewBigQueryInsightsRepositoryWithClient(client, projectID, datasetID), nil
}

// NewBigQueryInsightsRepositoryWithClient wraps an existing client.
func NewBigQueryInsightsRepositoryWithClient(client *bigquery.Client, projectID, datasetID string) *BigQueryInsightsRepository {
	return &BigQueryInsightsRepository{
		client:  client,
		dataset: projectID + "." + datasetID,
	}
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryInsightsRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListTransactions delegates to ListTransactionsWithClient with the shared client.
func (r *BigQueryInsightsRepository) ListTransactions(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
	return ListTransactionsWithClient(ctx, r.client, r.dataset, userID, start, end)
}

// ListActiveBudgets delegates to ListActiveBudgetsWithClient with the shared client.
func (r *BigQueryInsightsRepository) ListActiveBudgets(ctx context.Context, userID string) ([]domain.Budget, error) {
	return ListActiveBudgetsWithClient(ctx, r.client, r.dataset, userID)
}

// ListRecentTrends delegates to ListRecentTrendsWithClient with the shared client.
func (r *BigQueryInsightsRepository) ListRecentTrends(ctx context.Context, userID string, limit int) ([]domain.TrendDescriptor, error) {
	return ListRecentTrendsWithClient(ctx, r.client, r.dataset, userID, limit)
}

// Save archives result in the analysis_runs table.
func (r *BigQueryInsightsRepository) Save(ctx context.Context, result *domain.AnalysisResult) error {
	row, err := NewAnalysisRunRow(result)
	if err != nil {
		return err
	}
	return InsertAnalysisRunWithClient(ctx, r.client, r.dataset, row)
}
