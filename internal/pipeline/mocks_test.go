package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/llm"
)

type mockRepository struct {
	ListTransactionsFunc  func(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error)
	ListActiveBudgetsFunc func(ctx context.Context, userID string) ([]domain.Budget, error)
	ListRecentTrendsFunc  func(ctx context.Context, userID string, limit int) ([]domain.TrendDescriptor, error)
}

func (m *mockRepository) ListTransactions(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, userID, start, end)
	}
	return []domain.Transaction{}, nil
}

func (m *mockRepository) ListActiveBudgets(ctx context.Context, userID string) ([]domain.Budget, error) {
	if m.ListActiveBudgetsFunc != nil {
		return m.ListActiveBudgetsFunc(ctx, userID)
	}
	return []domain.Budget{}, nil
}

func (m *mockRepository) ListRecentTrends(ctx context.Context, userID string, limit int) ([]domain.TrendDescriptor, error) {
	if m.ListRecentTrendsFunc != nil {
		return m.ListRecentTrendsFunc(ctx, userID, limit)
	}
	return []domain.TrendDescriptor{}, nil
}

type mockClient struct {
	GenerateFunc func(ctx context.Context, model, prompt string) (string, error)
	StreamFunc   func(ctx context.Context, model, prompt string, sink llm.ChunkSink) error
}

func (m *mockClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, model, prompt)
	}
	return "", nil
}

func (m *mockClient) Stream(ctx context.Context, model, prompt string, sink llm.ChunkSink) error {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, model, prompt, sink)
	}
	return nil
}

type mockArchiver struct {
	SaveFunc func(ctx context.Context, result *domain.AnalysisResult) error
}

func (m *mockArchiver) Save(ctx context.Context, result *domain.AnalysisResult) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, result)
	}
	return nil
}
