package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/summary"
)

// TransactionRepository lists a user's transactions in an inclusive date range.
// It returns an empty slice, never nil, when nothing matches.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error)
}

// BudgetRepository lists a user's active budget lines.
type BudgetRepository interface {
	ListActiveBudgets(ctx context.Context, userID string) ([]domain.Budget, error)
}

// TrendRepository lists a user's most recent trend descriptors, newest first.
type TrendRepository interface {
	ListRecentTrends(ctx context.Context, userID string, limit int) ([]domain.TrendDescriptor, error)
}

// Repository is the persistence query service used by the analyzer.
// Implementations live in internal/infra.
type Repository interface {
	TransactionRepository
	BudgetRepository
	TrendRepository
}

// PromptBuilder renders the prompt for each analysis kind.
// *prompts.Builder is the production implementation.
type PromptBuilder interface {
	Patterns(s *summary.Summary, focusAreas []string) (string, error)
	Trends(c summary.TrendComparison) (string, error)
	Recommendations(s *summary.Summary, budgets []domain.Budget, trends []domain.TrendDescriptor, goals []string) (string, error)
	Streaming(s *summary.Summary, label string) (string, error)
}

// ResultArchiver keeps finished results, raw text included, for audit.
type ResultArchiver interface {
	Save(ctx context.Context, result *domain.AnalysisResult) error
}
