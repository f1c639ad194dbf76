package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType selects which aggregate bucket a transaction contributes to.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// OtherCategory is the bucket used for transactions with no usable category.
const OtherCategory = "other"

// Transaction is a single financial movement as read from the persistence layer.
// Amount is non-negative; Type decides whether it counts as revenue or expense.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Date        civil.Date      `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
}

// Budget is an active budget line used as context for recommendations.
type Budget struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	PlannedAmount decimal.Decimal `json:"planned_amount"`
	Period        string          `json:"period"`
	Active        bool            `json:"active"`
}

// TrendDirection is the direction of a recorded financial trend.
type TrendDirection string

const (
	TrendUp     TrendDirection = "hausse"
	TrendDown   TrendDirection = "baisse"
	TrendStable TrendDirection = "stable"
)

// TrendDescriptor is a previously recorded trend observation.
type TrendDescriptor struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Category   string         `json:"category"`
	Direction  TrendDirection `json:"direction"`
	ChangePct  *float64       `json:"change_pct,omitempty"`
	Period     string         `json:"period"`
	ObservedOn civil.Date     `json:"observed_on"`
}
