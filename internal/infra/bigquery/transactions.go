package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/shopspring/decimal"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC, non-negative
	TransactionType string     `bigquery:"transaction_type"` // REQUIRED: income | expense

	Category       bigquery.NullString `bigquery:"category"`        // NULLABLE
	RawDescription bigquery.NullString `bigquery:"raw_description"` // NULLABLE
}

type BudgetRow struct {
	BudgetID      string              `bigquery:"budget_id"`
	UserID        string              `bigquery:"user_id"`
	Name          string              `bigquery:"name"`
	Category      bigquery.NullString `bigquery:"category"`
	PlannedAmount *big.Rat            `bigquery:"planned_amount"` // NUMERIC
	Period        bigquery.NullString `bigquery:"period"`         // e.g. monthly
	IsActive      bool                `bigquery:"is_active"`
}

type TrendRow struct {
	TrendID      string               `bigquery:"trend_id"`
	UserID       string               `bigquery:"user_id"`
	Label        string               `bigquery:"label"`
	Category     bigquery.NullString  `bigquery:"category"`
	Direction    string               `bigquery:"direction"`  // hausse | baisse | stable
	ChangePct    bigquery.NullFloat64 `bigquery:"change_pct"` // NULLABLE
	Period       bigquery.NullString  `bigquery:"period"`
	ObservedDate civil.Date           `bigquery:"observed_date"`
}

// AnalysisRunRow is one archived analysis result.
type AnalysisRunRow struct {
	AnalysisID       string              `bigquery:"analysis_id"`
	UserID           string              `bigquery:"user_id"`
	Kind             string              `bigquery:"kind"`
	Success          bool                `bigquery:"success"`
	Reason           bigquery.NullString `bigquery:"reason"`
	Message          bigquery.NullString `bigquery:"message"`
	ErrorClass       bigquery.NullString `bigquery:"error_class"`
	ModelName        string              `bigquery:"model_name"`
	TransactionCount int64               `bigquery:"transaction_count"`
	RawText          bigquery.NullString `bigquery:"raw_text"`
	Insights         bigquery.NullJSON   `bigquery:"insights"` // JSON of the bucket record
	AnalyzedTS       time.Time           `bigquery:"analyzed_ts"`
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.FloatString(4))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// ToDomain converts the row to a domain transaction.
func (r *TransactionRow) ToDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		Date:        r.TransactionDate,
		Amount:      ratToDecimal(r.Amount),
		Type:        domain.TransactionType(r.TransactionType),
		Category:    r.Category.StringVal,
		Description: r.RawDescription.StringVal,
	}
}

// ToDomain converts the row to a domain budget.
func (r *BudgetRow) ToDomain() domain.Budget {
	return domain.Budget{
		ID:            r.BudgetID,
		Name:          r.Name,
		Category:      r.Category.StringVal,
		PlannedAmount: ratToDecimal(r.PlannedAmount),
		Period:        r.Period.StringVal,
		Active:        r.IsActive,
	}
}

// ToDomain converts the row to a domain trend descriptor.
func (r *TrendRow) ToDomain() domain.TrendDescriptor {
	t := domain.TrendDescriptor{
		ID:         r.TrendID,
		Label:      r.Label,
		Category:   r.Category.StringVal,
		Direction:  domain.TrendDirection(r.Direction),
		Period:     r.Period.StringVal,
		ObservedOn: r.ObservedDate,
	}
	if r.ChangePct.Valid {
		v := r.ChangePct.Float64
		t.ChangePct = &v
	}
	return t
}

// NewAnalysisRunRow flattens a result for archiving.
func NewAnalysisRunRow(res *domain.AnalysisResult) (*AnalysisRunRow, error) {
	analyzed, err := time.Parse(time.RFC3339, res.AnalyzedAt)
	if err != nil {
		analyzed = time.Now().UTC()
	}

	row := &AnalysisRunRow{
		AnalysisID:       res.ID.String(),
		UserID:           res.UserID,
		Kind:             string(res.Kind),
		Success:          res.Success,
		Reason:           nullString(string(res.Reason)),
		Message:          nullString(res.Message),
		ModelName:        res.Model,
		TransactionCount: int64(res.TransactionCount),
		RawText:          nullString(res.RawText),
		AnalyzedTS:       analyzed,
	}
	if res.Error != nil {
		row.ErrorClass = nullString(string(res.Error.Class))
	}

	var insights any
	switch {
	case res.Patterns != nil:
		insights = res.Patterns
	case res.Trends != nil:
		insights = res.Trends
	case res.Recommendations != nil:
		insights = res.Recommendations
	}
	if insights != nil {
		b, err := json.Marshal(insights)
		if err != nil {
			return nil, fmt.Errorf("NewAnalysisRunRow: marshal insights: %w", err)
		}
		row.Insights = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}
