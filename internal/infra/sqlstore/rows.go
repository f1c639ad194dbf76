package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// sqlDate stores a civil.Date as YYYY-MM-DD and scans TEXT or DATE columns.
type sqlDate civil.Date

func (d *sqlDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = sqlDate(civil.DateOf(v))
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		*d = sqlDate{}
		return nil
	default:
		return fmt.Errorf("sqlDate: unsupported type %T", src)
	}
}

func (d *sqlDate) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	cd, err := civil.ParseDate(s)
	if err != nil {
		return fmt.Errorf("sqlDate: %w", err)
	}
	*d = sqlDate(cd)
	return nil
}

func (d sqlDate) Value() (driver.Value, error) {
	return civil.Date(d).String(), nil
}

type transactionRow struct {
	TransactionID   string          `db:"transaction_id"`
	UserID          string          `db:"user_id"`
	TransactionDate sqlDate         `db:"transaction_date"`
	Amount          decimal.Decimal `db:"amount"`
	TransactionType string          `db:"transaction_type"`
	Category        sql.NullString  `db:"category"`
	RawDescription  sql.NullString  `db:"raw_description"`
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		Date:        civil.Date(r.TransactionDate),
		Amount:      r.Amount,
		Type:        domain.TransactionType(r.TransactionType),
		Category:    r.Category.String,
		Description: r.RawDescription.String,
	}
}

func newTransactionRow(tx domain.Transaction) transactionRow {
	return transactionRow{
		TransactionID:   tx.ID,
		UserID:          tx.UserID,
		TransactionDate: sqlDate(tx.Date),
		Amount:          tx.Amount.Abs(),
		TransactionType: string(tx.Type),
		Category:        nullString(tx.Category),
		RawDescription:  nullString(tx.Description),
	}
}

type budgetRow struct {
	BudgetID      string          `db:"budget_id"`
	UserID        string          `db:"user_id"`
	Name          string          `db:"name"`
	Category      sql.NullString  `db:"category"`
	PlannedAmount decimal.Decimal `db:"planned_amount"`
	Period        sql.NullString  `db:"period"`
	IsActive      bool            `db:"is_active"`
}

func (r budgetRow) toDomain() domain.Budget {
	return domain.Budget{
		ID:            r.BudgetID,
		Name:          r.Name,
		Category:      r.Category.String,
		PlannedAmount: r.PlannedAmount,
		Period:        r.Period.String,
		Active:        r.IsActive,
	}
}

type trendRow struct {
	TrendID      string          `db:"trend_id"`
	UserID       string          `db:"user_id"`
	Label        string          `db:"label"`
	Category     sql.NullString  `db:"category"`
	Direction    string          `db:"direction"`
	ChangePct    sql.NullFloat64 `db:"change_pct"`
	Period       sql.NullString  `db:"period"`
	ObservedDate sqlDate         `db:"observed_date"`
}

func (r trendRow) toDomain() domain.TrendDescriptor {
	t := domain.TrendDescriptor{
		ID:         r.TrendID,
		Label:      r.Label,
		Category:   r.Category.String,
		Direction:  domain.TrendDirection(r.Direction),
		Period:     r.Period.String,
		ObservedOn: civil.Date(r.ObservedDate),
	}
	if r.ChangePct.Valid {
		v := r.ChangePct.Float64
		t.ChangePct = &v
	}
	return t
}

type analysisRunRow struct {
	AnalysisID       string         `db:"analysis_id"`
	UserID           string         `db:"user_id"`
	Kind             string         `db:"kind"`
	Success          bool           `db:"success"`
	Reason           sql.NullString `db:"reason"`
	Message          sql.NullString `db:"message"`
	ErrorClass       sql.NullString `db:"error_class"`
	ModelName        sql.NullString `db:"model_name"`
	TransactionCount int            `db:"transaction_count"`
	RawText          sql.NullString `db:"raw_text"`
	Insights         sql.NullString `db:"insights"`
	AnalyzedTS       time.Time      `db:"analyzed_ts"`
}

func newAnalysisRunRow(res *domain.AnalysisResult) (analysisRunRow, error) {
	analyzed, err := time.Parse(time.RFC3339, res.AnalyzedAt)
	if err != nil {
		analyzed = time.Now().UTC()
	}
	row := analysisRunRow{
		AnalysisID:       res.ID.String(),
		UserID:           res.UserID,
		Kind:             string(res.Kind),
		Success:          res.Success,
		Reason:           nullString(string(res.Reason)),
		Message:          nullString(res.Message),
		ModelName:        nullString(res.Model),
		TransactionCount: res.TransactionCount,
		RawText:          nullString(res.RawText),
		AnalyzedTS:       analyzed.UTC(),
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
			return row, fmt.Errorf("newAnalysisRunRow: marshal insights: %w", err)
		}
		row.Insights = nullString(string(b))
	}
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
