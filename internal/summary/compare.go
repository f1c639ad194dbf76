package summary

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// TrendComparison pairs the current summary with an optional previous one.
// A delta is nil when there is no previous summary or its value is zero.
type TrendComparison struct {
	Current            *Summary `json:"current"`
	Previous           *Summary `json:"previous,omitempty"`
	RevenueChangePct   *float64 `json:"revenue_change_pct,omitempty"`
	ExpensesChangePct  *float64 `json:"expenses_change_pct,omitempty"`
	NetIncomeChangePct *float64 `json:"net_income_change_pct,omitempty"`
}

// HasPrevious reports whether a previous period is available.
func (c TrendComparison) HasPrevious() bool {
	return c.Previous != nil
}

// Compare computes the percentage deltas between two summaries. current must
// not be nil.
func Compare(current, previous *Summary) TrendComparison {
	c := TrendComparison{Current: current, Previous: previous}
	if previous == nil {
		return c
	}
	c.RevenueChangePct = percentChange(current.Revenue, previous.Revenue)
	c.ExpensesChangePct = percentChange(current.Expenses, previous.Expenses)
	c.NetIncomeChangePct = percentChange(current.NetIncome, previous.NetIncome)
	return c
}

// percentChange divides by |prev| so a negative previous net income still
// yields a positive delta when things improve.
func percentChange(cur, prev decimal.Decimal) *float64 {
	if prev.IsZero() {
		return nil
	}
	pct, _ := cur.Sub(prev).Div(prev.Abs()).Mul(hundred).Round(2).Float64()
	return &pct
}
