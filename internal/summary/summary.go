// Package summary reduces a set of transactions into the aggregate view that
// prompts are rendered from.
package summary

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrNoTransactions is returned by Build for an empty input. Callers are
// expected to detect the empty case first and report "no data" instead.
var ErrNoTransactions = errors.New("no transactions to summarize")

// Bucket is one keyed sum. Buckets are kept in sorted key order.
type Bucket struct {
	Key    string          `json:"key"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary is the aggregate of a non-empty transaction set.
type Summary struct {
	Count              int             `json:"count"`
	Revenue            decimal.Decimal `json:"revenue"`
	Expenses           decimal.Decimal `json:"expenses"`
	NetIncome          decimal.Decimal `json:"net_income"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
	ByCategory         []Bucket        `json:"by_category"`
	ByMonth            []Bucket        `json:"by_month"`
}

// Build aggregates txs. Negative amounts are folded to their absolute value,
// the type alone decides the direction.
func Build(txs []domain.Transaction) (*Summary, error) {
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	byCategory := make(map[string]decimal.Decimal)
	byMonth := make(map[string]decimal.Decimal)
	s := &Summary{Count: len(txs)}

	for i, tx := range txs {
		amount := tx.Amount.Abs()

		switch domain.TransactionType(strings.ToLower(string(tx.Type))) {
		case domain.TransactionTypeIncome:
			s.Revenue = s.Revenue.Add(amount)
		case domain.TransactionTypeExpense:
			s.Expenses = s.Expenses.Add(amount)
		default:
			return nil, fmt.Errorf("Build: transaction %d (%s): unknown type %q", i, tx.ID, tx.Type)
		}

		cat := CategoryKey(tx.Category)
		byCategory[cat] = byCategory[cat].Add(amount)

		month := MonthKey(tx.Date)
		byMonth[month] = byMonth[month].Add(amount)
	}

	s.NetIncome = s.Revenue.Sub(s.Expenses)
	s.AverageTransaction = s.Revenue.Add(s.Expenses).Div(decimal.NewFromInt(int64(s.Count)))
	s.ByCategory = sortedBuckets(byCategory)
	s.ByMonth = sortedBuckets(byMonth)

	return s, nil
}

// CategoryKey normalises a category label; blank labels map to "other".
func CategoryKey(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return domain.OtherCategory
	}
	return c
}

// MonthKey formats a date as YYYY-MM.
func MonthKey(d civil.Date) string {
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}

// Category returns the summed amount for a category key.
func (s *Summary) Category(key string) (decimal.Decimal, bool) {
	for _, b := range s.ByCategory {
		if b.Key == key {
			return b.Amount, true
		}
	}
	return decimal.Zero, false
}

func sortedBuckets(m map[string]decimal.Decimal) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, v := range m {
		out = append(out, Bucket{Key: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// PreviousPeriod returns the window of equal length ending the day before start.
func PreviousPeriod(start, end civil.Date) (civil.Date, civil.Date) {
	days := end.DaysSince(start)
	prevEnd := start.AddDays(-1)
	return prevEnd.AddDays(-days), prevEnd
}
