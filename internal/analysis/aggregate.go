// Package analysis holds the pure spending computations: windowed
// aggregation by category and the budget comparator with its usage bands.
// Nothing here touches storage or the network.
package analysis

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"r2r/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Aggregation is the quantitative result of one analysis window.
type Aggregation struct {
	TotalSpend        decimal.Decimal          `json:"totalSpend"`
	TotalTransactions int                      `json:"totalTransactions"`
	TopCategories     []core.CategoryAggregate `json:"topCategories"`
}

// InWindow reports whether ts lies in [start, end], both ends inclusive.
func InWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

// Window returns the transactions dated within [start, end], preserving order.
func Window(txs []core.Transaction, start, end time.Time) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if InWindow(t.Datetime, start, end) {
			out = append(out, t)
		}
	}
	return out
}

// Aggregate totals the transactions dated within [start, end] and groups
// them by category. Categories are ordered by amount descending; ties keep
// the order in which the category was first seen.
func Aggregate(txs []core.Transaction, start, end time.Time) Aggregation {
	total := decimal.Zero
	count := 0
	sums := make(map[string]decimal.Decimal)
	var order []string

	for _, t := range txs {
		if !InWindow(t.Datetime, start, end) {
			continue
		}
		count++
		total = total.Add(t.Amount)
		if _, ok := sums[t.Category]; !ok {
			order = append(order, t.Category)
			sums[t.Category] = decimal.Zero
		}
		sums[t.Category] = sums[t.Category].Add(t.Amount)
	}

	top := make([]core.CategoryAggregate, 0, len(order))
	for _, c := range order {
		top = append(top, core.CategoryAggregate{
			Category:   c,
			Amount:     sums[c],
			Percentage: Share(sums[c], total),
		})
	}
	slices.SortStableFunc(top, func(a, b core.CategoryAggregate) int {
		return b.Amount.Cmp(a.Amount)
	})

	return Aggregation{
		TotalSpend:        total,
		TotalTransactions: count,
		TopCategories:     top,
	}
}

// Share is 100 × part / total, or 0 when total is zero.
func Share(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Mul(hundred).Div(total).InexactFloat64()
}

// Summarize builds the archived summary for an aggregation and its insights.
func Summarize(userID string, start, end time.Time, agg Aggregation, insights core.Insights, now time.Time) core.AnalysisSummary {
	insights = insights.Normalize()
	top := agg.TopCategories
	if top == nil {
		top = []core.CategoryAggregate{}
	}
	return core.AnalysisSummary{
		ID:                uuid.NewString(),
		UserID:            userID,
		PeriodStart:       start,
		PeriodEnd:         end,
		TotalSpend:        agg.TotalSpend,
		TotalTransactions: agg.TotalTransactions,
		TopCategories:     top,
		Leaks:             insights.Leaks,
		Suggestions:       insights.Suggestions,
		CreatedAt:         now,
	}
}
