package analysis

import (
	"math"

	"github.com/shopspring/decimal"

	"r2r/internal/core"
)

// Band classifies spend against a budget amount.
type Band string

const (
	BandUnknown Band = "unknown"
	BandUnder   Band = "under"
	BandNear    Band = "near"
	BandOver    Band = "over"
)

var (
	nearThreshold = decimal.NewFromInt(80)
)

// PercentUsed is 100 × actual / budget, or 0 when budget is not positive.
func PercentUsed(actual, budget decimal.Decimal) float64 {
	if !budget.IsPositive() {
		return 0
	}
	return actual.Mul(hundred).Div(budget).InexactFloat64()
}

// UsageBand classifies actual spend against budget:
// budget <= 0 is unknown, below 80% under, 80%..100% near, above 100% over.
// Comparisons are exact; no rounded percentage is involved.
func UsageBand(actual, budget decimal.Decimal) Band {
	if !budget.IsPositive() {
		return BandUnknown
	}
	scaled := actual.Mul(hundred)
	switch {
	case scaled.LessThan(budget.Mul(nearThreshold)):
		return BandUnder
	case actual.LessThanOrEqual(budget):
		return BandNear
	default:
		return BandOver
	}
}

// Row is one line of a budget report.
type Row struct {
	Category    string          `json:"category,omitempty"`
	Budget      decimal.Decimal `json:"budget"`
	Actual      decimal.Decimal `json:"actual"`
	PercentUsed float64         `json:"percentUsed"`
	// BarWidth is the progress bar fill, PercentUsed capped at 100.
	BarWidth float64 `json:"barWidth"`
	Band     Band    `json:"band"`
}

func newRow(category string, actual, budget decimal.Decimal) Row {
	pct := PercentUsed(actual, budget)
	return Row{
		Category:    category,
		Budget:      budget,
		Actual:      actual,
		PercentUsed: pct,
		BarWidth:    math.Min(100, pct),
		Band:        UsageBand(actual, budget),
	}
}

// Report joins a budget against the spend of an analysis window.
type Report struct {
	Month      int   `json:"month,omitempty"`
	Year       int   `json:"year,omitempty"`
	HasBudget  bool  `json:"hasBudget"`
	Overall    Row   `json:"overall"`
	Categories []Row `json:"categories"`
}

// Compare produces the overall row (overall budget vs total spend) and one
// row per category budget. A nil budget yields an unknown overall band and
// no category rows.
func Compare(budget *core.Budget, totalSpend decimal.Decimal, top []core.CategoryAggregate) Report {
	if budget == nil {
		return Report{
			Overall:    newRow("", totalSpend, decimal.Zero),
			Categories: []Row{},
		}
	}

	actuals := make(map[string]decimal.Decimal, len(top))
	for _, agg := range top {
		actuals[agg.Category] = actuals[agg.Category].Add(agg.Amount)
	}

	rows := make([]Row, 0, len(budget.CategoryBudgets))
	for _, cb := range budget.CategoryBudgets {
		rows = append(rows, newRow(cb.Category, actuals[cb.Category], cb.Amount))
	}

	return Report{
		Month:      budget.Month,
		Year:       budget.Year,
		HasBudget:  true,
		Overall:    newRow("", totalSpend, budget.OverallBudget),
		Categories: rows,
	}
}
