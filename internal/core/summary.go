package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryAggregate is the spend of one category within an analysis window.
type CategoryAggregate struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

type Leak struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type Suggestion struct {
	Action                 string          `json:"action"`
	Rationale              string          `json:"rationale"`
	EstimatedMonthlySaving decimal.Decimal `json:"estimatedMonthlySaving"`
}

// Insights is the qualitative part of an analysis. Both lists are never nil.
type Insights struct {
	Leaks       []Leak       `json:"leaks"`
	Suggestions []Suggestion `json:"suggestions"`
}

func EmptyInsights() Insights {
	return Insights{Leaks: []Leak{}, Suggestions: []Suggestion{}}
}

// Normalize replaces nil lists with empty ones.
func (i Insights) Normalize() Insights {
	if i.Leaks == nil {
		i.Leaks = []Leak{}
	}
	if i.Suggestions == nil {
		i.Suggestions = []Suggestion{}
	}
	return i
}

// AnalysisSummary is an immutable archived analysis result.
type AnalysisSummary struct {
	ID                string              `json:"id"`
	UserID            string              `json:"userId"`
	PeriodStart       time.Time           `json:"periodStart"`
	PeriodEnd         time.Time           `json:"periodEnd"`
	TotalSpend        decimal.Decimal     `json:"totalSpend"`
	TotalTransactions int                 `json:"totalTransactions"`
	TopCategories     []CategoryAggregate `json:"topCategories"`
	Leaks             []Leak              `json:"leaks"`
	Suggestions       []Suggestion        `json:"suggestions"`
	CreatedAt         time.Time           `json:"createdAt"`
}

type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyAnnual  Frequency = "annual"
)

type BillPrediction struct {
	Merchant         string          `json:"merchant"`
	EstimatedAmount  decimal.Decimal `json:"estimatedAmount"`
	Frequency        Frequency       `json:"frequency"`
	NextExpectedDate string          `json:"nextExpectedDate"`
	Confidence       float64         `json:"confidence"`
	IsSubscription   bool            `json:"isSubscription"`
}

// Clamp bounds Confidence to [0,1] and reports whether the prediction is
// usable (known frequency and a merchant).
func (p *BillPrediction) Clamp() bool {
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	switch p.Frequency {
	case FrequencyWeekly, FrequencyMonthly, FrequencyAnnual:
	default:
		return false
	}
	return p.Merchant != ""
}
