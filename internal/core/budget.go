package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type CategoryBudget struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Budget is the spending plan of one user for one calendar month.
// At most one exists per (UserID, Month, Year).
type Budget struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Month           int              `json:"month"` // 1-12
	Year            int              `json:"year"`
	OverallBudget   decimal.Decimal  `json:"overallBudget"`
	CategoryBudgets []CategoryBudget `json:"categoryBudgets"`
}

// NewEmptyBudget returns a zero budget with an entry for every category.
func NewEmptyBudget(userID string, month, year int) Budget {
	cats := make([]CategoryBudget, 0, len(Categories))
	for _, c := range Categories {
		cats = append(cats, CategoryBudget{Category: c, Amount: decimal.Zero})
	}
	return Budget{
		UserID:          userID,
		Month:           month,
		Year:            year,
		OverallBudget:   decimal.Zero,
		CategoryBudgets: cats,
	}
}

func (b Budget) Validate() error {
	if b.UserID == "" {
		return &ValidationError{Field: "userId", Err: ErrEmptyUser}
	}
	if b.Month < 1 || b.Month > 12 {
		return &ValidationError{Field: "month", Err: ErrInvalidMonth}
	}
	if b.Year < 1970 || b.Year > 9999 {
		return &ValidationError{Field: "year", Err: ErrInvalidYear}
	}
	if b.OverallBudget.IsNegative() {
		return &ValidationError{Field: "overallBudget", Err: ErrInvalidAmount}
	}
	seen := make(map[string]bool, len(b.CategoryBudgets))
	for _, cb := range b.CategoryBudgets {
		if !IsCategory(cb.Category) {
			return &ValidationError{Field: "categoryBudgets", Err: fmt.Errorf("%w: %q", ErrUnknownCategory, cb.Category)}
		}
		if seen[cb.Category] {
			return &ValidationError{Field: "categoryBudgets", Err: fmt.Errorf("duplicate category %q", cb.Category)}
		}
		seen[cb.Category] = true
		if cb.Amount.IsNegative() {
			return &ValidationError{Field: "categoryBudgets", Err: ErrInvalidAmount}
		}
	}
	return nil
}

