package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"r2r/internal/core"
	"r2r/internal/store"
)

type BudgetService struct {
	budgets store.BudgetStore
	locks   *keyedMutex
}

func NewBudgetService(budgets store.BudgetStore) *BudgetService {
	return &BudgetService{budgets: budgets, locks: newKeyedMutex()}
}

// Get returns the stored budget for the month, or an all-zero default that
// is not persisted.
func (s *BudgetService) Get(ctx context.Context, userID string, month, year int) (core.Budget, error) {
	probe := core.NewEmptyBudget(userID, month, year)
	if err := probe.Validate(); err != nil {
		return core.Budget{}, err
	}
	b, err := s.budgets.GetBudget(ctx, userID, month, year)
	if err != nil {
		return core.Budget{}, fmt.Errorf("load budget: %w", err)
	}
	if b == nil {
		return probe, nil
	}
	return *b, nil
}

// Save validates and upserts the budget on (user, month, year).
func (s *BudgetService) Save(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	for i := range b.CategoryBudgets {
		b.CategoryBudgets[i].Amount = b.CategoryBudgets[i].Amount.Round(core.AmountPlaces)
	}
	b.OverallBudget = b.OverallBudget.Round(core.AmountPlaces)

	unlock := s.locks.Lock(b.UserID)
	defer unlock()

	saved, err := s.budgets.SaveBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget saved",
		"user_id", saved.UserID,
		"month", saved.Month,
		"year", saved.Year,
		"overall", saved.OverallBudget.String())

	return saved, nil
}
