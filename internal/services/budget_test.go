package services

import (
	"context"
	"errors"
	"testing"

	"r2r/internal/core"
	"r2r/internal/store/memory"
)

func TestBudgetService_GetDefault(t *testing.T) {
	svc := NewBudgetService(memory.New())

	b, err := svc.Get(context.Background(), "alice", 3, 2025)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.ID != "" || !b.OverallBudget.IsZero() || len(b.CategoryBudgets) != len(core.Categories) {
		t.Errorf("unexpected default budget: %+v", b)
	}
}

func TestBudgetService_GetInvalidMonth(t *testing.T) {
	svc := NewBudgetService(memory.New())
	if _, err := svc.Get(context.Background(), "alice", 13, 2025); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestBudgetService_SaveUpsert(t *testing.T) {
	svc := NewBudgetService(memory.New())
	ctx := context.Background()

	b := core.NewEmptyBudget("alice", 3, 2025)
	b.OverallBudget = amount("1200.456")
	b.CategoryBudgets[0].Amount = amount("300")

	saved, err := svc.Save(ctx, b)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" || !saved.OverallBudget.Equal(amount("1200.46")) {
		t.Errorf("unexpected saved budget: %+v", saved)
	}

	b.OverallBudget = amount("900")
	again, err := svc.Save(ctx, b)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if again.ID != saved.ID {
		t.Errorf("upsert changed id: %s -> %s", saved.ID, again.ID)
	}

	got, _ := svc.Get(ctx, "alice", 3, 2025)
	if !got.OverallBudget.Equal(amount("900")) || !got.CategoryBudgets[0].Amount.Equal(amount("300")) {
		t.Errorf("Get after upsert = %+v", got)
	}
}

func TestBudgetService_SaveRejectsInvalid(t *testing.T) {
	svc := NewBudgetService(memory.New())

	tests := []struct {
		name   string
		mutate func(*core.Budget)
		want   error
	}{
		{"negative overall", func(b *core.Budget) { b.OverallBudget = amount("-1") }, core.ErrInvalidAmount},
		{"unknown category", func(b *core.Budget) {
			b.CategoryBudgets = append(b.CategoryBudgets, core.CategoryBudget{Category: "Gadgets"})
		}, core.ErrUnknownCategory},
		{"bad month", func(b *core.Budget) { b.Month = 0 }, core.ErrInvalidMonth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := core.NewEmptyBudget("alice", 3, 2025)
			tt.mutate(&b)
			_, err := svc.Save(context.Background(), b)
			if !errors.Is(err, core.ErrValidation) || !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
