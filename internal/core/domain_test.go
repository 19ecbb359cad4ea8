package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		ID:       "t1",
		UserID:   "u1",
		Datetime: time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC),
		Merchant: "Corner Shop",
		Amount:   decimal.RequireFromString("12.50"),
		Currency: "USD",
		Category: CategoryGroceries,
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []func(*Transaction){
		func(tx *Transaction) { tx.UserID = "" },
		func(tx *Transaction) { tx.Datetime = time.Time{} },
		func(tx *Transaction) { tx.Merchant = "  " },
		func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-1) },
		func(tx *Transaction) { tx.Category = "Travel" },
	}
	for i, mutate := range bads {
		tx := validTransaction()
		mutate(&tx)
		err := tx.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected ErrValidation, got %v", i, err)
		}
	}
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"Groceries":       CategoryGroceries,
		" groceries ":     CategoryGroceries,
		"FOOD & DELIVERY": CategoryFood,
		"Travel":          CategoryMisc,
		"":                CategoryMisc,
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Fatalf("%q expected %q, got %q", in, want, got)
		}
	}
}

func TestParseSourceType(t *testing.T) {
	if st, err := ParseSourceType("SMS"); err != nil || st != SourceSMS {
		t.Fatalf("expected sms, got %q (err=%v)", st, err)
	}
	if st, err := ParseSourceType(""); err != nil || st != SourceManual {
		t.Fatalf("expected manual default, got %q (err=%v)", st, err)
	}
	if _, err := ParseSourceType("fax"); !errors.Is(err, ErrInvalidSourceType) {
		t.Fatalf("expected ErrInvalidSourceType, got %v", err)
	}
}

func TestVisibleTo(t *testing.T) {
	tx := validTransaction()
	tx.UserID = "other"
	tx.HouseholdID = "h1"

	if !tx.VisibleTo("u1", "h1") {
		t.Fatal("household member should see tagged transaction")
	}
	if tx.VisibleTo("u1", "") {
		t.Fatal("user without household should not see someone else's transaction")
	}
	if tx.VisibleTo("u1", "h2") {
		t.Fatal("different household should not match")
	}

	untagged := validTransaction()
	untagged.UserID = "other"
	if untagged.VisibleTo("u1", "") {
		t.Fatal("empty household id on both sides must not match")
	}
}

func TestBudgetValidate(t *testing.T) {
	good := NewEmptyBudget("u1", 3, 2025)
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if len(good.CategoryBudgets) != len(Categories) {
		t.Fatalf("expected %d category entries, got %d", len(Categories), len(good.CategoryBudgets))
	}

	cases := []struct {
		name string
		mut  func(*Budget)
		want error
	}{
		{"month zero", func(b *Budget) { b.Month = 0 }, ErrInvalidMonth},
		{"month 13", func(b *Budget) { b.Month = 13 }, ErrInvalidMonth},
		{"negative overall", func(b *Budget) { b.OverallBudget = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"unknown category", func(b *Budget) {
			b.CategoryBudgets = []CategoryBudget{{Category: "Pets", Amount: decimal.NewFromInt(1)}}
		}, ErrUnknownCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewEmptyBudget("u1", 3, 2025)
			tc.mut(&b)
			err := b.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestUserTouch(t *testing.T) {
	u := User{StreakCount: 1, LastActiveDate: "2025-01-01"}
	day := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)

	if u.Touch(day) {
		t.Fatal("same day should not change streak")
	}
	if !u.Touch(day.AddDate(0, 0, 1)) {
		t.Fatal("new day should change streak")
	}
	if u.StreakCount != 2 || u.LastActiveDate != "2025-01-02" {
		t.Fatalf("unexpected user after touch: %+v", u)
	}
}

func TestBillPredictionClamp(t *testing.T) {
	p := BillPrediction{Merchant: "Netflix", Frequency: FrequencyMonthly, Confidence: 1.7}
	if !p.Clamp() || p.Confidence != 1 {
		t.Fatalf("expected clamped usable prediction, got %+v", p)
	}
	bad := BillPrediction{Merchant: "Gym", Frequency: "daily"}
	if bad.Clamp() {
		t.Fatal("unknown frequency should be rejected")
	}
}
