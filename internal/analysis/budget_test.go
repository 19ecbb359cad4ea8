package analysis

import (
	"testing"

	"github.com/shopspring/decimal"

	"r2r/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestUsageBand(t *testing.T) {
	cases := []struct {
		name   string
		actual string
		budget string
		want   Band
	}{
		{"zero budget", "50", "0", BandUnknown},
		{"negative budget", "50", "-1", BandUnknown},
		{"zero budget zero spend", "0", "0", BandUnknown},
		{"nothing spent", "0", "100", BandUnder},
		{"just under", "79.99", "100", BandUnder},
		{"at eighty", "80", "100", BandNear},
		{"at limit", "100", "100", BandNear},
		{"just over", "100.01", "100", BandOver},
		{"over", "101", "100", BandOver},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UsageBand(d(tc.actual), d(tc.budget)); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPercentUsed(t *testing.T) {
	if got := PercentUsed(d("80"), d("100")); got != 80 {
		t.Fatalf("expected 80, got %v", got)
	}
	if got := PercentUsed(d("25"), d("0")); got != 0 {
		t.Fatalf("expected 0 for zero budget, got %v", got)
	}
}

func TestCompareOverall(t *testing.T) {
	b := &core.Budget{UserID: "u1", Month: 3, Year: 2025, OverallBudget: d("100")}
	r := Compare(b, d("120"), nil)

	if r.Overall.Band != BandOver {
		t.Fatalf("expected over band, got %s", r.Overall.Band)
	}
	if r.Overall.PercentUsed != 120 {
		t.Fatalf("expected 120 percent, got %v", r.Overall.PercentUsed)
	}
	if r.Overall.BarWidth != 100 {
		t.Fatalf("expected bar capped at 100, got %v", r.Overall.BarWidth)
	}
	if !r.HasBudget || r.Month != 3 || r.Year != 2025 {
		t.Fatalf("unexpected report header: %+v", r)
	}
}

func TestCompareCategories(t *testing.T) {
	b := &core.Budget{
		UserID:        "u1",
		Month:         3,
		Year:          2025,
		OverallBudget: d("500"),
		CategoryBudgets: []core.CategoryBudget{
			{Category: core.CategoryGroceries, Amount: d("100")},
			{Category: core.CategoryRent, Amount: d("0")},
			{Category: core.CategoryShopping, Amount: d("40")},
		},
	}
	top := []core.CategoryAggregate{
		{Category: core.CategoryGroceries, Amount: d("85")},
		{Category: core.CategoryFood, Amount: d("20")},
	}

	r := Compare(b, d("105"), top)
	if len(r.Categories) != 3 {
		t.Fatalf("expected one row per category budget, got %d", len(r.Categories))
	}

	groceries := r.Categories[0]
	if groceries.Band != BandNear || groceries.PercentUsed != 85 || !groceries.Actual.Equal(d("85")) {
		t.Fatalf("unexpected groceries row: %+v", groceries)
	}
	rent := r.Categories[1]
	if rent.Band != BandUnknown || rent.PercentUsed != 0 {
		t.Fatalf("unexpected rent row: %+v", rent)
	}
	shopping := r.Categories[2]
	if !shopping.Actual.IsZero() || shopping.Band != BandUnder {
		t.Fatalf("category absent from aggregates should have zero actual: %+v", shopping)
	}
	if r.Overall.Band != BandUnder {
		t.Fatalf("expected overall under, got %s", r.Overall.Band)
	}
}

func TestCompareWithoutBudget(t *testing.T) {
	r := Compare(nil, d("42"), []core.CategoryAggregate{{Category: core.CategoryMisc, Amount: d("42")}})
	if r.HasBudget {
		t.Fatal("expected no budget")
	}
	if r.Overall.Band != BandUnknown {
		t.Fatalf("expected unknown band, got %s", r.Overall.Band)
	}
	if r.Categories == nil || len(r.Categories) != 0 {
		t.Fatalf("expected empty rows, got %#v", r.Categories)
	}
}
