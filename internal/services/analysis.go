package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"r2r/internal/analysis"
	"r2r/internal/cache"
	"r2r/internal/core"
	"r2r/internal/store"
)

const (
	// DefaultAnalysisWindow is used when no range is given.
	DefaultAnalysisWindow = 30 * 24 * time.Hour
	billHistory           = 50
	dashboardRecent       = 5
	billsCacheSize        = 1000
)

// InsightSource produces qualitative insights and bill predictions.
// Failures yield empty results.
type InsightSource interface {
	Insights(ctx context.Context, txs []core.Transaction) core.Insights
	PredictBills(ctx context.Context, txs []core.Transaction) []core.BillPrediction
}

type AnalysisStore interface {
	store.SummaryStore
	store.BudgetStore
}

type AnalysisService struct {
	txs      *TransactionService
	store    AnalysisStore
	users    store.UserStore
	insights InsightSource
	bills    *cache.LRUCache[[]core.BillPrediction]
	now      func() time.Time
}

// NewAnalysisService wires analysis. Bill predictions are cached per user
// for billsTTL; a zero TTL disables the cache.
func NewAnalysisService(txs *TransactionService, st AnalysisStore, users store.UserStore, insights InsightSource, billsTTL time.Duration) *AnalysisService {
	s := &AnalysisService{
		txs:      txs,
		store:    st,
		users:    users,
		insights: insights,
		now:      time.Now,
	}
	if billsTTL > 0 {
		s.bills = cache.NewLRUCache[[]core.BillPrediction](billsCacheSize, billsTTL)
	}
	return s
}

// BillsCache exposes the prediction cache for periodic cleanup; nil when disabled.
func (s *AnalysisService) BillsCache() cache.Cleaner {
	if s.bills == nil {
		return nil
	}
	return s.bills
}

// DefaultRange returns the last 30 days ending now.
func (s *AnalysisService) DefaultRange() (time.Time, time.Time) {
	end := s.now().UTC()
	return end.Add(-DefaultAnalysisWindow), end
}

// Analyze aggregates the visible transactions inside [start, end], asks the
// model for insights over the same set and archives the summary. A model
// failure leaves the insights empty and never aborts the analysis.
func (s *AnalysisService) Analyze(ctx context.Context, userID string, start, end time.Time) (core.AnalysisSummary, error) {
	if start.IsZero() && end.IsZero() {
		start, end = s.DefaultRange()
	}
	if end.Before(start) {
		return core.AnalysisSummary{}, &core.ValidationError{Field: "end", Err: core.ErrInvalidDate}
	}

	txs, err := s.txs.List(ctx, userID)
	if err != nil {
		return core.AnalysisSummary{}, err
	}
	window := analysis.Window(txs, start, end)
	agg := analysis.Aggregate(window, start, end)
	ins := s.insights.Insights(ctx, window)

	summary := analysis.Summarize(userID, start, end, agg, ins, s.now().UTC())
	if err := s.store.AppendSummary(ctx, summary); err != nil {
		return core.AnalysisSummary{}, fmt.Errorf("append summary: %w", err)
	}

	slog.InfoContext(ctx, "Analysis archived",
		"user_id", userID,
		"summary_id", summary.ID,
		"transactions", summary.TotalTransactions,
		"leaks", len(summary.Leaks),
		"suggestions", len(summary.Suggestions))

	return summary, nil
}

// Latest returns the most recently archived summary, or nil.
func (s *AnalysisService) Latest(ctx context.Context, userID string) (*core.AnalysisSummary, error) {
	sum, err := s.store.LatestSummary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	return sum, nil
}

// History returns every archived summary of the user in insertion order.
func (s *AnalysisService) History(ctx context.Context, userID string) ([]core.AnalysisSummary, error) {
	sums, err := s.store.ListSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return sums, nil
}

// Report compares a summary with the budget of its period-start month.
func (s *AnalysisService) Report(ctx context.Context, userID string, summary core.AnalysisSummary) (analysis.Report, error) {
	start := summary.PeriodStart.UTC()
	b, err := s.store.GetBudget(ctx, userID, int(start.Month()), start.Year())
	if err != nil {
		return analysis.Report{}, fmt.Errorf("load budget: %w", err)
	}
	report := analysis.Compare(b, summary.TotalSpend, summary.TopCategories)
	if b == nil {
		report.Month, report.Year = int(start.Month()), start.Year()
	}
	return report, nil
}

// PredictBills forecasts recurring charges from the last 50 visible
// transactions. Cached per user.
func (s *AnalysisService) PredictBills(ctx context.Context, userID string) ([]core.BillPrediction, error) {
	if s.bills != nil {
		if cached, ok := s.bills.Get(userID); ok {
			return cached, nil
		}
	}
	txs, err := s.txs.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	preds := s.insights.PredictBills(ctx, tail(txs, billHistory))
	// An empty answer may be a model failure; only cache real predictions.
	if s.bills != nil && len(preds) > 0 {
		s.bills.Set(userID, preds)
	}
	return preds, nil
}

// InvalidateBills drops cached predictions whose inputs changed. Household
// changes affect every member, so the whole cache is purged.
func (s *AnalysisService) InvalidateBills(userID, householdID string) {
	if s.bills == nil {
		return
	}
	if householdID != "" {
		s.bills.Purge()
		return
	}
	s.bills.Delete(userID)
}

type Dashboard struct {
	User          core.User             `json:"user"`
	Latest        *core.AnalysisSummary `json:"latest"`
	Report        *analysis.Report      `json:"report,omitempty"`
	Recent        []core.Transaction    `json:"recent"`
	BusinessTotal string                `json:"businessTotal"`
	Bills         []core.BillPrediction `json:"bills"`
}

// Dashboard collects the home-page view. The summary lookup and the bill
// prediction are independent and run concurrently.
func (s *AnalysisService) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load user: %w", err)
	}
	d := Dashboard{User: u}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		latest, err := s.Latest(gctx, userID)
		if err != nil || latest == nil {
			return err
		}
		report, err := s.Report(gctx, userID, *latest)
		if err != nil {
			return err
		}
		d.Latest, d.Report = latest, &report
		return nil
	})
	g.Go(func() error {
		txs, err := s.txs.List(gctx, userID)
		if err != nil {
			return err
		}
		d.Recent = lastN(txs, dashboardRecent)
		total := sumAmounts(txs, func(t core.Transaction) bool { return t.IsBusiness })
		d.BusinessTotal = total.StringFixed(core.AmountPlaces)
		return nil
	})
	g.Go(func() error {
		bills, err := s.PredictBills(gctx, userID)
		if err != nil {
			return err
		}
		d.Bills = bills
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
