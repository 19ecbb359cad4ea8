package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"r2r/internal/core"
)

type analyzeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// handleAnalyze runs an analysis over [start, end]; end covers its whole day.
// An empty body analyzes the default window.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req analyzeRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start, end, err := analysisRange(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.deps.Analysis.Analyze(r.Context(), userID, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func analysisRange(req analyzeRequest) (start, end time.Time, err error) {
	if req.Start == "" && req.End == "" {
		return start, end, nil
	}
	if req.Start == "" || req.End == "" {
		return start, end, badRequest("start and end must be given together")
	}
	if start, err = parseDay("start", req.Start); err != nil {
		return start, end, err
	}
	if end, err = parseDay("end", req.End); err != nil {
		return start, end, err
	}
	return start, endOfDay(end), nil
}

func (s *Server) handleLatestSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	latest, err := s.deps.Analysis.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if latest == nil {
		writeError(w, r, fmt.Errorf("latest summary: %w", core.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	latest, err := s.deps.Analysis.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if latest == nil {
		writeError(w, r, fmt.Errorf("latest summary: %w", core.ErrNotFound))
		return
	}
	report, err := s.deps.Analysis.Report(r.Context(), userID, *latest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sums, err := s.deps.Analysis.History(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sums == nil {
		sums = []core.AnalysisSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
}

func (s *Server) handleBills(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bills, err := s.deps.Analysis.PredictBills(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bills == nil {
		bills = []core.BillPrediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Analysis.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// budgetPeriod reads {year}/{month} from the path.
func budgetPeriod(r *http.Request) (year, month int, err error) {
	year, err = strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return 0, 0, badRequest("year must be a number")
	}
	month, err = strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return 0, 0, badRequest("month must be a number")
	}
	return year, month, nil
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, month, err := budgetPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.deps.Budgets.Get(r.Context(), userID, month, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// budgetRequest carries amounts as typed by the user: "12.50" and "12,50"
// are both accepted, and so are bare JSON numbers. A blank amount is zero.
type budgetRequest struct {
	OverallBudget   amountInput `json:"overallBudget"`
	CategoryBudgets []struct {
		Category string      `json:"category"`
		Amount   amountInput `json:"amount"`
	} `json:"categoryBudgets"`
}

type amountInput string

func (a *amountInput) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(b, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountInput(s)
		return nil
	}
	if string(b) == "null" {
		*a = ""
		return nil
	}
	*a = amountInput(b)
	return nil
}

func (a amountInput) parse(field string) (decimal.Decimal, error) {
	if strings.TrimSpace(string(a)) == "" {
		return decimal.Zero, nil
	}
	d, err := core.ParseAmount(string(a))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Err: err}
	}
	return d, nil
}

func (req budgetRequest) budget(userID string, month, year int) (core.Budget, error) {
	overall, err := req.OverallBudget.parse("overallBudget")
	if err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{UserID: userID, Month: month, Year: year, OverallBudget: overall}
	for i, cb := range req.CategoryBudgets {
		amount, err := cb.Amount.parse(fmt.Sprintf("categoryBudgets[%d].amount", i))
		if err != nil {
			return core.Budget{}, err
		}
		b.CategoryBudgets = append(b.CategoryBudgets, core.CategoryBudget{Category: cb.Category, Amount: amount})
	}
	return b, nil
}

func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, month, err := budgetPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	budget, err := req.budget(userID, month, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.deps.Budgets.Save(r.Context(), budget)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
