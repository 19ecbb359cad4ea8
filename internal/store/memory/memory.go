// Package memory is an in-process record store. Data lives for the
// lifetime of the process only.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"r2r/internal/core"
	"r2r/internal/store"
)

type budgetKey struct {
	userID string
	month  int
	year   int
}

type Store struct {
	mu        sync.Mutex
	txs       []core.Transaction
	budgets   map[budgetKey]core.Budget
	summaries []core.AnalysisSummary // global, append-only
	users     map[string]core.User
	jobs      map[string]core.IngestJob
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		budgets: make(map[budgetKey]core.Budget),
		users:   make(map[string]core.User),
		jobs:    make(map[string]core.IngestJob),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) ListVisible(_ context.Context, userID, householdID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.VisibleTo(userID, householdID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) AppendTransactions(_ context.Context, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txs...)
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.txs, func(t core.Transaction) bool { return t.ID == tx.ID })
	if idx < 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, core.ErrNotFound)
	}
	s.txs[idx] = tx
	return nil
}

func (s *Store) GetBudget(_ context.Context, userID string, month, year int) (*core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[budgetKey{userID, month, year}]
	if !ok {
		return nil, nil
	}
	b.CategoryBudgets = slices.Clone(b.CategoryBudgets)
	return &b, nil
}

func (s *Store) SaveBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey{b.UserID, b.Month, b.Year}
	if existing, ok := s.budgets[key]; ok {
		b.ID = existing.ID
	}
	b.CategoryBudgets = slices.Clone(b.CategoryBudgets)
	s.budgets[key] = b
	return b, nil
}

func (s *Store) AppendSummary(_ context.Context, sum core.AnalysisSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *Store) LatestSummary(_ context.Context, userID string) (*core.AnalysisSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.summaries) - 1; i >= 0; i-- {
		if s.summaries[i].UserID == userID {
			sum := s.summaries[i]
			return &sum, nil
		}
	}
	return nil, nil
}

func (s *Store) ListSummaries(_ context.Context, userID string) ([]core.AnalysisSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AnalysisSummary, 0)
	for _, sum := range s.summaries {
		if sum.UserID == userID {
			out = append(out, sum)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := core.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if core.NormalizeEmail(existing.Email) == email {
			return core.ErrUserExists
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: duplicate id", u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = core.NormalizeEmail(email)
	for _, u := range s.users {
		if core.NormalizeEmail(u.Email) == email {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, core.ErrNotFound)
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) SaveJob(_ context.Context, j core.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.Receipts = slices.Clone(j.Receipts)
	s.jobs[j.ID] = j
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (core.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return core.IngestJob{}, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	return j, nil
}

func (s *Store) ClaimJob(_ context.Context, j core.IngestJob, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok {
		return false, fmt.Errorf("job %s: %w", j.ID, core.ErrNotFound)
	}
	if cur.Status != j.Status || cur.Attempts != j.Attempts || !cur.UpdatedAt.Equal(j.UpdatedAt) {
		return false, nil
	}
	cur.Status = core.JobRunning
	cur.Attempts++
	cur.UpdatedAt = at
	s.jobs[j.ID] = cur
	return true, nil
}

func (s *Store) ListPendingJobs(_ context.Context, limit int) ([]core.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.IngestJob{}
	for _, j := range s.jobs {
		if !j.Done() {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b core.IngestJob) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
