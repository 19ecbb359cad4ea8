// Package storage is the SQLite record store. Schema changes are embedded
// migrations applied on open.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"r2r/internal/core"
	"r2r/internal/store"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Transactions

const transactionColumns = `id, user_id, household_id, datetime, merchant, amount, currency, category, source_type, raw_text, is_business`

func (r *SQLiteRepository) ListVisible(ctx context.Context, userID, householdID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? OR (? <> '' AND household_id = ?)
		 ORDER BY seq`,
		userID, householdID, householdID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, err
}

func (r *SQLiteRepository) AppendTransactions(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.UserID, t.HouseholdID, formatTime(t.Datetime), t.Merchant,
			t.Amount.String(), t.Currency, t.Category, string(t.SourceType), t.RawText, t.IsBusiness,
		); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(txs))
	return nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET user_id = ?, household_id = ?, datetime = ?, merchant = ?, amount = ?,
		 currency = ?, category = ?, source_type = ?, raw_text = ?, is_business = ? WHERE id = ?`,
		t.UserID, t.HouseholdID, formatTime(t.Datetime), t.Merchant, t.Amount.String(),
		t.Currency, t.Category, string(t.SourceType), t.RawText, t.IsBusiness, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t          core.Transaction
		datetime   string
		amount     string
		sourceType string
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.HouseholdID, &datetime, &t.Merchant, &amount,
		&t.Currency, &t.Category, &sourceType, &t.RawText, &t.IsBusiness); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan transaction: %w", err)
	}
	var err error
	if t.Datetime, err = parseTime(datetime); err != nil {
		return t, fmt.Errorf("parse transaction %s datetime: %w", t.ID, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("parse transaction %s amount: %w", t.ID, err)
	}
	t.SourceType = core.SourceType(sourceType)
	return t, nil
}

// Budgets

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string, month, year int) (*core.Budget, error) {
	var (
		b       core.Budget
		overall string
		cats    string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, month, year, overall_budget, category_budgets
		 FROM budgets WHERE user_id = ? AND month = ? AND year = ?`,
		userID, month, year).Scan(&b.ID, &b.UserID, &b.Month, &b.Year, &overall, &cats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	if b.OverallBudget, err = decimal.NewFromString(overall); err != nil {
		return nil, fmt.Errorf("parse budget %s overall: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(cats), &b.CategoryBudgets); err != nil {
		return nil, fmt.Errorf("decode budget %s categories: %w", b.ID, err)
	}
	if b.CategoryBudgets == nil {
		b.CategoryBudgets = []core.CategoryBudget{}
	}
	return &b, nil
}

func (r *SQLiteRepository) SaveBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	cats, err := json.Marshal(b.CategoryBudgets)
	if err != nil {
		return core.Budget{}, fmt.Errorf("encode budget categories: %w", err)
	}
	if b.CategoryBudgets == nil {
		cats = []byte("[]")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, month, year, overall_budget, category_budgets)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, month, year) DO UPDATE SET
		   overall_budget = excluded.overall_budget,
		   category_budgets = excluded.category_budgets`,
		b.ID, b.UserID, b.Month, b.Year, b.OverallBudget.String(), string(cats))
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}

	saved, err := r.GetBudget(ctx, b.UserID, b.Month, b.Year)
	if err != nil {
		return core.Budget{}, err
	}
	if saved == nil {
		return core.Budget{}, fmt.Errorf("budget %s/%d-%d vanished after save", b.UserID, b.Year, b.Month)
	}
	slog.InfoContext(ctx, "Budget saved to SQLite", "id", saved.ID, "month", saved.Month, "year", saved.Year)
	return *saved, nil
}

// Summaries

const summaryColumns = `id, user_id, period_start, period_end, total_spend, total_transactions, top_categories, leaks, suggestions, created_at`

func (r *SQLiteRepository) AppendSummary(ctx context.Context, s core.AnalysisSummary) error {
	top, err := json.Marshal(nonNil(s.TopCategories))
	if err != nil {
		return fmt.Errorf("encode top categories: %w", err)
	}
	leaks, err := json.Marshal(nonNil(s.Leaks))
	if err != nil {
		return fmt.Errorf("encode leaks: %w", err)
	}
	suggestions, err := json.Marshal(nonNil(s.Suggestions))
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO summaries (`+summaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, formatTime(s.PeriodStart), formatTime(s.PeriodEnd), s.TotalSpend.String(),
		s.TotalTransactions, string(top), string(leaks), string(suggestions), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("append summary: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LatestSummary(ctx context.Context, userID string) (*core.AnalysisSummary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE user_id = ? ORDER BY seq DESC LIMIT 1`, userID)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) ListSummaries(ctx context.Context, userID string) ([]core.AnalysisSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := make([]core.AnalysisSummary, 0)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

func scanSummary(sc scanner) (core.AnalysisSummary, error) {
	var (
		s                          core.AnalysisSummary
		start, end, total, created string
		top, leaks, suggestions    string
	)
	if err := sc.Scan(&s.ID, &s.UserID, &start, &end, &total, &s.TotalTransactions,
		&top, &leaks, &suggestions, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scan summary: %w", err)
	}

	var err error
	if s.PeriodStart, err = parseTime(start); err != nil {
		return s, fmt.Errorf("parse summary %s start: %w", s.ID, err)
	}
	if s.PeriodEnd, err = parseTime(end); err != nil {
		return s, fmt.Errorf("parse summary %s end: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return s, fmt.Errorf("parse summary %s created_at: %w", s.ID, err)
	}
	if s.TotalSpend, err = decimal.NewFromString(total); err != nil {
		return s, fmt.Errorf("parse summary %s total: %w", s.ID, err)
	}
	if err := decodeJSON(top, &s.TopCategories); err != nil {
		return s, fmt.Errorf("decode summary %s categories: %w", s.ID, err)
	}
	if err := decodeJSON(leaks, &s.Leaks); err != nil {
		return s, fmt.Errorf("decode summary %s leaks: %w", s.ID, err)
	}
	if err := decodeJSON(suggestions, &s.Suggestions); err != nil {
		return s, fmt.Errorf("decode summary %s suggestions: %w", s.ID, err)
	}
	s.Leaks = nonNil(s.Leaks)
	s.Suggestions = nonNil(s.Suggestions)
	s.TopCategories = nonNil(s.TopCategories)
	return s, nil
}

// Users

const userColumns = `id, name, email, password_hash, household_id, streak_count, last_active_date`

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, core.NormalizeEmail(u.Email), u.PasswordHash, u.HouseholdID, u.StreakCount, u.LastActiveDate)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return core.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row, id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	email = core.NormalizeEmail(email)
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row, email)
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, password_hash = ?, household_id = ?, streak_count = ?, last_active_date = ?
		 WHERE id = ?`,
		u.Name, core.NormalizeEmail(u.Email), u.PasswordHash, u.HouseholdID, u.StreakCount, u.LastActiveDate, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update user: %w", err)
	} else if n == 0 {
		return fmt.Errorf("user %s: %w", u.ID, core.ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row, key string) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.HouseholdID, &u.StreakCount, &u.LastActiveDate)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// Ingest jobs

func (r *SQLiteRepository) SaveJob(ctx context.Context, j core.IngestJob) error {
	receipts, err := json.Marshal(nonNil(j.Receipts))
	if err != nil {
		return fmt.Errorf("encode job receipts: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ingest_jobs (id, user_id, source_type, raw_text, receipts, status, extracted, error, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status,
		   extracted = excluded.extracted,
		   error = excluded.error,
		   attempts = excluded.attempts,
		   receipts = excluded.receipts,
		   updated_at = excluded.updated_at`,
		j.ID, j.UserID, string(j.SourceType), j.RawText, string(receipts), string(j.Status),
		j.Extracted, j.Error, j.Attempts, formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

const jobColumns = `id, user_id, source_type, raw_text, receipts, status, extracted, error, attempts, created_at, updated_at`

func scanJob(row scanner) (core.IngestJob, error) {
	var (
		j                            core.IngestJob
		sourceType, status, receipts string
		created, updated             string
	)
	if err := row.Scan(&j.ID, &j.UserID, &sourceType, &j.RawText, &receipts, &status, &j.Extracted, &j.Error, &j.Attempts, &created, &updated); err != nil {
		return core.IngestJob{}, err
	}
	j.SourceType = core.SourceType(sourceType)
	j.Status = core.JobStatus(status)
	var err error
	if err = decodeJSON(receipts, &j.Receipts); err != nil {
		return core.IngestJob{}, fmt.Errorf("decode job %s receipts: %w", j.ID, err)
	}
	if j.CreatedAt, err = parseTime(created); err != nil {
		return core.IngestJob{}, fmt.Errorf("parse job %s created_at: %w", j.ID, err)
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return core.IngestJob{}, fmt.Errorf("parse job %s updated_at: %w", j.ID, err)
	}
	return j, nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (core.IngestJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.IngestJob{}, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.IngestJob{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ClaimJob is a compare-and-set on the job row; updated_at is compared as
// the exact stored text.
func (r *SQLiteRepository) ClaimJob(ctx context.Context, j core.IngestJob, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ? AND updated_at = ?`,
		string(core.JobRunning), formatTime(at),
		j.ID, string(j.Status), j.Attempts, formatTime(j.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context, limit int) ([]core.IngestJob, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE status IN (?, ?) ORDER BY created_at, id LIMIT ?`,
		string(core.JobPending), string(core.JobRunning), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	jobs := []core.IngestJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}
	return jobs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func decodeJSON(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
