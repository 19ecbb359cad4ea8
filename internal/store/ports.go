// Package store declares the record store ports. Services depend on these
// interfaces only; memory and SQLite implementations live elsewhere.
package store

import (
	"context"
	"time"

	"r2r/internal/core"
)

type (
	TransactionStore interface {
		// ListVisible returns, in store order, the transactions owned by
		// userID plus those tagged with householdID when it is non-empty.
		ListVisible(ctx context.Context, userID, householdID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		AppendTransactions(ctx context.Context, txs []core.Transaction) error
		// UpdateTransaction replaces the record with the same id, or
		// returns core.ErrNotFound.
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
	}

	BudgetStore interface {
		// GetBudget returns nil when no budget exists for the month.
		GetBudget(ctx context.Context, userID string, month, year int) (*core.Budget, error)
		// SaveBudget upserts on (userID, month, year) and returns the stored record.
		SaveBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	}

	SummaryStore interface {
		AppendSummary(ctx context.Context, s core.AnalysisSummary) error
		// LatestSummary returns the most recently appended summary of the
		// user, or nil when there is none.
		LatestSummary(ctx context.Context, userID string) (*core.AnalysisSummary, error)
		ListSummaries(ctx context.Context, userID string) ([]core.AnalysisSummary, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
	}

	JobStore interface {
		// SaveJob inserts or replaces the job with the same id.
		SaveJob(ctx context.Context, j core.IngestJob) error
		GetJob(ctx context.Context, id string) (core.IngestJob, error)
		// ListPendingJobs returns up to limit unfinished (pending or running)
		// jobs, oldest first.
		ListPendingJobs(ctx context.Context, limit int) ([]core.IngestJob, error)
		// ClaimJob marks j running with one more attempt, stamped at, only if
		// the stored job still has j's status, attempts and UpdatedAt. It
		// reports whether the claim won.
		ClaimJob(ctx context.Context, j core.IngestJob, at time.Time) (bool, error)
	}

	// Store bundles every port for backends that implement all of them.
	Store interface {
		TransactionStore
		BudgetStore
		SummaryStore
		UserStore
		JobStore
		Close() error
	}
)
