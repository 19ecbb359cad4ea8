package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"r2r/internal/core"
	"r2r/internal/store"
)

// ChangeHook is told whose view of the transactions changed.
type ChangeHook func(userID, householdID string)

// TransactionService reads transactions with household visibility and
// applies the two permitted edits: the business flag and the category.
type TransactionService struct {
	txs      store.TransactionStore
	users    store.UserStore
	locks    *keyedMutex
	onChange ChangeHook
}

func NewTransactionService(txs store.TransactionStore, users store.UserStore) *TransactionService {
	return &TransactionService{txs: txs, users: users, locks: newKeyedMutex()}
}

// OnChange registers a hook run after every successful update.
func (s *TransactionService) OnChange(hook ChangeHook) {
	s.onChange = hook
}

// List returns the user's own transactions plus those tagged with the
// user's current household, in store order.
func (s *TransactionService) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	txs, err := s.txs.ListVisible(ctx, u.ID, u.HouseholdID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Recent returns the last n visible transactions, newest first.
func (s *TransactionService) Recent(ctx context.Context, userID string, n int) ([]core.Transaction, error) {
	txs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lastN(txs, n), nil
}

// Business returns the visible transactions flagged as business expenses.
func (s *TransactionService) Business(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []core.Transaction{}
	for _, t := range txs {
		if t.IsBusiness {
			out = append(out, t)
		}
	}
	return out, nil
}

// Update replaces the stored record with the same id.
func (s *TransactionService) Update(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	unlock := s.locks.Lock(tx.UserID)
	defer unlock()

	if err := s.txs.UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	s.changed(tx)
	return nil
}

// TransactionEdit changes one field of a transaction. An edit that returns
// an error aborts the whole Edit call before anything is written.
type TransactionEdit func(*core.Transaction) error

// ToggleBusiness flips the business flag.
func ToggleBusiness() TransactionEdit {
	return func(t *core.Transaction) error {
		t.IsBusiness = !t.IsBusiness
		return nil
	}
}

// SetBusiness sets the business flag explicitly.
func SetBusiness(business bool) TransactionEdit {
	return func(t *core.Transaction) error {
		t.IsBusiness = business
		return nil
	}
}

// CorrectCategory moves a transaction to another known category.
func CorrectCategory(category string) TransactionEdit {
	category = strings.TrimSpace(category)
	return func(t *core.Transaction) error {
		if !core.IsCategory(category) {
			return &core.ValidationError{Field: "category", Err: core.ErrUnknownCategory}
		}
		t.Category = category
		return nil
	}
}

// Edit applies edits in order to a transaction visible to userID and
// persists the result in one write.
func (s *TransactionService) Edit(ctx context.Context, userID, id string, edits ...TransactionEdit) (core.Transaction, error) {
	if len(edits) == 0 {
		return core.Transaction{}, &core.ValidationError{Field: "edits", Err: errors.New("nothing to update")}
	}
	return s.mutate(ctx, userID, id, func(t *core.Transaction) error {
		for _, edit := range edits {
			if err := edit(t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *TransactionService) mutate(ctx context.Context, userID, id string, apply func(*core.Transaction) error) (core.Transaction, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load user: %w", err)
	}

	tx, err := s.txs.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if !tx.VisibleTo(u.ID, u.HouseholdID) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}

	unlock := s.locks.Lock(tx.UserID)
	defer unlock()

	// Re-read under the owner's lock so concurrent edits never drop each other.
	tx, err = s.txs.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if err := apply(&tx); err != nil {
		return core.Transaction{}, err
	}
	if err := s.txs.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", tx.ID,
		"user_id", userID,
		"category", tx.Category,
		"is_business", tx.IsBusiness)

	s.changed(tx)
	return tx, nil
}

func (s *TransactionService) changed(tx core.Transaction) {
	if s.onChange != nil {
		s.onChange(tx.UserID, tx.HouseholdID)
	}
}

// lastN returns up to n trailing elements in reverse order.
func lastN(txs []core.Transaction, n int) []core.Transaction {
	if n <= 0 || len(txs) == 0 {
		return []core.Transaction{}
	}
	if len(txs) > n {
		txs = txs[len(txs)-n:]
	}
	out := slices.Clone(txs)
	slices.Reverse(out)
	return out
}

// tail returns up to n trailing elements in store order.
func tail(txs []core.Transaction, n int) []core.Transaction {
	if len(txs) > n {
		return txs[len(txs)-n:]
	}
	return txs
}
