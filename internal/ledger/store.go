// Package ledger implements the transfer engine: account storage with
// exclusive per-account locking, monthly spending limits with overage fees,
// the append-only transaction log, and the orchestrator that moves money
// between accounts as one atomic unit.
package ledger

import (
	"context" // Cancellation and lock-wait deadlines
	"time"    // Time-window queries

	"bank_ledger/internal/domain" // Domain models

	"github.com/google/uuid"        // Account identifiers
	"github.com/shopspring/decimal" // Exact decimal amounts
)

// AccountStore is the durable mapping of account ID to balance and currency.
type AccountStore interface {
	// Get returns the account or a NotFound error. The returned value is a
	// copy; mutating it has no effect until Save.
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// GetForUpdate returns the account under its exclusive per-row lock.
	// The lock is held until the enclosing atomic unit ends; contending
	// callers block. Callers locking two accounts must do so in ascending
	// ID order.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// Save persists the full account state. Mutations after a GetForUpdate
	// must be saved while the lock is still held.
	Save(ctx context.Context, account *domain.Account) error

	// Create inserts a new account.
	Create(ctx context.Context, account *domain.Account) error
}

// TransactionLog is the append-only record of monetary movements.
type TransactionLog interface {
	// Append inserts a single immutable entry.
	Append(ctx context.Context, entry *domain.Transaction) error

	// ExpensesForAccount returns the account's debit entries (amount < 0),
	// newest first.
	ExpensesForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)

	// FeeTransactionsForAccount returns entries that carried an over-limit
	// fee, matched by the FeeApplied marker, newest first.
	FeeTransactionsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)

	// TotalSpent returns the positive magnitude of the account's debits
	// from since to now; zero when there are none.
	TotalSpent(ctx context.Context, accountID uuid.UUID, since time.Time) (decimal.Decimal, error)

	// List returns a page of all entries, newest first, with the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Transaction, int64, error)
}

// LimitStore holds at most one spending limit per account plus the
// append-only history of cap changes.
type LimitStore interface {
	// ForAccount returns the account's limit, or nil when none is set.
	ForAccount(ctx context.Context, accountID uuid.UUID) (*domain.Limit, error)

	// Save creates or updates the limit.
	Save(ctx context.Context, limit *domain.Limit) error

	// AppendChange records a cap change in the audit history.
	AppendChange(ctx context.Context, change *domain.LimitChange) error
}

// UserStore resolves user references; the engine only checks existence.
type UserStore interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CurrencyStore resolves currency identifiers from the external registry.
type CurrencyStore interface {
	// Get returns the currency or a NotFound error.
	Get(ctx context.Context, id int) (*domain.Currency, error)
}

// Store bundles the collaborating stores and provides the atomic unit.
// Implementations: GormStore (MySQL row locks inside a REPEATABLE READ
// transaction) and MemStore (explicit per-account lock manager with staged
// writes).
type Store interface {
	Accounts() AccountStore
	Transactions() TransactionLog
	Limits() LimitStore
	Users() UserStore
	Currencies() CurrencyStore

	// Atomic runs fn as one atomic unit: every mutation made through the
	// Store passed to fn is committed together, or not at all when fn
	// returns an error. Exclusive locks taken inside fn are released when
	// the unit ends. Reads inside the unit observe a consistent snapshot.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
