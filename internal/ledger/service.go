package ledger

import (
	"bytes"   // Fixed lock ordering by ID bytes
	"context" // Request-scoped operations
	"time"    // Entry timestamps

	"bank_ledger/internal/domain" // Domain models

	"github.com/google/uuid"        // Identifiers
	"github.com/shopspring/decimal" // Exact decimal amounts
	"github.com/sirupsen/logrus"    // Structured logging
)

// Service orchestrates money movements. It is the sole mutator path for
// account balances: every transfer or deposit runs as one atomic unit that
// locks the accounts involved, consults the limit engine, mutates balances
// and appends ledger entries, committing all of it or none of it.
type Service struct {
	store  Store
	limits *LimitEngine
	clock  func() time.Time
}

// NewService builds a Service over the given store.
func NewService(store Store) *Service {
	return NewServiceWithClock(store, time.Now)
}

// NewServiceWithClock builds a Service with an injected clock; tests use it
// to pin timestamps and the calendar month boundary.
func NewServiceWithClock(store Store, clock func() time.Time) *Service {
	return &Service{store: store, limits: NewLimitEngine(clock), clock: clock}
}

// CreateAccount opens a zero-balance account for userID in the given
// currency. The owning user and the currency must exist.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID, currencyID int) (*domain.Account, error) {
	exists, err := s.store.Users().Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.E(domain.KindNotFound, "user not found")
	}
	if _, err := s.store.Currencies().Get(ctx, currencyID); err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:         uuid.New(),
		UserID:     userID,
		CurrencyID: currencyID,
		Balance:    decimal.Zero, // Accounts always open empty
		CreatedAt:  s.clock(),
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}
	// Log account creation
	logrus.WithFields(logrus.Fields{
		"user_id":     userID,     // Owner
		"account_id":  account.ID, // New account
		"currency_id": currencyID, // Account currency
	}).Info("Account created")
	return account, nil
}

// Deposit credits amount to accountID under the account's exclusive lock
// and appends a single credit ledger entry. The caller must own the account.
func (s *Service) Deposit(ctx context.Context, userID, accountID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.E(domain.KindInvalidArgument, "deposit amount must be greater than 0")
	}

	var result *domain.Account
	err := s.store.Atomic(ctx, func(tx Store) error {
		account, err := tx.Accounts().GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.UserID != userID {
			return domain.E(domain.KindForbidden, "you do not own this account")
		}

		account.Balance = account.Balance.Add(amount)
		if err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}
		entry := &domain.Transaction{
			AccountID:       accountID,
			Amount:          amount,
			CurrencyID:      account.CurrencyID,
			TransactionDate: s.clock(),
			Description:     "Deposit",
		}
		if err := tx.Transactions().Append(ctx, entry); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		// Log the failure with context
		logrus.WithFields(logrus.Fields{
			"user_id":    userID,      // Depositor
			"account_id": accountID,   // Target account
			"amount":     amount,      // Deposit amount
			"error":      err.Error(), // Error message
		}).Error("Deposit failed")
		return nil, err
	}
	// Log successful deposit
	logrus.WithFields(logrus.Fields{
		"user_id":    userID,         // Depositor
		"account_id": accountID,      // Target account
		"amount":     amount,         // Deposit amount
		"balance":    result.Balance, // New balance
	}).Info("Deposit transaction")
	return result, nil
}

// Transfer moves amount from senderAccountID to receiverAccountID on behalf
// of senderUserID. Validation happens before any lock; the authoritative
// balance check happens under both account locks against the fee-inflated
// debit. The receiver is credited exactly amount; the overage fee, when the
// sender's monthly limit is exceeded, is debited on top and recorded on the
// sender's ledger entry.
func (s *Service) Transfer(ctx context.Context, senderUserID, senderAccountID, receiverAccountID uuid.UUID, amount decimal.Decimal) error {
	if err := s.validateTransfer(ctx, senderUserID, senderAccountID, receiverAccountID, amount); err != nil {
		return err
	}

	err := s.store.Atomic(ctx, func(tx Store) error {
		// Lock both accounts in ascending ID order regardless of role so two
		// opposite-direction transfers can never form a lock cycle.
		firstID, secondID := lockOrder(senderAccountID, receiverAccountID)
		first, err := tx.Accounts().GetForUpdate(ctx, firstID)
		if err != nil {
			return err
		}
		second, err := tx.Accounts().GetForUpdate(ctx, secondID)
		if err != nil {
			return err
		}
		sender, receiver := first, second
		if sender.ID != senderAccountID {
			sender, receiver = second, first
		}

		check, err := s.limits.Check(ctx, tx, senderAccountID, amount)
		if err != nil {
			return err
		}
		finalDebit := amount
		if check.RequiresFee {
			finalDebit = finalDebit.Add(check.FeeAmount)
		}

		// Authoritative balance check, under lock, against the fee-inflated
		// debit.
		if sender.Balance.LessThan(finalDebit) {
			return domain.E(domain.KindInsufficientFunds, "insufficient funds")
		}

		sender.Balance = sender.Balance.Sub(finalDebit)
		receiver.Balance = receiver.Balance.Add(amount)
		if err := tx.Accounts().Save(ctx, sender); err != nil {
			return err
		}
		if err := tx.Accounts().Save(ctx, receiver); err != nil {
			return err
		}

		now := s.clock()
		debit := &domain.Transaction{
			AccountID:       senderAccountID,
			Amount:          amount.Neg(),
			CurrencyID:      sender.CurrencyID,
			TransactionDate: now,
			Description:     "Transfer to account " + receiverAccountID.String(),
			FeeApplied:      check.RequiresFee,
			FeeAmount:       check.FeeAmount,
		}
		credit := &domain.Transaction{
			AccountID:       receiverAccountID,
			Amount:          amount,
			CurrencyID:      receiver.CurrencyID,
			TransactionDate: now,
			Description:     "Transfer from account " + senderAccountID.String(),
		}
		if err := tx.Transactions().Append(ctx, debit); err != nil {
			return err
		}
		return tx.Transactions().Append(ctx, credit)
	})
	if err != nil {
		// Log the failure with context
		logrus.WithFields(logrus.Fields{
			"sender_user_id":      senderUserID,      // Sender user
			"sender_account_id":   senderAccountID,   // Debited account
			"receiver_account_id": receiverAccountID, // Credited account
			"amount":              amount,            // Transfer amount
			"error":               err.Error(),       // Error message
		}).Error("Transfer failed")
		return err
	}
	// Log successful transfer
	logrus.WithFields(logrus.Fields{
		"sender_user_id":      senderUserID,      // Sender user
		"sender_account_id":   senderAccountID,   // Debited account
		"receiver_account_id": receiverAccountID, // Credited account
		"amount":              amount,            // Transfer amount
	}).Info("Transfer transaction")
	return nil
}

// validateTransfer runs the pre-lock checks: positive amount, distinct
// existing accounts, sender ownership, matching currencies and a fast-fail
// balance pre-check (re-verified later under lock).
func (s *Service) validateTransfer(ctx context.Context, senderUserID, senderAccountID, receiverAccountID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.E(domain.KindInvalidArgument, "transfer amount must be greater than 0")
	}
	if senderAccountID == receiverAccountID {
		return domain.E(domain.KindInvalidArgument, "cannot transfer to the same account")
	}
	sender, err := s.store.Accounts().Get(ctx, senderAccountID)
	if err != nil {
		return notFoundAs(err, "sender account not found")
	}
	receiver, err := s.store.Accounts().Get(ctx, receiverAccountID)
	if err != nil {
		return notFoundAs(err, "receiver account not found")
	}
	if sender.UserID != senderUserID {
		return domain.E(domain.KindForbidden, "you do not own this account")
	}
	if sender.CurrencyID != receiver.CurrencyID {
		return domain.E(domain.KindInvalidArgument, "transfer requires both accounts to use the same currency")
	}
	if sender.Balance.LessThan(amount) {
		return domain.E(domain.KindInsufficientFunds, "insufficient funds")
	}
	return nil
}

// CheckTransfer reports whether a transfer of amount from accountID would
// require an overage fee, without moving any money.
func (s *Service) CheckTransfer(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (CheckResult, error) {
	if _, err := s.store.Accounts().Get(ctx, accountID); err != nil {
		return CheckResult{}, err
	}
	return s.limits.Check(ctx, s.store, accountID, amount)
}

// SetLimit creates or updates the monthly spending cap for accountID.
func (s *Service) SetLimit(ctx context.Context, accountID uuid.UUID, capAmount decimal.Decimal, currencyID int) (*domain.Limit, error) {
	return s.limits.Set(ctx, s.store, accountID, capAmount, currencyID)
}

// ExpenseTransactions returns the account's debit entries, newest first.
func (s *Service) ExpenseTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.store.Accounts().Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Transactions().ExpensesForAccount(ctx, accountID)
}

// ExceededLimitTransactions returns the account's fee-bearing entries,
// newest first.
func (s *Service) ExceededLimitTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.store.Accounts().Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Transactions().FeeTransactionsForAccount(ctx, accountID)
}

// ListTransactions returns a page of the full ledger, newest first, with the
// total entry count.
func (s *Service) ListTransactions(ctx context.Context, offset, limit int) ([]domain.Transaction, int64, error) {
	return s.store.Transactions().List(ctx, offset, limit)
}

// lockOrder returns the two IDs in their fixed global acquisition order.
func lockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// notFoundAs keeps NotFound errors but gives them a role-specific message.
func notFoundAs(err error, message string) error {
	if domain.KindOf(err) == domain.KindNotFound {
		return domain.E(domain.KindNotFound, message)
	}
	return err
}
