package ledger

import (
	"context" // Request-scoped calls
	"time"    // Calendar month boundary

	"bank_ledger/internal/domain" // Domain models

	"github.com/google/uuid"        // Account identifiers
	"github.com/shopspring/decimal" // Exact decimal arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
)

// feeRate is the overage fee levied on the full transfer amount once the
// monthly spending cap is exceeded.
var feeRate = decimal.RequireFromString("0.05")

// CheckResult is the outcome of a limit check before a transfer.
type CheckResult struct {
	CanProceed  bool            `json:"can_proceed"`  // Always true: exceeding the limit costs a fee, it does not block
	RequiresFee bool            `json:"requires_fee"` // Whether the transfer would be charged the overage fee
	FeeAmount   decimal.Decimal `json:"fee_amount"`   // The fee, rounded to the currency's minor units
}

// LimitEngine computes monthly spending limits and overage fees. The clock
// is injectable so tests can pin the calendar month boundary.
type LimitEngine struct {
	clock func() time.Time
}

// NewLimitEngine returns an engine using the given clock (nil means time.Now).
func NewLimitEngine(clock func() time.Time) *LimitEngine {
	if clock == nil {
		clock = time.Now
	}
	return &LimitEngine{clock: clock}
}

// monthStart returns local midnight on day 1 of now's month.
func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// Check is the read-only limit check for a pending transfer of amount from
// accountID. Without a limit the transfer proceeds free of charge. With one,
// remaining = cap - debits since the first instant of the current calendar
// month; a transfer above the remaining headroom is charged 5% of the full
// amount, rounded to the account currency's minor units. CanProceed is true
// either way: the fee, not a hard block, enforces the limit.
func (e *LimitEngine) Check(ctx context.Context, st Store, accountID uuid.UUID, amount decimal.Decimal) (CheckResult, error) {
	limit, err := st.Limits().ForAccount(ctx, accountID)
	if err != nil {
		return CheckResult{}, err
	}
	if limit == nil {
		return CheckResult{CanProceed: true, FeeAmount: decimal.Zero}, nil
	}

	spent, err := st.Transactions().TotalSpent(ctx, accountID, monthStart(e.clock()))
	if err != nil {
		return CheckResult{}, err
	}
	remaining := limit.LimitAmount.Sub(spent)
	if amount.LessThanOrEqual(remaining) {
		return CheckResult{CanProceed: true, FeeAmount: decimal.Zero}, nil
	}

	account, err := st.Accounts().Get(ctx, accountID)
	if err != nil {
		return CheckResult{}, err
	}
	currency, err := st.Currencies().Get(ctx, account.CurrencyID)
	if err != nil {
		return CheckResult{}, err
	}
	fee := amount.Mul(feeRate).Round(currency.MinorUnits)
	// Log the overage with context
	logrus.WithFields(logrus.Fields{
		"account_id": accountID, // Account being checked
		"amount":     amount,    // Pending transfer amount
		"remaining":  remaining, // Headroom left under the cap
		"fee":        fee,       // Fee to be levied
	}).Warn("Monthly limit exceeded, fee applies")
	return CheckResult{CanProceed: true, RequiresFee: true, FeeAmount: fee}, nil
}

// Set creates or updates the spending limit for accountID. The account's
// exclusive lock is taken so the spend-to-date read stays accurate while the
// new cap is validated: a cap below the amount already spent this calendar
// month is rejected with InvalidState. Every accepted change appends a
// LimitChange audit record.
func (e *LimitEngine) Set(ctx context.Context, st Store, accountID uuid.UUID, newCap decimal.Decimal, currencyID int) (*domain.Limit, error) {
	var result *domain.Limit
	err := st.Atomic(ctx, func(tx Store) error {
		if _, err := tx.Accounts().GetForUpdate(ctx, accountID); err != nil {
			return err
		}
		if _, err := tx.Currencies().Get(ctx, currencyID); err != nil {
			return err
		}

		spent, err := tx.Transactions().TotalSpent(ctx, accountID, monthStart(e.clock()))
		if err != nil {
			return err
		}
		if newCap.LessThan(spent) {
			return domain.E(domain.KindInvalidState, "limit cannot be set below the amount already spent this month")
		}

		limit, err := tx.Limits().ForAccount(ctx, accountID)
		if err != nil {
			return err
		}
		now := e.clock()
		if limit == nil {
			// First limit for this account; the store assigns the ID
			limit = &domain.Limit{
				AccountID:   accountID,
				LimitAmount: newCap,
				CurrencyID:  currencyID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		} else {
			// Update the cap in place
			limit.LimitAmount = newCap
			limit.CurrencyID = currencyID
			limit.UpdatedAt = now
		}
		if err := tx.Limits().Save(ctx, limit); err != nil {
			return err
		}
		// Record the change in the audit history
		change := &domain.LimitChange{LimitID: limit.ID, LimitAmount: newCap, SetAt: now}
		if err := tx.Limits().AppendChange(ctx, change); err != nil {
			return err
		}
		result = limit
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Log the accepted limit change
	logrus.WithFields(logrus.Fields{
		"account_id": accountID, // Account the cap applies to
		"cap":        newCap,    // New monthly cap
	}).Info("Spending limit set")
	return result, nil
}
