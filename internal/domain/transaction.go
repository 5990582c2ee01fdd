package domain

import (
	"time" // Transaction timestamps

	"github.com/google/uuid"        // UUID primary keys
	"github.com/shopspring/decimal" // Exact decimal amounts
	"gorm.io/gorm"                  // GORM ORM library
)

// Transaction Model. Immutable ledger entry: a negative amount is a debit,
// a positive amount a credit. Two entries are written per transfer (debit on
// sender, credit on receiver), one per deposit. FeeApplied marks the sender
// entry of a transfer that exceeded the monthly limit; FeeAmount carries the
// exact fee debited on top of Amount.
type Transaction struct {
	ID              uuid.UUID       `gorm:"type:char(36);primaryKey"`     // Primary key
	AccountID       uuid.UUID       `gorm:"type:char(36);index;not null"` // Foreign key to Account
	Amount          decimal.Decimal `gorm:"type:decimal(19,4);not null"`  // Signed amount: negative = debit, positive = credit
	CurrencyID      int             `gorm:"not null"`                     // Foreign key to Currency
	TransactionDate time.Time       `gorm:"index;not null"`               // Timestamp of the movement
	Description     string          // Free-text description
	FeeApplied      bool            `gorm:"not null;default:false"` // Whether an over-limit fee was levied
	FeeAmount       decimal.Decimal `gorm:"type:decimal(19,4)"`     // Fee debited in addition to Amount
}

// BeforeCreate assigns a UUID when none was set
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New() // Generate a new UUID
	}
	return nil
}
