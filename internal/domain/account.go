package domain

import (
	"time" // Creation timestamps

	"github.com/google/uuid"        // UUID primary keys
	"github.com/shopspring/decimal" // Exact decimal balances
	"gorm.io/gorm"                  // GORM ORM library
)

// Account Model. Balance is mutated only by the ledger service while the
// account's exclusive lock is held; it is never written negative.
type Account struct {
	ID         uuid.UUID       `gorm:"type:char(36);primaryKey"`        // Primary key
	UserID     uuid.UUID       `gorm:"type:char(36);index;not null"`    // Foreign key to User (owner)
	CurrencyID int             `gorm:"not null"`                        // Foreign key to Currency
	Balance    decimal.Decimal `gorm:"type:decimal(19,4);not null"`     // Account balance
	CreatedAt  time.Time       `gorm:"not null"`                        // Timestamp of creation
}

// BeforeCreate assigns a UUID when none was set
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New() // Generate a new UUID
	}
	return nil
}
