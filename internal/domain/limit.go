package domain

import (
	"time" // Limit timestamps

	"github.com/google/uuid"        // UUID primary keys
	"github.com/shopspring/decimal" // Exact decimal caps
	"gorm.io/gorm"                  // GORM ORM library
)

// Limit Model. At most one active limit per account: the monthly spending
// cap above which transfers are charged an overage fee.
type Limit struct {
	ID          uuid.UUID       `gorm:"type:char(36);primaryKey"`           // Primary key
	AccountID   uuid.UUID       `gorm:"type:char(36);uniqueIndex;not null"` // Foreign key to Account (one limit per account)
	LimitAmount decimal.Decimal `gorm:"type:decimal(19,4);not null"`        // Monthly spending cap
	CurrencyID  int             `gorm:"not null"`                           // Foreign key to Currency
	CreatedAt   time.Time       // Timestamp of creation
	UpdatedAt   time.Time       // Timestamp of the last cap change
}

// BeforeCreate assigns a UUID when none was set
func (l *Limit) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New() // Generate a new UUID
	}
	return nil
}

// LimitChange Model. Append-only audit entry written whenever a limit is
// created or its cap updated.
type LimitChange struct {
	ID          uuid.UUID       `gorm:"type:char(36);primaryKey"`     // Primary key
	LimitID     uuid.UUID       `gorm:"type:char(36);index;not null"` // Foreign key to Limit
	LimitAmount decimal.Decimal `gorm:"type:decimal(19,4);not null"`  // The cap after the change
	SetAt       time.Time       `gorm:"not null"`                     // Timestamp of the change
}

// BeforeCreate assigns a UUID when none was set
func (c *LimitChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New() // Generate a new UUID
	}
	return nil
}
