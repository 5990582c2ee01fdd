package domain

import (
	"time" // Creation timestamps

	"github.com/google/uuid" // UUID primary keys
	"gorm.io/gorm"           // GORM ORM library
)

// User Model
type User struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"` // Primary key
	Username  string    `gorm:"unique;not null"`          // Unique username
	Password  string    `gorm:"not null"`                 // Hashed password
	Role      string    `gorm:"default:user"`             // Role: user or admin
	CreatedAt time.Time // Timestamp of registration
	Accounts  []Account `gorm:"foreignKey:UserID"` // One-to-many relationship with Account
}

// BeforeCreate assigns a UUID when none was set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New() // Generate a new UUID
	}
	return nil
}
