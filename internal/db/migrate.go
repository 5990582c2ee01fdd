package db

import (
	"bank_ledger/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/clause"  // Upsert clause for seeding
)

// seedCurrencies is the initial content of the currency registry
var seedCurrencies = []domain.Currency{
	{ID: 1, Code: "RUB", MinorUnits: 2}, // Russian ruble
	{ID: 2, Code: "USD", MinorUnits: 2}, // US dollar
	{ID: 3, Code: "EUR", MinorUnits: 2}, // Euro
}

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err = db.AutoMigrate(
		&domain.User{},
		&domain.Currency{},
		&domain.Account{},
		&domain.Transaction{},
		&domain.Limit{},
		&domain.LimitChange{},
	)
	if err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	// Seed the currency registry; existing rows are left untouched
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seedCurrencies).Error; err != nil {
		logrus.Fatalf("currency seeding failed: %v", err) // Log fatal error if seeding fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}
