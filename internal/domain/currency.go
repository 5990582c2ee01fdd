package domain

// Currency Model. Registry of currencies addressable by small integer IDs.
// MinorUnits drives rounding of computed amounts (2 for RUB/USD/EUR, 0 for JPY).
type Currency struct {
	ID         int    `gorm:"primaryKey"`             // Small integer identifier
	Code       string `gorm:"size:3;unique;not null"` // ISO 4217 code
	MinorUnits int32  `gorm:"not null"`               // Decimal places of the minor unit
}
