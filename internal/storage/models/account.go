// internal/storage/models/account.go
package models

import "time"

// Account is one ledger account row. Address is the base58 public key.
type Account struct {
	Address   string    `gorm:"primaryKey;type:varchar(44)"`
	Owner     string    `gorm:"index;not null;type:varchar(44)"`
	Lamports  uint64    `gorm:"not null"`
	Data      []byte    `gorm:"not null"`
	Slot      uint64    `gorm:"index;not null"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// LedgerHead records the last committed slot. There is a single row.
type LedgerHead struct {
	ID        uint   `gorm:"primarykey"`
	Slot      uint64 `gorm:"not null"`
	UpdatedAt time.Time
}
