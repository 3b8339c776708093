// internal/storage/models/transaction.go
package models

import "time"

// Transaction is the receipt of one committed ledger transaction.
type Transaction struct {
	BaseModel
	Signature string    `gorm:"unique;not null;type:varchar(128)"`
	Slot      uint64    `gorm:"index;not null"`
	BlockTime time.Time `gorm:"index"`
	Events    string    `gorm:"type:text"` // через запятую, в порядке эмиссии
	Logs      string    `gorm:"type:text"`
}
