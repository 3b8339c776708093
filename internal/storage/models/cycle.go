// internal/storage/models/cycle.go
package models

import "time"

// CycleRun is one scheduler wake and what it did to the airdrop cycle.
type CycleRun struct {
	BaseModel
	CycleTime      int64     `gorm:"index;not null" json:"cycle_time"` // next_airdrop_time at wake
	Outcome        string    `gorm:"index;not null;type:varchar(20)" json:"outcome"`
	Candidates     int       `gorm:"default:0" json:"candidates"`
	Winner         string    `gorm:"type:varchar(44)" json:"winner,omitempty"`
	TokenAccount   string    `gorm:"type:varchar(44)" json:"token_account,omitempty"`
	Amount         uint64    `gorm:"default:0" json:"amount"`
	Signature      string    `gorm:"type:varchar(128)" json:"signature,omitempty"`
	ResetSignature string    `gorm:"type:varchar(128)" json:"reset_signature,omitempty"`
	ErrorMessage   string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt      time.Time `gorm:"not null" json:"started_at"`
	ExecutionTime  float64   `gorm:"type:decimal(10,3)" json:"execution_ms"` // миллисекунды
}
