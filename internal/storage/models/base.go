// internal/storage/models/base.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel заменяет gorm.Model: те же колонки, но с JSON-тегами для выгрузки
type BaseModel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
