package models

import (
	"time"
)

type Wallet struct {
	ID        uint   `gorm:"primarykey"`
	UserID    string `gorm:"uniqueIndex;not null"`
	Balance   Money  `gorm:"default:0"`
	Currency  string `gorm:"default:'IDR'"`
	IsFrozen  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
