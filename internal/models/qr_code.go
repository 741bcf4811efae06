package models

import (
	"time"
)

// Registry entry kinds
const (
	RegistryKindTransport = "transport"
	RegistryKindMerchant  = "merchant"
)

// QRRegistryEntry is one issued, scannable payment code.
type QRRegistryEntry struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	Kind         string `gorm:"not null;index:idx_qr_registry_owner"`
	OwnerID      string `gorm:"not null;index:idx_qr_registry_owner"`
	RouteName    string
	VehicleType  string
	PerRiderFare Money `gorm:"not null;default:0"`
	BusinessName string
	FixedAmount  *Money
	Active       bool `gorm:"not null;default:true"`
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (QRRegistryEntry) TableName() string {
	return "qr_registry"
}

// IsExpired reports whether the entry has passed its expiry at now.
func (e *QRRegistryEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
