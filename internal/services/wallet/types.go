package wallet

import (
	"context"
	"time"

	"qrpay/internal/models"
)

// Snapshot is a cached read of payer eligibility.
type Snapshot struct {
	Balance   models.Money `json:"balance"`
	IsFrozen  bool         `json:"isFrozen"`
	Currency  string       `json:"currency"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// Reader fetches the backend wallet of a user.
type Reader interface {
	GetByUserID(ctx context.Context, userID string) (*models.Wallet, error)
}
