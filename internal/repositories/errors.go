package repositories

import (
	"errors"

	domainErrors "qrpay/internal/errors"
)

var (
	ErrRegistryNotFound = errors.New("qr registry entry not found")
	ErrWalletNotFound   = domainErrors.ErrWalletNotFound
)
