package payment

import (
	"errors"

	domainErrors "qrpay/internal/errors"
)

// Flow errors. The coded ones are shown to the payer as-is.
var (
	ErrSessionBusy        = domainErrors.ErrSessionBusy
	ErrNoDraft            = domainErrors.ErrNoDraft
	ErrSubmissionInFlight = domainErrors.ErrSubmissionInFlight
	ErrNotPayable         = domainErrors.ErrNotPayable
	ErrWalletFrozen       = domainErrors.ErrWalletFrozen
	ErrInvalidAmount      = domainErrors.ErrInvalidAmount
	ErrAmountRequired     = domainErrors.ErrAmountRequired
	ErrQuantityLimit      = domainErrors.ErrQuantityLimit

	ErrWalletNotLoaded = &domainErrors.DomainError{Code: "WALLET_NOT_LOADED", Message: "wallet balance is not available yet"}
	ErrAmountFixed     = &domainErrors.DomainError{Code: "AMOUNT_FIXED", Message: "this QR code has a fixed amount"}
	ErrNotTransport    = errors.New("quantity applies to transport payments only")
)
