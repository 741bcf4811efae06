package wallet

import "errors"

var (
	ErrRefreshFailed  = errors.New("wallet refresh failed")
	ErrInvalidPayerID = errors.New("payer id is required")
)
