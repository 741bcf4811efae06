package errors

var (
	ErrQRInactive = &DomainError{
		Code:    "QR_INACTIVE",
		Message: "QR code is not active",
	}
	ErrQRExpired = &DomainError{
		Code:    "QR_EXPIRED",
		Message: "QR code has expired",
	}
	ErrInvalidQR = &DomainError{
		Code:    "INVALID_QR",
		Message: "invalid QR code",
	}
	ErrQRNotFound = &DomainError{
		Code:    "QR_NOT_FOUND",
		Message: "QR code is not registered",
	}
	ErrUnrecognizedQR = &DomainError{
		Code:    "UNRECOGNIZED_QR",
		Message: "QR code is not a payment code",
	}
)
