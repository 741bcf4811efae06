package errors

var (
	ErrSessionBusy = &DomainError{
		Code:    "SESSION_BUSY",
		Message: "a payment is already in progress",
	}
	ErrNoDraft = &DomainError{
		Code:    "NO_DRAFT",
		Message: "no payment is being drafted",
	}
	ErrSubmissionInFlight = &DomainError{
		Code:    "SUBMISSION_IN_FLIGHT",
		Message: "payment is being submitted",
	}
	ErrAmountRequired = &DomainError{
		Code:    "AMOUNT_REQUIRED",
		Message: "enter an amount to pay",
	}
	ErrQuantityLimit = &DomainError{
		Code:    "QUANTITY_LIMIT",
		Message: "too many riders for one payment",
	}
	ErrNotPayable = &DomainError{
		Code:    "NOT_PAYABLE",
		Message: "QR code cannot be paid",
	}
	ErrSettlementTimeout = &DomainError{
		Code:    "SETTLEMENT_TIMEOUT",
		Message: "payment request timed out",
	}
	ErrDuplicateRequest = &DomainError{
		Code:    "DUPLICATE_REQUEST",
		Message: "payment request was already submitted",
	}
)
