package models

// Settlement RPC names exposed by the backend.
const (
	SettlementProcTransport = "process_transport_payment"
	SettlementProcMerchant  = "process_merchant_payment"
)

// SettlementRow is the single row returned by the settlement procedures.
type SettlementRow struct {
	Success       bool   `gorm:"column:success"`
	Message       string `gorm:"column:message"`
	ErrorCode     string `gorm:"column:error_code"`
	TransactionID string `gorm:"column:transaction_id"`
}

// TransportPaymentRequest pays a driver for one or more riders.
type TransportPaymentRequest struct {
	RequestID  string
	PayerID    string
	DriverID   string
	RegistryID string
	Amount     Money
	Quantity   int
}

// MerchantPaymentRequest pays a merchant a single amount.
type MerchantPaymentRequest struct {
	RequestID  string
	PayerID    string
	MerchantID string
	Amount     Money
}
