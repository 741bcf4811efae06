package payment

import (
	"context"

	"qrpay/internal/models"
	"qrpay/internal/services/history"
	"qrpay/internal/services/qr"
	"qrpay/internal/services/wallet"
)

type State string

const (
	StateIdle       State = "idle"
	StateDrafting   State = "drafting"
	StateSubmitting State = "submitting"
	StateSettled    State = "settled"
	StateRejected   State = "rejected"
)

// Settlement is the backend transactional service that moves funds.
type Settlement interface {
	SubmitTransportPayment(ctx context.Context, req models.TransportPaymentRequest) (*models.SettlementRow, error)
	SubmitMerchantPayment(ctx context.Context, req models.MerchantPaymentRequest) (*models.SettlementRow, error)
}

// WalletCache is the read/refresh view of the payer's balance.
type WalletCache interface {
	Refresh(ctx context.Context) (wallet.Snapshot, error)
	Current() (wallet.Snapshot, bool)
}

// History receives the final outcome of a scan.
type History interface {
	Resolve(id string, outcome history.Outcome, reason string) bool
}

// PendingPayment is the editable draft of one payment. Total is always derived.
type PendingPayment struct {
	ScanID        string        `json:"scanId"`
	Payload       qr.Payload    `json:"payload"`
	Quantity      int           `json:"quantity,omitempty"`
	EnteredAmount *models.Money `json:"enteredAmount,omitempty"`
}

// Total is perRiderFare * quantity for transport and enteredAmount ?? fixedAmount for merchants.
func (p PendingPayment) Total() models.Money {
	switch p.Payload.Kind {
	case qr.KindTransport:
		total, ok := p.Payload.Transport.PerRiderFare.Mul(p.Quantity)
		if !ok {
			return 0
		}
		return total
	case qr.KindMerchant:
		if p.EnteredAmount != nil {
			return *p.EnteredAmount
		}
		if p.Payload.Merchant.FixedAmount != nil {
			return *p.Payload.Merchant.FixedAmount
		}
	}
	return 0
}

// AmountRequired reports whether the payer must type the amount.
func (p PendingPayment) AmountRequired() bool {
	return p.Payload.Kind == qr.KindMerchant && p.Payload.Merchant.FixedAmount == nil
}

// DraftView is what the confirmation dialog renders.
type DraftView struct {
	PendingPayment
	Total          models.Money `json:"total"`
	AmountRequired bool         `json:"amountRequired"`
	// Blocked carries the eligibility message while submission is refused.
	Blocked string `json:"blocked,omitempty"`
}

// Result is the terminal outcome of one submission.
type Result struct {
	RequestID     string           `json:"requestId"`
	ScanID        string           `json:"scanId"`
	State         State            `json:"state"`
	Amount        models.Money     `json:"amount"`
	Quantity      int              `json:"quantity,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	ErrorCode     string           `json:"errorCode,omitempty"`
	TransactionID string           `json:"transactionId,omitempty"`
	Wallet        *wallet.Snapshot `json:"wallet,omitempty"`
}

func (r Result) Settled() bool {
	return r.State == StateSettled
}

// View is a consistent snapshot of the flow.
type View struct {
	State      State      `json:"state"`
	Draft      *DraftView `json:"draft,omitempty"`
	LastResult *Result    `json:"lastResult,omitempty"`
}
