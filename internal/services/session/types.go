package session

import (
	"context"
	"time"

	"qrpay/internal/services/camera"
	"qrpay/internal/services/history"
	"qrpay/internal/services/payment"
	"qrpay/internal/services/qr"
	"qrpay/internal/services/wallet"
)

type Interpreter interface {
	Interpret(ctx context.Context, raw string) qr.Payload
}

type Camera interface {
	RequestCapability(ctx context.Context) (camera.CaptureHandle, error)
	Start(ctx context.Context, h camera.CaptureHandle) error
	Stop() error
	Events() <-chan string
	Status() camera.Status
}

// Deps are shared by every payer's controller.
type Deps struct {
	Interpreter Interpreter
	Settlement  payment.Settlement
	Wallets     wallet.Reader
	// Device may be nil when no capture backend is available.
	Device camera.Device
}

type Config struct {
	Debounce          time.Duration
	SettlementTimeout time.Duration
	PermissionTimeout time.Duration
	DefaultCurrency   string
	HistoryCapacity   int
	// IdleTTL is how long an unused payer session is kept. Zero keeps sessions until Close.
	IdleTTL time.Duration
}

const DefaultDebounce = 2 * time.Second

// ScanOutcome is the classified scan and, for payable codes, the opened draft.
type ScanOutcome struct {
	Record history.Record     `json:"record"`
	Draft  *payment.DraftView `json:"draft,omitempty"`
}

// Snapshot is everything the dashboard renders for one payer.
type Snapshot struct {
	Payment payment.View     `json:"payment"`
	Camera  camera.Status    `json:"camera"`
	Wallet  *wallet.Snapshot `json:"wallet,omitempty"`
}
