package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "qrpay/internal/errors"
	"qrpay/internal/models"
	"qrpay/internal/services/history"
	"qrpay/internal/services/qr"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	DefaultSettlementTimeout = 30 * time.Second

	// MaxQuantity is the most riders one transport payment may cover.
	MaxQuantity = 50
)

// Flow is the confirmation dialog of one payer: at most one PendingPayment
// exists at a time and each confirmation dispatches exactly one settlement call.
type Flow struct {
	payerID    string
	settlement Settlement
	wallet     WalletCache
	history    History
	timeout    time.Duration
	newID      func() string

	mu    sync.Mutex
	state State
	draft *PendingPayment
	last  *Result
}

type Option func(*Flow)

// WithSettlementTimeout bounds the settlement call.
func WithSettlementTimeout(d time.Duration) Option {
	return func(f *Flow) { f.timeout = d }
}

// WithRequestIDs overrides the idempotency key generator.
func WithRequestIDs(newID func() string) Option {
	return func(f *Flow) { f.newID = newID }
}

func NewFlow(payerID string, settlement Settlement, wallet WalletCache, hist History, opts ...Option) *Flow {
	if settlement == nil {
		panic("settlement is required")
	}
	if wallet == nil {
		panic("wallet cache is required")
	}
	f := &Flow{
		payerID:    payerID,
		settlement: settlement,
		wallet:     wallet,
		history:    hist,
		timeout:    DefaultSettlementTimeout,
		newID:      uuid.NewString,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin opens a draft for a classified payload: Idle → Drafting.
func (f *Flow) Begin(scanID string, p qr.Payload) (DraftView, error) {
	if !p.Payable() {
		return DraftView{}, ErrNotPayable
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle {
		return DraftView{}, ErrSessionBusy
	}

	draft := &PendingPayment{ScanID: scanID, Payload: p}
	if p.Kind == qr.KindTransport {
		draft.Quantity = 1
	}
	f.draft = draft
	f.state = StateDrafting
	log.Debugf("payer %s drafting %s payment for scan %s", f.payerID, p.Kind, scanID)
	return f.viewLocked(), nil
}

func (f *Flow) Increment() (DraftView, error) {
	return f.editQuantity(func(q int) int { return q + 1 })
}

// Decrement lowers the rider count; below one it is a no-op.
func (f *Flow) Decrement() (DraftView, error) {
	return f.editQuantity(func(q int) int { return q - 1 })
}

// SetQuantity sets the rider count, clamped to a minimum of one. Counts above
// MaxQuantity are refused and leave the draft unchanged.
func (f *Flow) SetQuantity(n int) (DraftView, error) {
	return f.editQuantity(func(int) int { return n })
}

func (f *Flow) editQuantity(next func(int) int) (DraftView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editableLocked(); err != nil {
		return DraftView{}, err
	}
	if f.draft.Payload.Kind != qr.KindTransport {
		return DraftView{}, ErrNotTransport
	}
	q := next(f.draft.Quantity)
	if q < 1 {
		q = 1
	}
	if q > MaxQuantity {
		return DraftView{}, ErrQuantityLimit
	}
	if _, ok := f.draft.Payload.Transport.PerRiderFare.Mul(q); !ok {
		return DraftView{}, ErrInvalidAmount
	}
	f.draft.Quantity = q
	return f.viewLocked(), nil
}

// SetAmount records the payer-entered merchant amount. Any number is accepted;
// non-positive amounts only block submission.
func (f *Flow) SetAmount(amount models.Money) (DraftView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editableLocked(); err != nil {
		return DraftView{}, err
	}
	if f.draft.Payload.Kind != qr.KindMerchant {
		return DraftView{}, ErrNotPayable
	}
	if !f.draft.AmountRequired() {
		return DraftView{}, ErrAmountFixed
	}
	f.draft.EnteredAmount = &amount
	return f.viewLocked(), nil
}

// Cancel discards the draft without any remote call: Drafting → Idle.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editableLocked(); err != nil {
		return err
	}
	log.Debugf("payer %s cancelled draft for scan %s", f.payerID, f.draft.ScanID)
	f.draft = nil
	f.state = StateIdle
	return nil
}

// Submit confirms the draft. Eligibility failures leave the flow in Drafting and
// return an error. Once dispatched, the call runs to completion regardless of ctx
// cancellation and its outcome is returned as a Result, never as an error.
func (f *Flow) Submit(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	}
	if f.state != StateDrafting || f.draft == nil {
		f.mu.Unlock()
		return Result{}, ErrNoDraft
	}
	if err := f.eligibilityLocked(); err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	draft := *f.draft
	requestID := f.newID()
	f.state = StateSubmitting
	f.mu.Unlock()

	log.Infof("payer %s submitting %s payment %s total=%s", f.payerID, draft.Payload.Kind, requestID, draft.Total())

	// The remote effect cannot be revoked, so the caller going away must not abort it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	row, err := f.dispatch(callCtx, requestID, draft)
	cancel()

	result := f.classify(requestID, draft, row, err)

	refreshCtx, cancelRefresh := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	if snap, rerr := f.wallet.Refresh(refreshCtx); rerr != nil {
		log.Warnf("wallet refresh after payment %s failed: %v", requestID, rerr)
	} else {
		result.Wallet = &snap
	}
	cancelRefresh()

	if f.history != nil {
		outcome := history.OutcomeRejected
		if result.Settled() {
			outcome = history.OutcomeSettled
		}
		f.history.Resolve(draft.ScanID, outcome, result.Reason)
	}

	f.mu.Lock()
	f.draft = nil
	f.last = &result
	f.state = StateIdle
	f.mu.Unlock()

	if result.Settled() {
		log.Infof("payment %s settled (tx %s)", requestID, result.TransactionID)
	} else {
		log.Warnf("payment %s rejected: %s", requestID, result.Reason)
	}
	return result, nil
}

func (f *Flow) dispatch(ctx context.Context, requestID string, draft PendingPayment) (*models.SettlementRow, error) {
	switch draft.Payload.Kind {
	case qr.KindTransport:
		t := draft.Payload.Transport
		return f.settlement.SubmitTransportPayment(ctx, models.TransportPaymentRequest{
			RequestID:  requestID,
			PayerID:    f.payerID,
			DriverID:   t.DriverID,
			RegistryID: t.RegistryID,
			Amount:     draft.Total(),
			Quantity:   draft.Quantity,
		})
	case qr.KindMerchant:
		return f.settlement.SubmitMerchantPayment(ctx, models.MerchantPaymentRequest{
			RequestID:  requestID,
			PayerID:    f.payerID,
			MerchantID: draft.Payload.Merchant.MerchantID,
			Amount:     draft.Total(),
		})
	}
	return nil, fmt.Errorf("unsupported payload kind %q", draft.Payload.Kind)
}

// classify routes transport failures, timeouts and business rejections alike to Rejected.
func (f *Flow) classify(requestID string, draft PendingPayment, row *models.SettlementRow, err error) Result {
	result := Result{
		RequestID: requestID,
		ScanID:    draft.ScanID,
		Amount:    draft.Total(),
		Quantity:  draft.Quantity,
		State:     StateRejected,
	}

	var de *domainErrors.DomainError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Reason = domainErrors.ErrSettlementTimeout.Message
		result.ErrorCode = domainErrors.ErrSettlementTimeout.Code
	case errors.As(err, &de):
		result.Reason = de.Message
		result.ErrorCode = de.Code
	case err != nil:
		log.Errorf("settlement call %s failed: %v", requestID, err)
		result.Reason = "payment service is unavailable, please scan again"
		result.ErrorCode = "SETTLEMENT_UNAVAILABLE"
	case row == nil:
		result.Reason = "payment service returned no result"
		result.ErrorCode = "SETTLEMENT_EMPTY"
	case !row.Success:
		result.Reason = row.Message
		if result.Reason == "" {
			result.Reason = "payment was declined"
		}
		result.ErrorCode = row.ErrorCode
	default:
		result.State = StateSettled
		result.TransactionID = row.TransactionID
	}
	return result
}

func (f *Flow) editableLocked() error {
	switch f.state {
	case StateDrafting:
		return nil
	case StateSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrNoDraft
	}
}

func (f *Flow) eligibilityLocked() error {
	snap, ok := f.wallet.Current()
	if !ok {
		return ErrWalletNotLoaded
	}
	if snap.IsFrozen {
		return ErrWalletFrozen
	}
	if f.draft.AmountRequired() && f.draft.EnteredAmount == nil {
		return ErrAmountRequired
	}
	if f.draft.Total() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (f *Flow) viewLocked() DraftView {
	v := DraftView{
		PendingPayment: *f.draft,
		Total:          f.draft.Total(),
		AmountRequired: f.draft.AmountRequired(),
	}
	if f.draft.EnteredAmount != nil {
		amount := *f.draft.EnteredAmount
		v.EnteredAmount = &amount
	}
	if err := f.eligibilityLocked(); err != nil {
		v.Blocked = err.Error()
	}
	return v
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// View returns the state, the draft (if any) and the last submission result.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{State: f.state}
	if f.draft != nil {
		d := f.viewLocked()
		v.Draft = &d
	}
	if f.last != nil {
		last := *f.last
		v.LastResult = &last
	}
	return v
}
