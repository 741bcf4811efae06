package session

import (
	"context"
	"errors"
	"sync"
	"time"

	domainErrors "qrpay/internal/errors"
	"qrpay/internal/models"
	"qrpay/internal/services/camera"
	"qrpay/internal/services/history"
	"qrpay/internal/services/payment"
	"qrpay/internal/services/wallet"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Controller wires one payer's camera, interpreter, confirmation flow, history
// and wallet cache. Camera-decoded and manually entered text share one scan path.
type Controller struct {
	payerID  string
	interp   Interpreter
	camera   Camera
	flow     *payment.Flow
	history  *history.Ring
	wallet   *wallet.BalanceCache
	debounce time.Duration
	now      func() time.Time
	newID    func() string

	camMu sync.Mutex

	scanMu  sync.Mutex
	lastRaw string
	lastAt  time.Time

	loopOnce sync.Once
	stopLoop context.CancelFunc
	loopDone chan struct{}
}

func NewController(payerID string, deps Deps, cfg Config) *Controller {
	if deps.Interpreter == nil {
		panic("interpreter is required")
	}
	ring := history.NewRing(cfg.HistoryCapacity)
	cache := wallet.NewBalanceCache(deps.Wallets, payerID, cfg.DefaultCurrency)

	var flowOpts []payment.Option
	if cfg.SettlementTimeout > 0 {
		flowOpts = append(flowOpts, payment.WithSettlementTimeout(cfg.SettlementTimeout))
	}

	c := &Controller{
		payerID:  payerID,
		interp:   deps.Interpreter,
		flow:     payment.NewFlow(payerID, deps.Settlement, cache, ring, flowOpts...),
		history:  ring,
		wallet:   cache,
		debounce: cfg.Debounce,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	if deps.Device != nil {
		var camOpts []camera.Option
		if cfg.PermissionTimeout > 0 {
			camOpts = append(camOpts, camera.WithPermissionTimeout(cfg.PermissionTimeout))
		}
		c.camera = camera.NewManager(deps.Device, camOpts...)
	}
	return c
}

func (c *Controller) PayerID() string {
	return c.payerID
}

// Mount loads the wallet and starts consuming camera events. A failed wallet
// load leaves the session usable; submission stays blocked until a refresh succeeds.
func (c *Controller) Mount(ctx context.Context) (wallet.Snapshot, error) {
	c.loopOnce.Do(func() {
		if c.camera == nil {
			return
		}
		loopCtx, cancel := context.WithCancel(context.Background())
		c.stopLoop = cancel
		c.loopDone = make(chan struct{})
		go c.consume(loopCtx, c.camera.Events(), c.loopDone)
	})
	return c.wallet.Refresh(ctx)
}

// Close stops the camera and the event loop.
func (c *Controller) Close() error {
	err := c.StopCamera()
	if c.stopLoop != nil {
		c.stopLoop()
		<-c.loopDone
	}
	return err
}

// StartCamera (re)starts capture. Any running capture is released first.
func (c *Controller) StartCamera(ctx context.Context) (camera.Status, error) {
	if c.camera == nil {
		return camera.Status{}, &camera.Error{Kind: camera.Unsupported, Err: camera.ErrNoDevices}
	}

	c.camMu.Lock()
	defer c.camMu.Unlock()

	if c.flow.State() != payment.StateIdle {
		return c.camera.Status(), payment.ErrSessionBusy
	}
	if err := c.camera.Stop(); err != nil {
		log.Warnf("payer %s: releasing previous capture: %v", c.payerID, err)
	}

	h, err := c.camera.RequestCapability(ctx)
	if err != nil {
		log.Warnf("payer %s: camera unavailable: %v", c.payerID, err)
		return c.camera.Status(), err
	}
	if err := c.camera.Start(ctx, h); err != nil {
		log.Warnf("payer %s: camera start failed: %v", c.payerID, err)
		return c.camera.Status(), err
	}
	return c.camera.Status(), nil
}

func (c *Controller) StopCamera() error {
	if c.camera == nil {
		return nil
	}
	c.camMu.Lock()
	defer c.camMu.Unlock()
	return c.camera.Stop()
}

func (c *Controller) CameraStatus() camera.Status {
	if c.camera == nil {
		return camera.Status{LastError: camera.ErrUnsupported.Error()}
	}
	return c.camera.Status()
}

// SubmitManual feeds typed text through the same path as camera scans.
func (c *Controller) SubmitManual(ctx context.Context, raw string) (ScanOutcome, error) {
	return c.scan(ctx, raw, history.SourceManual)
}

func (c *Controller) consume(ctx context.Context, events <-chan string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-events:
			c.onDecoded(ctx, raw)
		}
	}
}

func (c *Controller) onDecoded(ctx context.Context, raw string) {
	if c.flow.State() != payment.StateIdle {
		log.Debugf("payer %s: scan ignored while %s", c.payerID, c.flow.State())
		return
	}
	if c.repeated(raw) {
		return
	}
	out, err := c.scan(ctx, raw, history.SourceCamera)
	if err != nil {
		log.Infof("payer %s: camera scan %s: %v", c.payerID, out.Record.ID, err)
	}
}

// repeated reports a camera re-read of the same code within the debounce window.
func (c *Controller) repeated(raw string) bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	now := c.now()
	if raw == c.lastRaw && now.Sub(c.lastAt) < c.debounce {
		return true
	}
	c.lastRaw = raw
	c.lastAt = now
	return false
}

func (c *Controller) scan(ctx context.Context, raw string, source history.Source) (ScanOutcome, error) {
	if c.flow.State() != payment.StateIdle {
		return ScanOutcome{}, payment.ErrSessionBusy
	}

	p := c.interp.Interpret(ctx, raw)
	rec := history.Record{
		ID:        c.newID(),
		Payload:   p,
		Timestamp: c.now(),
		Source:    source,
		Outcome:   history.OutcomePending,
	}

	if !p.Payable() {
		err := p.Err()
		if err == nil {
			err = domainErrors.ErrUnrecognizedQR
		}
		rec.Outcome = history.OutcomeRejected
		rec.Reason = reasonOf(err)
		c.history.Record(rec)
		return ScanOutcome{Record: rec}, err
	}

	c.history.Record(rec)
	draft, err := c.flow.Begin(rec.ID, p)
	if err != nil {
		c.history.Resolve(rec.ID, history.OutcomeRejected, reasonOf(err))
		rec.Outcome = history.OutcomeRejected
		rec.Reason = reasonOf(err)
		return ScanOutcome{Record: rec}, err
	}
	log.Infof("payer %s: %s scan %s classified as %s", c.payerID, source, rec.ID, p.Kind)
	return ScanOutcome{Record: rec, Draft: &draft}, nil
}

func reasonOf(err error) string {
	var de *domainErrors.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func (c *Controller) Increment() (payment.DraftView, error) { return c.flow.Increment() }

func (c *Controller) Decrement() (payment.DraftView, error) { return c.flow.Decrement() }

func (c *Controller) SetQuantity(n int) (payment.DraftView, error) { return c.flow.SetQuantity(n) }

func (c *Controller) SetAmount(m models.Money) (payment.DraftView, error) { return c.flow.SetAmount(m) }

// Cancel drops the draft. Its history record keeps the pending outcome.
func (c *Controller) Cancel() error { return c.flow.Cancel() }

func (c *Controller) Confirm(ctx context.Context) (payment.Result, error) {
	return c.flow.Submit(ctx)
}

func (c *Controller) History() []history.Record {
	return c.history.All()
}

func (c *Controller) Wallet() (wallet.Snapshot, bool) {
	return c.wallet.Current()
}

func (c *Controller) RefreshWallet(ctx context.Context) (wallet.Snapshot, error) {
	return c.wallet.Refresh(ctx)
}

func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Payment: c.flow.View(),
		Camera:  c.CameraStatus(),
	}
	if snap, ok := c.wallet.Current(); ok {
		s.Wallet = &snap
	}
	return s
}
