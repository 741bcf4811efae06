package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	domainErrors "qrpay/internal/errors"
	"qrpay/internal/models"
	"qrpay/internal/repositories"
	"qrpay/internal/services/camera"
	"qrpay/internal/services/history"
	"qrpay/internal/services/payment"
	"qrpay/internal/services/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubRegistry map[string]*models.QRRegistryEntry

func (r stubRegistry) Lookup(_ context.Context, q repositories.RegistryQuery) (*models.QRRegistryEntry, error) {
	if e, ok := r[q.OwnerID]; ok && e.Kind == q.Kind {
		return e, nil
	}
	return nil, repositories.ErrRegistryNotFound
}

type MockSettlement struct {
	mock.Mock
}

func (m *MockSettlement) SubmitTransportPayment(ctx context.Context, req models.TransportPaymentRequest) (*models.SettlementRow, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementRow), args.Error(1)
}

func (m *MockSettlement) SubmitMerchantPayment(ctx context.Context, req models.MerchantPaymentRequest) (*models.SettlementRow, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementRow), args.Error(1)
}

type stubWallets struct {
	mu      sync.Mutex
	balance models.Money
	frozen  bool
	reads   int
}

func (w *stubWallets) GetByUserID(_ context.Context, userID string) (*models.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	return &models.Wallet{UserID: userID, Balance: w.balance, IsFrozen: w.frozen, Currency: "IDR"}, nil
}

func (w *stubWallets) readCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reads
}

type pipeStream struct {
	*io.PipeReader
}

type pipeDevice struct {
	openErr error

	mu     sync.Mutex
	writer *io.PipeWriter
}

func (d *pipeDevice) Enumerate(context.Context) ([]camera.DeviceInfo, error) {
	return []camera.DeviceInfo{{ID: "/dev/fake", Label: "rear", Facing: camera.FacingRear}}, nil
}

func (d *pipeDevice) Open(context.Context, camera.DeviceInfo) (camera.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	r, w := io.Pipe()
	d.mu.Lock()
	d.writer = w
	d.mu.Unlock()
	return pipeStream{r}, nil
}

func (d *pipeDevice) show(text string) {
	d.mu.Lock()
	w := d.writer
	d.mu.Unlock()
	go func() { _, _ = w.Write([]byte(text + "\n")) }()
}

const (
	driverQR   = `{"type":"driver","driverId":"D1"}`
	merchantQR = `{"type":"merchant","merchantId":"M1","amount":3000}`
)

type fixture struct {
	ctrl       *Controller
	settlement *MockSettlement
	wallets    *stubWallets
	device     *pipeDevice
}

func newFixture(t *testing.T, device *pipeDevice) *fixture {
	t.Helper()
	reg := stubRegistry{
		"D1": {ID: "QR1", Kind: models.RegistryKindTransport, OwnerID: "D1", PerRiderFare: 500, Active: true},
		"M1": {ID: "QR2", Kind: models.RegistryKindMerchant, OwnerID: "M1", BusinessName: "Warung", Active: true},
	}
	f := &fixture{
		settlement: new(MockSettlement),
		wallets:    &stubWallets{balance: 50000},
		device:     device,
	}
	deps := Deps{
		Interpreter: qr.NewInterpreter(reg),
		Settlement:  f.settlement,
		Wallets:     f.wallets,
	}
	if device != nil {
		deps.Device = device
	}
	f.ctrl = NewController("payer-1", deps, Config{
		Debounce:          time.Minute,
		SettlementTimeout: time.Second,
		PermissionTimeout: 50 * time.Millisecond,
	})
	_, err := f.ctrl.Mount(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.ctrl.Close() })
	return f
}

func settled(tx string) *models.SettlementRow {
	return &models.SettlementRow{Success: true, TransactionID: tx}
}

func TestController_TransportScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.ctrl.SubmitManual(ctx, driverQR)
	require.NoError(t, err)
	require.NotNil(t, out.Draft)
	assert.Equal(t, history.SourceManual, out.Record.Source)
	assert.Equal(t, models.Money(500), out.Draft.Total)

	view, err := f.ctrl.Increment()
	require.NoError(t, err)
	assert.Equal(t, models.Money(1000), view.Total)

	f.settlement.On("SubmitTransportPayment", mock.MatchedBy(func(req models.TransportPaymentRequest) bool {
		return req.Amount == 1000 && req.Quantity == 2 && req.DriverID == "D1" && req.RegistryID == "QR1" && req.PayerID == "payer-1"
	})).Return(settled("tx-1"), nil).Once()

	readsBefore := f.wallets.readCount()
	res, err := f.ctrl.Confirm(ctx)
	require.NoError(t, err)
	assert.True(t, res.Settled())
	assert.Equal(t, readsBefore+1, f.wallets.readCount())

	hist := f.ctrl.History()
	require.Len(t, hist, 1)
	assert.Equal(t, history.OutcomeSettled, hist[0].Outcome)
	assert.Equal(t, payment.StateIdle, f.ctrl.Snapshot().Payment.State)
	f.settlement.AssertExpectations(t)
}

func TestController_MerchantFixedAmount(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.ctrl.SubmitManual(context.Background(), merchantQR)
	require.NoError(t, err)
	require.NotNil(t, out.Draft)
	assert.Equal(t, models.Money(3000), out.Draft.Total)
	assert.False(t, out.Draft.AmountRequired)
	assert.Empty(t, out.Draft.Blocked)
}

func TestController_UnregisteredCodeIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.ctrl.SubmitManual(context.Background(), `{"type":"driver","driverId":"ghost"}`)
	assert.ErrorIs(t, err, domainErrors.ErrQRNotFound)
	assert.Nil(t, out.Draft)
	assert.Equal(t, history.OutcomeRejected, out.Record.Outcome)
	assert.Equal(t, payment.StateIdle, f.ctrl.Snapshot().Payment.State)

	_, err = f.ctrl.SubmitManual(context.Background(), "not a qr")
	assert.ErrorIs(t, err, domainErrors.ErrUnrecognizedQR)
	assert.Len(t, f.ctrl.History(), 2)
}

func TestController_SingleDraft(t *testing.T) {
	f := newFixture(t, &pipeDevice{})
	ctx := context.Background()

	_, err := f.ctrl.SubmitManual(ctx, driverQR)
	require.NoError(t, err)

	_, err = f.ctrl.SubmitManual(ctx, merchantQR)
	assert.ErrorIs(t, err, payment.ErrSessionBusy)

	_, err = f.ctrl.StartCamera(ctx)
	assert.ErrorIs(t, err, payment.ErrSessionBusy)

	require.NoError(t, f.ctrl.Cancel())
	hist := f.ctrl.History()
	require.Len(t, hist, 1)
	assert.Equal(t, history.OutcomePending, hist[0].Outcome)
}

func TestController_PermissionDeniedKeepsManualEntry(t *testing.T) {
	f := newFixture(t, &pipeDevice{openErr: &camera.Error{Kind: camera.PermissionDenied}})
	ctx := context.Background()

	status, err := f.ctrl.StartCamera(ctx)
	require.Error(t, err)
	assert.Equal(t, camera.PermissionDenied, camera.KindOf(err))
	assert.False(t, status.Active)

	out, err := f.ctrl.SubmitManual(ctx, driverQR)
	require.NoError(t, err)
	assert.Equal(t, qr.KindTransport, out.Record.Payload.Kind)
}

func TestController_NoCameraBackend(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.ctrl.StartCamera(context.Background())
	assert.Equal(t, camera.Unsupported, camera.KindOf(err))
	assert.NoError(t, f.ctrl.StopCamera())
}

func TestController_SixScansKeepFive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.settlement.On("SubmitTransportPayment", mock.Anything).Return(settled("tx"), nil)

	var ids []string
	for i := 0; i < 6; i++ {
		out, err := f.ctrl.SubmitManual(ctx, driverQR)
		require.NoError(t, err)
		ids = append(ids, out.Record.ID)
		_, err = f.ctrl.Confirm(ctx)
		require.NoError(t, err)
	}

	hist := f.ctrl.History()
	require.Len(t, hist, history.DefaultCapacity)
	for i, rec := range hist {
		assert.Equal(t, ids[5-i], rec.ID)
		assert.Equal(t, history.OutcomeSettled, rec.Outcome)
	}
}

func TestController_CameraScan(t *testing.T) {
	dev := &pipeDevice{}
	f := newFixture(t, dev)
	ctx := context.Background()

	status, err := f.ctrl.StartCamera(ctx)
	require.NoError(t, err)
	assert.True(t, status.Active)

	dev.show(driverQR)
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().Payment.State == payment.StateDrafting
	}, time.Second, 5*time.Millisecond)

	hist := f.ctrl.History()
	require.Len(t, hist, 1)
	assert.Equal(t, history.SourceCamera, hist[0].Source)

	// Scans while drafting are dropped.
	dev.show(merchantQR)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.ctrl.History(), 1)

	// The same code re-read within the debounce window is dropped after cancel.
	require.NoError(t, f.ctrl.Cancel())
	dev.show(driverQR)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.ctrl.History(), 1)
	assert.Equal(t, payment.StateIdle, f.ctrl.Snapshot().Payment.State)

	require.NoError(t, f.ctrl.StopCamera())
	assert.False(t, f.ctrl.CameraStatus().Active)
}

func TestController_Restart(t *testing.T) {
	f := newFixture(t, &pipeDevice{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := f.ctrl.StartCamera(ctx)
		require.NoError(t, err, fmt.Sprintf("start %d", i))
		assert.True(t, status.Active)
	}
	require.NoError(t, f.ctrl.StopCamera())
	require.NoError(t, f.ctrl.StopCamera())
}

func TestController_FrozenWalletBlocksConfirm(t *testing.T) {
	f := newFixture(t, nil)
	f.wallets.frozen = true
	_, err := f.ctrl.RefreshWallet(context.Background())
	require.NoError(t, err)

	_, err = f.ctrl.SubmitManual(context.Background(), driverQR)
	require.NoError(t, err)

	_, err = f.ctrl.Confirm(context.Background())
	assert.True(t, errors.Is(err, payment.ErrWalletFrozen))
	assert.Equal(t, payment.StateDrafting, f.ctrl.Snapshot().Payment.State)
	f.settlement.AssertNotCalled(t, "SubmitTransportPayment", mock.Anything)
}

func TestSessions(t *testing.T) {
	s := NewSessions(Deps{
		Interpreter: qr.NewInterpreter(stubRegistry{}),
		Settlement:  new(MockSettlement),
		Wallets:     &stubWallets{balance: 10},
	}, Config{})
	defer s.Close()
	ctx := context.Background()

	a, err := s.Get(ctx, "payer-a")
	require.NoError(t, err)
	again, err := s.Get(ctx, "payer-a")
	require.NoError(t, err)
	b, err := s.Get(ctx, "payer-b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, s.Len())

	snap, ok := a.Wallet()
	assert.True(t, ok, "wallet loaded on mount")
	assert.Equal(t, models.Money(10), snap.Balance)

	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPayer)

	require.NoError(t, s.Close())
	assert.Zero(t, s.Len())
}

func TestSessions_EvictIdle(t *testing.T) {
	settlement := new(MockSettlement)
	s := NewSessions(Deps{
		Interpreter: qr.NewInterpreter(stubRegistry{
			"D1": {ID: "QR1", Kind: models.RegistryKindTransport, OwnerID: "D1", PerRiderFare: 500, Active: true},
		}),
		Settlement: settlement,
		Wallets:    &stubWallets{balance: 10},
	}, Config{IdleTTL: time.Minute})
	defer s.Close()
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	idle, err := s.Get(ctx, "payer-idle")
	require.NoError(t, err)
	drafting, err := s.Get(ctx, "payer-drafting")
	require.NoError(t, err)
	_, err = drafting.SubmitManual(ctx, driverQR)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "payer-fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, s.EvictIdle(time.Minute))
	assert.Equal(t, 2, s.Len())

	again, err := s.Get(ctx, "payer-idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)

	kept, err := s.Get(ctx, "payer-drafting")
	require.NoError(t, err)
	assert.Same(t, drafting, kept)
	assert.Equal(t, payment.StateDrafting, kept.Snapshot().Payment.State)
}

func TestSessions_RunStopsWithContext(t *testing.T) {
	s := NewSessions(Deps{
		Interpreter: qr.NewInterpreter(stubRegistry{}),
		Settlement:  new(MockSettlement),
		Wallets:     &stubWallets{balance: 10},
	}, Config{IdleTTL: time.Nanosecond})
	defer s.Close()

	_, err := s.Get(context.Background(), "payer-a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
