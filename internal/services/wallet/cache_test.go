package wallet

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"qrpay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReader struct {
	mock.Mock
}

func (m *MockReader) GetByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func TestBalanceCache_UninitializedUntilFirstRefresh(t *testing.T) {
	reader := new(MockReader)
	c := NewBalanceCache(reader, "P1", "IDR")

	_, ok := c.Current()
	assert.False(t, ok)

	reader.On("GetByUserID", "P1").Return(&models.Wallet{UserID: "P1", Balance: 10000}, nil).Once()
	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Money(10000), snap.Balance)
	assert.Equal(t, "IDR", snap.Currency)

	current, ok := c.Current()
	assert.True(t, ok)
	assert.Equal(t, snap, current)
	reader.AssertExpectations(t)
}

func TestBalanceCache_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	reader := new(MockReader)
	c := NewBalanceCache(reader, "P1", "IDR")

	reader.On("GetByUserID", "P1").Return(&models.Wallet{UserID: "P1", Balance: 700, Currency: "USD", IsFrozen: true}, nil).Once()
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	cause := errors.New("connection reset by peer")
	reader.On("GetByUserID", "P1").Return(nil, cause).Once()
	_, err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, cause)

	snap, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, models.Money(700), snap.Balance)
	assert.True(t, snap.IsFrozen)
	assert.Equal(t, "USD", snap.Currency)
}

func TestBalanceCache_RefreshIsRepeatable(t *testing.T) {
	reader := new(MockReader)
	c := NewBalanceCache(reader, "P1", "IDR")
	c.now = func() time.Time { return time.Unix(100, 0) }

	reader.On("GetByUserID", "P1").Return(&models.Wallet{Balance: 5000}, nil).Once()
	reader.On("GetByUserID", "P1").Return(&models.Wallet{Balance: 4000}, nil).Once()

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	snap, _ := c.Current()
	assert.Equal(t, models.Money(4000), snap.Balance)
	assert.Equal(t, time.Unix(100, 0), snap.FetchedAt)
}

func TestBalanceCache_OutOfOrderCompletion(t *testing.T) {
	reader := &slowReader{started: make(chan struct{}), release: make(chan struct{})}
	c := NewBalanceCache(reader, "P1", "IDR")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Refresh(context.Background())
	}()
	<-reader.started

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	close(reader.release)
	<-done

	snap, _ := c.Current()
	assert.Equal(t, models.Money(900), snap.Balance)
}

func TestBalanceCache_RequiresPayer(t *testing.T) {
	c := NewBalanceCache(new(MockReader), "", "IDR")
	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrInvalidPayerID)
}

// slowReader blocks its first call until release is closed, then answers with a stale balance.
type slowReader struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (r *slowReader) GetByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	if r.calls.Add(1) == 1 {
		close(r.started)
		<-r.release
		return &models.Wallet{Balance: 100}, nil
	}
	return &models.Wallet{Balance: 900}, nil
}
