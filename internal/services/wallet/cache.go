package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

type BalanceCache struct {
	reader          Reader
	userID          string
	defaultCurrency string
	now             func() time.Time

	mu       sync.RWMutex
	snapshot Snapshot
	loaded   bool
	// seq numbers refreshes by start order; storedSeq is the one currently held.
	seq       uint64
	storedSeq uint64
}

func NewBalanceCache(reader Reader, userID, defaultCurrency string) *BalanceCache {
	if reader == nil {
		panic("wallet reader is required")
	}
	return &BalanceCache{
		reader:          reader,
		userID:          userID,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// Refresh reads the wallet from the backend and replaces the cached snapshot.
func (c *BalanceCache) Refresh(ctx context.Context) (Snapshot, error) {
	if c.userID == "" {
		return Snapshot{}, ErrInvalidPayerID
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	w, err := c.reader.GetByUserID(ctx, c.userID)
	if err != nil {
		log.Warnf("wallet refresh for %s failed: %v", c.userID, err)
		return Snapshot{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	snap := Snapshot{
		Balance:   w.Balance,
		IsFrozen:  w.IsFrozen,
		Currency:  w.Currency,
		FetchedAt: c.now(),
	}
	if snap.Currency == "" {
		snap.Currency = c.defaultCurrency
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A refresh that started earlier never overwrites a newer read.
	if seq > c.storedSeq {
		c.snapshot = snap
		c.loaded = true
		c.storedSeq = seq
	}
	return snap, nil
}

// Current returns the last known snapshot; ok is false before the first successful Refresh.
func (c *BalanceCache) Current() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.loaded
}
