package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qrpay/internal/services/payment"

	"github.com/gofiber/fiber/v2/log"
	"github.com/hashicorp/go-multierror"
)

var ErrInvalidPayer = errors.New("payer id is required")

// Sessions holds one Controller per payer. Controllers share the capture
// backend; the device lock keeps two payers from holding the same scanner.
// Controllers not used for Config.IdleTTL are closed by Run.
type Sessions struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	byPayer  map[string]*Controller
	lastUsed map[string]time.Time
}

func NewSessions(deps Deps, cfg Config) *Sessions {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Sessions{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		byPayer:  make(map[string]*Controller),
		lastUsed: make(map[string]time.Time),
	}
}

// Get returns the payer's controller, creating and mounting it on first use.
func (s *Sessions) Get(ctx context.Context, payerID string) (*Controller, error) {
	if payerID == "" {
		return nil, ErrInvalidPayer
	}

	s.mu.Lock()
	c, ok := s.byPayer[payerID]
	if !ok {
		c = NewController(payerID, s.deps, s.cfg)
		s.byPayer[payerID] = c
	}
	s.lastUsed[payerID] = s.now()
	s.mu.Unlock()

	if !ok {
		if _, err := c.Mount(ctx); err != nil {
			log.Warnf("payer %s: initial wallet load failed: %v", payerID, err)
		}
	}
	return c, nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPayer)
}

// EvictIdle closes controllers not fetched for maxIdle and returns how many
// were dropped. A controller holding a draft or a payment in flight is kept.
func (s *Sessions) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	var idle []*Controller
	for id, c := range s.byPayer {
		if s.lastUsed[id].After(cutoff) {
			continue
		}
		switch c.flow.State() {
		case payment.StateDrafting, payment.StateSubmitting:
			continue
		}
		idle = append(idle, c)
		delete(s.byPayer, id)
		delete(s.lastUsed, id)
	}
	s.mu.Unlock()

	for _, c := range idle {
		if err := c.Close(); err != nil {
			log.Warnf("payer %s: close idle session: %v", c.PayerID(), err)
		}
		log.Debugf("payer %s: idle session evicted", c.PayerID())
	}
	return len(idle)
}

// Run evicts idle controllers every interval until ctx is done.
// It returns immediately when Config.IdleTTL is not set.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if s.cfg.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(s.cfg.IdleTTL); n > 0 {
				log.Infof("evicted %d idle payer sessions", n)
			}
		}
	}
}

// Close releases every controller's camera.
func (s *Sessions) Close() error {
	s.mu.Lock()
	controllers := make([]*Controller, 0, len(s.byPayer))
	for _, c := range s.byPayer {
		controllers = append(controllers, c)
	}
	s.byPayer = make(map[string]*Controller)
	s.lastUsed = make(map[string]time.Time)
	s.mu.Unlock()

	var result *multierror.Error
	for _, c := range controllers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("payer %s: %w", c.PayerID(), err))
		}
	}
	return result.ErrorOrNil()
}
