package qr

import (
	"context"
	"errors"
	"time"

	"qrpay/internal/models"
	"qrpay/internal/repositories"

	"github.com/gofiber/fiber/v2/log"
)

// Registry resolves a candidate against the issued-code registry.
type Registry interface {
	Lookup(ctx context.Context, q repositories.RegistryQuery) (*models.QRRegistryEntry, error)
}

// Interpreter is the single entry point for camera-decoded and manually entered codes.
type Interpreter struct {
	registry Registry
	now      func() time.Time
	timeout  time.Duration
}

type Option func(*Interpreter)

// WithClock overrides the clock used for expiry comparison.
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// WithLookupTimeout bounds each registry lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(i *Interpreter) { i.timeout = d }
}

func NewInterpreter(registry Registry, opts ...Option) *Interpreter {
	if registry == nil {
		panic("registry is required")
	}
	i := &Interpreter{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret parses raw and confirms payment candidates with the registry.
// It never returns an error: lookup failures degrade the payload to KindInvalid.
func (i *Interpreter) Interpret(ctx context.Context, raw string) Payload {
	p := Parse(raw)
	switch p.Candidate {
	case CandidateTransport:
		return i.resolveTransport(ctx, p)
	case CandidateMerchant:
		return i.resolveMerchant(ctx, p)
	default:
		return p
	}
}

func (i *Interpreter) resolveTransport(ctx context.Context, p Payload) Payload {
	t := p.Transport
	entry, reason := i.lookup(ctx, repositories.RegistryQuery{
		Kind:       models.RegistryKindTransport,
		OwnerID:    t.DriverID,
		RegistryID: t.RegistryID,
	})
	if entry == nil {
		return invalid(p, reason)
	}

	p.Kind = KindTransport
	p.Transport = &TransportDetails{
		DriverID:     t.DriverID,
		RegistryID:   entry.ID,
		RouteName:    entry.RouteName,
		VehicleType:  entry.VehicleType,
		PerRiderFare: entry.PerRiderFare,
	}
	return p
}

func (i *Interpreter) resolveMerchant(ctx context.Context, p Payload) Payload {
	m := p.Merchant
	entry, reason := i.lookup(ctx, repositories.RegistryQuery{
		Kind:    models.RegistryKindMerchant,
		OwnerID: m.MerchantID,
	})
	if entry == nil {
		return invalid(p, reason)
	}

	details := &MerchantDetails{
		MerchantID:   m.MerchantID,
		BusinessName: m.BusinessName,
		FixedAmount:  m.FixedAmount,
	}
	if details.BusinessName == "" {
		details.BusinessName = entry.BusinessName
	}
	if details.FixedAmount == nil && entry.FixedAmount != nil && *entry.FixedAmount > 0 {
		amount := *entry.FixedAmount
		details.FixedAmount = &amount
	}

	p.Kind = KindMerchant
	p.Merchant = details
	return p
}

// lookup returns the entry only when it is active and unexpired at call time.
func (i *Interpreter) lookup(ctx context.Context, q repositories.RegistryQuery) (*models.QRRegistryEntry, InvalidReason) {
	if q.OwnerID == "" {
		return nil, ReasonNotFound
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	entry, err := i.registry.Lookup(ctx, q)
	switch {
	case errors.Is(err, repositories.ErrRegistryNotFound):
		return nil, ReasonNotFound
	case err != nil:
		log.Warnf("qr registry lookup for %s %s failed: %v", q.Kind, q.OwnerID, err)
		return nil, ReasonLookupFailed
	case entry == nil:
		return nil, ReasonNotFound
	case !entry.Active:
		return nil, ReasonInactive
	case entry.IsExpired(i.now()):
		return nil, ReasonExpired
	}
	return entry, ""
}

func invalid(p Payload, reason InvalidReason) Payload {
	p.Kind = KindInvalid
	p.Reason = reason
	return p
}
