package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainErrors "qrpay/internal/errors"
	"qrpay/internal/models"

	"github.com/gofiber/fiber/v2/log"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// pq error code for CHECK constraint violations, raised when a debit would go negative.
const checkViolation pq.ErrorCode = "23514"

type requestClaimer interface {
	Claim(ctx context.Context, requestID string) (bool, error)
}

// SettlementRepository invokes the backend settlement procedures.
type SettlementRepository struct {
	db    *gorm.DB
	guard requestClaimer
}

// NewSettlementRepository builds the repository; guard may be nil.
func NewSettlementRepository(db *gorm.DB, guard requestClaimer) *SettlementRepository {
	return &SettlementRepository{db: db, guard: guard}
}

func (r *SettlementRepository) SubmitTransportPayment(ctx context.Context, req models.TransportPaymentRequest) (*models.SettlementRow, error) {
	if err := r.claim(ctx, req.RequestID); err != nil {
		return nil, err
	}
	return r.call(ctx, models.SettlementProcTransport,
		req.PayerID, req.DriverID, req.Amount.Int64(), req.RegistryID, req.Quantity, req.RequestID)
}

func (r *SettlementRepository) SubmitMerchantPayment(ctx context.Context, req models.MerchantPaymentRequest) (*models.SettlementRow, error) {
	if err := r.claim(ctx, req.RequestID); err != nil {
		return nil, err
	}
	return r.call(ctx, models.SettlementProcMerchant,
		req.PayerID, req.MerchantID, req.Amount.Int64(), req.RequestID)
}

func (r *SettlementRepository) claim(ctx context.Context, requestID string) error {
	if r.guard == nil {
		return nil
	}
	ok, err := r.guard.Claim(ctx, requestID)
	if err != nil {
		// The procedure also receives the request ID, so the backend can still deduplicate.
		log.Warnf("idempotency guard unavailable, dispatching %s unguarded: %v", requestID, err)
		return nil
	}
	if !ok {
		return domainErrors.ErrDuplicateRequest
	}
	return nil
}

func (r *SettlementRepository) call(ctx context.Context, proc string, args ...interface{}) (*models.SettlementRow, error) {
	var row models.SettlementRow
	res := r.db.WithContext(ctx).Raw("SELECT * FROM "+proc+"("+placeholders(len(args))+")", args...).Scan(&row)
	if res.Error != nil {
		if rejection, ok := asBusinessRejection(res.Error); ok {
			return rejection, nil
		}
		return nil, fmt.Errorf("%s failed: %w", proc, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%s returned no result", proc)
	}
	return &row, nil
}

// asBusinessRejection converts errors raised deliberately by the procedure into a result row.
func asBusinessRejection(err error) (*models.SettlementRow, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	if pqErr.Code.Class() != "P0" && pqErr.Code != checkViolation {
		return nil, false
	}
	row := &models.SettlementRow{
		Success:   false,
		Message:   pqErr.Message,
		ErrorCode: string(pqErr.Code),
	}
	if isInsufficientBalance(pqErr) {
		row.ErrorCode = domainErrors.ErrInsufficientBalance.Code
		row.Message = domainErrors.ErrInsufficientBalance.Message
	}
	return row, true
}

func isInsufficientBalance(e *pq.Error) bool {
	if e.Code == checkViolation {
		return strings.Contains(e.Constraint, "balance")
	}
	return strings.Contains(strings.ToLower(e.Message), "insufficient")
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}
