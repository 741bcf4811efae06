package handlers

import (
	"errors"

	domainErrors "qrpay/internal/errors"
	"qrpay/internal/middleware"
	"qrpay/internal/models"
	"qrpay/internal/services/camera"
	"qrpay/internal/services/payment"
	"qrpay/internal/services/session"
	"qrpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type ScanHandler struct {
	sessions *session.Sessions
}

func NewScanHandler(sessions *session.Sessions) *ScanHandler {
	return &ScanHandler{sessions: sessions}
}

func (h *ScanHandler) controller(c *fiber.Ctx) (*session.Controller, error) {
	payerID := middleware.PayerID(c)
	if payerID == "" {
		return nil, fiber.ErrUnauthorized
	}
	return h.sessions.Get(c.Context(), payerID)
}

func (h *ScanHandler) GetState(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	return response.Success(c, "Scan session", ctrl.Snapshot())
}

func (h *ScanHandler) StartCamera(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	status, err := ctrl.StartCamera(c.Context())
	if err != nil {
		return fail(c, err, status)
	}
	return response.Success(c, "Camera started", status)
}

func (h *ScanHandler) StopCamera(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if err := ctrl.StopCamera(); err != nil {
		log.Errorf("payer %s: camera release: %v", ctrl.PayerID(), err)
		return response.ServerError(c, "Failed to release camera")
	}
	return response.Success(c, "Camera stopped", ctrl.CameraStatus())
}

func (h *ScanHandler) SubmitManual(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var input struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	out, err := ctrl.SubmitManual(c.Context(), input.Code)
	if err != nil {
		if out.Record.ID == "" {
			return fail(c, err, nil)
		}
		return fail(c, err, out)
	}
	return response.Success(c, "QR code accepted", out)
}

func (h *ScanHandler) IncrementQuantity(c *fiber.Ctx) error {
	return h.editDraft(c, func(ctrl *session.Controller) (payment.DraftView, error) {
		return ctrl.Increment()
	})
}

func (h *ScanHandler) DecrementQuantity(c *fiber.Ctx) error {
	return h.editDraft(c, func(ctrl *session.Controller) (payment.DraftView, error) {
		return ctrl.Decrement()
	})
}

func (h *ScanHandler) SetQuantity(c *fiber.Ctx) error {
	var input struct {
		Quantity int `json:"quantity"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	return h.editDraft(c, func(ctrl *session.Controller) (payment.DraftView, error) {
		return ctrl.SetQuantity(input.Quantity)
	})
}

// SetAmount takes the amount in minor units.
func (h *ScanHandler) SetAmount(c *fiber.Ctx) error {
	var input struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	return h.editDraft(c, func(ctrl *session.Controller) (payment.DraftView, error) {
		return ctrl.SetAmount(models.Money(input.Amount))
	})
}

func (h *ScanHandler) editDraft(c *fiber.Ctx, edit func(*session.Controller) (payment.DraftView, error)) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	view, err := edit(ctrl)
	if err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Draft updated", view)
}

func (h *ScanHandler) CancelDraft(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if err := ctrl.Cancel(); err != nil {
		return fail(c, err, nil)
	}
	return response.Success(c, "Payment cancelled", ctrl.Snapshot())
}

// ConfirmDraft returns 200 for both settled and rejected payments; the result state tells them apart.
func (h *ScanHandler) ConfirmDraft(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	result, err := ctrl.Confirm(c.Context())
	if err != nil {
		return fail(c, err, ctrl.Snapshot().Payment.Draft)
	}
	if result.Settled() {
		return response.Success(c, "Payment successful", result)
	}
	return response.Success(c, "Payment rejected", result)
}

func (h *ScanHandler) GetHistory(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	return response.Success(c, "Recent scans", ctrl.History())
}

func (h *ScanHandler) GetWallet(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	snap, ok := ctrl.Wallet()
	if !ok {
		return fail(c, payment.ErrWalletNotLoaded, nil)
	}
	return response.Success(c, "Wallet", snap)
}

func (h *ScanHandler) RefreshWallet(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	snap, err := ctrl.RefreshWallet(c.Context())
	if errors.Is(err, domainErrors.ErrWalletNotFound) {
		return fail(c, domainErrors.ErrWalletNotFound, nil)
	}
	if err != nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "Failed to refresh wallet")
	}
	return response.Success(c, "Wallet", snap)
}

// fail maps camera and domain errors onto coded responses.
func fail(c *fiber.Ctx, err error, data interface{}) error {
	if kind := camera.KindOf(err); kind != "" {
		hint := (&camera.Error{Kind: kind}).Remediation()
		return response.Coded(c, cameraStatus(kind), string(kind), hint, data)
	}

	var de *domainErrors.DomainError
	if errors.As(err, &de) {
		return response.Coded(c, domainStatus(de.Code), de.Code, de.Message, data)
	}

	if errors.Is(err, payment.ErrNotTransport) {
		return response.Coded(c, fiber.StatusUnprocessableEntity, "NOT_TRANSPORT", err.Error(), data)
	}

	log.Errorf("unhandled scan error: %v", err)
	return response.ServerError(c, "Internal server error")
}

func cameraStatus(kind camera.ErrorKind) int {
	switch kind {
	case camera.PermissionDenied:
		return fiber.StatusForbidden
	case camera.DeviceNotFound:
		return fiber.StatusNotFound
	case camera.Unsupported:
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusConflict
	}
}

func domainStatus(code string) int {
	switch code {
	case domainErrors.ErrSessionBusy.Code, domainErrors.ErrSubmissionInFlight.Code,
		domainErrors.ErrNoDraft.Code, domainErrors.ErrDuplicateRequest.Code:
		return fiber.StatusConflict
	case payment.ErrWalletNotLoaded.Code:
		return fiber.StatusServiceUnavailable
	case domainErrors.ErrWalletFrozen.Code:
		return fiber.StatusForbidden
	case domainErrors.ErrWalletNotFound.Code:
		return fiber.StatusNotFound
	default:
		return fiber.StatusUnprocessableEntity
	}
}
