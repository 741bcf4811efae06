package qr

import (
	domainErrors "qrpay/internal/errors"
	"qrpay/internal/models"
)

// Kind is the classification of a scanned payload.
type Kind string

const (
	KindUnclassified Kind = "unclassified"
	KindTransport    Kind = "transport"
	KindMerchant     Kind = "merchant"
	// KindInvalid is a payment-shaped code the registry refused.
	KindInvalid Kind = "invalid"
)

// Candidate is the domain a payload claims before registry confirmation.
type Candidate string

const (
	CandidateNone      Candidate = ""
	CandidateTransport Candidate = "transport"
	CandidateMerchant  Candidate = "merchant"
)

// InvalidReason explains why a candidate was degraded to KindInvalid.
type InvalidReason string

const (
	ReasonNotFound     InvalidReason = "not_found"
	ReasonInactive     InvalidReason = "inactive"
	ReasonExpired      InvalidReason = "expired"
	ReasonLookupFailed InvalidReason = "lookup_failed"
)

// Wire discriminators of the QR JSON object.
const (
	TypeDriver   = "driver"
	TypeMerchant = "merchant"
)

// Payload is the raw decoded text plus its best-effort classification.
// Raw is always retained; exactly one of Transport or Merchant is set for payable kinds.
type Payload struct {
	Raw       string            `json:"raw"`
	Kind      Kind              `json:"kind"`
	Candidate Candidate         `json:"candidate,omitempty"`
	Reason    InvalidReason     `json:"reason,omitempty"`
	Transport *TransportDetails `json:"transport,omitempty"`
	Merchant  *MerchantDetails  `json:"merchant,omitempty"`
}

type TransportDetails struct {
	DriverID     string       `json:"driverId"`
	RegistryID   string       `json:"qrRegistryId"`
	RouteName    string       `json:"routeName,omitempty"`
	VehicleType  string       `json:"vehicleType,omitempty"`
	PerRiderFare models.Money `json:"perRiderFare"`
}

type MerchantDetails struct {
	MerchantID   string `json:"merchantId"`
	BusinessName string `json:"businessName,omitempty"`
	// FixedAmount is nil when the payer must enter the amount.
	FixedAmount *models.Money `json:"fixedAmount,omitempty"`
}

// Payable reports whether the payload can enter payment confirmation.
func (p Payload) Payable() bool {
	switch p.Kind {
	case KindTransport:
		return p.Transport != nil
	case KindMerchant:
		return p.Merchant != nil
	}
	return false
}

// Err maps a non-payable payload onto the domain error shown to the user.
func (p Payload) Err() error {
	switch p.Kind {
	case KindTransport, KindMerchant:
		return nil
	case KindInvalid:
		switch p.Reason {
		case ReasonExpired:
			return domainErrors.ErrQRExpired
		case ReasonInactive:
			return domainErrors.ErrQRInactive
		case ReasonNotFound:
			return domainErrors.ErrQRNotFound
		default:
			return domainErrors.ErrInvalidQR
		}
	default:
		return domainErrors.ErrUnrecognizedQR
	}
}
