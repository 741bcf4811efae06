package qr

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"qrpay/internal/models"
)

// wireFields are the keys of the QR JSON object this service understands.
type wireFields struct {
	Type         string
	DriverID     string
	RegistryID   string
	MerchantID   string
	BusinessName string
	Amount       *models.Money
}

// Parse classifies raw by shape only. It never fails: anything that is not a
// JSON object with a known discriminator comes back unclassified with no candidate.
// Candidates stay KindUnclassified until the Interpreter confirms them.
func Parse(raw string) Payload {
	p := Payload{Raw: raw, Kind: KindUnclassified}

	fields, ok := decodeWire(raw)
	if !ok {
		return p
	}

	// First match wins: a transport discriminator beats a merchant one.
	switch {
	case fields.Type == TypeDriver || fields.DriverID != "":
		p.Candidate = CandidateTransport
		p.Transport = &TransportDetails{
			DriverID:   fields.DriverID,
			RegistryID: fields.RegistryID,
		}
	case fields.Type == TypeMerchant || fields.MerchantID != "":
		p.Candidate = CandidateMerchant
		p.Merchant = &MerchantDetails{
			MerchantID:   fields.MerchantID,
			BusinessName: fields.BusinessName,
			FixedAmount:  fields.Amount,
		}
	}
	return p
}

func decodeWire(raw string) (wireFields, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil || obj == nil {
		return wireFields{}, false
	}

	f := wireFields{
		Type:         strings.ToLower(stringField(obj, "type")),
		DriverID:     stringField(obj, "driverId", "driver_id"),
		RegistryID:   stringField(obj, "qrId", "qrCodeId", "qr_id"),
		MerchantID:   stringField(obj, "merchantId", "merchant_id"),
		BusinessName: stringField(obj, "businessName", "business_name"),
	}
	if amount, ok := moneyField(obj, "amount"); ok && amount > 0 {
		f.Amount = &amount
	}
	return f, true
}

// stringField returns the first present key as a string; numeric IDs are accepted.
func stringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// moneyField accepts JSON numbers and numeric strings.
func moneyField(obj map[string]json.RawMessage, key string) (models.Money, bool) {
	v, ok := obj[key]
	if !ok {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		s = string(v)
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.Money(i), true
	}
	// Fractional amounts are rounded to the nearest minor unit.
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if f < 0 {
			return models.Money(f - 0.5), true
		}
		return models.Money(f + 0.5), true
	}
	return 0, false
}
