package invoice

import (
	"encoding/json"
	"errors"
	"strings"
)

// maxPayloadBytes bounds the UTF-8 size of an encoded PaymentPayload.
const maxPayloadBytes = 128

// PaymentPayload is the data round-tripped through the platform's opaque
// invoice payload field: the pre-checkout and successful-payment handlers
// decode it back out to recover which case and draw a charge belongs to.
type PaymentPayload struct {
	CaseID string `json:"caseId"`
	UserID int64  `json:"userId"`
	Nonce  string `json:"nonce"`
	Ts     int64  `json:"ts"`
}

// ErrPayloadTooLarge is returned by Encode when the JSON encoding exceeds
// maxPayloadBytes.
var ErrPayloadTooLarge = errors.New("invoice: payment payload exceeds 128 bytes")

// Encode serializes p as JSON, rejecting encodings over 128 UTF-8 bytes.
func Encode(p PaymentPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if len(b) > maxPayloadBytes {
		return "", ErrPayloadTooLarge
	}
	return string(b), nil
}

// Decode parses raw back into a PaymentPayload. It only checks that raw is
// well-formed JSON; callers needing the nonce/caseId-blank distinction (they
// map to different reason codes) check those separately.
func Decode(raw string) (PaymentPayload, error) {
	var p PaymentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return PaymentPayload{}, err
	}
	return p, nil
}

// DecodePayload parses raw back into a PaymentPayload, failing if required
// fields are blank. Used where the caller only needs a pass/fail decode and
// does not need to distinguish the blank-field reason code.
func DecodePayload(raw string) (PaymentPayload, error) {
	p, err := Decode(raw)
	if err != nil {
		return PaymentPayload{}, err
	}
	if strings.TrimSpace(p.CaseID) == "" {
		return PaymentPayload{}, errors.New("invoice: caseId blank")
	}
	if strings.TrimSpace(p.Nonce) == "" {
		return PaymentPayload{}, errors.New("invoice: nonce blank")
	}
	return p, nil
}
