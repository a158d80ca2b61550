// Package cryptoutil holds the HMAC-SHA256/SHA-256 primitives shared by the
// fairness engine and mini-app signature verification. Nothing here is
// novel cryptography: it is the small set of deterministic, constant-time
// building blocks the rest of the gateway composes.
package cryptoutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// HMACSHA256 returns the HMAC-SHA256 of data keyed by key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ToHex lowercase hex-encodes b.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// ConstantTimeEqualHex reports whether two lowercase hex strings encode the
// same bytes, compared in constant time. Mismatched lengths are rejected
// without a timing-safe comparison since length alone is not secret.
func ConstantTimeEqualHex(a, b string) bool {
	da, errA := hex.DecodeString(a)
	db, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	if len(da) != len(db) {
		return false
	}
	return subtle.ConstantTimeCompare(da, db) == 1
}

// ConstantTimeEqual reports whether two byte strings are equal, compared in
// constant time.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// DecodeFairnessKey decodes the configured FAIRNESS_KEY value, auto-detecting
// its encoding: hex first, then standard base64, falling back to the raw
// utf-8 bytes if neither parses. A hex- or base64-decoded key must be
// 32-64 bytes (spec's configuration section); a raw utf-8 key is used as-is.
func DecodeFairnessKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New("cryptoutil: fairness key is empty")
	}
	if b, err := hex.DecodeString(raw); err == nil {
		return validateKeyLength(b, "hex")
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return validateKeyLength(b, "base64")
	}
	return []byte(raw), nil
}

func validateKeyLength(b []byte, encoding string) ([]byte, error) {
	if len(b) < 32 || len(b) > 64 {
		return nil, fmt.Errorf("cryptoutil: %s fairness key must be 32-64 bytes, got %d", encoding, len(b))
	}
	return b, nil
}

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Base62Nonce generates a cryptographically random base62 string of length n,
// used as the PaymentPayload nonce.
func Base62Nonce(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("cryptoutil: nonce length must be positive")
	}
	out := make([]byte, n)
	max := big.NewInt(int64(len(base62Alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = base62Alphabet[idx.Int64()]
	}
	return string(out), nil
}
