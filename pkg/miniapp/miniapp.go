// Package miniapp verifies the platform's mini-app launch data: an
// HMAC-signed query-string blob proving a request genuinely came from the
// platform client for a given bot token.
package miniapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/wisbric/paygate/pkg/cryptoutil"
)

// webAppDataKey is the platform's fixed HMAC key-derivation label.
const webAppDataKey = "WebAppData"

// Identity is the verified caller attached to the request context after a
// successful initData check.
type Identity struct {
	UserID   int64
	AuthDate int64
	ChatType string // empty when absent
}

var (
	// ErrMissingHash is returned when initData carries no hash parameter.
	ErrMissingHash = errors.New("miniapp: missing hash parameter")
	// ErrSignatureMismatch is returned when the computed HMAC does not match.
	ErrSignatureMismatch = errors.New("miniapp: signature mismatch")
	// ErrMissingRequiredField is returned when auth_date or user.id is absent.
	ErrMissingRequiredField = errors.New("miniapp: missing required field")
)

// rawUser is the subset of the platform's "user" JSON field this package
// needs.
type rawUser struct {
	ID int64 `json:"id"`
}

// Verify checks initData (the raw, URL-encoded query string the mini-app
// sends) against botToken and returns the verified Identity.
//
// secretKey = HMAC-SHA256("WebAppData", botToken); dataCheckString joins the
// remaining key=value pairs (hash excluded), sorted ascending by key,
// separated by "\n"; calculated = HMAC-SHA256(secretKey, dataCheckString),
// compared to hash in constant time.
func Verify(initData, botToken string) (Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, ErrSignatureMismatch
	}

	hash := values.Get("hash")
	if hash == "" {
		return Identity{}, ErrMissingHash
	}
	values.Del("hash")

	dataCheckString := buildDataCheckString(values)

	secretKey := cryptoutil.HMACSHA256([]byte(webAppDataKey), []byte(botToken))
	calculated := cryptoutil.HMACSHA256(secretKey, []byte(dataCheckString))
	calculatedHex := cryptoutil.ToHex(calculated)

	if !cryptoutil.ConstantTimeEqualHex(calculatedHex, strings.ToLower(hash)) {
		return Identity{}, ErrSignatureMismatch
	}

	authDateRaw := values.Get("auth_date")
	if authDateRaw == "" {
		return Identity{}, ErrMissingRequiredField
	}
	authDate, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return Identity{}, ErrMissingRequiredField
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return Identity{}, ErrMissingRequiredField
	}
	var user rawUser
	if err := json.Unmarshal([]byte(userRaw), &user); err != nil || user.ID == 0 {
		return Identity{}, ErrMissingRequiredField
	}

	return Identity{
		UserID:   user.ID,
		AuthDate: authDate,
		ChatType: values.Get("chat_type"),
	}, nil
}

// buildDataCheckString joins key=value lines in ascending key order, with
// repeated-key values sorted ascending within the key, separated by "\n".
func buildDataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			lines = append(lines, k+"="+v)
		}
	}
	return strings.Join(lines, "\n")
}

type ctxKey string

const identityKey ctxKey = "miniapp_identity"

// NewContext stores the verified Identity in ctx.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the Identity attached by Middleware. ok is false if
// none is present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
