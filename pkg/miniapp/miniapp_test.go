package miniapp

import (
	"context"
	"net/url"
	"testing"

	"github.com/wisbric/paygate/pkg/cryptoutil"
)

const testBotToken = "123456:ABC-DEF-test-token"

// signInitData builds a valid initData query string for fields, the way the
// platform itself would: compute the data-check string over everything but
// hash, then HMAC it with the WebAppData-derived secret key.
func signInitData(t *testing.T, fields map[string]string) string {
	t.Helper()
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	dataCheckString := buildDataCheckString(values)
	secretKey := cryptoutil.HMACSHA256([]byte(webAppDataKey), []byte(testBotToken))
	hash := cryptoutil.ToHex(cryptoutil.HMACSHA256(secretKey, []byte(dataCheckString)))
	values.Set("hash", hash)
	return values.Encode()
}

func TestVerifySucceedsOnValidSignature(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1700000000",
		"user":      `{"id":42}`,
		"chat_type": "private",
	})

	id, err := Verify(initData, testBotToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != 42 {
		t.Fatalf("UserID = %d, want 42", id.UserID)
	}
	if id.AuthDate != 1700000000 {
		t.Fatalf("AuthDate = %d, want 1700000000", id.AuthDate)
	}
	if id.ChatType != "private" {
		t.Fatalf("ChatType = %q, want private", id.ChatType)
	}
}

func TestVerifyRejectsTamperedField(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1700000000",
		"user":      `{"id":42}`,
	})

	values, _ := url.ParseQuery(initData)
	values.Set("user", `{"id":99}`) // tampered after signing
	tampered := values.Encode()

	if _, err := Verify(tampered, testBotToken); err != ErrSignatureMismatch {
		t.Fatalf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifyRejectsWrongBotToken(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1700000000",
		"user":      `{"id":42}`,
	})

	if _, err := Verify(initData, "different-token"); err != ErrSignatureMismatch {
		t.Fatalf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifyRejectsMissingHash(t *testing.T) {
	values := url.Values{}
	values.Set("auth_date", "1700000000")
	values.Set("user", `{"id":42}`)

	if _, err := Verify(values.Encode(), testBotToken); err != ErrMissingHash {
		t.Fatalf("Verify() error = %v, want ErrMissingHash", err)
	}
}

func TestVerifyRejectsMissingAuthDate(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"user": `{"id":42}`,
	})

	if _, err := Verify(initData, testBotToken); err != ErrMissingRequiredField {
		t.Fatalf("Verify() error = %v, want ErrMissingRequiredField", err)
	}
}

func TestVerifyRejectsMissingUser(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1700000000",
	})

	if _, err := Verify(initData, testBotToken); err != ErrMissingRequiredField {
		t.Fatalf("Verify() error = %v, want ErrMissingRequiredField", err)
	}
}

func TestVerifyRejectsZeroUserID(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1700000000",
		"user":      `{"id":0}`,
	})

	if _, err := Verify(initData, testBotToken); err != ErrMissingRequiredField {
		t.Fatalf("Verify() error = %v, want ErrMissingRequiredField", err)
	}
}

func TestDataCheckStringOrdersKeysAscending(t *testing.T) {
	values := url.Values{}
	values.Set("z", "1")
	values.Set("a", "2")
	values.Set("m", "3")

	got := buildDataCheckString(values)
	want := "a=2\nm=3\nz=1"
	if got != want {
		t.Fatalf("buildDataCheckString() = %q, want %q", got, want)
	}
}

func TestFromContextRoundTrips(t *testing.T) {
	id := Identity{UserID: 7, AuthDate: 1, ChatType: "group"}
	ctx := NewContext(context.Background(), id)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatalf("FromContext() ok = false, want true")
	}
	if got != id {
		t.Fatalf("FromContext() = %+v, want %+v", got, id)
	}
}
