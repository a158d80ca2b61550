package payment

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/wisbric/paygate/pkg/award"
	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/fairness"
	"github.com/wisbric/paygate/pkg/invoice"
	"github.com/wisbric/paygate/pkg/platformclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCatalog() economy.Catalog {
	return economy.NewMemoryCatalog([]economy.CaseConfig{
		{ID: "c1", Title: "Starter Case", PriceStars: 700},
	})
}

type fakeDrawer struct {
	calls int
	err   error
}

func (f *fakeDrawer) Draw(caseID string, userID int64, nonce string) (fairness.DrawRecord, fairness.Receipt, error) {
	f.calls++
	if f.err != nil {
		return fairness.DrawRecord{}, fairness.Receipt{}, f.err
	}
	return fairness.DrawRecord{CaseID: caseID, UserID: userID, Nonce: nonce}, fairness.Receipt{Date: "2026-07-29"}, nil
}

type fakeScheduler struct {
	calls int
	err   error
}

func (f *fakeScheduler) Schedule(ctx context.Context, plan award.Plan) error {
	f.calls++
	return f.err
}

type fakeRefunder struct {
	calls int
}

func (f *fakeRefunder) RefundStar(ctx context.Context, userID int64, chargeID, reason string) error {
	f.calls++
	return nil
}

type fakePlatform struct {
	calls int
}

func (f *fakePlatform) SendMessage(ctx context.Context, chatID int64, text string, disableNotification bool, replyToMessageID *int64) error {
	f.calls++
	return nil
}

func validMessage(t *testing.T, chargeID string) platformclient.Message {
	t.Helper()
	encoded, err := invoice.Encode(invoice.PaymentPayload{CaseID: "c1", UserID: 42, Nonce: "n1", Ts: 1})
	if err != nil {
		t.Fatalf("invoice.Encode() error = %v", err)
	}
	return platformclient.Message{
		Chat: platformclient.Chat{ID: 1000},
		From: &platformclient.User{ID: 42},
		SuccessfulPayment: &platformclient.SuccessfulPayment{
			Currency:                "XTR",
			TotalAmount:             700,
			InvoicePayload:          encoded,
			TelegramPaymentChargeID: chargeID,
		},
	}
}

func TestHandleSucceeds(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, true, testLogger())

	if err := h.Handle(context.Background(), validMessage(t, "ch1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if drawer.calls != 1 || scheduler.calls != 1 {
		t.Fatalf("drawer.calls=%d scheduler.calls=%d, want 1/1", drawer.calls, scheduler.calls)
	}
	if platform.calls != 1 {
		t.Fatalf("receipt send calls = %d, want 1", platform.calls)
	}
}

func TestHandleIsIdempotentOnDuplicateCharge(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	msg := validMessage(t, "ch1")
	_ = h.Handle(context.Background(), msg)
	_ = h.Handle(context.Background(), msg)

	if drawer.calls != 1 {
		t.Fatalf("drawer.calls = %d, want 1 (duplicate charge must not re-draw)", drawer.calls)
	}
}

func TestHandleRefundsOnValidationFailure(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	msg := validMessage(t, "ch1")
	msg.SuccessfulPayment.TotalAmount = 1 // mismatched amount
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if drawer.calls != 0 {
		t.Fatalf("drawer must not be called on validation failure")
	}
	if refunder.calls != 1 {
		t.Fatalf("refund calls = %d, want 1", refunder.calls)
	}
}

func TestHandleSkipsRefundForNonXTRValidationFailure(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	msg := validMessage(t, "ch1")
	msg.SuccessfulPayment.Currency = "USD"
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if refunder.calls != 0 {
		t.Fatalf("refund calls = %d, want 0 for non-XTR currency", refunder.calls)
	}
}

func TestHandleRefundsOnDrawFailure(t *testing.T) {
	drawer := &fakeDrawer{err: errors.New("draw boom")}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	if err := h.Handle(context.Background(), validMessage(t, "ch1")); err == nil {
		t.Fatalf("expected error on draw failure")
	}
	if refunder.calls != 1 {
		t.Fatalf("refund calls = %d, want 1", refunder.calls)
	}
	if scheduler.calls != 0 {
		t.Fatalf("scheduler must not be called after draw failure")
	}
}

func TestHandleRejectsMissingPayment(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	msg := platformclient.Message{Chat: platformclient.Chat{ID: 1000}, From: &platformclient.User{ID: 42}}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if drawer.calls != 0 || scheduler.calls != 0 || refunder.calls != 0 {
		t.Fatalf("no collaborator should run for a message with no payment")
	}
}

func TestHandleRejectsBlankChargeID(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	msg := validMessage(t, "   ")
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if drawer.calls != 0 || scheduler.calls != 0 {
		t.Fatalf("draw/schedule must not run for a blank charge id")
	}
	if refunder.calls != 0 {
		t.Fatalf("refund must not run for a blank charge id (nothing to key a refund on)")
	}
}

func TestHandleRefundsOnAwardFailure(t *testing.T) {
	drawer := &fakeDrawer{}
	scheduler := &fakeScheduler{err: errors.New("award boom")}
	refunder := &fakeRefunder{}
	platform := &fakePlatform{}
	h := New(testCatalog(), drawer, scheduler, refunder, platform, false, testLogger())

	if err := h.Handle(context.Background(), validMessage(t, "ch1")); err == nil {
		t.Fatalf("expected error on award failure")
	}
	if refunder.calls != 1 {
		t.Fatalf("refund calls = %d, want 1", refunder.calls)
	}
}
