package router

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/wisbric/paygate/pkg/platformclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakePreCheckout struct {
	calls int
}

func (f *fakePreCheckout) Handle(ctx context.Context, query platformclient.PreCheckoutQuery) error {
	f.calls++
	return nil
}

type fakeSuccessfulPayment struct {
	calls int
}

func (f *fakeSuccessfulPayment) Handle(ctx context.Context, msg platformclient.Message) error {
	f.calls++
	return nil
}

func TestRouteDispatchesPreCheckoutQuery(t *testing.T) {
	pc := &fakePreCheckout{}
	sp := &fakeSuccessfulPayment{}
	r := New(pc, sp, testLogger())

	update := platformclient.Update{UpdateID: 1, PreCheckoutQuery: &platformclient.PreCheckoutQuery{ID: "q1"}}
	if err := r.Route(context.Background(), update); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if pc.calls != 1 || sp.calls != 0 {
		t.Fatalf("pc.calls=%d sp.calls=%d, want 1/0", pc.calls, sp.calls)
	}
}

func TestRouteDispatchesSuccessfulPayment(t *testing.T) {
	pc := &fakePreCheckout{}
	sp := &fakeSuccessfulPayment{}
	r := New(pc, sp, testLogger())

	update := platformclient.Update{
		UpdateID: 2,
		Message: &platformclient.Message{
			SuccessfulPayment: &platformclient.SuccessfulPayment{TelegramPaymentChargeID: "ch1"},
		},
	}
	if err := r.Route(context.Background(), update); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if sp.calls != 1 || pc.calls != 0 {
		t.Fatalf("sp.calls=%d pc.calls=%d, want 1/0", sp.calls, pc.calls)
	}
}

func TestRouteIgnoresUnrecognizedUpdate(t *testing.T) {
	pc := &fakePreCheckout{}
	sp := &fakeSuccessfulPayment{}
	r := New(pc, sp, testLogger())

	update := platformclient.Update{UpdateID: 3, Message: &platformclient.Message{}}
	if err := r.Route(context.Background(), update); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if pc.calls != 0 || sp.calls != 0 {
		t.Fatalf("expected no handler calls for a plain message")
	}
}
