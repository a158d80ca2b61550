package award

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/platformclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr(s string) *string { return &s }

type fakePlatform struct {
	gifts              []platformclient.Gift
	giftsErr           error
	sendGiftCalls      int
	sendGiftErr        error
	giftPremiumCalls   int
	giftPremiumErr     error
	lastGiftID         string
	lastPremiumMonths  int
	lastPremiumStars   int64
}

func (f *fakePlatform) GetAvailableGifts(ctx context.Context) ([]platformclient.Gift, error) {
	return f.gifts, f.giftsErr
}

func (f *fakePlatform) SendGift(ctx context.Context, userID int64, giftID string, payForUpgrade bool) error {
	f.sendGiftCalls++
	f.lastGiftID = giftID
	return f.sendGiftErr
}

func (f *fakePlatform) GiftPremiumSubscription(ctx context.Context, userID int64, monthCount int, starCount int64) error {
	f.giftPremiumCalls++
	f.lastPremiumMonths = monthCount
	f.lastPremiumStars = starCount
	return f.giftPremiumErr
}

type fakeRefunder struct {
	calls int
}

func (f *fakeRefunder) RefundStar(ctx context.Context, userID int64, chargeID, reason string) error {
	f.calls++
	return nil
}

func starCost(n int64) *int64 { return &n }

func testCatalog() economy.Catalog {
	return economy.NewMemoryCatalog([]economy.CaseConfig{
		{
			ID: "c1", Title: "Case", PriceStars: 100,
			Items: []economy.PrizeItem{
				{ID: "gift1", Type: economy.PrizeGift, StarCost: starCost(500), ProbabilityPpm: 500_000},
				{ID: "prem3m", Type: economy.PrizePremium3m, StarCost: starCost(1000), ProbabilityPpm: 300_000},
				{ID: "int1", Type: economy.PrizeInternal, ProbabilityPpm: 200_000},
			},
		},
	})
}

func TestScheduleDeliversGift(t *testing.T) {
	platform := &fakePlatform{gifts: []platformclient.Gift{{ID: "g-xyz", StarCount: 500}}}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: ptr("gift1")}
	if err := s.Schedule(context.Background(), plan); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if platform.sendGiftCalls != 1 || platform.lastGiftID != "g-xyz" {
		t.Fatalf("sendGiftCalls = %d, lastGiftID = %q", platform.sendGiftCalls, platform.lastGiftID)
	}
}

func TestScheduleDeliversPremium(t *testing.T) {
	platform := &fakePlatform{}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: ptr("prem3m")}
	if err := s.Schedule(context.Background(), plan); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if platform.giftPremiumCalls != 1 || platform.lastPremiumMonths != 3 || platform.lastPremiumStars != 1000 {
		t.Fatalf("unexpected premium call: calls=%d months=%d stars=%d", platform.giftPremiumCalls, platform.lastPremiumMonths, platform.lastPremiumStars)
	}
}

func TestScheduleInternalPrizeIsJournalOnly(t *testing.T) {
	platform := &fakePlatform{}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: ptr("int1")}
	if err := s.Schedule(context.Background(), plan); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if platform.sendGiftCalls != 0 || platform.giftPremiumCalls != 0 {
		t.Fatalf("internal prize must not call the platform")
	}
}

func TestScheduleNilResultItemIsInternalOnly(t *testing.T) {
	platform := &fakePlatform{}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: nil}
	if err := s.Schedule(context.Background(), plan); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if platform.sendGiftCalls != 0 || platform.giftPremiumCalls != 0 {
		t.Fatalf("missing-win prize must not call the platform")
	}
}

func TestScheduleIsIdempotentOnDuplicateCharge(t *testing.T) {
	platform := &fakePlatform{gifts: []platformclient.Gift{{ID: "g-xyz", StarCount: 500}}}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: ptr("gift1")}
	_ = s.Schedule(context.Background(), plan)
	_ = s.Schedule(context.Background(), plan)

	if platform.sendGiftCalls != 1 {
		t.Fatalf("sendGiftCalls = %d, want 1 (duplicate charge must not re-deliver)", platform.sendGiftCalls)
	}
}

func TestScheduleFailureRefundsXTR(t *testing.T) {
	platform := &fakePlatform{giftsErr: errors.New("gifts unavailable")}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: ptr("gift1")}
	if err := s.Schedule(context.Background(), plan); err == nil {
		t.Fatalf("expected error when gift lookup fails")
	}
	if refunder.calls != 1 {
		t.Fatalf("refund calls = %d, want 1", refunder.calls)
	}
}

func TestScheduleFailureSkipsRefundForNonXTR(t *testing.T) {
	platform := &fakePlatform{giftsErr: errors.New("gifts unavailable")}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "USD", ResultItemID: ptr("gift1")}
	if err := s.Schedule(context.Background(), plan); err == nil {
		t.Fatalf("expected error when gift lookup fails")
	}
	if refunder.calls != 0 {
		t.Fatalf("refund calls = %d, want 0 for non-XTR currency", refunder.calls)
	}
}

func TestScheduleFailureAllowsRetry(t *testing.T) {
	platform := &fakePlatform{giftsErr: errors.New("gifts unavailable")}
	refunder := &fakeRefunder{}
	s := New(testCatalog(), platform, refunder, testLogger())

	plan := Plan{ChargeID: "ch1", UserID: 42, CaseID: "c1", Currency: "XTR", ResultItemID: ptr("gift1")}
	_ = s.Schedule(context.Background(), plan)

	platform.giftsErr = nil
	platform.gifts = []platformclient.Gift{{ID: "g-xyz", StarCount: 500}}
	if err := s.Schedule(context.Background(), plan); err != nil {
		t.Fatalf("retry after failure should succeed, got error = %v", err)
	}
}
